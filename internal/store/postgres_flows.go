package store

import (
	"context"
	"database/sql"
	"fmt"

	"trove/api/internal/flow"
)

func (s *PostgresStore) ListFlows(ctx context.Context, ownerID string) ([]FlowSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.visibility, f.owner_id, f.cover_image, f.updated_at,
			(SELECT COUNT(*) FROM flow_stages st WHERE st.flow_id = f.id),
			(SELECT COUNT(*) FROM flow_nodes n WHERE n.flow_id = f.id)
		FROM flows f
		WHERE f.owner_id = $1
		ORDER BY f.updated_at DESC, f.id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	items := make([]FlowSummary, 0)
	for rows.Next() {
		var item FlowSummary
		var visibility string
		if err := rows.Scan(&item.ID, &item.Name, &visibility, &item.OwnerID, &item.CoverImage, &item.UpdatedAt, &item.StageCount, &item.NodeCount); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		item.Visibility = flow.NormalizeVisibility(visibility)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return items, nil
}

// GetFlow loads a flow with its stages and nodes ordered by position.
func (s *PostgresStore) GetFlow(ctx context.Context, flowID string) (flow.Flow, error) {
	var f flow.Flow
	var visibility string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, visibility, cover_image, created_at, updated_at
		FROM flows WHERE id=$1
	`, flowID).Scan(&f.ID, &f.OwnerID, &f.Name, &visibility, &f.CoverImage, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return flow.Flow{}, mapPgError(err)
	}
	f.Visibility = flow.NormalizeVisibility(visibility)

	stageRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, position FROM flow_stages WHERE flow_id=$1 ORDER BY position
	`, flowID)
	if err != nil {
		return flow.Flow{}, fmt.Errorf("list stages: %w", err)
	}
	defer stageRows.Close()
	f.Stages = make([]flow.Stage, 0)
	byID := make(map[string]int)
	for stageRows.Next() {
		stage := flow.Stage{Nodes: []flow.Node{}}
		if err := stageRows.Scan(&stage.ID, &stage.Name, &stage.Position); err != nil {
			return flow.Flow{}, fmt.Errorf("scan stage: %w", err)
		}
		byID[stage.ID] = len(f.Stages)
		f.Stages = append(f.Stages, stage)
	}
	if err := stageRows.Err(); err != nil {
		return flow.Flow{}, fmt.Errorf("iterate stages: %w", err)
	}

	nodeRows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.stage_id, n.content_id, n.description, n.position,
			c.kind, c.title, c.creator, c.year, c.cover_url
		FROM flow_nodes n
		JOIN contents c ON c.id = n.content_id
		WHERE n.flow_id = $1
		ORDER BY n.stage_id, n.position
	`, flowID)
	if err != nil {
		return flow.Flow{}, fmt.Errorf("list nodes: %w", err)
	}
	defer nodeRows.Close()
	for nodeRows.Next() {
		var node flow.Node
		var stageID, kind string
		if err := nodeRows.Scan(&node.ID, &stageID, &node.ContentID, &node.Description, &node.Position,
			&kind, &node.Content.Title, &node.Content.Creator, &node.Content.Year, &node.Content.CoverURL); err != nil {
			return flow.Flow{}, fmt.Errorf("scan node: %w", err)
		}
		node.Content.ID = node.ContentID
		node.Content.Kind = flow.ContentKind(kind)
		if idx, ok := byID[stageID]; ok {
			f.Stages[idx].Nodes = append(f.Stages[idx].Nodes, node)
		}
	}
	if err := nodeRows.Err(); err != nil {
		return flow.Flow{}, fmt.Errorf("iterate nodes: %w", err)
	}
	return f, nil
}

// CreateFlow inserts the flow and any initial stages it carries.
func (s *PostgresStore) CreateFlow(ctx context.Context, f flow.Flow) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flows (id, owner_id, name, visibility, cover_image)
			VALUES ($1, $2, $3, $4, $5)
		`, f.ID, f.OwnerID, f.Name, string(f.Visibility), f.CoverImage); err != nil {
			return fmt.Errorf("insert flow: %w", err)
		}
		for i, stage := range f.Stages {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO flow_stages (id, flow_id, name, position) VALUES ($1, $2, $3, $4)
			`, stage.ID, f.ID, stage.Name, i); err != nil {
				return fmt.Errorf("insert stage: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) UpdateFlow(ctx context.Context, flowID string, patch FlowPatch) error {
	var visibility *string
	if patch.Visibility != nil {
		v := string(*patch.Visibility)
		visibility = &v
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE flows SET
			name = COALESCE($2, name),
			visibility = COALESCE($3, visibility),
			cover_image = COALESCE($4, cover_image),
			updated_at = NOW()
		WHERE id = $1
	`, flowID, patch.Name, visibility, patch.CoverImage)
	if err != nil {
		return fmt.Errorf("update flow: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) DeleteFlow(ctx context.Context, flowID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE id=$1`, flowID)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) FlowIDForStage(ctx context.Context, stageID string) (string, error) {
	var flowID string
	err := s.db.QueryRowContext(ctx, `SELECT flow_id FROM flow_stages WHERE id=$1`, stageID).Scan(&flowID)
	return flowID, mapPgError(err)
}

func (s *PostgresStore) FlowIDForNode(ctx context.Context, nodeID string) (string, error) {
	var flowID string
	err := s.db.QueryRowContext(ctx, `SELECT flow_id FROM flow_nodes WHERE id=$1`, nodeID).Scan(&flowID)
	return flowID, mapPgError(err)
}

// AddStage appends a stage at the end of the flow.
func (s *PostgresStore) AddStage(ctx context.Context, flowID string, stage flow.Stage) (flow.Stage, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockFlow(ctx, tx, flowID); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM flow_stages WHERE flow_id=$1`, flowID).Scan(&stage.Position); err != nil {
			return fmt.Errorf("count stages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flow_stages (id, flow_id, name, position) VALUES ($1, $2, $3, $4)
		`, stage.ID, flowID, stage.Name, stage.Position); err != nil {
			return fmt.Errorf("insert stage: %w", err)
		}
		return touchFlow(ctx, tx, flowID)
	})
	if err != nil {
		return flow.Stage{}, err
	}
	stage.Nodes = []flow.Node{}
	return stage, nil
}

func (s *PostgresStore) RenameStage(ctx context.Context, stageID, name string) (flow.Stage, error) {
	stage := flow.Stage{Nodes: []flow.Node{}}
	err := s.db.QueryRowContext(ctx, `
		UPDATE flow_stages SET name=$2 WHERE id=$1 RETURNING id, name, position
	`, stageID, name).Scan(&stage.ID, &stage.Name, &stage.Position)
	if err != nil {
		return flow.Stage{}, mapPgError(err)
	}
	return stage, nil
}

// DeleteStage removes the stage with its nodes and closes the gap it leaves.
func (s *PostgresStore) DeleteStage(ctx context.Context, stageID string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var flowID string
		if err := tx.QueryRowContext(ctx, `SELECT flow_id FROM flow_stages WHERE id=$1`, stageID).Scan(&flowID); err != nil {
			return mapPgError(err)
		}
		if err := lockFlow(ctx, tx, flowID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM flow_stages WHERE id=$1`, stageID); err != nil {
			return fmt.Errorf("delete stage: %w", err)
		}
		ids, err := childIDs(ctx, tx, stagesOf, flowID)
		if err != nil {
			return err
		}
		if err := setPositions(ctx, tx, "flow_stages", ids); err != nil {
			return err
		}
		return touchFlow(ctx, tx, flowID)
	})
}

// ReorderStages rewrites stage positions. orderedIDs must be a permutation of
// the flow's current stage ids.
func (s *PostgresStore) ReorderStages(ctx context.Context, flowID string, orderedIDs []string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockFlow(ctx, tx, flowID); err != nil {
			return err
		}
		current, err := childIDs(ctx, tx, stagesOf, flowID)
		if err != nil {
			return err
		}
		if err := checkPermutation(current, orderedIDs); err != nil {
			return err
		}
		if err := setPositions(ctx, tx, "flow_stages", orderedIDs); err != nil {
			return err
		}
		return touchFlow(ctx, tx, flowID)
	})
}

// CreateNode inserts a node for contentID before beforeNodeID, or at the end
// of the stage when beforeNodeID is empty.
func (s *PostgresStore) CreateNode(ctx context.Context, stageID string, node flow.Node, beforeNodeID string) (flow.Node, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var flowID string
		if err := tx.QueryRowContext(ctx, `SELECT flow_id FROM flow_stages WHERE id=$1`, stageID).Scan(&flowID); err != nil {
			return mapPgError(err)
		}
		if err := lockFlow(ctx, tx, flowID); err != nil {
			return err
		}

		var kind string
		err := tx.QueryRowContext(ctx, `
			SELECT kind, title, creator, year, cover_url FROM contents WHERE id=$1
		`, node.ContentID).Scan(&kind, &node.Content.Title, &node.Content.Creator, &node.Content.Year, &node.Content.CoverURL)
		if err != nil {
			return fmt.Errorf("content %s: %w", node.ContentID, mapPgError(err))
		}
		node.Content.ID = node.ContentID
		node.Content.Kind = flow.ContentKind(kind)

		var used bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM flow_nodes WHERE flow_id=$1 AND content_id=$2)
		`, flowID, node.ContentID).Scan(&used); err != nil {
			return fmt.Errorf("check duplicate content: %w", err)
		}
		if used {
			return ErrDuplicateContent
		}

		current, err := childIDs(ctx, tx, nodesOf, stageID)
		if err != nil {
			return err
		}
		node.Position = len(current)
		if beforeNodeID != "" {
			node.Position = indexOf(current, beforeNodeID)
			if node.Position < 0 {
				return ErrAnchorNotFound
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE flow_nodes SET position = position + 1 WHERE stage_id=$1 AND position >= $2
		`, stageID, node.Position); err != nil {
			return fmt.Errorf("shift nodes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flow_nodes (id, flow_id, stage_id, content_id, description, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, node.ID, flowID, stageID, node.ContentID, node.Description, node.Position); err != nil {
			return fmt.Errorf("insert node: %w", mapPgError(err))
		}
		return touchFlow(ctx, tx, flowID)
	})
	if err != nil {
		return flow.Node{}, err
	}
	return node, nil
}

// ReorderNodes rewrites node positions within one stage. orderedIDs must be a
// permutation of the stage's current node ids.
func (s *PostgresStore) ReorderNodes(ctx context.Context, stageID string, orderedIDs []string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var flowID string
		if err := tx.QueryRowContext(ctx, `SELECT flow_id FROM flow_stages WHERE id=$1`, stageID).Scan(&flowID); err != nil {
			return mapPgError(err)
		}
		if err := lockFlow(ctx, tx, flowID); err != nil {
			return err
		}
		current, err := childIDs(ctx, tx, nodesOf, stageID)
		if err != nil {
			return err
		}
		if err := checkPermutation(current, orderedIDs); err != nil {
			return err
		}
		if err := setPositions(ctx, tx, "flow_nodes", orderedIDs); err != nil {
			return err
		}
		return touchFlow(ctx, tx, flowID)
	})
}

// MoveNode moves nodeID into toStageID. orderedIDs is the target stage's full
// new order and must be its current ids plus nodeID. The source stage is
// renumbered to close the gap.
func (s *PostgresStore) MoveNode(ctx context.Context, nodeID, toStageID string, orderedIDs []string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var fromStageID, flowID, toFlowID string
		if err := tx.QueryRowContext(ctx, `SELECT stage_id, flow_id FROM flow_nodes WHERE id=$1`, nodeID).Scan(&fromStageID, &flowID); err != nil {
			return mapPgError(err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT flow_id FROM flow_stages WHERE id=$1`, toStageID).Scan(&toFlowID); err != nil {
			return mapPgError(err)
		}
		if toFlowID != flowID {
			return ErrNotFound
		}
		if err := lockFlow(ctx, tx, flowID); err != nil {
			return err
		}

		target, err := childIDs(ctx, tx, nodesOf, toStageID)
		if err != nil {
			return err
		}
		if fromStageID != toStageID {
			target = append(target, nodeID)
		}
		if err := checkPermutation(target, orderedIDs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE flow_nodes SET stage_id=$2 WHERE id=$1`, nodeID, toStageID); err != nil {
			return fmt.Errorf("move node: %w", err)
		}
		if err := setPositions(ctx, tx, "flow_nodes", orderedIDs); err != nil {
			return err
		}
		if fromStageID != toStageID {
			rest, err := childIDs(ctx, tx, nodesOf, fromStageID)
			if err != nil {
				return err
			}
			if err := setPositions(ctx, tx, "flow_nodes", rest); err != nil {
				return err
			}
		}
		return touchFlow(ctx, tx, flowID)
	})
}

func (s *PostgresStore) UpdateNode(ctx context.Context, nodeID, description string) (flow.Node, error) {
	var node flow.Node
	var kind string
	err := s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE flow_nodes SET description=$2 WHERE id=$1
			RETURNING id, content_id, description, position
		)
		SELECT u.id, u.content_id, u.description, u.position, c.kind, c.title, c.creator, c.year, c.cover_url
		FROM updated u JOIN contents c ON c.id = u.content_id
	`, nodeID, description).Scan(&node.ID, &node.ContentID, &node.Description, &node.Position,
		&kind, &node.Content.Title, &node.Content.Creator, &node.Content.Year, &node.Content.CoverURL)
	if err != nil {
		return flow.Node{}, mapPgError(err)
	}
	node.Content.ID = node.ContentID
	node.Content.Kind = flow.ContentKind(kind)
	return node, nil
}

// RemoveNode deletes the node and closes the gap in its stage.
func (s *PostgresStore) RemoveNode(ctx context.Context, nodeID string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var stageID, flowID string
		if err := tx.QueryRowContext(ctx, `SELECT stage_id, flow_id FROM flow_nodes WHERE id=$1`, nodeID).Scan(&stageID, &flowID); err != nil {
			return mapPgError(err)
		}
		if err := lockFlow(ctx, tx, flowID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM flow_nodes WHERE id=$1`, nodeID); err != nil {
			return fmt.Errorf("delete node: %w", err)
		}
		rest, err := childIDs(ctx, tx, nodesOf, stageID)
		if err != nil {
			return err
		}
		if err := setPositions(ctx, tx, "flow_nodes", rest); err != nil {
			return err
		}
		return touchFlow(ctx, tx, flowID)
	})
}

const (
	stagesOf = `SELECT id FROM flow_stages WHERE flow_id=$1 ORDER BY position`
	nodesOf  = `SELECT id FROM flow_nodes WHERE stage_id=$1 ORDER BY position`
)

// lockFlow serializes structural changes to one flow.
func lockFlow(ctx context.Context, tx *sql.Tx, flowID string) error {
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM flows WHERE id=$1 FOR UPDATE`, flowID).Scan(&id); err != nil {
		return mapPgError(err)
	}
	return nil
}

func touchFlow(ctx context.Context, tx *sql.Tx, flowID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE flows SET updated_at=NOW() WHERE id=$1`, flowID); err != nil {
		return fmt.Errorf("touch flow: %w", err)
	}
	return nil
}

func childIDs(ctx context.Context, tx *sql.Tx, query, parentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// setPositions writes position i to ids[i]. table is one of the two
// positioned tables, never caller input.
func setPositions(ctx context.Context, tx *sql.Tx, table string, ids []string) error {
	stmt := `UPDATE ` + table + ` SET position=$1 WHERE id=$2`
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, stmt, i, id); err != nil {
			return fmt.Errorf("set position %s: %w", id, err)
		}
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func indexOf(ids []string, id string) int {
	for i := range ids {
		if ids[i] == id {
			return i
		}
	}
	return -1
}
