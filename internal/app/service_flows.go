package app

import (
	"context"
	"strings"

	"trove/api/internal/events"
	"trove/api/internal/flow"
	"trove/api/internal/rbac"
	"trove/api/internal/search"
	"trove/api/internal/store"
	"trove/api/internal/telemetry"
	"trove/api/internal/util"
)

const maxUsageIDs = 500

type CreateFlowInput struct {
	Name       string   `json:"name"`
	Visibility string   `json:"visibility"`
	CoverImage string   `json:"coverImage"`
	Stages     []string `json:"stages"`
}

type UpdateFlowInput struct {
	Name       *string `json:"name"`
	Visibility *string `json:"visibility"`
	CoverImage *string `json:"coverImage"`
}

type CreateNodeInput struct {
	FlowID             string `json:"flowId"`
	ContentID          string `json:"contentId"`
	InsertBeforeNodeID string `json:"insertBeforeNodeId"`
	Description        string `json:"description"`
}

type ContentInput struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Creator  string `json:"creator"`
	Year     int    `json:"year"`
	CoverURL string `json:"coverUrl"`
}

// record counts the mutation and, when it committed, announces it.
func (s *Service) record(ctx context.Context, session Session, typ events.Type, flowID string, payload any, err error) error {
	telemetry.CountMutation(string(typ), resultCode(err))
	if err != nil {
		return err
	}
	if pubErr := s.events.Publish(ctx, events.New(typ, flowID, session.UserID, payload)); pubErr != nil {
		s.logger.Warn().Err(pubErr).Str("type", string(typ)).Str("flow_id", flowID).Msg("publish flow event")
	}
	return nil
}

func (s *Service) ListFlows(ctx context.Context, session Session) ([]store.FlowSummary, error) {
	return s.store.ListFlows(ctx, session.UserID)
}

func (s *Service) GetFlow(ctx context.Context, session Session, flowID string) (flow.Flow, error) {
	return s.authorizeFlow(ctx, session, flowID, rbac.ActionRead)
}

func (s *Service) CreateFlow(ctx context.Context, session Session, input CreateFlowInput) (flow.Flow, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return flow.Flow{}, validationError("name is required")
	}
	f := flow.Flow{
		ID:         util.NewID("flw"),
		OwnerID:    session.UserID,
		Name:       name,
		Visibility: flow.NormalizeVisibility(input.Visibility),
		CoverImage: strings.TrimSpace(input.CoverImage),
		Stages:     make([]flow.Stage, 0, len(input.Stages)),
	}
	for _, stageName := range input.Stages {
		if stageName = strings.TrimSpace(stageName); stageName == "" {
			return flow.Flow{}, validationError("stage names must not be blank")
		}
		f.Stages = append(f.Stages, flow.Stage{ID: util.NewID("stg"), Name: stageName, Nodes: []flow.Node{}})
	}
	err := storeError(s.store.CreateFlow(ctx, f))
	if err := s.record(ctx, session, events.FlowCreated, f.ID, map[string]any{"name": f.Name}, err); err != nil {
		return flow.Flow{}, err
	}
	return s.store.GetFlow(ctx, f.ID)
}

func (s *Service) UpdateFlow(ctx context.Context, session Session, flowID string, input UpdateFlowInput) (flow.Flow, error) {
	if _, err := s.authorizeFlow(ctx, session, flowID, rbac.ActionWrite); err != nil {
		return flow.Flow{}, err
	}
	var patch store.FlowPatch
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return flow.Flow{}, validationError("name must not be blank")
		}
		patch.Name = &name
	}
	if input.Visibility != nil {
		v := flow.NormalizeVisibility(*input.Visibility)
		patch.Visibility = &v
	}
	if input.CoverImage != nil {
		cover := strings.TrimSpace(*input.CoverImage)
		patch.CoverImage = &cover
	}
	err := storeError(s.store.UpdateFlow(ctx, flowID, patch))
	if err := s.record(ctx, session, events.FlowUpdated, flowID, nil, err); err != nil {
		return flow.Flow{}, err
	}
	return s.store.GetFlow(ctx, flowID)
}

func (s *Service) DeleteFlow(ctx context.Context, session Session, flowID string) error {
	if _, err := s.authorizeFlow(ctx, session, flowID, rbac.ActionWrite); err != nil {
		return err
	}
	err := storeError(s.store.DeleteFlow(ctx, flowID))
	return s.record(ctx, session, events.FlowDeleted, flowID, nil, err)
}

func (s *Service) AddStage(ctx context.Context, session Session, flowID, name string) (flow.Stage, error) {
	if _, err := s.authorizeFlow(ctx, session, flowID, rbac.ActionWrite); err != nil {
		return flow.Stage{}, err
	}
	if name = strings.TrimSpace(name); name == "" {
		return flow.Stage{}, validationError("name is required")
	}
	stage, err := s.store.AddStage(ctx, flowID, flow.Stage{ID: util.NewID("stg"), Name: name})
	err = storeError(err)
	if err := s.record(ctx, session, events.StageAdded, flowID, stage, err); err != nil {
		return flow.Stage{}, err
	}
	return stage, nil
}

func (s *Service) RenameStage(ctx context.Context, session Session, stageID, name string) (flow.Stage, error) {
	f, err := s.authorizeStage(ctx, session, stageID)
	if err != nil {
		return flow.Stage{}, err
	}
	if name = strings.TrimSpace(name); name == "" {
		return flow.Stage{}, validationError("name is required")
	}
	stage, err := s.store.RenameStage(ctx, stageID, name)
	err = storeError(err)
	if err := s.record(ctx, session, events.StageRenamed, f.ID, map[string]any{"stageId": stageID, "name": name}, err); err != nil {
		return flow.Stage{}, err
	}
	return stage, nil
}

// DeleteStage removes the stage and every node in it.
func (s *Service) DeleteStage(ctx context.Context, session Session, stageID string) error {
	f, err := s.authorizeStage(ctx, session, stageID)
	if err != nil {
		return err
	}
	err = storeError(s.store.DeleteStage(ctx, stageID))
	return s.record(ctx, session, events.StageDeleted, f.ID, map[string]any{"stageId": stageID}, err)
}

func (s *Service) ReorderStages(ctx context.Context, session Session, flowID string, orderedIDs []string) error {
	if _, err := s.authorizeFlow(ctx, session, flowID, rbac.ActionWrite); err != nil {
		return err
	}
	err := storeError(s.store.ReorderStages(ctx, flowID, nonNilIDs(orderedIDs)))
	return s.record(ctx, session, events.StagesReordered, flowID, map[string]any{"orderedStageIds": orderedIDs}, err)
}

func (s *Service) CreateNode(ctx context.Context, session Session, stageID string, input CreateNodeInput) (flow.Node, error) {
	f, err := s.authorizeStage(ctx, session, stageID)
	if err != nil {
		return flow.Node{}, err
	}
	if input.FlowID != "" && input.FlowID != f.ID {
		return flow.Node{}, validationError("stage does not belong to flowId")
	}
	if strings.TrimSpace(input.ContentID) == "" {
		return flow.Node{}, validationError("contentId is required")
	}
	node, err := s.store.CreateNode(ctx, stageID, flow.Node{
		ID:          util.NewID("nod"),
		ContentID:   input.ContentID,
		Description: strings.TrimSpace(input.Description),
	}, input.InsertBeforeNodeID)
	err = storeError(err)
	payload := map[string]any{"stageId": stageID, "nodeId": node.ID, "contentId": input.ContentID, "insertBeforeNodeId": input.InsertBeforeNodeID}
	if err := s.record(ctx, session, events.NodeCreated, f.ID, payload, err); err != nil {
		return flow.Node{}, err
	}
	return node, nil
}

func (s *Service) ReorderNodes(ctx context.Context, session Session, stageID string, orderedIDs []string) error {
	f, err := s.authorizeStage(ctx, session, stageID)
	if err != nil {
		return err
	}
	err = storeError(s.store.ReorderNodes(ctx, stageID, nonNilIDs(orderedIDs)))
	return s.record(ctx, session, events.NodesReordered, f.ID, map[string]any{"stageId": stageID, "orderedNodeIds": orderedIDs}, err)
}

// MoveNode places nodeID into toStageID. orderedIDs is the complete new order
// of the target stage, including the moved node.
func (s *Service) MoveNode(ctx context.Context, session Session, nodeID, toStageID string, orderedIDs []string) error {
	f, err := s.authorizeNode(ctx, session, nodeID)
	if err != nil {
		return err
	}
	if f.Stage(toStageID) == nil {
		return validationError("target stage is not in this flow")
	}
	err = storeError(s.store.MoveNode(ctx, nodeID, toStageID, nonNilIDs(orderedIDs)))
	payload := map[string]any{"nodeId": nodeID, "toStageId": toStageID, "orderedNodeIds": orderedIDs}
	return s.record(ctx, session, events.NodeMoved, f.ID, payload, err)
}

func (s *Service) UpdateNode(ctx context.Context, session Session, nodeID, description string) (flow.Node, error) {
	f, err := s.authorizeNode(ctx, session, nodeID)
	if err != nil {
		return flow.Node{}, err
	}
	node, err := s.store.UpdateNode(ctx, nodeID, strings.TrimSpace(description))
	err = storeError(err)
	if err := s.record(ctx, session, events.NodeUpdated, f.ID, map[string]any{"nodeId": nodeID}, err); err != nil {
		return flow.Node{}, err
	}
	return node, nil
}

func (s *Service) RemoveNode(ctx context.Context, session Session, nodeID string) error {
	f, err := s.authorizeNode(ctx, session, nodeID)
	if err != nil {
		return err
	}
	err = storeError(s.store.RemoveNode(ctx, nodeID))
	return s.record(ctx, session, events.NodeRemoved, f.ID, map[string]any{"nodeId": nodeID}, err)
}

// ListLibrary returns the session's library as drag sources. A query goes
// through the search service when one is configured. With flowID set, items
// already in that flow are left out.
func (s *Service) ListLibrary(ctx context.Context, session Session, query, flowID string, limit int) ([]flow.ExternalItem, error) {
	query = strings.TrimSpace(query)
	var contents []flow.Content
	if query != "" && s.search != nil && s.search.Enabled() {
		contents = s.search.Search(ctx, search.Query{Text: query, OwnerID: session.UserID, Limit: limit})
	} else {
		var err error
		contents, err = s.store.ListContents(ctx, session.UserID, query, limit)
		if err != nil {
			return nil, err
		}
	}

	var used map[string]struct{}
	if flowID != "" {
		f, err := s.authorizeFlow(ctx, session, flowID, rbac.ActionRead)
		if err != nil {
			return nil, err
		}
		used = f.ContentIDs()
	}

	items := make([]flow.ExternalItem, 0, len(contents))
	for _, c := range contents {
		if _, ok := used[c.ID]; ok {
			continue
		}
		items = append(items, flow.ItemFromContent(c))
	}
	return items, nil
}

func (s *Service) AddContent(ctx context.Context, session Session, input ContentInput) (flow.Content, error) {
	c := flow.Content{
		ID:       util.NewID("cnt"),
		Kind:     flow.ContentKind(strings.ToLower(strings.TrimSpace(input.Kind))),
		Title:    strings.TrimSpace(input.Title),
		Creator:  strings.TrimSpace(input.Creator),
		Year:     input.Year,
		CoverURL: strings.TrimSpace(input.CoverURL),
	}
	if !c.Kind.Valid() {
		return flow.Content{}, validationError("kind must be one of book, video, game, music")
	}
	if c.Title == "" {
		return flow.Content{}, validationError("title is required")
	}
	if err := s.store.InsertContent(ctx, session.UserID, c); err != nil {
		return flow.Content{}, storeError(err)
	}
	if s.search != nil {
		s.search.IndexContent(session.UserID, c)
	}
	return c, nil
}

// UsageCounts reports, for each id, how many flows reference it. Every
// requested id is present in the result.
func (s *Service) UsageCounts(ctx context.Context, contentIDs []string) (map[string]int, error) {
	if len(contentIDs) > maxUsageIDs {
		return nil, validationError("too many content ids")
	}
	counts, err := s.store.UsageCounts(ctx, contentIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(contentIDs))
	for _, id := range contentIDs {
		out[id] = counts[id]
	}
	return out, nil
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
