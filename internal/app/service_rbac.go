package app

import (
	"context"

	"trove/api/internal/flow"
	"trove/api/internal/rbac"
)

// Can reports whether the session may perform action on f.
func (s *Service) Can(session Session, action rbac.Action, f flow.Flow) bool {
	return rbac.Can(session.UserID, rbac.Normalize(session.Role), action, f.OwnerID, f.Visibility)
}

// authorizeFlow loads the flow and checks action against it. Flows the session
// may not read are reported as missing so private flows stay invisible.
func (s *Service) authorizeFlow(ctx context.Context, session Session, flowID string, action rbac.Action) (flow.Flow, error) {
	f, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		return flow.Flow{}, storeError(err)
	}
	if !s.Can(session, rbac.ActionRead, f) {
		return flow.Flow{}, errNotFound
	}
	if !s.Can(session, action, f) {
		return flow.Flow{}, errForbidden
	}
	return f, nil
}

func (s *Service) authorizeStage(ctx context.Context, session Session, stageID string) (flow.Flow, error) {
	flowID, err := s.store.FlowIDForStage(ctx, stageID)
	if err != nil {
		return flow.Flow{}, storeError(err)
	}
	return s.authorizeFlow(ctx, session, flowID, rbac.ActionWrite)
}

func (s *Service) authorizeNode(ctx context.Context, session Session, nodeID string) (flow.Flow, error) {
	flowID, err := s.store.FlowIDForNode(ctx, nodeID)
	if err != nil {
		return flow.Flow{}, storeError(err)
	}
	return s.authorizeFlow(ctx, session, flowID, rbac.ActionWrite)
}
