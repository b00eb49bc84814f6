package app

import (
	"net/http"
	"strconv"
)

func (s *HTTPServer) handleFlows(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			flows, err := s.service.ListFlows(ctx, session)
			s.respond(w, r, http.StatusOK, map[string]any{"flows": flows}, err)
		case http.MethodPost:
			var body CreateFlowInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			f, err := s.service.CreateFlow(ctx, session, body)
			s.respond(w, r, http.StatusCreated, f, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	flowID := parts[0]
	rest := parts[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			f, err := s.service.GetFlow(ctx, session, flowID)
			s.respond(w, r, http.StatusOK, f, err)
		case http.MethodPut:
			var body UpdateFlowInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			f, err := s.service.UpdateFlow(ctx, session, flowID, body)
			s.respond(w, r, http.StatusOK, f, err)
		case http.MethodDelete:
			err := s.service.DeleteFlow(ctx, session, flowID)
			s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if rest[0] == "stages" {
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			stage, err := s.service.AddStage(ctx, session, flowID, body.Name)
			s.respond(w, r, http.StatusCreated, stage, err)
			return
		}
		if len(rest) == 2 && rest[1] == "order" && r.Method == http.MethodPut {
			var body struct {
				OrderedStageIDs []string `json:"orderedStageIds"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.ReorderStages(ctx, session, flowID, body.OrderedStageIDs)
			s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleStages(w http.ResponseWriter, r *http.Request, session Session, stageID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			stage, err := s.service.RenameStage(ctx, session, stageID, body.Name)
			s.respond(w, r, http.StatusOK, stage, err)
		case http.MethodDelete:
			err := s.service.DeleteStage(ctx, session, stageID)
			s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if rest[0] == "nodes" {
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body CreateNodeInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			node, err := s.service.CreateNode(ctx, session, stageID, body)
			s.respond(w, r, http.StatusCreated, node, err)
			return
		}
		if len(rest) == 2 && rest[1] == "order" && r.Method == http.MethodPut {
			var body struct {
				OrderedNodeIDs []string `json:"orderedNodeIds"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.ReorderNodes(ctx, session, stageID, body.OrderedNodeIDs)
			s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNodes(w http.ResponseWriter, r *http.Request, session Session, nodeID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			node, err := s.service.UpdateNode(ctx, session, nodeID, body.Description)
			s.respond(w, r, http.StatusOK, node, err)
		case http.MethodDelete:
			err := s.service.RemoveNode(ctx, session, nodeID)
			s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "move" && r.Method == http.MethodPost {
		var body struct {
			ToStageID      string   `json:"toStageId"`
			OrderedNodeIDs []string `json:"orderedNodeIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		err := s.service.MoveNode(ctx, session, nodeID, body.ToStageID, body.OrderedNodeIDs)
		s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLibrary(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			limit, _ := strconv.Atoi(query.Get("limit"))
			items, err := s.service.ListLibrary(ctx, session, query.Get("q"), query.Get("flowId"), limit)
			s.respond(w, r, http.StatusOK, map[string]any{"items": items}, err)
		case http.MethodPost:
			var body ContentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			content, err := s.service.AddContent(ctx, session, body)
			s.respond(w, r, http.StatusCreated, content, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "usage" && r.Method == http.MethodPost {
		var body struct {
			ContentIDs []string `json:"contentIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		counts, err := s.service.UsageCounts(ctx, body.ContentIDs)
		s.respond(w, r, http.StatusOK, map[string]any{"counts": counts}, err)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
