package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/middleware"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/services/replay"
	"github.com/verahq/governance-core/utils"
)

// ReplayRequest is the request body for POST /api/v1/replay/{decisionId}.
// SnapshotID pins an exact snapshot; Version resolves one by version.
// When both are empty the tenant's active snapshot is used.
type ReplayRequest struct {
	SnapshotID string `json:"snapshotId,omitempty" validate:"omitempty,uuid"`
	Version    string `json:"version,omitempty" validate:"omitempty,max=64"`
}

// ReplayDecisionHandler re-evaluates one historical decision against a
// target policy snapshot without writing a new decision record.
func ReplayDecisionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decisionID, ok := parseUUIDParam(w, r, "decisionId")
		if !ok {
			return
		}

		// An empty body means replay against the active snapshot
		var req ReplayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}

		target := replay.Target{Version: req.Version}
		if req.SnapshotID != "" {
			snapshotID, err := uuid.Parse(req.SnapshotID)
			if err != nil {
				_ = utils.WriteBadRequest(w, "Invalid snapshotId", nil)
				return
			}
			target.SnapshotID = &snapshotID
		}

		enterpriseID := middleware.GetEnterpriseIDFromContext(r.Context())
		if enterpriseID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		var userID *uuid.UUID
		if uid := middleware.GetUserIDFromContext(r.Context()); uid != uuid.Nil {
			userID = &uid
		}

		result, err := deps.ReplaySvc.Replay(r.Context(), userID, enterpriseID, decisionID, target)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: result})
	}
}

// BulkReplayRequest is the request body for POST /api/v1/replay/bulk
type BulkReplayRequest struct {
	FromVersion    string   `json:"fromVersion" validate:"required,max=64"`
	ToVersion      string   `json:"toVersion" validate:"required,max=64"`
	Limit          int      `json:"limit,omitempty" validate:"omitempty,gt=0,lte=1000"`
	TimeWindowDays int      `json:"timeWindowDays,omitempty" validate:"omitempty,gt=0"`
	ActionTypes    []string `json:"actionTypes,omitempty"`
}

// BulkReplayHandler replays every decision made under one policy version
// against another and returns the aggregated impact analysis.
func BulkReplayHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkReplayRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		enterpriseID := middleware.GetEnterpriseIDFromContext(r.Context())
		if enterpriseID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		opts := replay.BulkOptions{
			Limit:          req.Limit,
			TimeWindowDays: req.TimeWindowDays,
		}
		for _, raw := range req.ActionTypes {
			opts.ActionTypes = append(opts.ActionTypes, models.ActionType(raw))
		}

		var userID *uuid.UUID
		if uid := middleware.GetUserIDFromContext(r.Context()); uid != uuid.Nil {
			userID = &uid
		}

		result, err := deps.ReplaySvc.BulkReplay(r.Context(), userID, enterpriseID, req.FromVersion, req.ToVersion, opts)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("bulk replay completed",
			zap.String("enterprise_id", enterpriseID.String()),
			zap.String("from_version", req.FromVersion),
			zap.String("to_version", req.ToVersion),
			zap.Int("total", result.Summary.TotalDecisions),
			zap.Int("processed", result.Summary.ProcessedDecisions),
			zap.Int("outcome_changes", result.Summary.OutcomeChanges))

		respondJSON(w, http.StatusOK, SuccessResponse{Data: result})
	}
}
