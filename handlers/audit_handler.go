package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/middleware"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/utils"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
)

// ListDecisionsHandler lists the caller's recent decision records
func ListDecisionsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enterpriseID := middleware.GetEnterpriseIDFromContext(r.Context())
		if enterpriseID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		limit := queryInt(r, "limit", defaultDecisionLimit)
		if limit > maxDecisionLimit {
			limit = maxDecisionLimit
		}

		since := time.Time{}
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				_ = utils.WriteBadRequest(w, "since must be RFC 3339", nil)
				return
			}
			since = parsed
		}

		decisions, err := deps.AuditSvc.ListDecisions(r.Context(), enterpriseID, since, limit)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: decisions})
	}
}

// GetDecisionHandler retrieves one decision record by ID
func GetDecisionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		decision, err := deps.Repos.Actions.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				_ = utils.WriteNotFound(w, "decision not found")
				return
			}
			HandleServiceError(w, err, deps.Logger)
			return
		}

		// Decision records are tenant-scoped; a foreign ID reads as absent
		if decision.EnterpriseID != middleware.GetEnterpriseIDFromContext(r.Context()) {
			_ = utils.WriteNotFound(w, "decision not found")
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: decision})
	}
}

// ListAuditTrailHandler lists the caller's own audit trail entries
func ListAuditTrailHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserIDFromContext(r.Context())
		if userID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		limit := queryInt(r, "limit", defaultDecisionLimit)
		if limit > maxDecisionLimit {
			limit = maxDecisionLimit
		}
		offset := queryInt(r, "offset", 0)

		entries, err := deps.Repos.AuditLogs.GetByUserID(r.Context(), userID, limit, offset)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: entries})
	}
}

// queryInt parses an integer query parameter, falling back on the default
// for missing or malformed values.
func queryInt(r *http.Request, name string, defaultValue int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
