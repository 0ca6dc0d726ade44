package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/middleware"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/utils"
)

// CreatePolicyRequest is the request body for POST /api/v1/policies. The
// snapshot is created as a draft scoped to the caller's enterprise.
type CreatePolicyRequest struct {
	Version string              `json:"version" validate:"required,max=64"`
	Rules   []models.PolicyRule `json:"rules" validate:"required"`
}

// CreatePolicyHandler creates a new draft policy snapshot
func CreatePolicyHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePolicyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		enterpriseID := middleware.GetEnterpriseIDFromContext(r.Context())
		if enterpriseID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		snapshot, err := deps.PolicySvc.Create(r.Context(), enterpriseID, req.Version, req.Rules)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("policy snapshot created",
			zap.String("enterprise_id", enterpriseID.String()),
			zap.String("version", snapshot.Version),
			zap.String("snapshot_id", snapshot.ID.String()))

		respondJSON(w, http.StatusCreated, SuccessResponse{Data: snapshot})
	}
}

// GetPolicyHandler retrieves a policy snapshot by ID
func GetPolicyHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		snapshot, err := deps.PolicySvc.GetByID(r.Context(), id)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		// Snapshots are tenant-scoped; a foreign ID reads as absent
		if snapshot.EnterpriseID != middleware.GetEnterpriseIDFromContext(r.Context()) {
			_ = utils.WriteNotFound(w, "policy snapshot not found")
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: snapshot})
	}
}

// GetActivePolicyHandler retrieves the caller's active policy snapshot
func GetActivePolicyHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enterpriseID := middleware.GetEnterpriseIDFromContext(r.Context())
		if enterpriseID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		snapshot, err := deps.PolicySvc.GetActive(r.Context(), enterpriseID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: snapshot})
	}
}

// GetPolicyByVersionHandler retrieves a snapshot by explicit version,
// including retired ones.
func GetPolicyByVersionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enterpriseID := middleware.GetEnterpriseIDFromContext(r.Context())
		if enterpriseID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		version := r.URL.Query().Get("version")
		if version == "" {
			_ = utils.WriteBadRequest(w, "version query parameter is required", nil)
			return
		}

		snapshot, err := deps.PolicySvc.GetByVersion(r.Context(), enterpriseID, version)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: snapshot})
	}
}

// ActivatePolicyHandler promotes a draft snapshot to active, retiring the
// previously active one in the same transaction.
func ActivatePolicyHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var userID *uuid.UUID
		if uid := middleware.GetUserIDFromContext(r.Context()); uid != uuid.Nil {
			userID = &uid
		}

		snapshot, err := deps.PolicySvc.GetByID(r.Context(), id)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		if snapshot.EnterpriseID != middleware.GetEnterpriseIDFromContext(r.Context()) {
			_ = utils.WriteNotFound(w, "policy snapshot not found")
			return
		}

		activated, err := deps.PolicySvc.Activate(r.Context(), userID, id)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("policy snapshot activated",
			zap.String("snapshot_id", activated.ID.String()),
			zap.String("version", activated.Version))

		respondJSON(w, http.StatusOK, SuccessResponse{Data: activated})
	}
}
