package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/middleware"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/utils"
)

// CreateEnterpriseRequest is the request body for POST /api/v1/enterprises
type CreateEnterpriseRequest struct {
	Name string `json:"name" validate:"required,min=2,max=255"`
	Slug string `json:"slug" validate:"required,min=2,max=100"`
	Type string `json:"type" validate:"required,oneof=brand agency"`
}

// CreateEnterpriseResponse pairs the enterprise with the creator's new
// owner context.
type CreateEnterpriseResponse struct {
	Enterprise *models.Enterprise  `json:"enterprise"`
	Context    *models.UserContext `json:"context"`
}

// CreateEnterpriseHandler provisions an enterprise and grants the caller
// an owner context on it, atomically.
func CreateEnterpriseHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEnterpriseRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		userID := middleware.GetUserIDFromContext(r.Context())
		if userID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		enterprise, userContext, err := deps.AuthzSvc.CreateEnterprise(r.Context(), userID, req.Name, req.Slug, models.EnterpriseType(req.Type))
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("enterprise created",
			zap.String("enterprise_id", enterprise.ID.String()),
			zap.String("slug", enterprise.Slug),
			zap.String("creator_id", userID.String()))

		respondJSON(w, http.StatusCreated, SuccessResponse{Data: CreateEnterpriseResponse{
			Enterprise: enterprise,
			Context:    userContext,
		}})
	}
}

// GetEnterpriseHandler retrieves the caller's enterprise
func GetEnterpriseHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		if id != middleware.GetEnterpriseIDFromContext(r.Context()) {
			_ = utils.WriteNotFound(w, "enterprise not found")
			return
		}

		enterprise, err := deps.Repos.Enterprises.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				_ = utils.WriteNotFound(w, "enterprise not found")
				return
			}
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: enterprise})
	}
}

// CreateSeatRequest is the request body for POST /api/v1/enterprises/{id}/seats
type CreateSeatRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=255"`
	Slug        string `json:"slug" validate:"required,min=2,max=100"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// CreateSeatResponse pairs the seat with the creator's new admin context
type CreateSeatResponse struct {
	Seat    *models.AgencySeat  `json:"seat"`
	Context *models.UserContext `json:"context"`
}

// CreateSeatHandler provisions an agency seat under an enterprise and
// grants the caller a seat admin context on it, atomically.
func CreateSeatHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enterpriseID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		var req CreateSeatRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		userID := middleware.GetUserIDFromContext(r.Context())
		if userID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		if enterpriseID != middleware.GetEnterpriseIDFromContext(r.Context()) {
			_ = utils.WriteNotFound(w, "enterprise not found")
			return
		}

		seat, userContext, err := deps.AuthzSvc.CreateAgencySeat(r.Context(), userID, enterpriseID, req.Name, req.Slug, req.Description)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("agency seat created",
			zap.String("seat_id", seat.ID.String()),
			zap.String("enterprise_id", enterpriseID.String()),
			zap.String("creator_id", userID.String()))

		respondJSON(w, http.StatusCreated, SuccessResponse{Data: CreateSeatResponse{
			Seat:    seat,
			Context: userContext,
		}})
	}
}

// ListSeatsHandler lists the seats under the caller's enterprise
func ListSeatsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enterpriseID, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		if enterpriseID != middleware.GetEnterpriseIDFromContext(r.Context()) {
			_ = utils.WriteNotFound(w, "enterprise not found")
			return
		}

		seats, err := deps.Repos.AgencySeats.GetByEnterpriseID(r.Context(), enterpriseID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: seats})
	}
}
