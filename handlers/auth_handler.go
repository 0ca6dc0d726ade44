package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/middleware"
	"github.com/verahq/governance-core/utils"
)

// LoginRequest is the request body for POST /api/v1/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginHandler authenticates a user and issues a token bound to their
// default context.
func LoginHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		session, err := deps.AuthzSvc.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("user logged in",
			zap.String("user_id", session.User.ID.String()),
			zap.String("context_id", session.Context.ID.String()))

		respondJSON(w, http.StatusOK, SuccessResponse{Data: session})
	}
}

// SwitchContextRequest is the request body for POST /api/v1/auth/context/switch
type SwitchContextRequest struct {
	ContextID string `json:"contextId" validate:"required,uuid"`
}

// SwitchContextHandler re-issues the caller's token bound to another of
// their contexts. The switched-to context becomes the next login default.
func SwitchContextHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SwitchContextRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		claims := middleware.GetClaimsFromContext(r.Context())
		if claims == nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			_ = utils.WriteUnauthorized(w, "Invalid token subject")
			return
		}

		fromContextID, err := uuid.Parse(claims.ContextID)
		if err != nil {
			_ = utils.WriteUnauthorized(w, "Invalid token context")
			return
		}

		toContextID, err := uuid.Parse(req.ContextID)
		if err != nil {
			_ = utils.WriteBadRequest(w, "Invalid contextId", nil)
			return
		}

		session, err := deps.AuthzSvc.SwitchContext(r.Context(), userID, fromContextID, toContextID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("context switched",
			zap.String("user_id", userID.String()),
			zap.String("from_context_id", fromContextID.String()),
			zap.String("to_context_id", toContextID.String()))

		respondJSON(w, http.StatusOK, SuccessResponse{Data: session})
	}
}

// ListContextsHandler lists the caller's active contexts
func ListContextsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserIDFromContext(r.Context())
		if userID == uuid.Nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		contexts, err := deps.AuthzSvc.ListContexts(r.Context(), userID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: contexts})
	}
}

// CurrentUserResponse is the response body for GET /api/v1/auth/me
type CurrentUserResponse struct {
	UserID       string   `json:"userId"`
	Email        string   `json:"email"`
	ContextID    string   `json:"contextId"`
	ContextType  string   `json:"contextType"`
	EnterpriseID string   `json:"enterpriseId"`
	AgencySeatID string   `json:"agencySeatId,omitempty"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
}

// GetCurrentUserHandler describes the authenticated caller from the
// claims in their token.
func GetCurrentUserHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.GetClaimsFromContext(r.Context())
		if claims == nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		perms := make([]string, 0, len(claims.Permissions))
		for _, p := range claims.Permissions {
			perms = append(perms, p.Resource+":"+p.Action)
		}

		respondJSON(w, http.StatusOK, SuccessResponse{Data: CurrentUserResponse{
			UserID:       claims.Subject,
			Email:        claims.Email,
			ContextID:    claims.ContextID,
			ContextType:  string(claims.ContextType),
			EnterpriseID: claims.EnterpriseID,
			AgencySeatID: claims.AgencySeatID,
			Role:         claims.Role,
			Permissions:  perms,
		}})
	}
}
