package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/utils"
)

// EvaluateRequest is the request body for POST /api/v1/evaluate. ThreadID
// groups related decisions; when omitted a fresh thread is opened.
type EvaluateRequest struct {
	ThreadID string                `json:"threadId,omitempty" validate:"omitempty,uuid"`
	Event    models.ToolUsageEvent `json:"event"`
}

// EvaluateResponse pairs the verdict with the durable decision record
type EvaluateResponse struct {
	Verdict  models.Verdict           `json:"verdict"`
	Decision *models.GovernanceAction `json:"decision"`
}

// EvaluateHandler evaluates a tool usage event against the tenant's
// active (or pinned) policy snapshot and records the decision.
func EvaluateHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EvaluateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if req.Event.Context.TenantID == "" {
			_ = utils.WriteBadRequest(w, "event.context.tenantId is required", nil)
			return
		}
		if req.Event.Tool.Name == "" || req.Event.Action.Type == "" {
			_ = utils.WriteBadRequest(w, "event.tool.name and event.action.type are required", nil)
			return
		}

		threadID := uuid.Nil
		if req.ThreadID != "" {
			threadID, _ = uuid.Parse(req.ThreadID)
		}

		verdict, decision, err := deps.PolicySvc.Evaluate(r.Context(), threadID, req.Event)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("event evaluated",
			zap.String("tenant_id", req.Event.Context.TenantID),
			zap.String("status", string(verdict.Status)),
			zap.String("rule_id", verdict.RuleID),
			zap.String("decision_id", decision.ID.String()))

		respondJSON(w, http.StatusOK, SuccessResponse{Data: EvaluateResponse{
			Verdict:  verdict,
			Decision: decision,
		}})
	}
}
