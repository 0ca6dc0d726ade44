package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/config"
	"github.com/verahq/governance-core/middleware"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/services/audit"
	"github.com/verahq/governance-core/services/authz"
	"github.com/verahq/governance-core/services/evaluation"
	"github.com/verahq/governance-core/services/policy"
	"github.com/verahq/governance-core/services/replay"
)

// MockSnapshotRepository is a mock implementation of repositories.SnapshotRepository
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Create(ctx context.Context, snapshot *models.PolicySnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PolicySnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PolicySnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) GetActive(ctx context.Context, enterpriseID uuid.UUID) (*models.PolicySnapshot, error) {
	args := m.Called(ctx, enterpriseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PolicySnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) GetByVersion(ctx context.Context, enterpriseID uuid.UUID, version string) (*models.PolicySnapshot, error) {
	args := m.Called(ctx, enterpriseID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PolicySnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) Activate(ctx context.Context, enterpriseID, snapshotID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, enterpriseID, snapshotID, at)
	return args.Error(0)
}

// MockActionRepository is a mock implementation of repositories.ActionRepository
type MockActionRepository struct {
	mock.Mock
}

func (m *MockActionRepository) Insert(ctx context.Context, action *models.GovernanceAction) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GovernanceAction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GovernanceAction), args.Error(1)
}

func (m *MockActionRepository) ListForReplay(ctx context.Context, filter repositories.ActionFilter) ([]*models.GovernanceAction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GovernanceAction), args.Error(1)
}

// MockAuditRepository is a mock implementation of repositories.AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

// MockTransactionManager runs the callback directly, without a database
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx, mock.Anything)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx, nil)
}

type handlerFixture struct {
	deps         *app.Dependencies
	snapshotRepo *MockSnapshotRepository
	actionRepo   *MockActionRepository
	auditRepo    *MockAuditRepository
	enterpriseID uuid.UUID
	userID       uuid.UUID
}

func newHandlerFixture() *handlerFixture {
	snapshotRepo := new(MockSnapshotRepository)
	actionRepo := new(MockActionRepository)
	auditRepo := new(MockAuditRepository)
	txManager := new(MockTransactionManager)
	txManager.On("InTransaction", mock.Anything, mock.Anything).Return(nil).Maybe()

	logger := zap.NewNop()
	engine := evaluation.NewEngine(logger)
	auditSvc := audit.NewAuditService(actionRepo, auditRepo, logger, audit.DefaultConfig())
	policySvc := policy.NewService(snapshotRepo, txManager, engine, auditSvc, logger)
	replaySvc := replay.NewService(actionRepo, snapshotRepo, engine, auditSvc, replay.DefaultConfig(), logger)

	cfg := &config.Config{Environment: "test"}

	return &handlerFixture{
		deps: &app.Dependencies{
			Config:    cfg,
			Logger:    logger,
			Engine:    engine,
			AuditSvc:  auditSvc,
			PolicySvc: policySvc,
			ReplaySvc: replaySvc,
			Repos: &repositories.Repositories{
				Snapshots: snapshotRepo,
				Actions:   actionRepo,
				AuditLogs: auditRepo,
			},
		},
		snapshotRepo: snapshotRepo,
		actionRepo:   actionRepo,
		auditRepo:    auditRepo,
		enterpriseID: uuid.New(),
		userID:       uuid.New(),
	}
}

func (f *handlerFixture) claims() *authz.Claims {
	return &authz.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: f.userID.String()},
		Email:            "owner@example.com",
		ContextID:        uuid.NewString(),
		EnterpriseID:     f.enterpriseID.String(),
		Role:             models.RoleEnterpriseOwner,
	}
}

// authedRequest builds a request carrying the fixture's claims, as the
// auth middleware would after token validation.
func (f *handlerFixture) authedRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithClaims(req.Context(), f.claims()))
}

func prohibitRule(ruleID, maxVersion string) models.PolicyRule {
	return models.PolicyRule{
		RuleID:   ruleID,
		Name:     "Prohibit outdated Midjourney",
		Priority: 10,
		IsActive: true,
		Conditions: models.ConditionTree{Root: models.AndGroup{Clauses: []models.ConditionNode{
			models.Clause{Field: "tool.name", Operator: models.OperatorEquals, Value: "Midjourney"},
			models.Clause{Field: "tool.version", Operator: models.OperatorSemverLess, Value: maxVersion},
		}}},
		Decision: models.RuleDecision{
			Status: models.VerdictProhibited,
			Reason: "tool version too old",
		},
	}
}

func TestEvaluateHandler(t *testing.T) {
	f := newHandlerFixture()

	snapshot := models.NewPolicySnapshot(f.enterpriseID, "v1", []models.PolicyRule{
		prohibitRule("R1-PROHIBIT-OLD-MJ", "6.0.0"),
	})
	f.snapshotRepo.On("GetActive", mock.Anything, f.enterpriseID).Return(snapshot, nil)
	f.actionRepo.On("Insert", mock.Anything, mock.AnythingOfType("*models.GovernanceAction")).Return(nil)

	body := EvaluateRequest{
		Event: models.ToolUsageEvent{
			Tool:    models.ToolRef{ID: "tool-1", Name: "Midjourney", Version: "5.2.0"},
			Actor:   models.ActorRef{Role: "designer"},
			Action:  models.ActionRef{Type: "image_generation"},
			Context: models.EventContext{TenantID: f.enterpriseID.String()},
		},
	}

	req := f.authedRequest(http.MethodPost, "/api/v1/evaluate", body)
	rec := httptest.NewRecorder()

	EvaluateHandler(f.deps)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data EvaluateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.VerdictProhibited, resp.Data.Verdict.Status)
	assert.Equal(t, "R1-PROHIBIT-OLD-MJ", resp.Data.Verdict.RuleID)
	require.NotNil(t, resp.Data.Decision)
	assert.Equal(t, models.ActionAgentAutoBlock, resp.Data.Decision.ActionType)
	f.actionRepo.AssertExpectations(t)
}

func TestEvaluateHandlerMissingTenant(t *testing.T) {
	f := newHandlerFixture()

	body := EvaluateRequest{
		Event: models.ToolUsageEvent{
			Tool:   models.ToolRef{Name: "Midjourney", Version: "5.2.0"},
			Action: models.ActionRef{Type: "image_generation"},
		},
	}

	req := f.authedRequest(http.MethodPost, "/api/v1/evaluate", body)
	rec := httptest.NewRecorder()

	EvaluateHandler(f.deps)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.snapshotRepo.AssertNotCalled(t, "GetActive", mock.Anything, mock.Anything)
}

func TestEvaluateHandlerNoActivePolicy(t *testing.T) {
	f := newHandlerFixture()

	f.snapshotRepo.On("GetActive", mock.Anything, f.enterpriseID).Return(nil, repositories.ErrNotFound)

	body := EvaluateRequest{
		Event: models.ToolUsageEvent{
			Tool:    models.ToolRef{Name: "Midjourney", Version: "5.2.0"},
			Action:  models.ActionRef{Type: "image_generation"},
			Context: models.EventContext{TenantID: f.enterpriseID.String()},
		},
	}

	req := f.authedRequest(http.MethodPost, "/api/v1/evaluate", body)
	rec := httptest.NewRecorder()

	EvaluateHandler(f.deps)(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePolicyHandler(t *testing.T) {
	f := newHandlerFixture()

	f.snapshotRepo.On("GetByVersion", mock.Anything, f.enterpriseID, "v2").Return(nil, repositories.ErrNotFound)
	f.snapshotRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.PolicySnapshot")).Return(nil)

	body := CreatePolicyRequest{
		Version: "v2",
		Rules:   []models.PolicyRule{prohibitRule("R1-PROHIBIT-OLD-MJ", "6.0.0")},
	}

	req := f.authedRequest(http.MethodPost, "/api/v1/policies", body)
	rec := httptest.NewRecorder()

	CreatePolicyHandler(f.deps)(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data models.PolicySnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "v2", resp.Data.Version)
	assert.Equal(t, models.SnapshotStatusDraft, resp.Data.Status)
	assert.Equal(t, f.enterpriseID, resp.Data.EnterpriseID)
}

func TestCreatePolicyHandlerDuplicateVersion(t *testing.T) {
	f := newHandlerFixture()

	existing := models.NewPolicySnapshot(f.enterpriseID, "v2", nil)
	f.snapshotRepo.On("GetByVersion", mock.Anything, f.enterpriseID, "v2").Return(existing, nil)

	body := CreatePolicyRequest{
		Version: "v2",
		Rules:   []models.PolicyRule{prohibitRule("R1-PROHIBIT-OLD-MJ", "6.0.0")},
	}

	req := f.authedRequest(http.MethodPost, "/api/v1/policies", body)
	rec := httptest.NewRecorder()

	CreatePolicyHandler(f.deps)(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetPolicyHandlerForeignEnterprise(t *testing.T) {
	f := newHandlerFixture()

	foreign := models.NewPolicySnapshot(uuid.New(), "v1", nil)
	f.snapshotRepo.On("GetByID", mock.Anything, foreign.ID).Return(foreign, nil)

	r := chi.NewRouter()
	r.Get("/policies/{id}", GetPolicyHandler(f.deps))

	req := f.authedRequest(http.MethodGet, "/policies/"+foreign.ID.String(), nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplayDecisionHandlerNotFound(t *testing.T) {
	f := newHandlerFixture()

	decisionID := uuid.New()
	f.actionRepo.On("GetByID", mock.Anything, decisionID).Return(nil, repositories.ErrNotFound)

	r := chi.NewRouter()
	r.Post("/replay/{decisionId}", ReplayDecisionHandler(f.deps))

	req := f.authedRequest(http.MethodPost, "/replay/"+decisionID.String(), nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReplayDecisionHandlerForeignDecision(t *testing.T) {
	f := newHandlerFixture()

	// A decision owned by another enterprise reads as 404, and its snapshot
	// is never resolved.
	foreign := models.NewGovernanceAction(uuid.New(), uuid.New(), models.ActionAgentAutoBlock, "their decision").
		WithSnapshot(models.ContextSnapshot{
			PolicyState: models.PolicyState{SnapshotID: uuid.New(), Version: "v1"},
		})
	f.actionRepo.On("GetByID", mock.Anything, foreign.ID).Return(foreign, nil)

	r := chi.NewRouter()
	r.Post("/replay/{decisionId}", ReplayDecisionHandler(f.deps))

	req := f.authedRequest(http.MethodPost, "/replay/"+foreign.ID.String(), nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "their decision")
	f.snapshotRepo.AssertNotCalled(t, "GetActive", mock.Anything, mock.Anything)
}

func TestReplayDecisionHandlerIncompleteDecision(t *testing.T) {
	f := newHandlerFixture()

	// Record predates context snapshotting and can never be replayed
	decision := models.NewGovernanceAction(uuid.New(), f.enterpriseID, models.ActionEscalate, "old record")
	f.actionRepo.On("GetByID", mock.Anything, decision.ID).Return(decision, nil)

	r := chi.NewRouter()
	r.Post("/replay/{decisionId}", ReplayDecisionHandler(f.deps))

	req := f.authedRequest(http.MethodPost, "/replay/"+decision.ID.String(), nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBulkReplayHandlerMissingVersions(t *testing.T) {
	f := newHandlerFixture()

	req := f.authedRequest(http.MethodPost, "/api/v1/replay/bulk", BulkReplayRequest{FromVersion: "v1"})
	rec := httptest.NewRecorder()

	BulkReplayHandler(f.deps)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDecisionsHandler(t *testing.T) {
	f := newHandlerFixture()

	decisions := []*models.GovernanceAction{
		models.NewGovernanceAction(uuid.New(), f.enterpriseID, models.ActionAgentAutoApprove, "rule matched"),
	}
	f.actionRepo.On("ListForReplay", mock.Anything, mock.MatchedBy(func(filter repositories.ActionFilter) bool {
		return filter.EnterpriseID == f.enterpriseID && filter.Limit == defaultDecisionLimit
	})).Return(decisions, nil)

	req := f.authedRequest(http.MethodGet, "/api/v1/audit/decisions", nil)
	rec := httptest.NewRecorder()

	ListDecisionsHandler(f.deps)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestGetDecisionHandlerForeignEnterprise(t *testing.T) {
	f := newHandlerFixture()

	foreign := models.NewGovernanceAction(uuid.New(), uuid.New(), models.ActionEscalate, "foreign")
	f.actionRepo.On("GetByID", mock.Anything, foreign.ID).Return(foreign, nil)

	r := chi.NewRouter()
	r.Get("/audit/decisions/{id}", GetDecisionHandler(f.deps))

	req := f.authedRequest(http.MethodGet, "/audit/decisions/"+foreign.ID.String(), nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginHandlerValidation(t *testing.T) {
	f := newHandlerFixture()

	// AuthzSvc stays nil; validation must reject the request before any
	// service call.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"not-an-email"}`))
	rec := httptest.NewRecorder()

	LoginHandler(f.deps)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseUUIDParamInvalid(t *testing.T) {
	f := newHandlerFixture()

	r := chi.NewRouter()
	r.Get("/policies/{id}", GetPolicyHandler(f.deps))

	req := f.authedRequest(http.MethodGet, "/policies/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
