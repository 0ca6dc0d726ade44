package policy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/services"
	"github.com/verahq/governance-core/services/audit"
	"github.com/verahq/governance-core/services/evaluation"
	"go.uber.org/zap"
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

// MockTransactionManager runs the callback directly, without a database
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if err := fn(ctx, nil); err != nil {
		return err
	}
	return nil
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

func (m *MockAuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

type serviceFixture struct {
	service      *Service
	snapshotRepo *MockSnapshotRepository
	actionRepo   *MockActionRepository
	auditRepo    *MockAuditRepository
}

func newServiceFixture() *serviceFixture {
	snapshotRepo := new(MockSnapshotRepository)
	actionRepo := new(MockActionRepository)
	auditRepo := new(MockAuditRepository)

	logger := zap.NewNop()
	auditSvc := audit.NewAuditService(actionRepo, auditRepo, logger, audit.DefaultConfig())
	engine := evaluation.NewEngine(logger)

	return &serviceFixture{
		service:      NewService(snapshotRepo, new(MockTransactionManager), engine, auditSvc, logger),
		snapshotRepo: snapshotRepo,
		actionRepo:   actionRepo,
		auditRepo:    auditRepo,
	}
}

func testRules() []models.PolicyRule {
	return []models.PolicyRule{{
		RuleID:   "R1-PROHIBIT-OLD-MJ",
		Name:     "Prohibit outdated Midjourney",
		Priority: 10,
		IsActive: true,
		Conditions: models.ConditionTree{Root: models.AndGroup{Clauses: []models.ConditionNode{
			models.Clause{Field: "tool.name", Operator: models.OperatorEquals, Value: "Midjourney"},
			models.Clause{Field: "tool.version", Operator: models.OperatorSemverLess, Value: "6.0.0"},
		}}},
		Decision: models.RuleDecision{
			Status: models.VerdictProhibited,
			Reason: "Midjourney versions below 6.0.0 are prohibited",
		},
	}}
}

func TestCreateSnapshot(t *testing.T) {
	f := newServiceFixture()
	enterpriseID := uuid.New()

	f.snapshotRepo.On("GetByVersion", mock.Anything, enterpriseID, "v2").
		Return(nil, repositories.ErrNotFound)
	f.snapshotRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.PolicySnapshot")).
		Return(nil)

	snapshot, err := f.service.Create(context.Background(), enterpriseID, "v2", testRules())

	require.NoError(t, err)
	assert.Equal(t, models.SnapshotStatusDraft, snapshot.Status)
	assert.Equal(t, "v2", snapshot.Version)
	f.snapshotRepo.AssertExpectations(t)
}

func TestCreateSnapshotDuplicateVersion(t *testing.T) {
	f := newServiceFixture()
	enterpriseID := uuid.New()

	existing := models.NewPolicySnapshot(enterpriseID, "v2", testRules())
	f.snapshotRepo.On("GetByVersion", mock.Anything, enterpriseID, "v2").
		Return(existing, nil)

	_, err := f.service.Create(context.Background(), enterpriseID, "v2", testRules())

	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))
	f.snapshotRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateSnapshotInvalidRules(t *testing.T) {
	f := newServiceFixture()

	rules := testRules()
	rules = append(rules, rules[0]) // duplicate priority in same scope

	_, err := f.service.Create(context.Background(), uuid.New(), "v3", rules)

	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestActivateSnapshot(t *testing.T) {
	f := newServiceFixture()
	enterpriseID := uuid.New()

	current := models.NewPolicySnapshot(enterpriseID, "v1", testRules())
	current.Status = models.SnapshotStatusActive

	draft := models.NewPolicySnapshot(enterpriseID, "v2", testRules())

	f.snapshotRepo.On("GetByID", mock.Anything, draft.ID).Return(draft, nil)
	f.snapshotRepo.On("GetActive", mock.Anything, enterpriseID).Return(current, nil)
	f.snapshotRepo.On("Activate", mock.Anything, enterpriseID, draft.ID, mock.AnythingOfType("time.Time")).
		Return(nil)
	f.auditRepo.On("Insert", mock.Anything, mock.AnythingOfType("*models.AuditLog")).
		Return(nil)

	activated, err := f.service.Activate(context.Background(), nil, draft.ID)

	require.NoError(t, err)
	assert.Equal(t, models.SnapshotStatusActive, activated.Status)
	require.NotNil(t, activated.ActivatedAt)
	f.snapshotRepo.AssertExpectations(t)
	f.auditRepo.AssertExpectations(t)
}

func TestActivateSnapshotAlreadyActive(t *testing.T) {
	f := newServiceFixture()

	active := models.NewPolicySnapshot(uuid.New(), "v1", testRules())
	active.Status = models.SnapshotStatusActive

	f.snapshotRepo.On("GetByID", mock.Anything, active.ID).Return(active, nil)

	got, err := f.service.Activate(context.Background(), nil, active.ID)

	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
	f.snapshotRepo.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestActivateSnapshotNotFound(t *testing.T) {
	f := newServiceFixture()
	id := uuid.New()

	f.snapshotRepo.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)

	_, err := f.service.Activate(context.Background(), nil, id)

	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))
}

func TestEvaluateRecordsDecision(t *testing.T) {
	f := newServiceFixture()
	enterpriseID := uuid.New()

	active := models.NewPolicySnapshot(enterpriseID, "v1", testRules())
	active.Status = models.SnapshotStatusActive

	f.snapshotRepo.On("GetActive", mock.Anything, enterpriseID).Return(active, nil)

	var recorded *models.GovernanceAction
	f.actionRepo.On("Insert", mock.Anything, mock.AnythingOfType("*models.GovernanceAction")).
		Run(func(args mock.Arguments) {
			recorded = args.Get(1).(*models.GovernanceAction)
		}).
		Return(nil)

	event := models.ToolUsageEvent{
		Tool:    models.ToolRef{Name: "Midjourney", Version: "5.2.0"},
		Context: models.EventContext{TenantID: enterpriseID.String()},
	}

	verdict, action, err := f.service.Evaluate(context.Background(), uuid.Nil, event)

	require.NoError(t, err)
	assert.Equal(t, models.VerdictProhibited, verdict.Status)
	assert.Equal(t, "R1-PROHIBIT-OLD-MJ", verdict.RuleID)
	assert.Equal(t, active.ID.String(), verdict.PolicySnapshotID)

	require.NotNil(t, action)
	require.NotNil(t, recorded)
	assert.Equal(t, models.ActionAgentAutoBlock, recorded.ActionType)
	require.NotNil(t, recorded.ContextSnapshot)
	assert.Equal(t, active.ID, recorded.ContextSnapshot.PolicyState.SnapshotID)
	assert.Equal(t, "v1", recorded.ContextSnapshot.PolicyState.Version)
}

func TestEvaluateNoActiveSnapshot(t *testing.T) {
	f := newServiceFixture()
	enterpriseID := uuid.New()

	f.snapshotRepo.On("GetActive", mock.Anything, enterpriseID).
		Return(nil, repositories.ErrNotFound)

	event := models.ToolUsageEvent{
		Context: models.EventContext{TenantID: enterpriseID.String()},
	}

	_, _, err := f.service.Evaluate(context.Background(), uuid.Nil, event)

	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))
}

func TestEvaluateInvalidTenant(t *testing.T) {
	f := newServiceFixture()

	event := models.ToolUsageEvent{
		Context: models.EventContext{TenantID: "not-a-uuid"},
	}

	_, _, err := f.service.Evaluate(context.Background(), uuid.Nil, event)

	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}
