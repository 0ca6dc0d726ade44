package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"go.uber.org/zap/zaptest"
)

// rulesJSON is a minimal but structurally complete stored rules payload:
// one prohibit rule with a single-clause AND group.
const rulesJSON = `[{
	"rule_id": "R1-PROHIBIT-OLD-MJ",
	"name": "Block outdated Midjourney",
	"priority": 10,
	"is_active": true,
	"context_id": "ctx-global",
	"conditions": {
		"operator": "AND",
		"clauses": [
			{"field": "tool.name", "operator": "equals", "value": "midjourney"},
			{"field": "tool.version", "operator": "semver_less_than", "value": "6.0.0"}
		]
	},
	"decision": {"status": "Prohibited", "reason": "tool version retired", "audit_trigger": true}
}]`

func snapshotRows(snapshotID, enterpriseID uuid.UUID, version string, status models.SnapshotStatus, activatedAt interface{}) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "enterprise_id", "version", "status", "rules", "activated_at", "created_at", "updated_at",
	}).AddRow(snapshotID.String(), enterpriseID.String(), version, string(status), rulesJSON, activatedAt, now, now)
}

func TestSnapshotRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))

	now := time.Now().UTC()
	snapshot := &models.PolicySnapshot{
		ID:           uuid.New(),
		EnterpriseID: uuid.New(),
		Version:      "2.1.0",
		Status:       models.SnapshotStatusDraft,
		Rules:        []models.PolicyRule{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec("INSERT INTO policy_snapshots").
		WithArgs(snapshot.ID, snapshot.EnterpriseID, "2.1.0", models.SnapshotStatusDraft,
			sqlmock.AnyArg(), nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), snapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))

	snapshotID := uuid.New()
	enterpriseID := uuid.New()
	activatedAt := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM policy_snapshots WHERE id").
		WithArgs(snapshotID).
		WillReturnRows(snapshotRows(snapshotID, enterpriseID, "2.1.0", models.SnapshotStatusActive, activatedAt))

	snapshot, err := repo.GetByID(context.Background(), snapshotID)
	require.NoError(t, err)

	assert.Equal(t, snapshotID, snapshot.ID)
	assert.Equal(t, models.SnapshotStatusActive, snapshot.Status)
	require.NotNil(t, snapshot.ActivatedAt)
	require.Len(t, snapshot.Rules, 1)

	rule := snapshot.Rules[0]
	assert.Equal(t, "R1-PROHIBIT-OLD-MJ", rule.RuleID)
	assert.Equal(t, 10, rule.Priority)
	assert.True(t, rule.Decision.AuditTrigger)
	assert.Equal(t, models.VerdictProhibited, rule.Decision.Status)

	group, ok := rule.Conditions.Root.(models.AndGroup)
	require.True(t, ok, "stored conditions should decode to an AND group")
	require.Len(t, group.Clauses, 2)
	clause, ok := group.Clauses[1].(models.Clause)
	require.True(t, ok)
	assert.Equal(t, models.OperatorSemverLess, clause.Operator)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))

	snapshotID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM policy_snapshots WHERE id").
		WithArgs(snapshotID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	snapshot, err := repo.GetByID(context.Background(), snapshotID)
	assert.Nil(t, snapshot)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSnapshotRepository_GetActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))

	enterpriseID := uuid.New()
	snapshotID := uuid.New()

	mock.ExpectQuery("FROM policy_snapshots\\s+WHERE enterprise_id = \\$1 AND status = 'active'").
		WithArgs(enterpriseID).
		WillReturnRows(snapshotRows(snapshotID, enterpriseID, "2.1.0", models.SnapshotStatusActive, time.Now().UTC()))

	snapshot, err := repo.GetActive(context.Background(), enterpriseID)
	require.NoError(t, err)
	assert.Equal(t, snapshotID, snapshot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_GetByVersion_ReachesRetired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))

	enterpriseID := uuid.New()
	snapshotID := uuid.New()

	mock.ExpectQuery("FROM policy_snapshots\\s+WHERE enterprise_id = \\$1 AND version = \\$2").
		WithArgs(enterpriseID, "1.9.0").
		WillReturnRows(snapshotRows(snapshotID, enterpriseID, "1.9.0", models.SnapshotStatusRetired, nil))

	snapshot, err := repo.GetByVersion(context.Background(), enterpriseID, "1.9.0")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotStatusRetired, snapshot.Status)
	assert.Nil(t, snapshot.ActivatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_Activate_RetiresThenActivates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))

	enterpriseID := uuid.New()
	snapshotID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE policy_snapshots\\s+SET status = 'retired'").
		WithArgs(enterpriseID, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE policy_snapshots\\s+SET status = 'active'").
		WithArgs(snapshotID, at, enterpriseID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Activate(context.Background(), enterpriseID, snapshotID, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_Activate_UnknownSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))

	enterpriseID := uuid.New()
	snapshotID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE policy_snapshots\\s+SET status = 'retired'").
		WithArgs(enterpriseID, at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE policy_snapshots\\s+SET status = 'active'").
		WithArgs(snapshotID, at, enterpriseID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Activate(context.Background(), enterpriseID, snapshotID, at)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Activate inside InTransaction must run both updates on the transaction
// connection so a failure after the retire rolls the retire back too.
func TestSnapshotRepository_Activate_InTransactionRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotRepository(db, zaptest.NewLogger(t))
	tm := NewTransactionManager(db, zaptest.NewLogger(t))

	enterpriseID := uuid.New()
	snapshotID := uuid.New()
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE policy_snapshots\\s+SET status = 'retired'").
		WithArgs(enterpriseID, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE policy_snapshots\\s+SET status = 'active'").
		WithArgs(snapshotID, at, enterpriseID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := tm.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
		return repo.Activate(ctx, enterpriseID, snapshotID, at)
	})

	assert.ErrorIs(t, err, repositories.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
