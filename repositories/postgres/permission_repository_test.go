package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verahq/governance-core/models"
	"go.uber.org/zap/zaptest"
)

func TestPermissionRepository_GetByRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db, zaptest.NewLogger(t))

	mock.ExpectQuery("FROM role_permissions\\s+WHERE role = \\$1 AND is_granted = true").
		WithArgs("governance_admin").
		WillReturnRows(sqlmock.NewRows([]string{"resource", "action"}).
			AddRow("decisions", "create").
			AddRow("policies", "create").
			AddRow("replay", "run"))

	permissions, err := repo.GetByRole(context.Background(), "governance_admin")
	require.NoError(t, err)
	require.Len(t, permissions, 3)
	assert.Equal(t, models.Permission{Resource: "decisions", Action: "create"}, permissions[0])
	assert.Equal(t, models.Permission{Resource: "replay", Action: "run"}, permissions[2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepository_GetByRole_UnknownRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPermissionRepository(db, zaptest.NewLogger(t))

	mock.ExpectQuery("FROM role_permissions").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"resource", "action"}))

	permissions, err := repo.GetByRole(context.Background(), "ghost")
	require.NoError(t, err)
	assert.NotNil(t, permissions)
	assert.Empty(t, permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
