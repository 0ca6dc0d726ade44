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

const enterpriseColumns = "id, name, slug, type, subscription_tier, settings, created_at, updated_at"

func TestEnterpriseRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnterpriseRepository(db, zaptest.NewLogger(t))

	now := time.Now().UTC()
	enterprise := &models.Enterprise{
		ID:               uuid.New(),
		Name:             "Vera Creative",
		Slug:             "vera-creative",
		Type:             models.EnterpriseTypeAgency,
		SubscriptionTier: "standard",
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Empty settings must be written as NULL, not an empty string.
	mock.ExpectExec("INSERT INTO enterprises").
		WithArgs(enterprise.ID, "Vera Creative", "vera-creative", models.EnterpriseTypeAgency,
			"standard", nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), enterprise))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnterpriseRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnterpriseRepository(db, zaptest.NewLogger(t))

	enterpriseID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("FROM enterprises\\s+WHERE id").
		WithArgs(enterpriseID).
		WillReturnRows(sqlmock.NewRows(splitColumns(enterpriseColumns)).
			AddRow(enterpriseID.String(), "Vera Creative", "vera-creative", "agency",
				"standard", `{"timezone":"UTC"}`, now, now))

	enterprise, err := repo.GetByID(context.Background(), enterpriseID)
	require.NoError(t, err)

	assert.Equal(t, enterpriseID, enterprise.ID)
	assert.Equal(t, models.EnterpriseTypeAgency, enterprise.Type)
	assert.JSONEq(t, `{"timezone":"UTC"}`, string(enterprise.Settings))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnterpriseRepository_GetBySlug_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnterpriseRepository(db, zaptest.NewLogger(t))

	mock.ExpectQuery("FROM enterprises\\s+WHERE slug").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(splitColumns(enterpriseColumns)))

	enterprise, err := repo.GetBySlug(context.Background(), "missing")
	assert.Nil(t, enterprise)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestEnterpriseRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnterpriseRepository(db, zaptest.NewLogger(t))

	now := time.Now().UTC()
	mock.ExpectQuery("FROM enterprises\\s+ORDER BY created_at DESC").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(splitColumns(enterpriseColumns)).
			AddRow(uuid.New().String(), "Brand One", "brand-one", "brand", "standard", nil, now, now).
			AddRow(uuid.New().String(), "Agency Two", "agency-two", "agency", "premium", nil, now.Add(-time.Hour), now))

	enterprises, err := repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, enterprises, 2)
	assert.Equal(t, "brand-one", enterprises[0].Slug)
	assert.Nil(t, enterprises[0].Settings)
	assert.NoError(t, mock.ExpectationsWereMet())
}
