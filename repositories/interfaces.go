package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
)

// ErrNotFound is returned by repositories when a record does not exist.
// Services translate it into their own error taxonomy.
var ErrNotFound = errors.New("record not found")

// TransactionManager is the single transaction boundary services use.
// Snapshot activation and enterprise/seat provisioning run their multi-step
// writes through it; repository calls made with the wrapped context join
// the same transaction.
type TransactionManager interface {
	// InTransaction executes fn within a transaction, committing when it
	// returns nil and rolling back otherwise
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction lets fn force an early rollback or commit explicitly
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// EnterpriseRepository handles enterprise data operations
type EnterpriseRepository interface {
	// Create creates a new enterprise
	Create(ctx context.Context, enterprise *models.Enterprise) error

	// GetByID retrieves an enterprise by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Enterprise, error)

	// GetBySlug retrieves an enterprise by slug
	GetBySlug(ctx context.Context, slug string) (*models.Enterprise, error)

	// List retrieves enterprises with pagination
	List(ctx context.Context, limit, offset int) ([]*models.Enterprise, error)
}

// AgencySeatRepository handles agency seat data operations
type AgencySeatRepository interface {
	// Create creates a new agency seat
	Create(ctx context.Context, seat *models.AgencySeat) error

	// GetByID retrieves a seat by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AgencySeat, error)

	// GetByEnterpriseID retrieves all seats of an enterprise
	GetByEnterpriseID(ctx context.Context, enterpriseID uuid.UUID) ([]*models.AgencySeat, error)
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves an active user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserContextRepository handles user context data operations.
// Contexts are soft-deactivated, never deleted; last-accessed and default
// flips go through single-statement transition methods, never read-then-write.
type UserContextRepository interface {
	// Create creates a new user context
	Create(ctx context.Context, userContext *models.UserContext) error

	// GetByID retrieves a context by ID regardless of owner
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserContext, error)

	// GetByUserID retrieves all active contexts of a user
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.UserContext, error)

	// GetDefault retrieves the user's default active context
	GetDefault(ctx context.Context, userID uuid.UUID) (*models.UserContext, error)

	// SetDefault atomically clears the user's previous default and marks
	// the given context as default in one statement pair
	SetDefault(ctx context.Context, userID, contextID uuid.UUID) error

	// TouchLastAccessed stamps the context's last access time
	TouchLastAccessed(ctx context.Context, id uuid.UUID) error

	// Deactivate soft-deactivates a context
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// SnapshotRepository handles policy snapshot data operations
type SnapshotRepository interface {
	// Create creates a new (draft) snapshot
	Create(ctx context.Context, snapshot *models.PolicySnapshot) error

	// GetByID retrieves a snapshot by ID regardless of status
	GetByID(ctx context.Context, id uuid.UUID) (*models.PolicySnapshot, error)

	// GetActive retrieves the enterprise's single active snapshot
	GetActive(ctx context.Context, enterpriseID uuid.UUID) (*models.PolicySnapshot, error)

	// GetByVersion retrieves a snapshot by explicit version, bypassing the
	// active pointer (used by replay to reach retired versions)
	GetByVersion(ctx context.Context, enterpriseID uuid.UUID, version string) (*models.PolicySnapshot, error)

	// Activate retires the currently active snapshot and activates the
	// given one. Callers must run it inside a transaction so concurrent
	// readers never observe two active snapshots.
	Activate(ctx context.Context, enterpriseID, snapshotID uuid.UUID, at time.Time) error
}

// ActionFilter narrows the decision records selected for bulk replay
type ActionFilter struct {
	EnterpriseID uuid.UUID
	Since        time.Time
	ActionTypes  []models.ActionType
	Limit        int
}

// ActionRepository handles governance action (decision record) operations.
// The store is append-only: no update or delete operations exist.
type ActionRepository interface {
	// Insert appends a new decision record
	Insert(ctx context.Context, action *models.GovernanceAction) error

	// GetByID retrieves a decision record by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.GovernanceAction, error)

	// ListForReplay retrieves snapshotted decision records matching the filter
	ListForReplay(ctx context.Context, filter ActionFilter) ([]*models.GovernanceAction, error)
}

// AuditRepository handles audit log operations (append-only)
type AuditRepository interface {
	// Insert appends a new audit entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByUserID retrieves audit entries for a user with pagination
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// PermissionRepository resolves role-based permission grants
type PermissionRepository interface {
	// GetByRole retrieves the granted permissions of a role
	GetByRole(ctx context.Context, role string) ([]models.Permission, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Enterprises  EnterpriseRepository
	AgencySeats  AgencySeatRepository
	Users        UserRepository
	UserContexts UserContextRepository
	Snapshots    SnapshotRepository
	Actions      ActionRepository
	AuditLogs    AuditRepository
	Permissions  PermissionRepository
}
