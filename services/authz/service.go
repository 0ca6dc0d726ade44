package authz

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/services"
	"github.com/verahq/governance-core/services/audit"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Config holds authorization layer settings
type Config struct {
	TokenSecret   string
	TokenTTL      time.Duration
	TokenIssuer   string
	BcryptCost    int
	CacheSize     int
	CacheTTL      time.Duration
	CleanupPeriod time.Duration
}

// DefaultConfig returns sane defaults for everything but the secret
func DefaultConfig() Config {
	return Config{
		TokenTTL:      time.Hour,
		TokenIssuer:   "governance-core",
		BcryptCost:    bcrypt.DefaultCost,
		CacheSize:     1000,
		CacheTTL:      5 * time.Minute,
		CleanupPeriod: time.Minute,
	}
}

// Session is the result of authentication or a context switch
type Session struct {
	Token   string              `json:"token"`
	User    *models.User        `json:"user"`
	Context *models.UserContext `json:"context"`
	Claims  *Claims             `json:"-"`
}

// Service resolves who may act in which policy scope. Every read and write
// of the evaluation and replay surfaces goes through it.
type Service struct {
	users        repositories.UserRepository
	contexts     repositories.UserContextRepository
	enterprises  repositories.EnterpriseRepository
	seats        repositories.AgencySeatRepository
	permissions  repositories.PermissionRepository
	txManager    repositories.TransactionManager
	issuer       *TokenIssuer
	permCache    *Cache[[]models.Permission]
	contextCache *Cache[[]*models.UserContext]
	auditSvc     *audit.AuditService
	bcryptCost   int
	logger       *zap.Logger
}

// NewService creates a new authorization service
func NewService(repos *repositories.Repositories, txManager repositories.TransactionManager, auditSvc *audit.AuditService, config Config, logger *zap.Logger) *Service {
	if config.BcryptCost < bcrypt.MinCost {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 1000
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}

	return &Service{
		users:        repos.Users,
		contexts:     repos.UserContexts,
		enterprises:  repos.Enterprises,
		seats:        repos.AgencySeats,
		permissions:  repos.Permissions,
		txManager:    txManager,
		issuer:       NewTokenIssuer(config.TokenSecret, config.TokenTTL, config.TokenIssuer),
		permCache:    NewCache[[]models.Permission](config.CacheSize, config.CacheTTL),
		contextCache: NewCache[[]*models.UserContext](config.CacheSize, config.CacheTTL),
		auditSvc:     auditSvc,
		bcryptCost:   config.BcryptCost,
		logger:       logger,
	}
}

// Issuer exposes the token issuer for middleware validation
func (s *Service) Issuer() *TokenIssuer {
	return s.issuer
}

// HashPassword hashes a plaintext password for storage
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", services.WrapInternal("failed to hash password", err)
	}
	return string(hash), nil
}

// Authenticate verifies credentials and issues a token bound to the user's
// default context. Every failure returns the same error so responses never
// reveal whether the account exists.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, services.ErrInvalidCredentials
	}

	userContext, err := s.contexts.GetDefault(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// A user without any context cannot act anywhere.
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to load default context", err)
	}

	if err := s.contexts.TouchLastAccessed(ctx, userContext.ID); err != nil {
		s.logger.Warn("failed to touch context access time", zap.Error(err))
	}

	token, claims, err := s.issuer.Issue(user, userContext)
	if err != nil {
		return nil, err
	}

	if s.auditSvc != nil {
		if err := s.auditSvc.LogLogin(user.ID, userContext.ID); err != nil {
			s.logger.Warn("failed to audit login", zap.Error(err))
		}
	}

	s.logger.Info("user authenticated",
		zap.String("user_id", user.ID.String()),
		zap.String("context_id", userContext.ID.String()),
		zap.String("role", userContext.Role))

	return &Session{Token: token, User: user, Context: userContext, Claims: claims}, nil
}

// SwitchContext moves the user to another of their contexts and reissues
// the token with that context's permission snapshot. A context owned by
// someone else is forbidden; an unknown or deactivated one is not found.
func (s *Service) SwitchContext(ctx context.Context, userID, fromContextID, toContextID uuid.UUID) (*Session, error) {
	userContext, err := s.contexts.GetByID(ctx, toContextID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrContextNotFound
		}
		return nil, services.WrapInternal("failed to load context", err)
	}

	if userContext.UserID != userID {
		return nil, services.ErrForbidden
	}
	if !userContext.IsActive {
		return nil, services.ErrContextNotFound
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}

	// The switched-to context becomes the next login's default.
	if err := s.contexts.SetDefault(ctx, userID, toContextID); err != nil {
		return nil, services.WrapInternal("failed to set default context", err)
	}
	if err := s.contexts.TouchLastAccessed(ctx, toContextID); err != nil {
		s.logger.Warn("failed to touch context access time", zap.Error(err))
	}
	userContext.IsDefault = true

	s.contextCache.Invalidate(userID.String())

	token, claims, err := s.issuer.Issue(user, userContext)
	if err != nil {
		return nil, err
	}

	if s.auditSvc != nil {
		if err := s.auditSvc.LogContextSwitch(userID, fromContextID, toContextID); err != nil {
			s.logger.Warn("failed to audit context switch", zap.Error(err))
		}
	}

	s.logger.Info("context switched",
		zap.String("user_id", userID.String()),
		zap.String("from_context_id", fromContextID.String()),
		zap.String("to_context_id", toContextID.String()))

	return &Session{Token: token, User: user, Context: userContext, Claims: claims}, nil
}

// ListContexts returns the user's active contexts, cached per user
func (s *Service) ListContexts(ctx context.Context, userID uuid.UUID) ([]*models.UserContext, error) {
	key := userID.String()
	if cached, ok := s.contextCache.Get(key); ok {
		return cached, nil
	}

	contexts, err := s.contexts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to list contexts", err)
	}

	s.contextCache.Set(key, contexts)
	return contexts, nil
}

// CheckPermission decides whether the token's holder may perform an action.
// The superuser role short-circuits; otherwise the issuance-time permission
// snapshot is consulted first, then the cached role grants.
func (s *Service) CheckPermission(ctx context.Context, claims *Claims, resource, action string, resourceID *uuid.UUID) error {
	if claims == nil {
		return services.ErrInvalidToken
	}
	if claims.Role == models.RolePlatformSuperAdmin {
		return nil
	}

	for _, permission := range claims.Permissions {
		if permission.Allows(resource, action, resourceID) {
			return nil
		}
	}

	rolePermissions, err := s.rolePermissions(ctx, claims.Role)
	if err != nil {
		return err
	}
	for _, permission := range rolePermissions {
		if permission.Allows(resource, action, resourceID) {
			return nil
		}
	}

	s.logger.Debug("permission denied",
		zap.String("role", claims.Role),
		zap.String("resource", resource),
		zap.String("action", action))
	return services.ErrForbidden
}

// InvalidateRole drops the cached grants for a role after its permissions
// change. The cache is process-local; other instances converge via TTL.
func (s *Service) InvalidateRole(role string) {
	s.permCache.Invalidate(role)
}

// CacheStats returns the permission and context cache statistics
func (s *Service) CacheStats() (CacheStats, CacheStats) {
	return s.permCache.Stats(), s.contextCache.Stats()
}

// StartCacheCleanup runs background expiry for both caches until stopCh
// closes
func (s *Service) StartCacheCleanup(interval time.Duration, stopCh <-chan struct{}) {
	go s.permCache.StartCleanupWorker(interval, stopCh)
	go s.contextCache.StartCleanupWorker(interval, stopCh)
}

// rolePermissions resolves a role's grants through the TTL cache
func (s *Service) rolePermissions(ctx context.Context, role string) ([]models.Permission, error) {
	if cached, ok := s.permCache.Get(role); ok {
		return cached, nil
	}

	permissions, err := s.permissions.GetByRole(ctx, role)
	if err != nil {
		return nil, services.WrapInternal("failed to load role permissions", err)
	}

	s.permCache.Set(role, permissions)
	return permissions, nil
}

// CreateEnterprise provisions a tenant plus its creator's owning default
// context in one transaction. Either everything commits or nothing is
// visible.
func (s *Service) CreateEnterprise(ctx context.Context, creatorID uuid.UUID, name, slug string, entType models.EnterpriseType) (*models.Enterprise, *models.UserContext, error) {
	if name == "" || slug == "" {
		return nil, nil, services.NewDomainError(services.ErrorTypeValidation, "enterprise name and slug are required", nil)
	}
	if entType != models.EnterpriseTypeBrand && entType != models.EnterpriseTypeAgency {
		return nil, nil, services.NewDomainError(services.ErrorTypeValidation, "enterprise type must be brand or agency", nil)
	}

	if _, err := s.enterprises.GetBySlug(ctx, slug); err == nil {
		return nil, nil, services.ErrDuplicateSlug
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, services.WrapInternal("failed to check enterprise slug", err)
	}

	ownerPermissions, err := s.rolePermissions(ctx, models.RoleEnterpriseOwner)
	if err != nil {
		return nil, nil, err
	}

	enterprise := models.NewEnterprise(name, slug, entType)
	userContext := models.NewUserContext(creatorID, enterprise.ID, models.RoleEnterpriseOwner, ownerPermissions)

	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.enterprises.Create(txCtx, enterprise); err != nil {
			return err
		}
		if err := s.contexts.Create(txCtx, userContext); err != nil {
			return err
		}
		if err := s.contexts.SetDefault(txCtx, creatorID, userContext.ID); err != nil {
			return err
		}
		userContext.IsDefault = true
		if s.auditSvc != nil {
			return s.auditSvc.LogEnterpriseCreated(txCtx, creatorID, enterprise, userContext.ID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, services.WrapError(services.ErrorTypeInternal, "enterprise creation failed", err)
	}

	s.contextCache.Invalidate(creatorID.String())

	s.logger.Info("enterprise created",
		zap.String("enterprise_id", enterprise.ID.String()),
		zap.String("slug", slug),
		zap.String("creator_id", creatorID.String()))

	return enterprise, userContext, nil
}

// CreateAgencySeat provisions a seat under an enterprise plus the creator's
// seat-admin default context, atomically.
func (s *Service) CreateAgencySeat(ctx context.Context, creatorID, enterpriseID uuid.UUID, name, slug, description string) (*models.AgencySeat, *models.UserContext, error) {
	if name == "" || slug == "" {
		return nil, nil, services.NewDomainError(services.ErrorTypeValidation, "seat name and slug are required", nil)
	}

	if _, err := s.enterprises.GetByID(ctx, enterpriseID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, services.ErrEnterpriseNotFound
		}
		return nil, nil, services.WrapInternal("failed to load enterprise", err)
	}

	adminPermissions, err := s.rolePermissions(ctx, models.RoleSeatAdmin)
	if err != nil {
		return nil, nil, err
	}

	seat := models.NewAgencySeat(enterpriseID, name, slug)
	seat.Description = description
	userContext := models.NewUserContext(creatorID, enterpriseID, models.RoleSeatAdmin, adminPermissions).
		WithSeat(seat.ID)

	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.seats.Create(txCtx, seat); err != nil {
			return err
		}
		if err := s.contexts.Create(txCtx, userContext); err != nil {
			return err
		}
		if err := s.contexts.SetDefault(txCtx, creatorID, userContext.ID); err != nil {
			return err
		}
		userContext.IsDefault = true
		if s.auditSvc != nil {
			return s.auditSvc.LogSeatCreated(txCtx, creatorID, seat, userContext.ID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, services.WrapError(services.ErrorTypeInternal, "agency seat creation failed", err)
	}

	s.contextCache.Invalidate(creatorID.String())

	s.logger.Info("agency seat created",
		zap.String("seat_id", seat.ID.String()),
		zap.String("enterprise_id", enterpriseID.String()),
		zap.String("creator_id", creatorID.String()))

	return seat, userContext, nil
}
