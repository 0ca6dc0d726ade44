package policy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/services"
	"github.com/verahq/governance-core/services/audit"
	"github.com/verahq/governance-core/services/evaluation"
	"go.uber.org/zap"
)

// Service owns policy snapshots and their lifecycle. A snapshot moves
// draft -> active -> retired; at most one snapshot per enterprise is active
// at any time, and the only way to activate one is the atomic Activate
// transition.
type Service struct {
	snapshotRepo repositories.SnapshotRepository
	txManager    repositories.TransactionManager
	engine       *evaluation.Engine
	auditSvc     *audit.AuditService
	logger       *zap.Logger
}

// NewService creates a new policy snapshot service
func NewService(snapshotRepo repositories.SnapshotRepository, txManager repositories.TransactionManager, engine *evaluation.Engine, auditSvc *audit.AuditService, logger *zap.Logger) *Service {
	return &Service{
		snapshotRepo: snapshotRepo,
		txManager:    txManager,
		engine:       engine,
		auditSvc:     auditSvc,
		logger:       logger,
	}
}

// GetByID retrieves a snapshot regardless of status
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.PolicySnapshot, error) {
	snapshot, err := s.snapshotRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSnapshotNotFound
		}
		return nil, services.WrapInternal("failed to load snapshot", err)
	}
	return snapshot, nil
}

// GetActive retrieves the enterprise's single active snapshot
func (s *Service) GetActive(ctx context.Context, enterpriseID uuid.UUID) (*models.PolicySnapshot, error) {
	snapshot, err := s.snapshotRepo.GetActive(ctx, enterpriseID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSnapshotNotFound
		}
		return nil, services.WrapInternal("failed to load active snapshot", err)
	}
	return snapshot, nil
}

// GetByVersion retrieves a snapshot by explicit version, including retired
// ones. Replay uses this to reach historical rule sets.
func (s *Service) GetByVersion(ctx context.Context, enterpriseID uuid.UUID, version string) (*models.PolicySnapshot, error) {
	snapshot, err := s.snapshotRepo.GetByVersion(ctx, enterpriseID, version)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSnapshotNotFound
		}
		return nil, services.WrapInternal("failed to load snapshot version", err)
	}
	return snapshot, nil
}

// Create validates a rule set and persists it as a draft snapshot
func (s *Service) Create(ctx context.Context, enterpriseID uuid.UUID, version string, rules []models.PolicyRule) (*models.PolicySnapshot, error) {
	if version == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "snapshot version is required", nil)
	}
	if err := evaluation.ValidateRules(rules); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid rule set", err)
	}

	if _, err := s.snapshotRepo.GetByVersion(ctx, enterpriseID, version); err == nil {
		return nil, services.ErrDuplicateVersion
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to check snapshot version", err)
	}

	snapshot := models.NewPolicySnapshot(enterpriseID, version, rules)
	if err := s.snapshotRepo.Create(ctx, snapshot); err != nil {
		return nil, services.WrapInternal("failed to create snapshot", err)
	}

	s.logger.Info("policy snapshot created",
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("enterprise_id", enterpriseID.String()),
		zap.String("version", version),
		zap.Int("rule_count", len(rules)))

	return snapshot, nil
}

// Activate retires the currently active snapshot and promotes the given one
// inside a single transaction, so readers never observe zero or two active
// snapshots mid-transition.
func (s *Service) Activate(ctx context.Context, userID *uuid.UUID, snapshotID uuid.UUID) (*models.PolicySnapshot, error) {
	snapshot, err := s.GetByID(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snapshot.Status == models.SnapshotStatusActive {
		return snapshot, nil
	}
	if err := evaluation.ValidateRules(snapshot.Rules); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "snapshot rule set no longer valid", err)
	}

	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		var retiredID *uuid.UUID
		if current, err := s.snapshotRepo.GetActive(txCtx, snapshot.EnterpriseID); err == nil {
			retiredID = &current.ID
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		now := time.Now()
		if err := s.snapshotRepo.Activate(txCtx, snapshot.EnterpriseID, snapshot.ID, now); err != nil {
			return err
		}

		snapshot.Status = models.SnapshotStatusActive
		snapshot.ActivatedAt = &now
		snapshot.UpdatedAt = now

		return s.auditSvc.LogPolicyActivated(txCtx, userID, snapshot, retiredID)
	})
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "snapshot activation failed", err)
	}

	s.logger.Info("policy snapshot activated",
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("enterprise_id", snapshot.EnterpriseID.String()),
		zap.String("version", snapshot.Version))

	return snapshot, nil
}

// Evaluate classifies a tool usage event against the rule set in effect and
// records the decision. The snapshot named by the event wins over the
// current active one, so late-arriving events are judged by the policy in
// force when they happened.
func (s *Service) Evaluate(ctx context.Context, threadID uuid.UUID, event models.ToolUsageEvent) (models.Verdict, *models.GovernanceAction, error) {
	enterpriseID, err := uuid.Parse(event.Context.TenantID)
	if err != nil {
		return models.Verdict{}, nil, services.NewDomainError(services.ErrorTypeValidation, "event tenant id is not a valid uuid", err)
	}

	snapshot, err := s.resolveSnapshot(ctx, enterpriseID, event.Context.PolicySnapshotID)
	if err != nil {
		return models.Verdict{}, nil, err
	}
	event.Context.PolicySnapshotID = snapshot.ID.String()

	verdict := s.engine.Evaluate(event, snapshot.Rules)

	state := models.PolicyState{
		SnapshotID: snapshot.ID,
		Version:    snapshot.Version,
		Rules:      snapshot.Rules,
	}

	action, err := s.auditSvc.RecordDecision(ctx, threadID, event, verdict, state, actionTypeFor(verdict), nil)
	if err != nil {
		return models.Verdict{}, nil, err
	}

	return verdict, action, nil
}

// resolveSnapshot loads the snapshot the event names, falling back to the
// enterprise's active snapshot when the event carries none.
func (s *Service) resolveSnapshot(ctx context.Context, enterpriseID uuid.UUID, snapshotID string) (*models.PolicySnapshot, error) {
	if snapshotID != "" {
		id, err := uuid.Parse(snapshotID)
		if err != nil {
			return nil, services.NewDomainError(services.ErrorTypeValidation, "event policy snapshot id is not a valid uuid", err)
		}
		snapshot, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if snapshot.EnterpriseID != enterpriseID {
			return nil, services.ErrSnapshotNotFound
		}
		return snapshot, nil
	}
	return s.GetActive(ctx, enterpriseID)
}

// actionTypeFor maps a verdict onto the raw action literal recorded in the
// decision log.
func actionTypeFor(verdict models.Verdict) models.ActionType {
	switch verdict.Status {
	case models.VerdictApproved:
		return models.ActionAgentAutoApprove
	case models.VerdictProhibited:
		return models.ActionAgentAutoBlock
	default:
		return models.ActionEscalate
	}
}
