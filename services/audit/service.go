package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/services"
	"go.uber.org/zap"
)

// AuditEvent wraps an audit log entry queued for background persistence
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService appends to the governance decision log and the context audit
// trail. Decision records are written synchronously so a verdict is never
// returned before its record is durable; audit trail entries go through a
// buffered background worker pool.
type AuditService struct {
	actionRepo  repositories.ActionRepository
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int
	WorkerCount int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(actionRepo repositories.ActionRepository, auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		actionRepo:  actionRepo,
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service, draining pending events
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an audit trail entry without blocking. A full buffer
// drops the entry with a warning rather than stalling the request path.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.mu.Unlock()

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)))
		return fmt.Errorf("audit event buffer full")
	}
}

// worker processes queued audit entries
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
			s.logger.Error("failed to persist audit entry",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)))
		}
		cancel()
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
	}
}

// RecordDecision appends a governance decision record carrying the full
// context snapshot. This write is synchronous: the caller's verdict is not
// final until the record is durable.
func (s *AuditService) RecordDecision(ctx context.Context, threadID uuid.UUID, event models.ToolUsageEvent, verdict models.Verdict, state models.PolicyState, actionType models.ActionType, confidence *float64) (*models.GovernanceAction, error) {
	enterpriseID, err := uuid.Parse(event.Context.TenantID)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "event tenant id is not a valid uuid", err)
	}
	if threadID == uuid.Nil {
		threadID = uuid.New()
	}

	action := models.NewGovernanceAction(threadID, enterpriseID, actionType, verdict.Reason).
		WithSnapshot(models.ContextSnapshot{
			Event:           event,
			PolicyState:     state,
			ExternalContext: models.ExternalContext{Confidence: confidence},
		})

	if err := s.actionRepo.Insert(ctx, action); err != nil {
		return nil, services.WrapInternal("failed to record decision", err)
	}

	s.logger.Info("decision recorded",
		zap.String("action_id", action.ID.String()),
		zap.String("enterprise_id", enterpriseID.String()),
		zap.String("verdict", string(verdict.Status)),
		zap.String("rule_id", verdict.RuleID))

	return action, nil
}

// ListDecisions returns recent decision records for an enterprise
func (s *AuditService) ListDecisions(ctx context.Context, enterpriseID uuid.UUID, since time.Time, limit int) ([]*models.GovernanceAction, error) {
	if limit <= 0 {
		limit = 100
	}

	actions, err := s.actionRepo.ListForReplay(ctx, repositories.ActionFilter{
		EnterpriseID: enterpriseID,
		Since:        since,
		ActionTypes:  models.DecisionActionTypes,
		Limit:        limit,
	})
	if err != nil {
		return nil, services.WrapInternal("failed to list decisions", err)
	}

	return actions, nil
}

// Convenience methods for audit trail entries.

// LogLogin records a successful authentication
func (s *AuditService) LogLogin(userID, contextID uuid.UUID) error {
	log := models.NewAuditLog(models.AuditActionLogin, "user").
		WithUser(userID).
		WithContext(contextID).
		WithResource(userID)
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogContextSwitch records a context switch
func (s *AuditService) LogContextSwitch(userID, fromContextID, toContextID uuid.UUID) error {
	log := models.NewAuditLog(models.AuditActionContextSwitch, "user_context").
		WithUser(userID).
		WithContext(toContextID).
		WithResource(toContextID).
		WithDetails(map[string]interface{}{
			"from_context_id": fromContextID,
			"to_context_id":   toContextID,
		})
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogPolicyActivated records a snapshot activation, including which
// snapshot was retired
func (s *AuditService) LogPolicyActivated(ctx context.Context, userID *uuid.UUID, snapshot *models.PolicySnapshot, retiredID *uuid.UUID) error {
	log := models.NewAuditLog(models.AuditActionPolicyActivated, "policy_snapshot").
		WithResource(snapshot.ID).
		WithDetails(map[string]interface{}{
			"enterprise_id": snapshot.EnterpriseID,
			"version":       snapshot.Version,
			"rule_count":    len(snapshot.Rules),
			"retired_id":    retiredID,
		})
	if userID != nil {
		log.WithUser(*userID)
	}

	// Activation audit rides inside the activation transaction.
	if err := s.auditRepo.Insert(ctx, log); err != nil {
		return services.WrapInternal("failed to audit snapshot activation", err)
	}
	return nil
}

// LogEnterpriseCreated records an enterprise provisioning. The entry rides
// inside the provisioning transaction so the audit trail and the entity
// appear atomically.
func (s *AuditService) LogEnterpriseCreated(ctx context.Context, userID uuid.UUID, enterprise *models.Enterprise, contextID uuid.UUID) error {
	log := models.NewAuditLog(models.AuditActionCreateEnterprise, "enterprise").
		WithUser(userID).
		WithContext(contextID).
		WithResource(enterprise.ID).
		WithDetails(map[string]interface{}{
			"name": enterprise.Name,
			"slug": enterprise.Slug,
			"type": enterprise.Type,
		})
	if err := s.auditRepo.Insert(ctx, log); err != nil {
		return services.WrapInternal("failed to audit enterprise creation", err)
	}
	return nil
}

// LogSeatCreated records an agency seat provisioning inside its transaction
func (s *AuditService) LogSeatCreated(ctx context.Context, userID uuid.UUID, seat *models.AgencySeat, contextID uuid.UUID) error {
	log := models.NewAuditLog(models.AuditActionCreateAgencySeat, "agency_seat").
		WithUser(userID).
		WithContext(contextID).
		WithResource(seat.ID).
		WithDetails(map[string]interface{}{
			"enterprise_id": seat.EnterpriseID,
			"name":          seat.Name,
			"slug":          seat.Slug,
		})
	if err := s.auditRepo.Insert(ctx, log); err != nil {
		return services.WrapInternal("failed to audit seat creation", err)
	}
	return nil
}

// LogReplay records a single decision replay
func (s *AuditService) LogReplay(userID *uuid.UUID, decisionID uuid.UUID, outcomeChanged bool) error {
	log := models.NewAuditLog(models.AuditActionReplay, "governance_action").
		WithResource(decisionID).
		WithDetails(map[string]interface{}{
			"outcome_changed": outcomeChanged,
		})
	if userID != nil {
		log.WithUser(*userID)
	}
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogBulkReplay records a bulk replay run
func (s *AuditService) LogBulkReplay(userID *uuid.UUID, enterpriseID uuid.UUID, total, processed, changed int) error {
	log := models.NewAuditLog(models.AuditActionBulkReplay, "enterprise").
		WithResource(enterpriseID).
		WithDetails(map[string]interface{}{
			"total_decisions":     total,
			"processed_decisions": processed,
			"outcome_changes":     changed,
		})
	if userID != nil {
		log.WithUser(*userID)
	}
	return s.LogEvent(&AuditEvent{Log: log})
}
