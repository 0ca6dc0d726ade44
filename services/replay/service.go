package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/verahq/governance-core/models"
	"github.com/verahq/governance-core/repositories"
	"github.com/verahq/governance-core/services"
	"github.com/verahq/governance-core/services/audit"
	"github.com/verahq/governance-core/services/evaluation"
	"go.uber.org/zap"
)

const (
	// defaultOriginalConfidence stands in for decisions recorded without an
	// upstream confidence score. It is a documented approximation, not
	// ground truth.
	defaultOriginalConfidence = 0.8

	// Replayed confidence is a heuristic: an explicit rule match is a
	// stronger signal than the fail-closed fallback.
	matchConfidence    = 0.9
	fallbackConfidence = 0.5
)

// Config holds replay orchestration settings
type Config struct {
	Concurrency   int           // bulk worker cap
	Timeout       time.Duration // per-decision replay budget
	DefaultLimit  int           // bulk selection limit when unset
	DefaultWindow time.Duration // bulk recency window when unset
}

// DefaultConfig returns the default replay configuration
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		Timeout:       10 * time.Second,
		DefaultLimit:  100,
		DefaultWindow: 365 * 24 * time.Hour,
	}
}

// Target selects which policy snapshot a decision is replayed under.
// Explicit snapshot ID wins over version; both empty means current active.
type Target struct {
	SnapshotID *uuid.UUID
	Version    string
}

// BulkOptions narrows the decision population of a bulk replay
type BulkOptions struct {
	Limit          int
	TimeWindowDays int
	ActionTypes    []models.ActionType
}

// Service re-runs historical governance decisions under alternate policy
// versions. Replay never mutates the decision log: the stored event, actor
// and external signals are held fixed and only the policy state is
// substituted.
type Service struct {
	actionRepo   repositories.ActionRepository
	snapshotRepo repositories.SnapshotRepository
	engine       *evaluation.Engine
	auditSvc     *audit.AuditService
	config       Config
	logger       *zap.Logger
}

// NewService creates a new replay service
func NewService(actionRepo repositories.ActionRepository, snapshotRepo repositories.SnapshotRepository, engine *evaluation.Engine, auditSvc *audit.AuditService, config Config, logger *zap.Logger) *Service {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 100
	}
	if config.DefaultWindow <= 0 {
		config.DefaultWindow = 365 * 24 * time.Hour
	}

	return &Service{
		actionRepo:   actionRepo,
		snapshotRepo: snapshotRepo,
		engine:       engine,
		auditSvc:     auditSvc,
		config:       config,
		logger:       logger,
	}
}

// Replay re-evaluates one historical decision under the target policy.
// The decision must belong to the caller's enterprise; a foreign decision
// reads as not found so its existence does not leak. Decisions recorded
// before context snapshotting exist but can never be replayed; they fail
// with a data-incomplete error, not not-found.
func (s *Service) Replay(ctx context.Context, userID *uuid.UUID, enterpriseID, decisionID uuid.UUID, target Target) (*models.ReplayResult, error) {
	action, err := s.actionRepo.GetByID(ctx, decisionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrDecisionNotFound
		}
		return nil, services.WrapInternal("failed to load decision", err)
	}
	if action.EnterpriseID != enterpriseID {
		return nil, services.ErrDecisionNotFound
	}
	if action.ContextSnapshot == nil {
		return nil, services.ErrDecisionIncomplete
	}

	snapshot, err := s.resolveTarget(ctx, action.EnterpriseID, target)
	if err != nil {
		return nil, err
	}

	result := s.replayAgainst(action, snapshot)

	if s.auditSvc != nil {
		if err := s.auditSvc.LogReplay(userID, decisionID, result.Analysis.OutcomeChanged); err != nil {
			s.logger.Warn("failed to audit replay", zap.Error(err))
		}
	}

	return result, nil
}

// BulkReplay measures the impact of moving an enterprise from one policy
// version to another by replaying its recent decisions. Decisions recorded
// under a different version are silently excluded; a single decision's
// failure never aborts the batch.
func (s *Service) BulkReplay(ctx context.Context, userID *uuid.UUID, enterpriseID uuid.UUID, fromVersion, toVersion string, opts BulkOptions) (*models.BulkReplayResult, error) {
	if fromVersion == "" || toVersion == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "fromVersion and toVersion are required", nil)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	window := s.config.DefaultWindow
	if opts.TimeWindowDays > 0 {
		window = time.Duration(opts.TimeWindowDays) * 24 * time.Hour
	}
	actionTypes := opts.ActionTypes
	if len(actionTypes) == 0 {
		actionTypes = models.DecisionActionTypes
	}

	target, err := s.snapshotRepo.GetByVersion(ctx, enterpriseID, toVersion)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSnapshotNotFound
		}
		return nil, services.WrapInternal("failed to load target snapshot", err)
	}

	actions, err := s.actionRepo.ListForReplay(ctx, repositories.ActionFilter{
		EnterpriseID: enterpriseID,
		Since:        time.Now().Add(-window),
		ActionTypes:  actionTypes,
		Limit:        limit,
	})
	if err != nil {
		return nil, services.WrapInternal("failed to list decisions", err)
	}

	// Version mismatch is a filter, not an error: excluded decisions count
	// toward totalDecisions only.
	candidates := make([]*models.GovernanceAction, 0, len(actions))
	for _, action := range actions {
		if action.ContextSnapshot != nil && action.ContextSnapshot.PolicyState.Version == fromVersion {
			candidates = append(candidates, action)
		}
	}

	details := s.replayAll(ctx, candidates, target)

	result := &models.BulkReplayResult{
		EnterpriseID: enterpriseID,
		FromVersion:  fromVersion,
		ToVersion:    toVersion,
		Summary:      summarize(len(actions), details),
		Details:      details,
	}

	s.logger.Info("bulk replay completed",
		zap.String("enterprise_id", enterpriseID.String()),
		zap.String("from_version", fromVersion),
		zap.String("to_version", toVersion),
		zap.Int("total", result.Summary.TotalDecisions),
		zap.Int("processed", result.Summary.ProcessedDecisions),
		zap.Int("outcome_changes", result.Summary.OutcomeChanges))

	if s.auditSvc != nil {
		if err := s.auditSvc.LogBulkReplay(userID, enterpriseID, result.Summary.TotalDecisions, result.Summary.ProcessedDecisions, result.Summary.OutcomeChanges); err != nil {
			s.logger.Warn("failed to audit bulk replay", zap.Error(err))
		}
	}

	return result, nil
}

// replayAll runs candidates through a bounded worker pool with a
// per-decision timeout. Failed items are logged and dropped.
func (s *Service) replayAll(ctx context.Context, candidates []*models.GovernanceAction, target *models.PolicySnapshot) []models.ReplayResult {
	type indexed struct {
		pos    int
		result models.ReplayResult
	}

	workers := s.config.Concurrency
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers == 0 {
		return []models.ReplayResult{}
	}

	jobs := make(chan int)
	results := make(chan indexed, len(candidates))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				action := candidates[pos]
				result, err := s.replayOne(ctx, action, target)
				if err != nil {
					s.logger.Warn("decision replay failed, excluding from batch",
						zap.String("decision_id", action.ID.String()),
						zap.Error(err))
					continue
				}
				results <- indexed{pos: pos, result: *result}
			}
		}()
	}

	for pos := range candidates {
		select {
		case jobs <- pos:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	ordered := make([]indexed, 0, len(candidates))
	for item := range results {
		ordered = append(ordered, item)
	}
	// Stable output order regardless of worker interleaving.
	details := make([]models.ReplayResult, 0, len(ordered))
	for pos := range candidates {
		for _, item := range ordered {
			if item.pos == pos {
				details = append(details, item.result)
				break
			}
		}
	}
	return details
}

// replayOne applies the per-decision timeout around a single replay
func (s *Service) replayOne(ctx context.Context, action *models.GovernanceAction, target *models.PolicySnapshot) (*models.ReplayResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	done := make(chan *models.ReplayResult, 1)
	failed := make(chan error, 1)
	go func() {
		// A panic on one malformed record must not take down the batch.
		defer func() {
			if r := recover(); r != nil {
				failed <- fmt.Errorf("replay panicked: %v", r)
			}
		}()
		done <- s.replayAgainst(action, target)
	}()

	select {
	case result := <-done:
		return result, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("replay timed out: %w", ctx.Err())
	}
}

// replayAgainst is the pure core: substitute only the policy state, hold
// the rest of the snapshot fixed, and re-run the evaluation.
func (s *Service) replayAgainst(action *models.GovernanceAction, target *models.PolicySnapshot) *models.ReplayResult {
	held := action.ContextSnapshot

	event := held.Event
	event.Context.PolicySnapshotID = target.ID.String()

	verdict := s.engine.Evaluate(event, target.Rules)

	originalConfidence := defaultOriginalConfidence
	if held.ExternalContext.Confidence != nil {
		originalConfidence = *held.ExternalContext.Confidence
	}

	replayedConfidence := fallbackConfidence
	if verdict.RuleID != "" {
		replayedConfidence = matchConfidence
	}

	original := models.OriginalDecision{
		ActionID:      action.ID,
		ThreadID:      action.ThreadID,
		Outcome:       action.ActionType.Outcome(),
		Confidence:    originalConfidence,
		Rationale:     action.Rationale,
		PolicyVersion: held.PolicyState.Version,
		DecisionDate:  action.CreatedAt,
	}

	replayed := models.ReplayedDecision{
		Outcome:       verdict.Outcome(),
		Confidence:    replayedConfidence,
		Rationale:     verdict.Reason,
		PolicyVersion: target.Version,
		RuleID:        verdict.RuleID,
	}

	changes := policyChanges(held.PolicyState, target)
	analysis := models.ReplayAnalysis{
		OutcomeChanged:  original.Outcome != replayed.Outcome,
		ConfidenceDelta: replayed.Confidence - original.Confidence,
		PolicyChanges:   changes,
	}
	analysis.ImpactAssessment = classifyImpact(analysis)

	return &models.ReplayResult{
		OriginalDecision: original,
		ReplayedDecision: replayed,
		Analysis:         analysis,
	}
}

// resolveTarget picks the snapshot a replay runs under: explicit ID, else
// explicit version, else the enterprise's current active snapshot.
func (s *Service) resolveTarget(ctx context.Context, enterpriseID uuid.UUID, target Target) (*models.PolicySnapshot, error) {
	var snapshot *models.PolicySnapshot
	var err error

	switch {
	case target.SnapshotID != nil:
		snapshot, err = s.snapshotRepo.GetByID(ctx, *target.SnapshotID)
	case target.Version != "":
		snapshot, err = s.snapshotRepo.GetByVersion(ctx, enterpriseID, target.Version)
	default:
		snapshot, err = s.snapshotRepo.GetActive(ctx, enterpriseID)
	}

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSnapshotNotFound
		}
		return nil, services.WrapInternal("failed to resolve target snapshot", err)
	}
	if snapshot.EnterpriseID != enterpriseID {
		return nil, services.ErrSnapshotNotFound
	}
	return snapshot, nil
}

// policyChanges is a structural diff between the recorded policy state and
// the target snapshot. Rule-count deltas only; per-field diffs are an
// extension point.
func policyChanges(original models.PolicyState, target *models.PolicySnapshot) []string {
	changes := []string{}

	if len(original.Rules) != len(target.Rules) {
		changes = append(changes, fmt.Sprintf("rule count changed from %d to %d",
			len(original.Rules), len(target.Rules)))
	}

	originalActive := original.ActiveRuleCount()
	targetActive := target.ActiveRuleCount()
	if originalActive != targetActive {
		changes = append(changes, fmt.Sprintf("active rule count changed from %d to %d",
			originalActive, targetActive))
	}

	return changes
}

// classifyImpact applies the ordered impact ladder; the first matching
// rung wins.
func classifyImpact(a models.ReplayAnalysis) models.ImpactLevel {
	absDelta := math.Abs(a.ConfidenceDelta)

	switch {
	case !a.OutcomeChanged && absDelta < 0.1 && len(a.PolicyChanges) == 0:
		return models.ImpactNone
	case a.OutcomeChanged && a.ConfidenceDelta < -0.3:
		return models.ImpactCritical
	case a.OutcomeChanged && a.ConfidenceDelta < -0.1:
		return models.ImpactHigh
	case a.OutcomeChanged:
		return models.ImpactMedium
	case absDelta > 0.2:
		return models.ImpactMedium
	case len(a.PolicyChanges) > 3:
		return models.ImpactMedium
	default:
		return models.ImpactLow
	}
}

// summarize aggregates replay details into the bulk summary
func summarize(total int, details []models.ReplayResult) models.BulkReplaySummary {
	summary := models.BulkReplaySummary{
		TotalDecisions:     total,
		ProcessedDecisions: len(details),
	}

	var deltaSum float64
	for _, detail := range details {
		if detail.Analysis.OutcomeChanged {
			summary.OutcomeChanges++
		}
		deltaSum += detail.Analysis.ConfidenceDelta
		summary.ImpactDistribution.Add(detail.Analysis.ImpactAssessment)
	}

	if len(details) > 0 {
		summary.AverageConfidenceDelta = deltaSum / float64(len(details))
	}

	return summary
}
