// Package service provides the scoring engine's application layer: the
// orchestrator and the long-running Service the HTTP API and CLI depend on.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/racescore/internal/adapters/mq/queue"
	"github.com/okian/racescore/internal/adapters/mq/worker"
	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
	"github.com/okian/racescore/pkg/logger"
	"github.com/okian/racescore/pkg/metrics"
)

// ruleSetCache serves rule sets from the in-process registry and falls back
// to the store for versions published by another process.
type ruleSetCache struct {
	registry *rules.Registry
	store    repository.RuleSetStore
}

func (c *ruleSetCache) RuleSet(ctx context.Context, version int) (*rules.RuleSet, error) {
	if rs, err := c.registry.Get(version); err == nil {
		return rs, nil
	}
	rs, err := c.store.RuleSet(ctx, version)
	if err != nil {
		return nil, err
	}
	if err := c.registry.Publish(rs); err != nil {
		return nil, fmt.Errorf("cache rule set %d: %w", version, err)
	}
	return rs, nil
}

// Service owns the orchestrator, the async rescore queue and its workers.
type Service struct {
	mu sync.RWMutex

	store        repository.Store
	registry     *rules.Registry
	orchestrator *Orchestrator
	queue        *queue.InMemoryQueue
	pool         *worker.Pool
	cancel       context.CancelFunc

	workerCount    int
	queueSize      int
	defaultVersion int
	ruleSetsFile   string
	extraRuleSets  []*rules.RuleSet
	orchOpts       []OrchestratorOption

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of rescore workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize bounds the async rescore queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDefaultRuleSetVersion is used by requests that name no version.
func WithDefaultRuleSetVersion(v int) Option {
	return func(s *Service) {
		if v > 0 {
			s.defaultVersion = v
		}
	}
}

// WithRuleSetsFile publishes the rule sets in a YAML file on Start.
func WithRuleSetsFile(path string) Option {
	return func(s *Service) { s.ruleSetsFile = path }
}

// WithRuleSets publishes extra rule sets on Start.
func WithRuleSets(sets ...*rules.RuleSet) Option {
	return func(s *Service) { s.extraRuleSets = append(s.extraRuleSets, sets...) }
}

// WithOrchestratorOptions passes options through to the orchestrator.
func WithOrchestratorOptions(opts ...OrchestratorOption) Option {
	return func(s *Service) { s.orchOpts = append(s.orchOpts, opts...) }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store. Nothing runs until Start.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		workerCount:    runtime.NumCPU(),
		queueSize:      1024,
		defaultVersion: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start publishes the rule sets and starts the rescore workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting scoring service...")

	if err := s.publishRuleSets(ctx); err != nil {
		return err
	}

	s.orchestrator = NewOrchestrator(s.store, &ruleSetCache{registry: s.registry, store: s.store}, s.store,
		append([]OrchestratorOption{WithOrchestratorLogger(s.logger.Named("orchestrator"))}, s.orchOpts...)...)

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.orchestrator)

	// workers outlive the request that started the service
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Any("rule_set_versions", s.registry.Versions()),
	)
	return nil
}

func (s *Service) publishRuleSets(ctx context.Context) error {
	sets := append(rules.Builtin(), s.extraRuleSets...)
	if s.ruleSetsFile != "" {
		fromFile, err := rules.LoadFile(s.ruleSetsFile)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		sets = append(sets, fromFile...)
	}

	reg, err := rules.NewRegistry(sets...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	for _, rs := range sets {
		if err := s.store.PublishRuleSet(ctx, rs); err != nil {
			return fmt.Errorf("publish rule set %d: %w", rs.Version(), err)
		}
	}
	s.registry = reg
	metrics.UpdateRuleSetsPublished(len(reg.Versions()))
	return nil
}

// Stop drains the queue and waits for in-flight runs.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping scoring service...")

	err := s.pool.Shutdown(ctx)
	s.cancel()
	s.started = false

	if err != nil {
		s.logger.Error(ctx, "scoring service stopped with error", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "scoring service stopped",
		logger.Int64("processed", s.pool.Processed()),
		logger.Int64("failed", s.pool.Failed()),
	)
	return nil
}

func (s *Service) running() (*Orchestrator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.orchestrator, nil
}

func (s *Service) version(v int) int {
	if v <= 0 {
		return s.defaultVersion
	}
	return v
}

// DefaultRuleSetVersion is the version used when a request names none.
func (s *Service) DefaultRuleSetVersion() int { return s.defaultVersion }

// ScoreRace runs the pipeline synchronously. A zero version selects the default.
func (s *Service) ScoreRace(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) error {
	_, err := s.ScoreNow(ctx, gameID, raceID, ruleSetVersion)
	return err
}

// ScoreNow runs the pipeline synchronously and returns the run report.
func (s *Service) ScoreNow(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) (Report, error) {
	o, err := s.running()
	if err != nil {
		return Report{}, err
	}
	return o.Run(ctx, gameID, raceID, s.version(ruleSetVersion))
}

// ScoreAsync queues a run and returns the request id.
func (s *Service) ScoreAsync(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) (string, error) {
	if _, err := s.running(); err != nil {
		return "", err
	}
	r := queue.Request{
		ID:             uuid.NewString(),
		GameID:         gameID,
		RaceID:         raceID,
		RuleSetVersion: s.version(ruleSetVersion),
		EnqueuedAt:     time.Now(),
	}
	if err := s.queue.Enqueue(ctx, r); err != nil {
		switch {
		case errors.Is(err, queue.ErrFull):
			return "", fmt.Errorf("%w: %d pending", ErrQueueFull, s.queue.Len())
		case errors.Is(err, queue.ErrClosed):
			return "", ErrNotStarted
		default:
			return "", err
		}
	}
	s.logger.Debug(ctx, "score request queued",
		logger.String("request_id", r.ID),
		logger.String("game_id", string(gameID)),
	)
	return r.ID, nil
}

// Results returns the persisted rows of a game in display order.
// Unknown games are configuration errors.
func (s *Service) Results(ctx context.Context, gameID model.GameID) ([]repository.ScoredRow, error) {
	if _, err := s.store.Game(ctx, gameID); err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, configurationError("%w", err)
		}
		return nil, err
	}
	return s.store.Scores(ctx, gameID)
}

// RuleSets lists every published rule set, ascending by version.
func (s *Service) RuleSets(ctx context.Context) ([]*rules.RuleSet, error) {
	return s.store.RuleSets(ctx)
}

// RuleSet returns one published rule set.
func (s *Service) RuleSet(ctx context.Context, version int) (*rules.RuleSet, error) {
	rs, err := s.store.RuleSet(ctx, version)
	if errors.Is(err, repository.ErrRuleSetNotFound) {
		return nil, configurationError("%w", err)
	}
	return rs, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":               s.started,
		"workerCount":           s.workerCount,
		"queueSize":             s.queueSize,
		"defaultRuleSetVersion": s.defaultVersion,
	}
	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		stats["ruleSetVersions"] = s.registry.Versions()
	}
	return stats
}

// RefreshMetrics pushes the current queue depth to the gauges.
func (s *Service) RefreshMetrics() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return
	}
	metrics.UpdateQueueSize(s.queue.Len())
}
