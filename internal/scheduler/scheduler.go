// Package scheduler drives periodic generation and sync passes:
// sync on an interval, generation daily at a configured wall-clock
// time, plus manual triggers. A trigger arriving while the same pass
// is running is dropped rather than queued; the next scheduled run
// covers whatever the dropped trigger would have done, because both
// passes are idempotent.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"expense-reconciliation-engine/internal/generator"
	"expense-reconciliation-engine/internal/reconciler"
	"expense-reconciliation-engine/pkg/errors"
	"expense-reconciliation-engine/pkg/logger"
)

const (
	passSync     = "sync"
	passGenerate = "generate"
)

// Config holds scheduler cadences.
type Config struct {
	// SyncInterval is the period between sync passes.
	SyncInterval time.Duration `json:"sync_interval"`
	// GenerateAt is the daily wall-clock time ("HH:MM") for the
	// generation pass.
	GenerateAt string `json:"generate_at"`
}

// DefaultConfig returns the default cadences.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 15 * time.Minute,
		GenerateAt:   "06:00",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SyncInterval < time.Minute {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sync_interval", c.SyncInterval, nil).
			WithSuggestion("use an interval of at least one minute")
	}
	if _, err := ParseScheduleTime(c.GenerateAt); err != nil {
		return err
	}
	return nil
}

// Scheduler owns the pass loops and the re-entrancy guards.
type Scheduler struct {
	generator  *generator.Generator
	reconciler *reconciler.Reconciler
	config     *Config
	generateAt ScheduleTime
	metrics    *Metrics
	logger     logger.Logger

	// Per-pass guards: TryLock makes a busy trigger a drop, never a
	// queue.
	syncMu     sync.Mutex
	generateMu sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Scheduler. A nil metrics registers on the default
// prometheus registerer.
func New(gen *generator.Generator, rec *reconciler.Reconciler, config *Config, metrics *Metrics, log logger.Logger) (*Scheduler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	generateAt, err := ParseScheduleTime(config.GenerateAt)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Scheduler{
		generator:  gen,
		reconciler: rec,
		config:     config,
		generateAt: generateAt,
		metrics:    metrics,
		logger:     log.WithComponent("scheduler"),
	}, nil
}

// Start launches the pass loops. It returns immediately; Stop shuts
// them down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.syncLoop(ctx)
	go s.generateLoop(ctx)

	s.logger.WithFields(logger.Fields{
		"sync_interval": s.config.SyncInterval.String(),
		"generate_at":   s.generateAt.String(),
	}).Info("scheduler started")
}

// Stop cancels the loops and waits up to timeout for in-flight passes
// to finish. A pass cut short leaves partially synced accounts; the
// next run picks them up because ingestion is idempotent.
func (s *Scheduler) Stop(timeout time.Duration) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		return errors.InternalError(errors.CodeUnexpectedError, "scheduler shutdown", nil).
			WithSuggestion("a pass exceeded the shutdown timeout; its work resumes next start")
	}
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.TriggerSync(ctx); err != nil && !errors.IsCode(err, errors.CodeSyncBusy) {
				s.logger.WithError(err).Error("scheduled sync pass failed")
			}
		}
	}
}

func (s *Scheduler) generateLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.generateAt.NextAfter(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.TriggerGenerate(ctx); err != nil && !errors.IsCode(err, errors.CodeSyncBusy) {
				s.logger.WithError(err).Error("scheduled generation pass failed")
			}
		}
	}
}

// TriggerSync runs a sync pass now, unless one is already running, in
// which case the trigger is dropped with a busy error.
func (s *Scheduler) TriggerSync(ctx context.Context) (*reconciler.SyncResult, error) {
	if !s.syncMu.TryLock() {
		s.metrics.DroppedTriggers.WithLabelValues(passSync).Inc()
		s.logger.Warn("sync trigger dropped: pass already running")
		return nil, errors.ReconciliationError(errors.CodeSyncBusy, passSync, nil)
	}
	defer s.syncMu.Unlock()

	start := time.Now()
	result, err := s.reconciler.Sync(ctx, reconciler.SyncRequest{})
	s.metrics.PassDuration.WithLabelValues(passSync).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	s.metrics.TransactionsIngested.Add(float64(result.New))
	s.metrics.SyncAccountErrors.Add(float64(len(result.Errors)))

	return result, nil
}

// TriggerGenerate runs a generation pass now, unless one is already
// running, in which case the trigger is dropped with a busy error.
func (s *Scheduler) TriggerGenerate(ctx context.Context) (*generator.Result, error) {
	if !s.generateMu.TryLock() {
		s.metrics.DroppedTriggers.WithLabelValues(passGenerate).Inc()
		s.logger.Warn("generate trigger dropped: pass already running")
		return nil, errors.ReconciliationError(errors.CodeSyncBusy, passGenerate, nil)
	}
	defer s.generateMu.Unlock()

	start := time.Now()
	result, err := s.generator.Generate(ctx, generator.Request{MonthsBack: -1, MonthsForward: -1})
	s.metrics.PassDuration.WithLabelValues(passGenerate).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	s.metrics.InstancesCreated.Add(float64(result.Created))

	return result, nil
}
