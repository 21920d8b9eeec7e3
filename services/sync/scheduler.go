package sync

import (
	"context"
	"fmt"
	"log/slog"

	rcron "github.com/robfig/cron/v3"
)

// Scheduler is the single periodic driver that owns SyncAll. Concurrent full
// syncs are last-writer-wins, so exactly one scheduler should run per rule
// store; on-demand post-edit updates go through SyncOne directly and are
// safe alongside it.
type Scheduler struct {
	cron         *rcron.Cron
	reconciler   *Reconciler
	errorHandler func(error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithErrorHandler overrides the handler invoked when a scheduled sync
// fails. The default logs the error.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		if handler != nil {
			s.errorHandler = handler
		}
	}
}

// NewScheduler creates a Scheduler for the given reconciler.
func NewScheduler(reconciler *Reconciler, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:       rcron.New(),
		reconciler: reconciler,
		errorHandler: func(err error) {
			slog.Error("scheduled sync failed", "error", err)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Schedule registers a recurring SyncAll under the given cron expression
// (standard five-field syntax or @every descriptors).
func (s *Scheduler) Schedule(expression string) error {
	_, err := s.cron.AddJob(expression, rcron.FuncJob(func() {
		result, err := s.reconciler.SyncAll(context.Background())
		if err != nil {
			s.errorHandler(err)
			return
		}
		slog.Debug("scheduled sync completed", "ruleCount", result.RuleCount)
	}))
	if err != nil {
		return fmt.Errorf("failed to add sync job: %w", err)
	}
	return nil
}

// Start begins executing scheduled syncs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for an in-flight sync to finish, or for
// the context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
