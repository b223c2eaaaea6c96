package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-guard/telemetry"
)

// Reconciler runs a single reconciliation cycle.
type Reconciler interface {
	ReconcileOnce(ctx context.Context) error
}

// Stats are point-in-time scheduler counters.
type Stats struct {
	Cycles        int64     `json:"cycles"`
	Failures      int64     `json:"failures"`
	SkippedTicks  int64     `json:"skipped_ticks"`
	Running       bool      `json:"running"`
	Phase         string    `json:"phase,omitempty"`
	LastRunAt     time.Time `json:"last_run_at,omitzero"`
	LastSuccessAt time.Time `json:"last_success_at,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorKind string    `json:"last_error_kind,omitempty"`
}

// Scheduler fires a Reconciler on a fixed wall-clock interval. A tick that
// arrives while the previous cycle is still running is dropped, so at most
// one cycle is ever in flight. Cycle failures are logged and the schedule
// carries on.
type Scheduler struct {
	target     Reconciler
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger

	busy     atomic.Bool
	inflight sync.WaitGroup

	cycles   atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64

	mu            sync.Mutex
	lastRunAt     time.Time
	lastSuccessAt time.Time
	lastErr       error
}

// SchedulerOption tunes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRunOnStart makes Run start a cycle immediately instead of waiting for
// the first tick.
func WithRunOnStart(v bool) SchedulerOption {
	return func(s *Scheduler) { s.runOnStart = v }
}

// NewScheduler returns a scheduler for target. interval must be positive.
func NewScheduler(target Reconciler, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		target:   target,
		interval: interval,
		logger:   slog.Default().With(slog.String("component", "guard_scheduler")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run ticks until ctx is cancelled, then waits for an in-flight cycle to
// return.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler starting", slog.Duration("interval", s.interval), slog.Bool("run_on_start", s.runOnStart))
	defer s.inflight.Wait()

	if s.runOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a cycle in the background unless one is already running. It
// reports whether a cycle was started.
func (s *Scheduler) tick(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		telemetry.IncSkippedTick()
		s.logger.Warn("previous cycle still running; tick skipped")
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.busy.Store(false)
		s.runCycle(ctx)
	}()
	return true
}

func (s *Scheduler) runCycle(ctx context.Context) {
	corr := uuid.New().String()
	ctx = telemetry.WithCorrelation(ctx, corr)
	logger := s.logger.With(slog.String("corr", corr))

	telemetry.SetCycleRunning(true)
	defer telemetry.SetCycleRunning(false)

	started := time.Now()
	logger.Info("cycle begin", slog.Time("at", started))

	var err error
	d := telemetry.TimeFunc(nil, func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cycle panicked: %v", r)
			}
		}()
		err = s.target.ReconcileOnce(ctx)
	})

	s.cycles.Add(1)
	s.mu.Lock()
	s.lastRunAt = started
	s.lastErr = err
	if err == nil {
		s.lastSuccessAt = started
	}
	s.mu.Unlock()

	if err != nil {
		s.failures.Add(1)
		class := ClassifyError(err)
		telemetry.RecordCycle(false, class.String(), d)
		logger.Error("cycle failed", slog.String("kind", class.String()), slog.Duration("duration", d), slog.Any("err", err))
		return
	}
	telemetry.RecordCycle(true, "", d)
	logger.Info("cycle end", slog.Duration("duration", d))
}

// Stats returns a snapshot of the scheduler counters. phase is reported when
// the target exposes one.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Cycles:       s.cycles.Load(),
		Failures:     s.failures.Load(),
		SkippedTicks: s.skipped.Load(),
		Running:      s.busy.Load(),
	}
	if p, ok := s.target.(interface{ Phase() Phase }); ok {
		st.Phase = p.Phase().String()
	}
	s.mu.Lock()
	st.LastRunAt = s.lastRunAt
	st.LastSuccessAt = s.lastSuccessAt
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
		st.LastErrorKind = ClassifyError(s.lastErr).String()
	}
	s.mu.Unlock()
	return st
}
