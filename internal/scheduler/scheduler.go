package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"holder-rewards/internal/metrics"
	"holder-rewards/internal/service"
	"holder-rewards/internal/storage"
)

// ErrAlreadyRunning is returned by Start when the loop is active.
var ErrAlreadyRunning = errors.New("scheduler: already running")

// CycleRunner triggers one claim cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, force bool) service.CycleResult
}

// Options tune scheduler behaviour.
type Options struct {
	PollInterval time.Duration
	StartupDelay time.Duration
	Clock        clockwork.Clock
}

// Status reports the scheduler loop state for the admin API.
type Status struct {
	Running     bool       `json:"running"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastOutcome string     `json:"lastOutcome,omitempty"`
	LastReason  string     `json:"lastReason,omitempty"`
}

// Scheduler polls the claim policy and triggers the cycle when due. Due-ness
// itself lives in the service; the loop just ticks. Start and Stop are
// explicit so tests and operators drive cycles deterministically.
type Scheduler struct {
	opts     Options
	runner   CycleRunner
	settings storage.SettingsStore
	logger   zerolog.Logger

	mu         sync.Mutex
	running    bool
	stop       chan struct{}
	done       chan struct{}
	lastRun    *time.Time
	lastResult *service.CycleResult
}

// New constructs a Scheduler instance.
func New(opts Options, runner CycleRunner, settings storage.SettingsStore, logger zerolog.Logger) *Scheduler {
	if opts.PollInterval <= 0 {
		panic("scheduler poll interval must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		opts:     opts,
		runner:   runner,
		settings: settings,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	metrics.SchedulerRunning.Set(1)
	s.logger.Info().Dur("poll_interval", s.opts.PollInterval).Msg("scheduler started")

	go s.loop(ctx, s.stop, s.done)
	return nil
}

// Stop halts the polling loop and waits for it to exit. Safe to call when
// not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Status reports loop state plus the persisted schedule timestamps.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.Lock()
	status := Status{
		Running: s.running,
		LastRun: s.lastRun,
	}
	if s.lastResult != nil {
		status.LastOutcome = s.lastResult.Outcome
		status.LastReason = s.lastResult.Reason
	}
	s.mu.Unlock()

	if s.settings != nil {
		settings, err := s.settings.GetSettings(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("unable to load settings for status")
		} else {
			status.NextRun = settings.NextClaimScheduled
			if status.LastRun == nil {
				status.LastRun = settings.LastSuccessfulClaim
			}
		}
	}
	return status
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		metrics.SchedulerRunning.Set(0)
		s.logger.Info().Msg("scheduler stopped")
		close(done)
	}()

	if s.opts.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-s.opts.Clock.After(s.opts.StartupDelay):
		}
	}

	ticker := s.opts.Clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	result := s.runner.RunCycle(ctx, false)
	now := s.opts.Clock.Now().UTC()

	s.mu.Lock()
	s.lastResult = &result
	if !(result.Outcome == service.OutcomeNoOp && (result.Reason == service.ReasonNotDue || result.Reason == service.ReasonDisabled)) {
		s.lastRun = &now
	}
	s.mu.Unlock()

	if result.Outcome == service.OutcomeFailed {
		s.logger.Error().Err(result.Err).Int64("claim_id", result.ClaimID).Msg("scheduled cycle failed")
	}
}
