package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"holder-rewards/internal/service"
	"holder-rewards/internal/storage"
)

type recordingRunner struct {
	result service.CycleResult
	calls  chan struct{}
}

func newRecordingRunner(result service.CycleResult) *recordingRunner {
	return &recordingRunner{result: result, calls: make(chan struct{}, 16)}
}

func (r *recordingRunner) RunCycle(ctx context.Context, force bool) service.CycleResult {
	r.calls <- struct{}{}
	return r.result
}

var _ CycleRunner = (*recordingRunner)(nil)

type staticSettings struct {
	settings storage.AutoClaimSettings
	err      error
}

func (s *staticSettings) GetSettings(ctx context.Context) (storage.AutoClaimSettings, error) {
	return s.settings, s.err
}

func (s *staticSettings) UpdateSettings(ctx context.Context, settings storage.AutoClaimSettings) (storage.AutoClaimSettings, error) {
	s.settings = settings
	return settings, nil
}

func (s *staticSettings) ScheduleNextClaim(ctx context.Context, next time.Time, lastSuccess *time.Time) error {
	s.settings.NextClaimScheduled = &next
	return nil
}

var _ storage.SettingsStore = (*staticSettings)(nil)

func waitForCall(t *testing.T, runner *recordingRunner) {
	t.Helper()
	select {
	case <-runner.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("等待 tick 超时")
	}
}

func TestNewPanicsOnBadInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("non-positive poll interval must panic")
		}
	}()
	New(Options{PollInterval: 0}, nil, nil, zerolog.Nop())
}

func TestSchedulerTicksAndStops(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newRecordingRunner(service.CycleResult{Outcome: service.OutcomeCompleted})
	sched := New(Options{PollInterval: 30 * time.Second, Clock: clock}, runner, &staticSettings{}, zerolog.Nop())

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	waitForCall(t, runner)

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	waitForCall(t, runner)

	sched.Stop()
	if status := sched.Status(context.Background()); status.Running {
		t.Fatal("stopped scheduler must report running=false")
	}
}

func TestSchedulerStartTwice(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newRecordingRunner(service.CycleResult{Outcome: service.OutcomeNoOp, Reason: service.ReasonNotDue})
	sched := New(Options{PollInterval: time.Minute, Clock: clock}, runner, &staticSettings{}, zerolog.Nop())

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := sched.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start should return ErrAlreadyRunning, got %v", err)
	}
	sched.Stop()
	sched.Stop() // idempotent
}

func TestSchedulerStatusReportsSchedule(t *testing.T) {
	next := time.Now().UTC().Add(time.Hour)
	last := time.Now().UTC().Add(-time.Hour)
	settings := &staticSettings{settings: storage.AutoClaimSettings{
		NextClaimScheduled:  &next,
		LastSuccessfulClaim: &last,
	}}

	sched := New(Options{PollInterval: time.Minute, Clock: clockwork.NewFakeClock()}, nil, settings, zerolog.Nop())
	status := sched.Status(context.Background())

	if status.Running {
		t.Fatal("not started; should report running=false")
	}
	if status.NextRun == nil || !status.NextRun.Equal(next) {
		t.Fatalf("next run should come from settings, got %v", status.NextRun)
	}
	if status.LastRun == nil || !status.LastRun.Equal(last) {
		t.Fatalf("last run should fall back to last successful claim, got %v", status.LastRun)
	}
}

func TestSchedulerRecordsLastResult(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newRecordingRunner(service.CycleResult{Outcome: service.OutcomeFailed, Err: errors.New("boom")})
	sched := New(Options{PollInterval: time.Second, Clock: clock}, runner, &staticSettings{}, zerolog.Nop())

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitForCall(t, runner)
	sched.Stop()

	status := sched.Status(context.Background())
	if status.LastOutcome != service.OutcomeFailed {
		t.Fatalf("status 应记录最近一次结果, 实际 %q", status.LastOutcome)
	}
	if status.LastRun == nil {
		t.Fatal("failed cycles still count as runs")
	}
}
