package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solarops/sunforecast/pkg/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingRunner parks until released, counting entries.
type blockingRunner struct {
	entered atomic.Int32
	release chan struct{}

	mu     sync.Mutex
	cycles []time.Time
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, cycle time.Time) error {
	r.entered.Add(1)
	r.mu.Lock()
	r.cycles = append(r.cycles, cycle)
	r.mu.Unlock()
	<-r.release
	return nil
}

func newTestScheduler(t *testing.T, runner Runner, clk clock.Clock) *Scheduler {
	t.Helper()
	s, err := New(runner, clk, time.UTC, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestRunNow_SingleInstance(t *testing.T) {
	runner := newBlockingRunner()
	cycle := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, runner, clock.Fixed{Instant: cycle})

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.RunNow(context.Background(), cycle)
	}()

	// Wait for the first run to hold the flag, then collide.
	for runner.entered.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := s.RunNow(context.Background(), cycle); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second RunNow error = %v, want ErrRunInProgress", err)
	}
	if !s.Running() {
		t.Error("Running() = false while a run is in flight")
	}

	close(runner.release)
	if err := <-firstDone; err != nil {
		t.Errorf("first RunNow error = %v", err)
	}
	if got := runner.entered.Load(); got != 1 {
		t.Errorf("runner entered %d times, want 1", got)
	}
	if s.Running() {
		t.Error("Running() = true after run finished")
	}
}

func TestRunNow_QuantizesCycle(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	s := newTestScheduler(t, runner, clock.Fixed{Instant: time.Now()})

	raw := time.Date(2024, 6, 1, 12, 34, 56, 789, time.UTC)
	if err := s.RunNow(context.Background(), raw); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}

	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !runner.cycles[0].Equal(want) {
		t.Errorf("cycle = %v, want quantized %v", runner.cycles[0], want)
	}
}

func TestFire_MisfireGraceSkips(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	// Clock reads 12:02:30 when the 12:00 trigger finally fires.
	late := time.Date(2024, 6, 1, 12, 2, 30, 0, time.UTC)
	s := newTestScheduler(t, runner, clock.Fixed{Instant: late})

	s.fire()
	if got := runner.entered.Load(); got != 0 {
		t.Errorf("runner entered %d times, want 0 (past misfire grace)", got)
	}
}

func TestFire_WithinGraceRuns(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	// 45 seconds late is inside the 60s grace.
	lateButOK := time.Date(2024, 6, 1, 12, 0, 45, 0, time.UTC)
	s := newTestScheduler(t, runner, clock.Fixed{Instant: lateButOK})

	s.fire()
	if got := runner.entered.Load(); got != 1 {
		t.Fatalf("runner entered %d times, want 1", got)
	}
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !runner.cycles[0].Equal(want) {
		t.Errorf("cycle = %v, want %v", runner.cycles[0], want)
	}
}

func TestFire_OverlapDropsTrigger(t *testing.T) {
	runner := newBlockingRunner()
	onTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, runner, clock.Fixed{Instant: onTime})

	go s.fire()
	for runner.entered.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Second trigger while the first run is still going.
	s.fire()
	if got := runner.entered.Load(); got != 1 {
		t.Errorf("runner entered %d times, want 1 (overlap dropped)", got)
	}
	close(runner.release)
}

func TestStatus(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	s := newTestScheduler(t, runner, clock.Fixed{Instant: time.Now()})
	s.Start()
	defer s.Shutdown(context.Background())

	st := s.Status()
	if st.Running {
		t.Error("Running = true with no run in flight")
	}
	if len(st.Jobs) != 1 {
		t.Fatalf("len(Jobs) = %d, want 1", len(st.Jobs))
	}
	job := st.Jobs[0]
	if job.Name != "prediction_generation" {
		t.Errorf("job name = %q, want prediction_generation", job.Name)
	}
	if job.Trigger != cronExpression {
		t.Errorf("trigger = %q, want %q", job.Trigger, cronExpression)
	}
	if job.NextRun.IsZero() {
		t.Error("NextRun is zero for a started scheduler")
	}
	// Next run lands on one of the four daily boundaries.
	if h := job.NextRun.Hour(); h%6 != 0 {
		t.Errorf("NextRun hour = %d, want multiple of 6", h)
	}
	if m := job.NextRun.Minute(); m != 0 {
		t.Errorf("NextRun minute = %d, want 0", m)
	}
}

func TestShutdown_WaitsForInFlightRun(t *testing.T) {
	runner := newBlockingRunner()
	cycle := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, runner, clock.Fixed{Instant: cycle})
	s.Start()

	runDone := make(chan error, 1)
	go func() {
		runDone <- s.RunNow(context.Background(), cycle)
	}()
	for runner.entered.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- s.Shutdown(context.Background())
	}()

	// Shutdown must not report completion while the run still holds the flag.
	select {
	case err := <-shutdownDone:
		t.Fatalf("Shutdown returned %v before the in-flight run finished", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	<-runDone
	if err := <-shutdownDone; err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
