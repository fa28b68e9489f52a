// Package schedule drives the prediction pipeline on a fixed cron cadence:
// 00:00, 06:00, 12:00 and 18:00 local time.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/solarops/sunforecast/pkg/clock"
)

const (
	// jobName identifies the pipeline job in status output and logs.
	jobName = "prediction_generation"

	// cronExpression fires at the four daily cycle boundaries.
	cronExpression = "0 0,6,12,18 * * *"

	// misfireGrace is how late a trigger may fire and still run. A
	// scheduler that catches up later than this skips the cycle.
	misfireGrace = 60 * time.Second
)

// ErrRunInProgress is returned when a manual trigger overlaps the running
// pipeline.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Runner executes one prediction cycle.
type Runner interface {
	Run(ctx context.Context, cycle time.Time) error
}

// JobStatus describes one scheduled job for the status probe.
type JobStatus struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	Trigger string    `json:"trigger"`
	Pending bool      `json:"pending"`
}

// Status is the scheduler half of the service status probe.
type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// Scheduler owns the cron job and the single-instance discipline: at most
// one pipeline run executes at a time, whether cron-triggered or manual.
type Scheduler struct {
	sched  gocron.Scheduler
	runner Runner
	clk    clock.Clock
	logger *slog.Logger

	// running guards the single pipeline instance. Overlapping triggers
	// are dropped, not queued.
	running atomic.Bool
}

// New builds the scheduler with its cron job registered but not started.
func New(runner Runner, clk clock.Clock, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	inner, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		sched:  inner,
		runner: runner,
		clk:    clk,
		logger: logger,
	}

	_, err = inner.NewJob(
		gocron.CronJob(cronExpression, false),
		gocron.NewTask(s.fire),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("register %s job: %w", jobName, err)
	}
	return s, nil
}

// Start begins firing cron triggers.
func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info("scheduler started", "job", jobName, "cron", cronExpression)
}

// fire is the cron entry point. It quantizes the trigger instant to the
// hour, applies the misfire grace and enforces the single-instance rule.
func (s *Scheduler) fire() {
	now := s.clk.Now()
	cycle := clock.Quantize(now)

	if late := now.Sub(cycle); late > misfireGrace {
		s.logger.Warn("trigger fired past misfire grace, skipping cycle",
			"cycle", cycle, "late", late)
		return
	}

	if err := s.runGuarded(context.Background(), cycle); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Warn("skipped, max_instances", "cycle", cycle)
			return
		}
		s.logger.Error("pipeline run failed", "cycle", cycle, "error", err)
	}
}

// RunNow executes the pipeline immediately for an explicit cycle start.
// Used by the manual generation endpoint; the single-instance rule applies.
func (s *Scheduler) RunNow(ctx context.Context, cycle time.Time) error {
	return s.runGuarded(ctx, clock.Quantize(cycle))
}

func (s *Scheduler) runGuarded(ctx context.Context, cycle time.Time) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.runner.Run(ctx, cycle)
}

// Running reports whether a pipeline run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Status reports the scheduler probe: whether a run is in flight and the
// registered jobs with their next fire times.
func (s *Scheduler) Status() Status {
	st := Status{Running: s.running.Load()}
	for _, job := range s.sched.Jobs() {
		next, err := job.NextRun()
		js := JobStatus{
			ID:      job.ID().String(),
			Name:    job.Name(),
			Trigger: cronExpression,
			Pending: err == nil && !next.IsZero(),
		}
		if err == nil {
			js.NextRun = next
		}
		st.Jobs = append(st.Jobs, js)
	}
	return st
}

// Shutdown stops accepting triggers and waits for the in-flight run to
// finish, or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- s.sched.Shutdown()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("scheduler shutdown: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}

	// gocron releases jobs before the task returns in rare paths; make
	// sure the run flag has cleared before persistence is closed.
	for s.running.Load() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
	s.logger.Info("scheduler stopped")
	return nil
}
