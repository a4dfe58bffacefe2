// Package scheduler runs the periodic sweeps (pending-request reconciliation
// and retention purges) on their own tickers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"circulation-workers/internal/common/logger"
)

// Job is one periodic sweep.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Recorder receives the outcome of every run.
type Recorder interface {
	RecordRun(ctx context.Context, sweep, status string, duration time.Duration)
}

// Scheduler runs each job in its own goroutine. A job's runs never overlap:
// ticks that fire while a run is in progress are dropped.
type Scheduler struct {
	jobs     []Job
	recorder Recorder
	logger   logger.Logger
	wg       sync.WaitGroup
}

func New(recorder Recorder, log logger.Logger) *Scheduler {
	return &Scheduler{
		recorder: recorder,
		logger:   log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Run starts all jobs and blocks until ctx is cancelled and every in-flight
// run has returned.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			return fmt.Errorf("scheduler: job %q needs an interval and a run function", job.Name)
		}
	}

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info("scheduler started", map[string]interface{}{"jobs": len(s.jobs)})

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", nil)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if job.RunOnStart {
		s.runOnce(ctx, job)
	}
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			s.logger.Error("sweep panicked", map[string]interface{}{
				"sweep": job.Name,
				"panic": r,
			})
		}
		if s.recorder != nil {
			s.recorder.RecordRun(ctx, job.Name, status, time.Since(start))
		}
	}()

	if err := job.Run(ctx); err != nil {
		status = "error"
		s.logger.Error("sweep failed", map[string]interface{}{
			"sweep": job.Name,
			"error": err.Error(),
		})
		return
	}
	s.logger.Debug("sweep completed", map[string]interface{}{
		"sweep":       job.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
