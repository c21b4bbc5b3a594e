// Package tasks runs the periodic jobs (poll, send, sync, cleanup) on a
// fixed worker pool. Every job invocation is wrapped so that a panic or
// error is reported and the scheduler keeps running; there is no retry
// machinery, the next tick is the retry.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type JobFunc func(ctx context.Context) error

type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

type Scheduler struct {
	jobs        []Job
	workerCount int
	jobTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	queue  chan Job
}

func NewScheduler(workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		workerCount: workerCount,
		jobTimeout:  30 * time.Minute,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan Job, 16),
	}
}

// AddJob registers a job to run once at startup and then on every tick of
// its interval. Must be called before Start.
func (s *Scheduler) AddJob(name string, interval time.Duration, run JobFunc) {
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.tick(job)
	}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Trigger enqueues a registered job out of schedule.
func (s *Scheduler) Trigger(name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.enqueue(job)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) enqueue(job Job) error {
	select {
	case s.queue <- job:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("job queue is full")
	}
}

func (s *Scheduler) tick(job Job) {
	defer s.wg.Done()

	if err := s.enqueue(job); err != nil {
		slog.Warn("Failed to enqueue startup job", "job", job.Name, "error", err)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.enqueue(job); err != nil {
				slog.Warn("Failed to enqueue job", "job", job.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.queue:
			s.execute(id, job)
		}
	}
}

// execute runs one job invocation, reporting errors and recovering
// panics so a misbehaving job never takes the worker down.
func (s *Scheduler) execute(workerID int, job Job) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Job panicked", "worker_id", workerID, "job", job.Name, "duration", time.Since(started).String(), "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()

	if err := job.Run(ctx); err != nil {
		slog.Error("Job failed", "worker_id", workerID, "job", job.Name, "duration", time.Since(started).String(), "error", err)
		return
	}

	slog.Debug("Job finished", "worker_id", workerID, "job", job.Name, "duration", time.Since(started).String())
}
