package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunsJobAtStartup(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{})

	s := NewScheduler(1)
	s.AddJob("test", time.Hour, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			close(done)
		}
		return nil
	})

	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Job should run once at startup")
	}
}

func TestScheduler_Trigger(t *testing.T) {
	var mu sync.Mutex
	runs := 0
	ran := make(chan struct{}, 8)

	s := NewScheduler(1)
	s.AddJob("poll", time.Hour, func(ctx context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		ran <- struct{}{}
		return nil
	})

	s.Start()
	defer s.Stop()

	// Wait out the startup run first.
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Startup run did not happen")
	}

	if err := s.Trigger("poll"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Triggered run did not happen")
	}

	mu.Lock()
	defer mu.Unlock()
	if runs != 2 {
		t.Errorf("Expected 2 runs, got %d", runs)
	}
}

func TestScheduler_TriggerUnknownJob(t *testing.T) {
	s := NewScheduler(1)
	s.AddJob("poll", time.Hour, func(ctx context.Context) error { return nil })

	if err := s.Trigger("nonexistent"); err == nil {
		t.Error("Triggering an unregistered job should fail")
	}
}

func TestScheduler_SurvivesPanickingJob(t *testing.T) {
	panicked := make(chan struct{})
	ran := make(chan struct{})

	s := NewScheduler(1)
	s.AddJob("bad", time.Hour, func(ctx context.Context) error {
		close(panicked)
		panic("boom")
	})
	s.AddJob("good", time.Hour, func(ctx context.Context) error {
		select {
		case <-ran:
		default:
			close(ran)
		}
		return nil
	})

	s.Start()
	defer s.Stop()

	select {
	case <-panicked:
	case <-time.After(2 * time.Second):
		t.Fatal("Panicking job never ran")
	}

	// The single worker must recover and keep processing the queue.
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Worker should survive a panicking job and run the next one")
	}
}

func TestScheduler_SurvivesFailingJob(t *testing.T) {
	var runs atomic.Int32
	second := make(chan struct{})

	s := NewScheduler(1)
	s.AddJob("flaky", time.Hour, func(ctx context.Context) error {
		if runs.Add(1) == 2 {
			close(second)
		}
		return errors.New("transient failure")
	})

	s.Start()
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := s.Trigger("flaky"); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("A failing job should still be runnable again")
	}
}

func TestScheduler_StopWaits(t *testing.T) {
	started := make(chan struct{})

	s := NewScheduler(1)
	s.AddJob("slow", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	s.Start()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Job never started")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop should cancel running jobs and return")
	}
}
