// Package jobs runs periodic maintenance tasks next to the HTTP server.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/docsage/internal/logger"
)

const (
	defaultPollInterval = 30 * time.Second

	// failureStreakAlert is the number of consecutive failed runs after which
	// failures are logged as errors rather than warnings.
	failureStreakAlert = 3
)

// Task is one unit of periodic work.
type Task interface {
	Run(ctx context.Context) error
}

// Worker runs a Task on a fixed interval until its context ends or Stop is
// called. Each run gets at most one interval to finish.
type Worker struct {
	name     string
	task     Task
	interval time.Duration
	log      *logger.Logger

	started  atomic.Bool
	failures int
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewWorker(name string, task Task, interval time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Worker{
		name:     name,
		task:     task,
		interval: interval,
		log:      log.With("worker", name),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks running the task every interval.
func (w *Worker) Start(ctx context.Context) {
	w.started.Store(true)
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("worker started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped", "reason", "context done")
			return
		case <-w.stop:
			w.log.Info("worker stopped", "reason", "stop requested")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop ends the loop and waits for a running task to return. It may be
// called more than once, and before Start.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

func (w *Worker) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	if err := w.runTask(runCtx); err != nil {
		w.failures++
		if w.failures >= failureStreakAlert {
			w.log.Error("task failed", "error", err, "consecutive_failures", w.failures)
		} else {
			w.log.Warn("task failed", "error", err)
		}
		return
	}
	if w.failures > 0 {
		w.log.Info("task recovered", "after_failures", w.failures)
		w.failures = 0
	}
}

func (w *Worker) runTask(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return w.task.Run(ctx)
}
