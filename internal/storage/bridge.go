package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// job is one unit of work scheduled onto the background worker. Every job
// carries its own buffered reply channel, so concurrent submitters never
// share a completion signal.
type job struct {
	run   func(ctx context.Context) (any, error)
	reply chan jobResult
}

type jobResult struct {
	value any
	err   error
}

// executor owns the singleton background dispatcher that accepts all
// database operations. Synchronous callers submit a closure and block until
// it has finished. Each accepted job runs on its own goroutine, so
// independent operations interleave; actual parallelism is bounded by the
// pool's connection limits, not by the dispatcher.
type executor struct {
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	jobs   chan job
	quit   chan struct{}
	dead   chan struct{} // closed when the current dispatcher exits
	starts int           // dispatchers started, read by tests
}

func newExecutor(timeout time.Duration, logger *slog.Logger) *executor {
	return &executor{timeout: timeout, logger: logger}
}

// ensure returns the live dispatcher's channels, starting a new one if none
// exists or the previous one has exited. Double-checked under the mutex so
// concurrent first-callers start exactly one dispatcher.
func (e *executor) ensure() (chan job, chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.jobs != nil {
		select {
		case <-e.dead:
			// fall through and replace the dead worker
		default:
			return e.jobs, e.dead
		}
	}

	jobs := make(chan job)
	quit := make(chan struct{})
	dead := make(chan struct{})
	go e.work(jobs, quit, dead)

	e.jobs = jobs
	e.quit = quit
	e.dead = dead
	e.starts++
	return jobs, dead
}

func (e *executor) work(jobs chan job, quit, dead chan struct{}) {
	defer close(dead)
	for {
		select {
		case j := <-jobs:
			// Run off the dispatch loop so a slow operation never
			// delays unrelated submitters.
			go func(j job) {
				j.reply <- e.runOne(j.run)
			}(j)
		case <-quit:
			return
		}
	}
}

func (e *executor) runOne(run func(context.Context) (any, error)) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("storage operation panicked", "panic", r)
			res = jobResult{err: fmt.Errorf("storage operation panicked: %v", r)}
		}
	}()

	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	value, err := run(ctx)
	return jobResult{value: value, err: err}
}

// submit schedules op and blocks the calling goroutine until the operation
// completes, returning its result or failure. There is no cancellation: once
// accepted, the operation runs to the end (bounded by the per-statement
// timeout).
func (e *executor) submit(op func(ctx context.Context) (any, error)) (any, error) {
	j := job{run: op, reply: make(chan jobResult, 1)}
	for {
		jobs, dead := e.ensure()
		select {
		case jobs <- j:
			r := <-j.reply
			return r.value, r.err
		case <-dead:
			// Worker went away between ensure and send; retry with a
			// fresh one.
		}
	}
}

// stop terminates the current dispatcher. In-flight operations still finish
// and reply. A later submit starts a new dispatcher.
func (e *executor) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quit != nil {
		close(e.quit)
		e.jobs = nil
		e.quit = nil
	}
}
