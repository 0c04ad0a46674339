// Package executor provides a single goroutine that runs posted tasks in
// order. A camera session owns one; every driver callback and every state
// mutation of the session runs on it.
package executor

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Executor runs tasks one at a time in the order they were posted.
type Executor struct {
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	queue    []func()
	stopping bool
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts an executor. name shows up in logs.
func New(name string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		name:   name,
		logger: logger.With("executor", name),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go e.loop()
	return e
}

// Post queues fn. It returns false when the executor is stopping or stopped;
// fn is then never run.
func (e *Executor) Post(fn func()) bool {
	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits for it to return. It returns an error when the
// executor no longer accepts tasks. Calling it from a task deadlocks.
func (e *Executor) Call(fn func()) error {
	ran := make(chan struct{})
	if !e.Post(func() {
		defer close(ran)
		fn()
	}) {
		return fmt.Errorf("executor %s stopped", e.name)
	}
	<-ran
	return nil
}

// Stop rejects further posts. Tasks already queued still run; Done is closed
// after the last one returns. Stop does not wait and is safe to call from a
// task.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopping = true
		e.mu.Unlock()

		select {
		case e.wake <- struct{}{}:
		default:
		}
	})
}

// Done is closed once the executor has stopped and drained its queue.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

// Stopped reports whether Stop has been called.
func (e *Executor) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}

func (e *Executor) loop() {
	defer close(e.done)

	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		stopping := e.stopping
		e.mu.Unlock()

		for _, fn := range batch {
			e.run(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if stopping {
			e.logger.Debug("Executor stopped")
			return
		}
		<-e.wake
	}
}

func (e *Executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
