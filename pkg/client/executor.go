package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// DefaultPoolSize is the worker count of a PoolExecutor created with size 0.
const DefaultPoolSize = 16

const poolReleaseTimeout = 5 * time.Second

// Executor runs listener callbacks away from the engine goroutine.
type Executor interface {
	// Submit schedules fn. It must not block the caller for long.
	Submit(fn func())

	// Close stops the executor after the submitted callbacks have run.
	Close()
}

// InlineExecutor runs callbacks on the caller goroutine. Listeners run on
// the engine goroutine and must not call blocking Client methods.
type InlineExecutor struct{}

// Submit runs fn now.
func (InlineExecutor) Submit(fn func()) { fn() }

// Close does nothing.
func (InlineExecutor) Close() {}

// SerialExecutor runs callbacks one at a time in submission order on its
// own goroutine.
type SerialExecutor struct {
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewSerialExecutor starts a SerialExecutor.
func NewSerialExecutor(logger *slog.Logger) *SerialExecutor {
	e := &SerialExecutor{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit queues fn. Callbacks submitted after Close are dropped.
func (e *SerialExecutor) Submit(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
	e.signal()
}

// Close runs the queued callbacks and stops the goroutine.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.signal()
	<-e.done
}

func (e *SerialExecutor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *SerialExecutor) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-e.wake
			continue
		}
		for _, fn := range batch {
			runSafely(fn, e.logger)
		}
	}
}

// PoolExecutor runs callbacks on an ants goroutine pool. Callbacks may run
// concurrently and out of order.
type PoolExecutor struct {
	pool   *ants.Pool
	size   int
	logger *slog.Logger
}

// NewPoolExecutor creates a pool of size workers (DefaultPoolSize if 0).
func NewPoolExecutor(size int, logger *slog.Logger) (*PoolExecutor, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	pool, err := ants.NewPool(size,
		ants.WithPanicHandler(func(p any) {
			if logger != nil {
				logger.Error("listener panicked", "panic", p)
			}
		}),
		ants.WithMaxBlockingTasks(size*64),
	)
	if err != nil {
		return nil, fmt.Errorf("create listener pool: %w", err)
	}
	return &PoolExecutor{pool: pool, size: size, logger: logger}, nil
}

// Submit hands fn to the pool. On overload the pool grows.
func (e *PoolExecutor) Submit(fn func()) {
	err := e.pool.Submit(fn)
	switch {
	case err == nil:
	case errors.Is(err, ants.ErrPoolOverload):
		e.size += e.size / 4
		e.pool.Tune(e.size)
		if err := e.pool.Submit(fn); err != nil && e.logger != nil {
			e.logger.Warn("listener callback dropped", "error", err)
		}
	case errors.Is(err, ants.ErrPoolClosed):
		if e.logger != nil {
			e.logger.Debug("listener callback after close dropped")
		}
	default:
		if e.logger != nil {
			e.logger.Warn("listener callback dropped", "error", err)
		}
	}
}

// Close waits for running callbacks and releases the pool.
func (e *PoolExecutor) Close() {
	if err := e.pool.ReleaseTimeout(poolReleaseTimeout); err != nil && e.logger != nil {
		e.logger.Warn("listener pool release timed out", "error", err)
	}
}

func runSafely(fn func(), logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil && logger != nil {
			logger.Error("listener panicked", "panic", p)
		}
	}()
	fn()
}

var (
	_ Executor = InlineExecutor{}
	_ Executor = (*SerialExecutor)(nil)
	_ Executor = (*PoolExecutor)(nil)
)
