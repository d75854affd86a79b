package client

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// loop is the engine goroutine. Every change to engine state runs as a
// closure posted here, in FIFO order.
type loop struct {
	logger *slog.Logger

	// after runs once after every closure.
	after func()

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newLoop(logger *slog.Logger) *loop {
	return &loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (l *loop) start() {
	go l.run()
}

// post queues fn. Closures posted after stop are dropped.
func (l *loop) post(fn func()) {
	l.tryPost(fn)
}

func (l *loop) tryPost(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the loop and waits for it. It must not be called from
// the loop itself.
func (l *loop) call(fn func()) bool {
	done := make(chan struct{})
	if !l.tryPost(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	<-done
	return true
}

// stop drains the queue and ends the goroutine.
func (l *loop) stop() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	l.mu.Unlock()
	<-l.done
}

func (l *loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-l.wake
			continue
		}
		for _, fn := range batch {
			l.exec(fn)
		}
	}
}

// exec runs fn and the after hook. A panic means engine state is broken:
// it is logged with its stack and raised again.
func (l *loop) exec(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			if l.logger != nil {
				l.logger.Error("engine task panicked", "panic", p, "stack", string(debug.Stack()))
			}
			panic(p)
		}
	}()
	fn()
	if l.after != nil {
		l.after()
	}
}
