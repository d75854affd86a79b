package client

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSerialExecutor_Order tests that callbacks run in submission order
// and that Close drains the queue.
func TestSerialExecutor_Order(t *testing.T) {
	e := NewSerialExecutor(nil)
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		e.Submit(func() { got = append(got, i) })
	}
	e.Close()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}

	// Dropped after Close, and Close is idempotent.
	e.Submit(func() { got = append(got, -1) })
	e.Close()
	assert.Len(t, got, 100)
}

// TestSerialExecutor_Panic tests that a panicking callback does not stop
// the executor.
func TestSerialExecutor_Panic(t *testing.T) {
	e := NewSerialExecutor(nil)
	ran := false
	e.Submit(func() { panic("boom") })
	e.Submit(func() { ran = true })
	e.Close()
	assert.True(t, ran)
}

// TestPoolExecutor tests that every callback runs.
func TestPoolExecutor(t *testing.T) {
	e, err := NewPoolExecutor(4, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var n atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		e.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	e.Close()
	assert.Equal(t, int32(50), n.Load())

	// Submitting to a released pool is dropped, not a panic.
	e.Submit(func() { n.Add(1) })
	assert.Equal(t, int32(50), n.Load())
}

// TestInlineExecutor tests synchronous execution.
func TestInlineExecutor(t *testing.T) {
	ran := false
	InlineExecutor{}.Submit(func() { ran = true })
	assert.True(t, ran)
}

// TestLoop_PanicIsRaised tests that a panicking engine task is not
// swallowed, and that the after hook does not run for it.
func TestLoop_PanicIsRaised(t *testing.T) {
	l := newLoop(slog.New(slog.NewTextHandler(io.Discard, nil)))
	afters := 0
	l.after = func() { afters++ }

	assert.PanicsWithValue(t, "boom", func() { l.exec(func() { panic("boom") }) })
	assert.Zero(t, afters)

	l.exec(func() {})
	assert.Equal(t, 1, afters)
}

// TestLoop tests FIFO execution, the after hook and stop.
func TestLoop(t *testing.T) {
	l := newLoop(nil)
	var got []string
	l.after = func() { got = append(got, "after") }
	l.start()

	l.post(func() { got = append(got, "a") })
	require.True(t, l.call(func() { got = append(got, "b") }))
	assert.Equal(t, []string{"a", "after", "b", "after"}, got)

	l.stop()
	assert.False(t, l.call(func() {}))
	assert.False(t, l.tryPost(func() {}))
}
