package timer

import (
	"sort"
	"sync"
	"time"
)

// ID identifies an armed timer.
type ID uint64

// Scheduler arms one-shot timers.
type Scheduler interface {
	// AfterFunc runs fn after d. name is used for logging and inspection.
	AfterFunc(name string, d time.Duration, fn func()) ID

	// Cancel disarms a timer. It returns false if the timer already ran or
	// was cancelled.
	Cancel(id ID) bool
}

// Timer describes an armed timer.
type Timer struct {
	// ID identifies this timer
	ID ID

	// Name is the purpose of the timer (e.g. "stalled")
	Name string

	// StartTime is when the timer was armed
	StartTime time.Time

	// Duration is the delay before expiry
	Duration time.Duration

	fn    func()
	timer *time.Timer
}

// ExpiresAt returns when the timer will expire.
func (t *Timer) ExpiresAt() time.Time {
	return t.StartTime.Add(t.Duration)
}

// Manager is the real-time Scheduler.
type Manager struct {
	mu sync.Mutex

	// post delivers expired callbacks to the event loop
	post func(func())

	nextID ID
	timers map[ID]*Timer
}

// NewManager creates a Manager. Expired callbacks are passed to post; a nil
// post runs them on the timer goroutine.
func NewManager(post func(func())) *Manager {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Manager{
		post:   post,
		timers: make(map[ID]*Timer),
	}
}

// AfterFunc arms a timer.
func (m *Manager) AfterFunc(name string, d time.Duration, fn func()) ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	t := &Timer{
		ID:        id,
		Name:      name,
		StartTime: time.Now(),
		Duration:  d,
		fn:        fn,
	}
	t.timer = time.AfterFunc(d, func() {
		m.post(func() { m.fire(id) })
	})
	m.timers[id] = t
	return id
}

// fire runs on the event loop; a timer cancelled in the meantime is gone
// from the map and does nothing.
func (m *Manager) fire(id ID) {
	m.mu.Lock()
	t, ok := m.timers[id]
	if ok {
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if ok && t.fn != nil {
		t.fn()
	}
}

// Cancel disarms a timer.
func (m *Manager) Cancel(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[id]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(m.timers, id)
	return true
}

// CancelAll disarms every timer.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.timers {
		t.timer.Stop()
		delete(m.timers, id)
	}
}

// Count returns the number of armed timers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Pending returns a copy of the armed timers, soonest first.
func (m *Manager) Pending() []Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Timer, 0, len(m.timers))
	for _, t := range m.timers {
		out = append(out, Timer{ID: t.ID, Name: t.Name, StartTime: t.StartTime, Duration: t.Duration})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt().Before(out[j].ExpiresAt()) })
	return out
}

var _ Scheduler = (*Manager)(nil)
