package timer

import (
	"sort"
	"time"
)

// ManualScheduler is a Scheduler driven by Advance. It is not safe for
// concurrent use.
type ManualScheduler struct {
	now    time.Time
	nextID ID
	timers map[ID]*Timer
}

// NewManualScheduler creates a scheduler whose clock starts at a fixed
// instant.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		now:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		timers: make(map[ID]*Timer),
	}
}

// AfterFunc arms a virtual timer.
func (s *ManualScheduler) AfterFunc(name string, d time.Duration, fn func()) ID {
	s.nextID++
	s.timers[s.nextID] = &Timer{
		ID:        s.nextID,
		Name:      name,
		StartTime: s.now,
		Duration:  d,
		fn:        fn,
	}
	return s.nextID
}

// Cancel disarms a timer.
func (s *ManualScheduler) Cancel(id ID) bool {
	if _, ok := s.timers[id]; !ok {
		return false
	}
	delete(s.timers, id)
	return true
}

// Now returns the virtual time.
func (s *ManualScheduler) Now() time.Time { return s.now }

// Advance moves the clock forward by d, running every timer that becomes
// due, in deadline order. Timers armed by a callback also fire if they fall
// within the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	end := s.now.Add(d)
	for {
		next := s.nextDue(end)
		if next == nil {
			break
		}
		delete(s.timers, next.ID)
		s.now = next.ExpiresAt()
		if next.fn != nil {
			next.fn()
		}
	}
	s.now = end
}

// Fire runs the named timer immediately regardless of its deadline. It
// returns false if no timer with that name is armed.
func (s *ManualScheduler) Fire(name string) bool {
	for _, t := range s.sorted() {
		if t.Name == name {
			delete(s.timers, t.ID)
			if t.fn != nil {
				t.fn()
			}
			return true
		}
	}
	return false
}

// Armed reports whether a timer with the given name is armed.
func (s *ManualScheduler) Armed(name string) bool {
	for _, t := range s.timers {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Names returns the names of armed timers, soonest first.
func (s *ManualScheduler) Names() []string {
	var out []string
	for _, t := range s.sorted() {
		out = append(out, t.Name)
	}
	return out
}

func (s *ManualScheduler) nextDue(end time.Time) *Timer {
	ts := s.sorted()
	if len(ts) > 0 && !ts[0].ExpiresAt().After(end) {
		return ts[0]
	}
	return nil
}

func (s *ManualScheduler) sorted() []*Timer {
	out := make([]*Timer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].ExpiresAt(), out[j].ExpiresAt()
		if ei.Equal(ej) {
			return out[i].ID < out[j].ID
		}
		return ei.Before(ej)
	})
	return out
}

var _ Scheduler = (*ManualScheduler)(nil)
