package timer

import "time"

// Set keeps at most one armed timer per name on top of a Scheduler.
type Set struct {
	scheduler Scheduler
	ids       map[string]ID
}

// NewSet creates a named timer set.
func NewSet(s Scheduler) *Set {
	return &Set{scheduler: s, ids: make(map[string]ID)}
}

// Start arms the named timer, replacing any armed timer of the same name.
func (t *Set) Start(name string, d time.Duration, fn func()) {
	t.Stop(name)

	var id ID
	id = t.scheduler.AfterFunc(name, d, func() {
		if t.ids[name] == id {
			delete(t.ids, name)
		}
		fn()
	})
	t.ids[name] = id
}

// Stop cancels the named timer if armed.
func (t *Set) Stop(name string) {
	if id, ok := t.ids[name]; ok {
		t.scheduler.Cancel(id)
		delete(t.ids, name)
	}
}

// StopAll cancels every timer of the set.
func (t *Set) StopAll() {
	for name := range t.ids {
		t.Stop(name)
	}
}

// Active reports whether the named timer is armed.
func (t *Set) Active(name string) bool {
	_, ok := t.ids[name]
	return ok
}
