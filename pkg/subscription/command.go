package subscription

import (
	"maps"
	"slices"

	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

const invalidKeyMessage = "The received key value is not a valid name for an Item"

// onCommandUpdate applies an update of a COMMAND item to the row of its key.
func (m *Manager) onCommandUpdate(it *itemState, line map[int]*string) error {
	key, cmd := line[m.keyPos], line[m.cmdPos]
	if key == nil || cmd == nil {
		return &wire.ProtocolError{Reason: "COMMAND update without key or command"}
	}
	ks := it.keys[*key]

	switch *cmd {
	case CommandAdd, CommandUpdate:
		isNew := ks == nil
		if isNew {
			ks = &keyState{name: *key}
			it.keys[*key] = ks
		}
		row := maps.Clone(ks.values)
		if row == nil {
			row = make(map[int]*string, len(line))
		}
		for p := 1; p <= m.nFields; p++ {
			if v, ok := line[p]; ok {
				row[p] = v
			} else {
				delete(row, p)
			}
		}
		op := CommandUpdate
		if isNew {
			op = CommandAdd
		}
		row[m.cmdPos] = &op

		changed := diffRows(ks.values, row)
		ks.values = row
		m.emitUpdate(it.pos, it.snapshot, row, changed)
		if isNew && m.twoLevel {
			m.startSecondLevel(it, ks)
		}

	case CommandDelete:
		var prev map[int]*string
		row := make(map[int]*string, len(line))
		for p := 1; p <= m.nFields; p++ {
			if v, ok := line[p]; ok {
				row[p] = v
			}
		}
		hadSecond := false
		if ks != nil {
			prev = ks.values
			for p := range prev {
				if p > m.nFields {
					row[p] = nil
				}
			}
			hadSecond = ks.secondFreq != nil
			m.stopSecondLevel(ks)
			delete(it.keys, *key)
		}
		m.emitUpdate(it.pos, it.snapshot, row, diffRows(prev, row))
		if hadSecond {
			m.recomputeFrequency()
		}

	default:
		return &wire.ProtocolError{Line: *cmd, Reason: "unknown COMMAND operation"}
	}
	return nil
}

func (m *Manager) startSecondLevel(it *itemState, ks *keyState) {
	if !ValidItemName(ks.name) {
		ks.invalid = true
		key := ks.name
		m.notify(func(l Listener) {
			l.OnCommandSecondLevelSubscriptionError(m.sub, ErrCodeInvalidKey, invalidKeyMessage, key)
		})
		return
	}
	child := m.reg.bindSecondLevel(m, it.pos, ks.name)
	ks.secondID = child.subID
}

func (m *Manager) stopSecondLevel(ks *keyState) {
	if ks.secondID == 0 {
		return
	}
	id := ks.secondID
	ks.secondID = 0
	ks.secondFreq = nil
	if child := m.reg.managers[id]; child != nil {
		child.unsubscribe()
	}
}

func (m *Manager) stopAllSecondLevels() {
	for _, it := range m.items {
		for _, ks := range it.keys {
			m.stopSecondLevel(ks)
		}
	}
}

// parent returns the active first-level manager of a second level.
func (m *Manager) parent() *Manager {
	p := m.reg.managers[m.parentID]
	if p == nil || p.state != StateActive {
		return nil
	}
	return p
}

// secondLevelKey returns the row fed by child, or nil if child no longer
// feeds any row.
func (m *Manager) secondLevelKey(child *Manager) *keyState {
	it := m.items[child.parentItem]
	if it == nil {
		return nil
	}
	ks := it.keys[child.parentKey]
	if ks == nil || ks.secondID != child.subID {
		return nil
	}
	return ks
}

// onSecondLevelUpdate merges second-level values after the first-level
// fields of the row.
func (m *Manager) onSecondLevelUpdate(child *Manager, values map[int]*string, snapshot bool) {
	ks := m.secondLevelKey(child)
	if ks == nil {
		return
	}
	row := maps.Clone(ks.values)
	if row == nil {
		row = make(map[int]*string, len(values))
	}
	for p, v := range values {
		row[m.nFields+p] = v
	}
	op := CommandUpdate
	row[m.cmdPos] = &op

	changed := diffRows(ks.values, row)
	ks.values = row
	m.emitUpdate(child.parentItem, snapshot, row, changed)
}

func (m *Manager) onSecondLevelError(child *Manager, err *wire.ServerError) {
	ks := m.secondLevelKey(child)
	if ks == nil {
		return
	}
	ks.secondID = 0
	key := ks.name
	m.notify(func(l Listener) {
		l.OnCommandSecondLevelSubscriptionError(m.sub, err.Code, err.Message, key)
	})
}

func (m *Manager) onSecondLevelLost(child *Manager, lost int) {
	ks := m.secondLevelKey(child)
	if ks == nil {
		return
	}
	key := ks.name
	m.notify(func(l Listener) { l.OnCommandSecondLevelItemLostUpdates(m.sub, lost, key) })
}

func (m *Manager) onSecondLevelConf(child *Manager, freq wire.Frequency) {
	ks := m.secondLevelKey(child)
	if ks == nil {
		return
	}
	ks.secondFreq = &freq
	m.recomputeFrequency()
}

func (m *Manager) onSecondLevelGone(child *Manager) {
	ks := m.secondLevelKey(child)
	if ks == nil {
		return
	}
	ks.secondID = 0
	if ks.secondFreq != nil {
		ks.secondFreq = nil
		m.recomputeFrequency()
	}
}

// diffRows lists the positions whose presence or value differs.
func diffRows(prev, next map[int]*string) []int {
	var out []int
	for p, v := range next {
		if pv, ok := prev[p]; !ok || !sameValue(pv, v) {
			out = append(out, p)
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
