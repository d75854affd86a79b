package subscription

import (
	"fmt"
	"strconv"

	"github.com/tlcp-protocol/tlcp-go/pkg/control"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// State is the state of a Manager.
type State uint8

const (
	// StateInactive: not bound, or finished.
	StateInactive State = iota
	// StatePendingAdd: add queued or sent, no answer yet.
	StatePendingAdd
	// StateAddAcked: the add was acknowledged but SUBOK has not arrived.
	StateAddAcked
	// StateActive: SUBOK or SUBCMD received.
	StateActive
	// StateUnsubscribing: delete sent.
	StateUnsubscribing
	// StateAborted: the session ended under the binding.
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StatePendingAdd:
		return "PENDING_ADD"
	case StateAddAcked:
		return "ADD_ACKED"
	case StateActive:
		return "ACTIVE"
	case StateUnsubscribing:
		return "UNSUBSCRIBING"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Manager binds a Subscription to one subId for one session.
type Manager struct {
	reg   *Registry
	sub   *Subscription
	subID int
	state State

	addReq    *control.Request
	delReq    *control.Request
	reconfReq *control.Request

	nItems   int
	nFields  int
	keyPos   int
	cmdPos   int
	twoLevel bool
	snapshot bool
	names    []string
	items    map[int]*itemState

	// notified is set once OnSubscription was delivered.
	notified bool

	firstFreq    *wire.Frequency
	reportedFreq *wire.Frequency

	// Set on second-level managers only.
	parentID   int
	parentItem int
	parentKey  string
}

// itemState is the last known values of one item.
type itemState struct {
	pos      int
	values   map[int]*string
	snapshot bool

	// keys holds the rows of a COMMAND item.
	keys map[string]*keyState
}

// keyState is one row of a COMMAND item.
type keyState struct {
	name    string
	values  map[int]*string
	invalid bool

	secondID   int
	secondFreq *wire.Frequency
}

var _ control.Handler = (*Manager)(nil)

func newManager(reg *Registry, sub *Subscription, subID int) *Manager {
	return &Manager{
		reg:   reg,
		sub:   sub,
		subID: subID,
		items: make(map[int]*itemState),
	}
}

// SubID returns the subId of the binding.
func (m *Manager) SubID() int { return m.subID }

// State returns the manager state.
func (m *Manager) State() State { return m.state }

// Subscription returns the bound subscription.
func (m *Manager) Subscription() *Subscription { return m.sub }

func (m *Manager) isSecondLevel() bool { return m.parentID != 0 }

func (m *Manager) isCommand() bool { return m.keyPos > 0 && m.cmdPos > 0 }

func (m *Manager) setState(state State, reason string) {
	if m.state == state {
		return
	}
	old := m.state
	m.state = state
	m.reg.debugLog("subscription state changed", "subId", m.subID, "from", old, "to", state, "reason", reason)
	m.reg.rec.State(log.StateEntitySubscription, strconv.Itoa(m.subID), old.String(), state.String(), reason)
}

func (m *Manager) enqueue(req *control.Request) {
	if err := m.reg.ctrl.Enqueue(req); err != nil {
		m.reg.logError("failed to enqueue subscription request", "subId", m.subID, "op", req.Op, "error", err)
	}
}

func (m *Manager) sendAdd() {
	m.addReq = &control.Request{
		Op:     wire.OpAdd,
		Params: m.sub.addParams(m.subID),
		NoAck:  true,
		Owner:  m,
	}
	m.enqueue(m.addReq)
	m.setState(StatePendingAdd, "")
}

// OnReqOK implements control.Handler.
func (m *Manager) OnReqOK(req *control.Request) {
	switch req {
	case m.addReq:
		if m.state == StatePendingAdd {
			m.setState(StateAddAcked, "")
		}
	case m.delReq:
		if m.state == StateUnsubscribing {
			m.finalize(false)
		}
	}
}

// OnReqErr implements control.Handler.
func (m *Manager) OnReqErr(req *control.Request, err *wire.ServerError) {
	switch req {
	case m.addReq:
		m.fail(err)
	case m.delReq:
		if m.state == StateUnsubscribing {
			m.finalize(false)
		}
	case m.reconfReq:
		if m.reg.logger != nil {
			m.reg.logger.Warn("frequency change refused", "subId", m.subID, "code", err.Code, "message", err.Message)
		}
	}
}

// fail ends a binding whose add was refused.
func (m *Manager) fail(err *wire.ServerError) {
	if m.state != StatePendingAdd && m.state != StateAddAcked {
		return
	}
	m.setState(StateInactive, err.Error())
	delete(m.reg.managers, m.subID)

	if m.isSecondLevel() {
		if p := m.parent(); p != nil {
			p.onSecondLevelError(m, err)
		}
		return
	}
	if m.sub.boundID == m.subID {
		m.sub.boundID = 0
		m.reg.drop(m.sub)
	}
	m.notify(func(l Listener) { l.OnSubscriptionError(m.sub, err.Code, err.Message) })
}

func (m *Manager) onSubOK(nItems, nFields, keyPos, cmdPos int) {
	switch m.state {
	case StatePendingAdd, StateAddAcked:
	case StateUnsubscribing:
		m.reg.ctrl.Complete(m.addReq)
		return
	default:
		m.reg.debugLog("unexpected SUBOK", "subId", m.subID, "state", m.state)
		return
	}
	m.reg.ctrl.Complete(m.addReq)

	m.nItems = nItems
	m.nFields = nFields
	m.keyPos = keyPos
	m.cmdPos = cmdPos
	m.twoLevel = m.isCommand() && !m.isSecondLevel() && m.sub.twoLevel()
	m.snapshot = m.sub.snapshotRequested()
	m.names = m.sub.fieldNames(nFields)
	m.setState(StateActive, "")

	if m.isSecondLevel() {
		return
	}
	m.sub.setSubscribed(keyPos, cmdPos)
	m.notified = true
	m.notify(func(l Listener) { l.OnSubscription(m.sub) })
}

func (m *Manager) item(pos int) (*itemState, error) {
	if pos < 1 || pos > m.nItems {
		return nil, &wire.ProtocolError{
			Line:   strconv.Itoa(pos),
			Reason: fmt.Sprintf("item out of range for subscription %d with %d items", m.subID, m.nItems),
		}
	}
	it, ok := m.items[pos]
	if !ok {
		it = &itemState{
			pos:      pos,
			values:   make(map[int]*string),
			snapshot: m.snapshot,
			keys:     make(map[string]*keyState),
		}
		m.items[pos] = it
	}
	return it, nil
}

func (m *Manager) onUpdate(f wire.Update) error {
	if m.state != StateActive {
		m.reg.debugLog("update for inactive subscription", "subId", m.subID, "state", m.state)
		return nil
	}
	it, err := m.item(f.Item)
	if err != nil {
		return err
	}
	diffs, err := wire.DecodeUpdate(f.Values, m.nFields)
	if err != nil {
		return err
	}
	line := wire.ApplyDiff(it.values, diffs)
	it.values = line

	if m.isCommand() {
		return m.onCommandUpdate(it, line)
	}

	snapshot := it.snapshot
	if m.sub.mode == wire.ModeMerge {
		it.snapshot = false
	}
	m.emitUpdate(it.pos, snapshot, line, wire.ChangedPositions(diffs))
	return nil
}

func (m *Manager) emitUpdate(itemPos int, snapshot bool, values map[int]*string, changed []int) {
	if m.isSecondLevel() {
		if p := m.parent(); p != nil {
			p.onSecondLevelUpdate(m, values, snapshot)
		}
		return
	}
	u := newItemUpdate(m.sub.itemName(itemPos), itemPos, snapshot, m.names, values, changed)
	m.notify(func(l Listener) { l.OnItemUpdate(m.sub, u) })
}

func (m *Manager) onEOS(pos int) error {
	if m.state != StateActive {
		return nil
	}
	it, err := m.item(pos)
	if err != nil {
		return err
	}
	it.snapshot = false
	if m.isSecondLevel() {
		return nil
	}
	name := m.sub.itemName(pos)
	m.notify(func(l Listener) { l.OnEndOfSnapshot(m.sub, name, pos) })
	return nil
}

func (m *Manager) onCS(pos int) error {
	if m.state != StateActive {
		return nil
	}
	it, err := m.item(pos)
	if err != nil {
		return err
	}
	it.values = make(map[int]*string)
	if len(it.keys) > 0 {
		for _, ks := range it.keys {
			m.stopSecondLevel(ks)
		}
		it.keys = make(map[string]*keyState)
		m.recomputeFrequency()
	}
	if m.isSecondLevel() {
		return nil
	}
	name := m.sub.itemName(pos)
	m.notify(func(l Listener) { l.OnClearSnapshot(m.sub, name, pos) })
	return nil
}

func (m *Manager) onOV(pos, lost int) error {
	if m.state != StateActive {
		return nil
	}
	if _, err := m.item(pos); err != nil {
		return err
	}
	if m.isSecondLevel() {
		if p := m.parent(); p != nil {
			p.onSecondLevelLost(m, lost)
		}
		return nil
	}
	name := m.sub.itemName(pos)
	m.notify(func(l Listener) { l.OnItemLostUpdates(m.sub, name, pos, lost) })
	return nil
}

func (m *Manager) onConf(freq wire.Frequency) {
	if m.state != StateActive {
		return
	}
	if m.isSecondLevel() {
		if p := m.parent(); p != nil {
			p.onSecondLevelConf(m, freq)
		}
		return
	}
	m.firstFreq = &freq
	m.recomputeFrequency()
}

// recomputeFrequency reports the minimum of the first-level frequency and
// every live second-level frequency when it differs from the last report.
func (m *Manager) recomputeFrequency() {
	least := m.firstFreq
	for _, it := range m.items {
		for _, ks := range it.keys {
			if ks.secondFreq != nil && (least == nil || ks.secondFreq.Less(*least)) {
				least = ks.secondFreq
			}
		}
	}
	if least == nil {
		if m.reportedFreq == nil {
			return
		}
		m.reportedFreq = nil
		m.notify(func(l Listener) { l.OnRealMaxFrequency(m.sub, nil) })
		return
	}
	if m.reportedFreq != nil && m.reportedFreq.Equal(*least) {
		return
	}
	freq := *least
	m.reportedFreq = &freq
	m.notify(func(l Listener) { l.OnRealMaxFrequency(m.sub, &freq) })
}

// onUnsub handles UNSUB, which ends the binding whether or not a delete was
// sent.
func (m *Manager) onUnsub() {
	switch m.state {
	case StatePendingAdd, StateAddAcked, StateActive, StateUnsubscribing:
	default:
		return
	}
	m.reg.ctrl.Abandon(m.addReq)
	m.reg.ctrl.Abandon(m.delReq)
	m.finalize(m.state != StateUnsubscribing)
}

// unsubscribe starts the removal of the binding.
func (m *Manager) unsubscribe() {
	switch m.state {
	case StatePendingAdd, StateAddAcked:
		queued := m.addReq.State() == control.StateQueued
		m.reg.ctrl.Abandon(m.addReq)
		if queued {
			// The server never heard of it.
			m.setState(StateInactive, "add withdrawn")
			delete(m.reg.managers, m.subID)
			if m.sub.boundID == m.subID {
				m.sub.boundID = 0
			}
			return
		}
	case StateActive:
		m.stopAllSecondLevels()
	default:
		return
	}

	var p wire.Params
	p.Add(wire.ParamSubID, strconv.Itoa(m.subID))
	m.delReq = &control.Request{Op: wire.OpDelete, Params: p, Owner: m}
	m.enqueue(m.delReq)
	m.setState(StateUnsubscribing, "")
}

// finalize ends the binding. unsolicited is set when the server ended a
// subscription the application still wants.
func (m *Manager) finalize(unsolicited bool) {
	m.stopAllSecondLevels()
	m.setState(StateInactive, "")
	delete(m.reg.managers, m.subID)

	if m.isSecondLevel() {
		if p := m.parent(); p != nil {
			p.onSecondLevelGone(m)
		}
		return
	}
	if m.sub.boundID == m.subID {
		m.sub.boundID = 0
		m.sub.clearSubscribed()
		if unsolicited {
			m.reg.drop(m.sub)
		}
	}
	if m.notified {
		m.notify(func(l Listener) { l.OnUnsubscription(m.sub) })
	}
}

// abort ends the binding because the session ended. The subscription
// stays in the registry and is sent again on the next session.
func (m *Manager) abort() {
	m.setState(StateAborted, "session ended")
	if m.isSecondLevel() {
		return
	}
	if m.sub.boundID == m.subID {
		m.sub.boundID = 0
		m.sub.clearSubscribed()
	}
	if m.notified && !m.sub.isInternal() {
		m.notify(func(l Listener) { l.OnUnsubscription(m.sub) })
	}
}

// reconf sends the current requested frequency.
func (m *Manager) reconf() {
	switch m.state {
	case StatePendingAdd, StateAddAcked:
		if m.addReq.State() == control.StateQueued {
			m.addReq.Params = m.sub.addParams(m.subID)
			return
		}
	case StateActive:
	default:
		return
	}

	freq := m.sub.requestedMaxFrequency()
	if freq == FrequencyDefault {
		freq = FrequencyUnlimited
	}
	var p wire.Params
	p.Add(wire.ParamSubID, strconv.Itoa(m.subID))
	p.Add(wire.ParamMaxFrequency, string(freq))
	m.reconfReq = &control.Request{
		Op:     wire.OpReconf,
		Params: p,
		Target: "reconf:" + strconv.Itoa(m.subID),
		Owner:  m,
	}
	m.enqueue(m.reconfReq)
}

func (m *Manager) notify(fn func(Listener)) {
	m.reg.notify(m.sub, fn)
}
