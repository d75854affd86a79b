package mpn

import (
	"slices"
	"strconv"

	"github.com/tlcp-protocol/tlcp-go/pkg/control"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

type bindState uint8

const (
	// bindPending: waiting for a session and a registered device.
	bindPending bindState = iota
	// bindActivating: activate sent, MPNOK not received.
	bindActivating
	// bindSubscribed: known to the server under serverID.
	bindSubscribed
	// bindDeactivating: deactivate sent.
	bindDeactivating
)

// binding is the engine side of one MPN Subscription.
type binding struct {
	sub        *Subscription
	state      bindState
	coalescing bool

	subID int
	req   *control.Request

	// serverID is the handle of the group in Manager.groups.
	serverID string

	// notified is set once OnSubscription was delivered.
	notified bool

	// deactivate is set when an unsubscription waits for MPNOK or for a
	// session.
	deactivate bool

	// dirty lists properties changed while the activation was in flight.
	dirty map[string]bool
}

// group is every binding sharing one server subscription.
type group struct {
	id      string
	members []*binding
	feed    *subscription.Subscription
	reconf  map[string]*reconfState

	// stale is set on a new session until the SUBS snapshot lists the id.
	stale bool
}

// reconfState serializes the pn_reconf requests of one property.
type reconfState struct {
	req   *control.Request
	dirty bool
	owner *binding
}

// Subscribe activates sub. With coalescing the server may bind it to an
// existing identical subscription; the two then share fate. Safe for
// concurrent use.
func (m *Manager) Subscribe(sub *Subscription, coalescing bool) error {
	if sub == nil {
		return ErrInvalidSubscription
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	if err := sub.attach(m); err != nil {
		return err
	}
	m.post(func() { m.activate(sub, coalescing) })
	return nil
}

// Unsubscribe deactivates sub. Safe for concurrent use.
func (m *Manager) Unsubscribe(sub *Subscription) error {
	if sub == nil || !sub.IsActive() {
		return ErrNotActive
	}
	m.post(func() { m.deactivateSub(sub) })
	return nil
}

// UnsubscribeFilter deactivates every MPN subscription of the device whose
// status matches filter. One filtered deactivation is in flight at a time;
// later ones wait for its answer. Safe for concurrent use.
func (m *Manager) UnsubscribeFilter(filter Filter) {
	m.post(func() {
		m.bulkQueue = append(m.bulkQueue, filter)
		m.sendBulk()
	})
}

// ResetBadge resets the application badge of the device. Safe for
// concurrent use.
func (m *Manager) ResetBadge() {
	m.post(func() {
		m.badgeWanted = true
		m.sendBadge()
	})
}

func (m *Manager) activate(sub *Subscription, coalescing bool) {
	b := &binding{sub: sub, coalescing: coalescing, dirty: make(map[string]bool)}
	m.bindings = append(m.bindings, b)
	m.setSubStatus(b, StatusActive, 0)
	if m.canSend() {
		m.sendActivate(b)
	}
}

func (m *Manager) sendActivate(b *binding) {
	b.subID = m.reg.NextSubID()
	b.req = &control.Request{
		Op:     wire.OpActivate,
		Params: b.sub.activateParams(strconv.Itoa(b.subID), m.deviceID, b.coalescing),
		Owner:  reqHandler{err: func(err *wire.ServerError) { m.onActivateError(b, err) }},
	}
	b.state = bindActivating
	m.bySubID[b.subID] = b
	m.enqueue(b.req)
}

func (m *Manager) onMPNOK(subID int, serverID string) {
	b := m.bySubID[subID]
	if b == nil || b.state != bindActivating {
		m.debugLog("MPNOK for unknown activation", "subId", subID, "mpnSubId", serverID)
		return
	}
	delete(m.bySubID, subID)
	b.state = bindSubscribed
	m.joinGroup(b, serverID)
	m.setSubStatus(b, StatusSubscribed, 0)
	b.notified = true
	m.notifySub(b.sub, func(l SubscriptionListener) { l.OnSubscription(b.sub) })

	if b.deactivate {
		m.sendDeactivate(b)
	} else {
		for _, prop := range []string{PropNotificationFormat, PropTrigger} {
			if b.dirty[prop] {
				delete(b.dirty, prop)
				m.reconfigure(b.sub, prop)
			}
		}
	}
	m.adoptTentative()
}

func (m *Manager) onActivateError(b *binding, err *wire.ServerError) {
	if b.state != bindActivating {
		return
	}
	delete(m.bySubID, b.subID)
	m.remove(b)
	m.setSubStatus(b, StatusUnknown, 0)
	m.notifySub(b.sub, func(l SubscriptionListener) { l.OnSubscriptionError(b.sub, err.Code, err.Message) })
	m.adoptTentative()
}

func (m *Manager) deactivateSub(sub *Subscription) {
	b := m.find(sub)
	if b == nil {
		return
	}
	switch b.state {
	case bindPending:
		m.drop(b)
	case bindActivating:
		if b.req.State() == control.StateQueued {
			m.ctrl.Abandon(b.req)
			delete(m.bySubID, b.subID)
			m.drop(b)
			return
		}
		b.deactivate = true
	case bindSubscribed:
		if m.canSend() {
			m.sendDeactivate(b)
		} else {
			b.deactivate = true
		}
	case bindDeactivating:
	}
}

// drop forgets a binding the server never confirmed.
func (m *Manager) drop(b *binding) {
	m.remove(b)
	m.setSubStatus(b, StatusUnknown, 0)
}

// sendDeactivate deactivates the server subscription of b. Members of a
// coalesced group share one request.
func (m *Manager) sendDeactivate(b *binding) {
	id := b.serverID
	b.deactivate = false
	if g := m.groups[id]; g != nil {
		for _, other := range g.members {
			if other != b && other.state == bindDeactivating {
				b.state = bindDeactivating
				b.req = other.req
				return
			}
		}
	}

	var p wire.Params
	p.Add(wire.ParamPNDeviceID, m.deviceID)
	p.Add(wire.ParamPNSubscriptionID, id)
	var req *control.Request
	req = &control.Request{
		Op:     wire.OpDeactivate,
		Params: p,
		Target: "mpn.deactivate:" + id,
		Owner: reqHandler{
			ok:  func() { m.retireGroup(id) },
			err: func(err *wire.ServerError) { m.onDeactivateError(id, req, err) },
		},
	}
	b.state = bindDeactivating
	b.req = req
	m.enqueue(req)
}

func (m *Manager) onDeactivateError(id string, req *control.Request, err *wire.ServerError) {
	g := m.groups[id]
	if g == nil {
		return
	}
	for _, b := range g.members {
		b := b
		if b.state != bindDeactivating || b.req != req {
			continue
		}
		b.state = bindSubscribed
		b.req = nil
		m.notifySub(b.sub, func(l SubscriptionListener) { l.OnUnsubscriptionError(b.sub, err.Code, err.Message) })
	}
}

func (m *Manager) sendBulk() {
	if m.bulkReq != nil || len(m.bulkQueue) == 0 || !m.canSend() {
		return
	}
	filter := m.bulkQueue[0]
	m.bulkQueue = m.bulkQueue[1:]

	var p wire.Params
	p.Add(wire.ParamPNDeviceID, m.deviceID)
	if st := filter.wireStatus(); st != "" {
		p.Add(wire.ParamPNStatus, st)
	}
	var req *control.Request
	req = &control.Request{
		Op:     wire.OpDeactivate,
		Params: p,
		Owner: reqHandler{
			ok:  func() { m.onBulkDone(req, filter, nil) },
			err: func(err *wire.ServerError) { m.onBulkDone(req, filter, err) },
		},
	}
	m.bulkReq = req
	m.bulkFilter = filter
	m.enqueue(req)
}

func (m *Manager) onBulkDone(req *control.Request, filter Filter, err *wire.ServerError) {
	if m.bulkReq != req {
		return
	}
	m.bulkReq = nil
	for _, id := range m.groupIDs() {
		g := m.groups[id]
		if len(g.members) == 0 || !filter.match(g.members[0].sub.Status()) {
			continue
		}
		if err == nil {
			m.retireGroup(id)
			continue
		}
		for _, b := range g.members {
			b := b
			m.notifySub(b.sub, func(l SubscriptionListener) { l.OnUnsubscriptionError(b.sub, err.Code, err.Message) })
		}
	}
	m.sendBulk()
}

// reconfigure sends the requested value of property. Only one pn_reconf
// per property and server subscription is in flight; changes made
// meanwhile are sent once it is answered. A refused change is reported and
// the requested value is kept.
func (m *Manager) reconfigure(sub *Subscription, property string) {
	b := m.find(sub)
	if b == nil {
		return
	}
	switch b.state {
	case bindPending:
		return
	case bindActivating:
		if b.req.State() == control.StateQueued {
			b.req.Params = b.sub.activateParams(strconv.Itoa(b.subID), m.deviceID, b.coalescing)
		} else {
			b.dirty[property] = true
		}
		return
	case bindSubscribed:
	default:
		return
	}

	g := m.groups[b.serverID]
	if g == nil {
		return
	}
	rs := g.reconf[property]
	if rs == nil {
		rs = &reconfState{}
		g.reconf[property] = rs
	}
	rs.owner = b
	if rs.req != nil || !m.canSend() {
		rs.dirty = true
		return
	}
	m.sendReconf(g, property, rs)
}

func (m *Manager) sendReconf(g *group, property string, rs *reconfState) {
	id := g.id
	var p wire.Params
	p.Add(wire.ParamPNDeviceID, m.deviceID)
	p.Add(wire.ParamPNSubscriptionID, id)
	if property == PropTrigger {
		p.Add(wire.ParamPNTrigger, rs.owner.sub.requested(property))
	} else {
		p.Add(wire.ParamPNFormat, rs.owner.sub.requested(property))
	}
	rs.dirty = false
	var req *control.Request
	req = &control.Request{
		Op:     wire.OpPNReconf,
		Params: p,
		Owner: reqHandler{
			ok:  func() { m.onReconfDone(id, property, req, nil) },
			err: func(err *wire.ServerError) { m.onReconfDone(id, property, req, err) },
		},
	}
	rs.req = req
	m.enqueue(req)
}

func (m *Manager) onReconfDone(id, property string, req *control.Request, err *wire.ServerError) {
	g := m.groups[id]
	if g == nil {
		return
	}
	rs := g.reconf[property]
	if rs == nil || rs.req != req {
		return
	}
	rs.req = nil
	if err != nil {
		owner := rs.owner.sub
		m.notifySub(owner, func(l SubscriptionListener) { l.OnModificationError(owner, err.Code, err.Message, property) })
	}
	if rs.dirty && m.canSend() {
		m.sendReconf(g, property, rs)
	}
}

func (m *Manager) sendBadge() {
	if !m.badgeWanted || m.badgeReq != nil || !m.canSend() {
		return
	}
	m.badgeWanted = false
	var p wire.Params
	p.Add(wire.ParamPNDeviceID, m.deviceID)
	var req *control.Request
	req = &control.Request{
		Op:     wire.OpResetBadge,
		Params: p,
		Target: "mpn.badge",
		Owner: reqHandler{
			ok: func() { m.onBadgeReset(req) },
			err: func(err *wire.ServerError) {
				if m.badgeReq != req {
					return
				}
				m.badgeReq = nil
				dev := m.device
				m.notifyDevice(func(l DeviceListener) { l.OnBadgeResetFailed(dev, err.Code, err.Message) })
				m.sendBadge()
			},
		},
	}
	m.badgeReq = req
	m.enqueue(req)
}

// onBadgeReset confirms req, by REQOK or MPNZERO, whichever comes first.
func (m *Manager) onBadgeReset(req *control.Request) {
	if req == nil || m.badgeReq != req {
		return
	}
	m.badgeReq = nil
	dev := m.device
	m.notifyDevice(func(l DeviceListener) { l.OnBadgeReset(dev) })
	m.sendBadge()
}

// onServerRow handles a row of the SUBS feed.
func (m *Manager) onServerRow(id, command string) {
	if command == subscription.CommandDelete {
		m.onServerDelete(id)
		return
	}
	m.seen[id] = true
	if g := m.groups[id]; g != nil {
		g.stale = false
		return
	}
	if !m.snapshotDone || m.activating() {
		// Tentative until EOS, or until pending MPNOKs tell whether the
		// id is one of ours.
		return
	}
	m.adopt(id)
	m.notifyDevice(func(l DeviceListener) { l.OnSubscriptionsUpdated(m.device) })
}

// onServerDelete handles a DELETE row of the SUBS feed or MPNDEL.
func (m *Manager) onServerDelete(id string) {
	delete(m.seen, id)
	if m.groups[id] == nil {
		return
	}
	m.retireGroup(id)
	if m.snapshotDone && m.device != nil {
		m.notifyDevice(func(l DeviceListener) { l.OnSubscriptionsUpdated(m.device) })
	}
}

func (m *Manager) onSnapshotEnd() {
	m.snapshotDone = true
	for _, id := range m.groupIDs() {
		if g := m.groups[id]; g.stale {
			m.retireGroup(id)
		}
	}
	m.adoptTentative()
	m.notifyDevice(func(l DeviceListener) { l.OnSubscriptionsUpdated(m.device) })
}

// adoptTentative creates subscriptions for the ids listed by the server
// that no activation claimed.
func (m *Manager) adoptTentative() {
	if !m.snapshotDone || m.activating() {
		return
	}
	ids := make([]string, 0, len(m.seen))
	for id := range m.seen {
		if m.groups[id] == nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		m.adopt(id)
	}
}

// adopt creates the Subscription of a server-known MPN subscription. Its
// properties are filled in by its feed.
func (m *Manager) adopt(id string) {
	sub := &Subscription{manager: m}
	b := &binding{sub: sub, state: bindSubscribed, notified: true, dirty: make(map[string]bool)}
	m.bindings = append(m.bindings, b)
	m.joinGroup(b, id)
	m.setSubStatus(b, StatusSubscribed, 0)
}

func (m *Manager) activating() bool {
	return len(m.bySubID) > 0
}

func (m *Manager) joinGroup(b *binding, id string) {
	g := m.groups[id]
	if g == nil {
		g = &group{id: id, reconf: make(map[string]*reconfState)}
		m.groups[id] = g
		m.startGroupFeed(g)
	}
	g.members = append(g.members, b)
	b.serverID = id
	b.sub.setSubscriptionID(id)
}

func (m *Manager) startGroupFeed(g *group) {
	sub := subscription.New(wire.ModeMerge, []string{"SUB-" + m.deviceID + "-" + g.id}, groupFeedFields)
	if err := sub.SetDataAdapter(m.adapter); err != nil {
		m.logError("failed to configure MPN subscription feed", "error", err)
	}
	sub.AddListener(&groupFeed{m: m, id: g.id})
	g.feed = sub
	if err := m.reg.SubscribeInternal(sub); err != nil {
		m.logError("failed to subscribe MPN subscription feed", "mpnSubId", g.id, "error", err)
	}
}

// retireGroup ends every subscription sharing the server id.
func (m *Manager) retireGroup(id string) {
	g := m.groups[id]
	if g == nil {
		return
	}
	delete(m.groups, id)
	if g.feed != nil {
		m.reg.UnsubscribeInternal(g.feed)
	}
	for _, rs := range g.reconf {
		m.ctrl.Abandon(rs.req)
	}
	for _, b := range g.members {
		b := b
		if b.state == bindDeactivating {
			m.ctrl.Abandon(b.req)
		}
		m.remove(b)
		m.setSubStatus(b, StatusUnknown, 0)
		b.sub.setSubscriptionID("")
		if b.notified {
			m.notifySub(b.sub, func(l SubscriptionListener) { l.OnUnsubscription(b.sub) })
		}
	}
}

// onGroupUpdate applies an update of the feed of a server subscription to
// every member.
func (m *Manager) onGroupUpdate(id string, u *subscription.ItemUpdate) {
	g := m.groups[id]
	if g == nil {
		return
	}
	timestamp := parseTimestamp(u.ValueByName(PropStatusTimestamp))

	for _, name := range groupFeedFields[2:] {
		name := name
		if !u.IsValueChangedByName(name) {
			continue
		}
		value := ""
		if v := u.ValueByName(name); v != nil {
			value = *v
		}
		for _, b := range g.members {
			b := b
			if b.sub.applyServerProperty(name, value) {
				m.notifySub(b.sub, func(l SubscriptionListener) { l.OnPropertyChanged(b.sub, name) })
			}
		}
	}

	var next Status
	switch status := u.ValueByName("status"); {
	case status == nil || *status == "":
		return
	case *status == "TRIGGERED":
		next = StatusTriggered
	default:
		next = StatusSubscribed
	}
	for _, b := range g.members {
		b := b
		if b.state != bindSubscribed && b.state != bindDeactivating {
			continue
		}
		if m.setSubStatus(b, next, timestamp) && next == StatusTriggered {
			m.notifySub(b.sub, func(l SubscriptionListener) { l.OnTriggered(b.sub) })
		}
	}
}

func (m *Manager) setSubStatus(b *binding, status Status, timestamp int64) bool {
	old := b.sub.Status()
	if !b.sub.setStatus(status, timestamp) {
		return false
	}
	id := b.serverID
	if id == "" {
		id = strconv.Itoa(b.subID)
	}
	m.rec.State(log.StateEntityMPNSubscription, id, old.String(), status.String(), "")
	sub := b.sub
	ts := sub.StatusTimestamp()
	m.notifySub(sub, func(l SubscriptionListener) { l.OnStatusChanged(sub, status, ts) })
	return true
}

func (m *Manager) find(sub *Subscription) *binding {
	for _, b := range m.bindings {
		if b.sub == sub {
			return b
		}
	}
	return nil
}

// remove forgets b and releases its Subscription.
func (m *Manager) remove(b *binding) {
	m.bindings = slices.DeleteFunc(m.bindings, func(x *binding) bool { return x == b })
	b.sub.detach()
}

func (m *Manager) groupIDs() []string {
	ids := make([]string, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
