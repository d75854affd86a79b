package mpn

import (
	"log/slog"
	"slices"

	"github.com/tlcp-protocol/tlcp-go/pkg/control"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Preferences keeps the device token of each application between runs.
type Preferences interface {
	LoadDeviceToken(appID string) (string, error)
	SaveDeviceToken(appID, token string) error
}

// Config configures a Manager.
type Config struct {
	// Logger receives operational logs. May be nil.
	Logger *slog.Logger

	// ProtocolLogger receives device and subscription state changes.
	ProtocolLogger log.Logger

	// Preferences stores device tokens. May be nil.
	Preferences Preferences

	// Dispatch runs listener callbacks. Nil runs them inline.
	Dispatch func(func())

	// Post runs a function on the event loop. Nil runs it inline.
	Post func(func())
}

// DeviceState is the registration state of the managed device.
type DeviceState uint8

const (
	DeviceStateUnregistered DeviceState = iota
	DeviceStatePendingRegister
	DeviceStateRegistered
	DeviceStateSuspended
)

// String returns the state name.
func (s DeviceState) String() string {
	switch s {
	case DeviceStateUnregistered:
		return "UNREGISTERED"
	case DeviceStatePendingRegister:
		return "PENDING_REGISTER"
	case DeviceStateRegistered:
		return "REGISTERED"
	case DeviceStateSuspended:
		return "SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// Manager runs the device registration and the MPN subscriptions of one
// client. Register, Subscribe, Unsubscribe, UnsubscribeFilter and
// ResetBadge are safe for concurrent use; everything else runs on the
// event loop.
type Manager struct {
	ctrl     subscription.Controller
	reg      *subscription.Registry
	prefs    Preferences
	logger   *slog.Logger
	rec      *log.Recorder
	dispatch func(func())
	postFn   func(func())

	live bool

	device *Device
	state  DeviceState
	regReq *control.Request

	// deviceID and adapter are the identity confirmed by the last MPNREG.
	deviceID string
	adapter  string

	devFeed  *subscription.Subscription
	subsFeed *subscription.Subscription

	// seen holds the server ids listed by the SUBS feed; before EOS they
	// are tentative.
	seen         map[string]bool
	snapshotDone bool

	bindings []*binding
	bySubID  map[int]*binding
	groups   map[string]*group

	bulkQueue  []Filter
	bulkReq    *control.Request
	bulkFilter Filter

	badgeReq    *control.Request
	badgeWanted bool
}

// NewManager creates a manager sending requests through ctrl and
// subscribing its internal feeds through reg.
func NewManager(ctrl subscription.Controller, reg *subscription.Registry, cfg Config) *Manager {
	return &Manager{
		ctrl:     ctrl,
		reg:      reg,
		prefs:    cfg.Preferences,
		logger:   cfg.Logger,
		rec:      log.NewRecorder(cfg.ProtocolLogger, "ENGINE"),
		dispatch: cfg.Dispatch,
		postFn:   cfg.Post,
		seen:     make(map[string]bool),
		bySubID:  make(map[int]*binding),
		groups:   make(map[string]*group),
	}
}

// Device returns the managed device, nil before Register.
func (m *Manager) Device() *Device { return m.device }

// State returns the registration state.
func (m *Manager) State() DeviceState { return m.state }

// Subscriptions returns the MPN subscriptions matching filter, in the order
// they became known.
func (m *Manager) Subscriptions(filter Filter) []*Subscription {
	var out []*Subscription
	for _, b := range m.bindings {
		if filter.match(b.sub.Status()) {
			out = append(out, b.sub)
		}
	}
	return out
}

// OnSessionStarted registers the device again on a new session. Pending
// operations are sent by SendPending once the ordinary subscriptions are
// queued.
func (m *Manager) OnSessionStarted(recovered bool) {
	if recovered {
		return
	}
	m.live = true
	if m.device == nil || m.state == DeviceStateUnregistered {
		return
	}
	if m.devFeed != nil {
		// The feeds are sent again by the registry with a new snapshot.
		m.snapshotDone = false
		m.seen = make(map[string]bool)
		for _, g := range m.groups {
			g.stale = true
		}
	}
	cause := ""
	if m.deviceID != "" {
		cause = wire.CauseRestoreToken
	} else if m.device.PreviousDeviceToken() != "" {
		cause = wire.CauseRefreshToken
	}
	m.sendRegister(cause)
}

// SendPending sends the activations, deactivations, reconfigurations and
// badge resets waiting for a session and a registered device.
func (m *Manager) SendPending() {
	if !m.canSend() {
		return
	}
	for _, b := range slices.Clone(m.bindings) {
		switch {
		case b.state == bindPending:
			m.sendActivate(b)
		case b.state == bindSubscribed && b.deactivate:
			m.sendDeactivate(b)
		}
	}
	for _, id := range m.groupIDs() {
		g := m.groups[id]
		for _, prop := range []string{PropNotificationFormat, PropTrigger} {
			if rs := g.reconf[prop]; rs != nil && rs.dirty && rs.req == nil {
				m.sendReconf(g, prop, rs)
			}
		}
	}
	m.sendBulk()
	m.sendBadge()
}

// OnSessionEnded voids every request in flight. Requests the server may
// not have seen are sent again on the next session.
func (m *Manager) OnSessionEnded() {
	m.live = false
	m.regReq = nil
	for _, b := range m.bindings {
		switch b.state {
		case bindActivating:
			delete(m.bySubID, b.subID)
			b.state = bindPending
			b.req = nil
		case bindDeactivating:
			b.state = bindSubscribed
			b.req = nil
			b.deactivate = true
		}
	}
	for _, g := range m.groups {
		for _, rs := range g.reconf {
			if rs.req != nil {
				rs.req = nil
				rs.dirty = true
			}
		}
	}
	if m.bulkReq != nil {
		m.bulkQueue = append([]Filter{m.bulkFilter}, m.bulkQueue...)
		m.bulkReq = nil
	}
	if m.badgeReq != nil {
		m.badgeReq = nil
		m.badgeWanted = true
	}
}

// OnFrame handles the MPN notifications. Other frames are ignored.
func (m *Manager) OnFrame(f wire.Frame) error {
	switch f := f.(type) {
	case wire.MPNReg:
		m.onMPNReg(f.DeviceID, f.Adapter)
	case wire.MPNOK:
		m.onMPNOK(f.SubID, f.SubscriptionID)
	case wire.MPNDel:
		m.onServerDelete(f.SubscriptionID)
	case wire.MPNZero:
		if f.DeviceID == m.deviceID {
			m.onBadgeReset(m.badgeReq)
		}
	}
	return nil
}

// canSend reports whether requests naming the device can be sent.
func (m *Manager) canSend() bool {
	return m.live && m.deviceID != "" && m.state != DeviceStateUnregistered
}

func (m *Manager) enqueue(req *control.Request) {
	if err := m.ctrl.Enqueue(req); err != nil {
		m.logError("failed to enqueue MPN request", "op", req.Op, "error", err)
	}
}

func (m *Manager) run(fn func()) {
	if m.dispatch == nil {
		fn()
		return
	}
	m.dispatch(fn)
}

func (m *Manager) notifyDevice(fn func(DeviceListener)) {
	dev := m.device
	listeners := dev.Listeners()
	if len(listeners) == 0 {
		return
	}
	m.run(func() {
		for _, l := range listeners {
			fn(l)
		}
	})
}

func (m *Manager) notifySub(sub *Subscription, fn func(SubscriptionListener)) {
	listeners := sub.Listeners()
	if len(listeners) == 0 {
		return
	}
	m.run(func() {
		for _, l := range listeners {
			fn(l)
		}
	})
}

func (m *Manager) post(fn func()) {
	if m.postFn == nil {
		fn()
		return
	}
	m.postFn(fn)
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func (m *Manager) logError(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Error(msg, args...)
	}
}

// reqHandler adapts a pair of functions to control.Handler.
type reqHandler struct {
	ok  func()
	err func(*wire.ServerError)
}

func (h reqHandler) OnReqOK(*control.Request) {
	if h.ok != nil {
		h.ok()
	}
}

func (h reqHandler) OnReqErr(_ *control.Request, err *wire.ServerError) {
	if h.err != nil {
		h.err(err)
	}
}

var _ control.Handler = reqHandler{}
