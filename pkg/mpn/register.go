package mpn

import (
	"slices"
	"strconv"

	"github.com/tlcp-protocol/tlcp-go/pkg/control"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

const deviceChangedMessage = "DeviceId or Adapter Name has unexpectedly been changed"

// Fields of the internal feeds.
var (
	deviceFeedFields = []string{"status", "status_timestamp"}
	subsFeedFields   = []string{subscription.KeyField, subscription.CommandField}
	groupFeedFields  = []string{
		"status", PropStatusTimestamp, PropNotificationFormat, PropTrigger,
		PropGroup, PropSchema, PropAdapter, PropMode, PropBufferSize, PropMaxFrequency,
	}
)

// Register registers dev for push notifications. Registering a device of
// the same application again with a new token refreshes the token. Safe
// for concurrent use.
func (m *Manager) Register(dev *Device) error {
	if dev == nil {
		return ErrInvalidDevice
	}
	if err := dev.Validate(); err != nil {
		return err
	}
	m.post(func() { m.register(dev) })
	return nil
}

func (m *Manager) register(dev *Device) {
	prev := ""
	if m.prefs != nil {
		stored, err := m.prefs.LoadDeviceToken(dev.ApplicationID())
		if err != nil && m.logger != nil {
			m.logger.Warn("failed to load device token", "appId", dev.ApplicationID(), "error", err)
		}
		prev = stored
	}

	sameApp := m.device != nil && m.device.ApplicationID() == dev.ApplicationID() &&
		m.device.Platform() == dev.Platform()
	if sameApp && m.deviceID != "" {
		prev = m.device.DeviceToken()
	}
	if !sameApp && m.device != nil {
		m.forgetDevice()
	}
	if prev == dev.DeviceToken() {
		prev = ""
	}
	dev.setPrevToken(prev)

	m.device = dev
	m.setState(DeviceStatePendingRegister, "register")
	if !m.live {
		return
	}
	cause := ""
	if prev != "" {
		cause = wire.CauseRefreshToken
	}
	m.sendRegister(cause)
}

func (m *Manager) sendRegister(cause string) {
	dev := m.device
	var p wire.Params
	p.Add(wire.ParamPNType, string(dev.Platform()))
	p.Add(wire.ParamPNAppID, dev.ApplicationID())
	if prev := dev.PreviousDeviceToken(); prev != "" {
		p.Add(wire.ParamPNDeviceToken, prev)
		p.Add(wire.ParamPNNewDeviceToken, dev.DeviceToken())
	} else {
		p.Add(wire.ParamPNDeviceToken, dev.DeviceToken())
	}
	if cause != "" {
		p.Add(wire.ParamCause, cause)
	}

	var req *control.Request
	req = &control.Request{
		Op:          wire.OpRegister,
		Params:      p,
		Target:      "mpn.register",
		ReplayCause: wire.CauseRestoreToken,
		Owner: reqHandler{err: func(err *wire.ServerError) {
			if m.regReq == req {
				m.registrationFailed(err.Code, err.Message)
			}
		}},
	}
	m.regReq = req
	m.enqueue(req)
}

func (m *Manager) onMPNReg(deviceID, adapter string) {
	if m.device == nil || m.state == DeviceStateUnregistered {
		m.debugLog("MPNREG without a registration", "deviceId", deviceID)
		return
	}
	if m.deviceID != "" && (deviceID != m.deviceID || adapter != m.adapter) {
		m.rec.Error(log.LayerEngine, deviceChangedMessage, "MPNREG "+deviceID, ErrCodeDeviceChanged)
		m.registrationFailed(ErrCodeDeviceChanged, deviceChangedMessage)
		return
	}

	dev := m.device
	pending := m.state == DeviceStatePendingRegister
	m.regReq = nil
	m.deviceID = deviceID
	m.adapter = adapter
	dev.setIdentity(deviceID, adapter)
	dev.setPrevToken("")
	if m.prefs != nil {
		if err := m.prefs.SaveDeviceToken(dev.ApplicationID(), dev.DeviceToken()); err != nil && m.logger != nil {
			m.logger.Warn("failed to save device token", "appId", dev.ApplicationID(), "error", err)
		}
	}

	if !pending {
		return
	}
	m.setState(DeviceStateRegistered, "MPNREG")
	if dev.setStatus(DeviceRegistered, 0) {
		m.notifyDevice(func(l DeviceListener) { l.OnStatusChanged(dev, DeviceRegistered, dev.StatusTimestamp()) })
	}
	m.notifyDevice(func(l DeviceListener) { l.OnRegistered(dev) })

	if m.devFeed == nil {
		m.startFeeds()
	}
	m.SendPending()
}

// registrationFailed ends the registration for good: the application must
// register again.
func (m *Manager) registrationFailed(code int, message string) {
	if m.device == nil || m.state == DeviceStateUnregistered {
		return
	}
	if m.logger != nil {
		m.logger.Warn("device registration failed", "code", code, "message", message)
	}
	dev := m.device
	m.regReq = nil
	m.stopFeeds()
	m.deviceID = ""
	m.adapter = ""
	m.setState(DeviceStateUnregistered, message)
	if dev.setStatus(DeviceUnknown, 0) {
		m.notifyDevice(func(l DeviceListener) { l.OnStatusChanged(dev, DeviceUnknown, dev.StatusTimestamp()) })
	}
	m.notifyDevice(func(l DeviceListener) { l.OnRegistrationFailed(dev, code, message) })
}

// forgetDevice drops a device replaced by one of another application,
// together with every MPN subscription bound to it.
func (m *Manager) forgetDevice() {
	m.stopFeeds()
	for _, id := range m.groupIDs() {
		m.retireGroup(id)
	}
	for _, b := range slices.Clone(m.bindings) {
		b := b
		if b.state == bindActivating {
			m.ctrl.Abandon(b.req)
		}
		m.remove(b)
		m.setSubStatus(b, StatusUnknown, 0)
		if b.notified {
			m.notifySub(b.sub, func(l SubscriptionListener) { l.OnUnsubscription(b.sub) })
		}
	}
	m.bySubID = make(map[int]*binding)
	m.seen = make(map[string]bool)
	m.snapshotDone = false

	m.ctrl.Abandon(m.bulkReq)
	m.bulkReq = nil
	m.bulkQueue = nil
	m.ctrl.Abandon(m.badgeReq)
	m.badgeReq = nil
	m.badgeWanted = false

	m.deviceID = ""
	m.adapter = ""
	m.device.setStatus(DeviceUnknown, 0)
}

func (m *Manager) startFeeds() {
	m.snapshotDone = false
	m.seen = make(map[string]bool)

	dev := subscription.New(wire.ModeMerge, []string{"DEV-" + m.deviceID}, deviceFeedFields)
	subs := subscription.New(wire.ModeCommand, []string{"SUBS-" + m.deviceID}, subsFeedFields)
	for _, sub := range []*subscription.Subscription{dev, subs} {
		if err := sub.SetDataAdapter(m.adapter); err != nil {
			m.logError("failed to configure MPN feed", "error", err)
		}
	}
	dev.AddListener(&deviceFeed{m: m})
	subs.AddListener(&subsFeed{m: m})

	m.devFeed = dev
	m.subsFeed = subs
	for _, sub := range []*subscription.Subscription{dev, subs} {
		if err := m.reg.SubscribeInternal(sub); err != nil {
			m.logError("failed to subscribe MPN feed", "item", sub.Group(), "error", err)
		}
	}
}

func (m *Manager) stopFeeds() {
	dev, subs := m.devFeed, m.subsFeed
	m.devFeed = nil
	m.subsFeed = nil
	for _, sub := range []*subscription.Subscription{dev, subs} {
		if sub != nil {
			m.reg.UnsubscribeInternal(sub)
		}
	}
}

func (m *Manager) onDeviceStatus(status string, timestamp int64) {
	var next DeviceStatus
	var state DeviceState
	switch status {
	case "ACTIVE":
		next, state = DeviceRegistered, DeviceStateRegistered
	case "SUSPENDED":
		next, state = DeviceSuspended, DeviceStateSuspended
	default:
		return
	}
	dev := m.device
	prev := dev.Status()
	m.setState(state, "DEV "+status)
	if !dev.setStatus(next, timestamp) {
		return
	}
	m.notifyDevice(func(l DeviceListener) { l.OnStatusChanged(dev, next, timestamp) })
	switch {
	case next == DeviceSuspended:
		m.notifyDevice(func(l DeviceListener) { l.OnSuspended(dev) })
	case prev == DeviceSuspended:
		m.notifyDevice(func(l DeviceListener) { l.OnResumed(dev) })
	}
}

func (m *Manager) setState(state DeviceState, reason string) {
	if m.state == state {
		return
	}
	old := m.state
	m.state = state
	m.debugLog("MPN device state changed", "from", old, "to", state, "reason", reason)
	m.rec.State(log.StateEntityMPNDevice, m.deviceID, old.String(), state.String(), reason)
}

func parseTimestamp(v *string) int64 {
	if v == nil {
		return 0
	}
	ts, err := strconv.ParseInt(*v, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
