package mpn

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tlcp-protocol/tlcp-go/pkg/control"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

type mockPreferences struct {
	mock.Mock
}

func (p *mockPreferences) LoadDeviceToken(appID string) (string, error) {
	args := p.Called(appID)
	return args.String(0), args.Error(1)
}

func (p *mockPreferences) SaveDeviceToken(appID, token string) error {
	return p.Called(appID, token).Error(0)
}

type deviceRecorder struct {
	events []string
}

func (r *deviceRecorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *deviceRecorder) OnRegistered(*Device) { r.add("registered") }
func (r *deviceRecorder) OnRegistrationFailed(_ *Device, code int, msg string) {
	r.add("failed:%d:%s", code, msg)
}
func (r *deviceRecorder) OnSuspended(*Device) { r.add("suspended") }
func (r *deviceRecorder) OnResumed(*Device)   { r.add("resumed") }
func (r *deviceRecorder) OnStatusChanged(_ *Device, status DeviceStatus, _ int64) {
	r.add("status:%s", status)
}
func (r *deviceRecorder) OnSubscriptionsUpdated(*Device) { r.add("subs-updated") }
func (r *deviceRecorder) OnBadgeReset(*Device)           { r.add("badge-reset") }
func (r *deviceRecorder) OnBadgeResetFailed(_ *Device, code int, _ string) {
	r.add("badge-failed:%d", code)
}

type subRecorder struct {
	events []string
}

func (r *subRecorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *subRecorder) OnSubscription(*Subscription)   { r.add("subscribed") }
func (r *subRecorder) OnUnsubscription(*Subscription) { r.add("unsubscribed") }
func (r *subRecorder) OnSubscriptionError(_ *Subscription, code int, _ string) {
	r.add("error:%d", code)
}
func (r *subRecorder) OnUnsubscriptionError(_ *Subscription, code int, _ string) {
	r.add("unsub-error:%d", code)
}
func (r *subRecorder) OnTriggered(*Subscription) { r.add("triggered") }
func (r *subRecorder) OnStatusChanged(_ *Subscription, status Status, _ int64) {
	r.add("status:%s", status)
}
func (r *subRecorder) OnPropertyChanged(_ *Subscription, property string) {
	r.add("prop:%s", property)
}
func (r *subRecorder) OnModificationError(_ *Subscription, code int, _ string, property string) {
	r.add("mod-error:%d:%s", code, property)
}

type harness struct {
	t    *testing.T
	ctrl *control.Channel
	reg  *subscription.Registry
	mgr  *Manager
}

func newHarness(t *testing.T, prefs Preferences) *harness {
	t.Helper()
	ctrl := control.NewChannel(nil)
	reg := subscription.NewRegistry(ctrl, subscription.Config{})
	cfg := Config{}
	if prefs != nil {
		cfg.Preferences = prefs
	}
	return &harness{t: t, ctrl: ctrl, reg: reg, mgr: NewManager(ctrl, reg, cfg)}
}

// start runs a new session in the order the client does.
func (h *harness) start() {
	h.mgr.OnSessionStarted(false)
	h.reg.OnSessionStarted(false)
	h.mgr.SendPending()
}

func (h *harness) end() {
	h.mgr.OnSessionEnded()
	h.reg.OnSessionEnded()
	h.ctrl.Reset()
}

func (h *harness) flush() []*control.Request {
	h.t.Helper()
	var out []*control.Request
	require.NoError(h.t, h.ctrl.Flush(func(req *control.Request) error {
		out = append(out, req)
		return nil
	}))
	return out
}

// feed parses server lines and routes them like the client does.
func (h *harness) feed(lines ...string) {
	h.t.Helper()
	for _, line := range lines {
		f, err := wire.ParseFrame(line)
		require.NoError(h.t, err, line)
		switch f := f.(type) {
		case wire.ReqOK:
			h.ctrl.OnReqOK(f.ReqID)
		case wire.ReqErr:
			h.ctrl.OnReqErr(f.ReqID, f.Code, f.Message)
		default:
			require.NoError(h.t, h.reg.OnFrame(f), line)
			require.NoError(h.t, h.mgr.OnFrame(f), line)
		}
	}
}

// register registers a device as dev1 on adapter PUSH and confirms its
// feeds, DEV-dev1 as subId 1 and SUBS-dev1 as subId 2. The SUBS snapshot
// is left open.
func (h *harness) register(dev *Device) {
	h.t.Helper()
	require.NoError(h.t, h.mgr.Register(dev))
	reqs := h.flush()
	require.Len(h.t, reqs, 1)
	h.feed(fmt.Sprintf("REQOK,%d", reqs[0].ID), "MPNREG,dev1,PUSH")
	require.Len(h.t, h.flush(), 2)
	h.feed("SUBOK,1,1,2", "SUBCMD,2,1,2,1,2")
}

// registered starts a session and registers a device with an empty
// subscription list.
func (h *harness) registered() (*Device, *deviceRecorder) {
	h.t.Helper()
	dev := NewDevice(PlatformGoogle, "com.example.app", "tok1")
	rec := &deviceRecorder{}
	dev.AddListener(rec)
	h.start()
	h.register(dev)
	h.feed("EOS,2,1")
	rec.events = nil
	return dev, rec
}

// activate subscribes sub and confirms it as mpnID.
func (h *harness) activate(sub *Subscription, coalescing bool, mpnID string) {
	h.t.Helper()
	require.NoError(h.t, h.mgr.Subscribe(sub, coalescing))
	reqs := byOp(h.flush(), wire.OpActivate)
	require.Len(h.t, reqs, 1)
	subID := paramValue(reqs[0], wire.ParamSubID)
	h.feed(fmt.Sprintf("MPNOK,%s,%s", subID, mpnID))
	h.flush()
}

func newSub() (*Subscription, *subRecorder) {
	sub := NewSubscription(wire.ModeMerge, []string{"item"}, []string{"f1"})
	_ = sub.SetNotificationFormat("fmt")
	rec := &subRecorder{}
	sub.AddListener(rec)
	return sub, rec
}

// describe renders a request without its reqId.
func describe(req *control.Request) string {
	return req.Op + " " + req.WireParams()[2:].Encode()
}

func byOp(reqs []*control.Request, op string) []*control.Request {
	var out []*control.Request
	for _, req := range reqs {
		if req.Op == op {
			out = append(out, req)
		}
	}
	return out
}

func paramValue(req *control.Request, key string) string {
	for _, p := range req.Params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// TestManager_Register tests the register request, the device identity and
// the internal feeds.
func TestManager_Register(t *testing.T) {
	prefs := &mockPreferences{}
	prefs.On("LoadDeviceToken", "com.example.app").Return("", nil)
	prefs.On("SaveDeviceToken", "com.example.app", "tok1").Return(nil)

	h := newHarness(t, prefs)
	h.start()
	dev := NewDevice(PlatformGoogle, "com.example.app", "tok1")
	rec := &deviceRecorder{}
	dev.AddListener(rec)
	require.NoError(t, h.mgr.Register(dev))
	assert.Equal(t, DeviceStatePendingRegister, h.mgr.State())

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "register PN_type=Google&PN_appId=com.example.app&PN_deviceToken=tok1", describe(reqs[0]))

	h.feed("MPNREG,dev1,PUSH")
	assert.Equal(t, DeviceStateRegistered, h.mgr.State())
	assert.Equal(t, "dev1", dev.DeviceID())
	assert.Equal(t, "PUSH", dev.AdapterName())
	assert.Equal(t, DeviceRegistered, dev.Status())
	assert.Equal(t, []string{"status:REGISTERED", "registered"}, rec.events)

	feeds := h.flush()
	require.Len(t, feeds, 2)
	assert.Contains(t, describe(feeds[0]), "LS_group=DEV-dev1")
	assert.Contains(t, describe(feeds[0]), "LS_data_adapter=PUSH")
	assert.Contains(t, describe(feeds[1]), "LS_mode=COMMAND&LS_group=SUBS-dev1")
	prefs.AssertExpectations(t)
}

// TestManager_RegisterInvalidDevice tests that invalid devices are refused
// synchronously.
func TestManager_RegisterInvalidDevice(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.mgr.Register(nil), ErrInvalidDevice)
	assert.ErrorIs(t, h.mgr.Register(NewDevice("Windows", "app", "tok")), ErrInvalidDevice)
	assert.Equal(t, DeviceStateUnregistered, h.mgr.State())
}

// TestManager_RegisterBeforeSession tests that a registration waits for
// the session.
func TestManager_RegisterBeforeSession(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.mgr.Register(NewDevice(PlatformApple, "app", "tok")))
	assert.Empty(t, h.flush())

	h.start()
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "register PN_type=Apple&PN_appId=app&PN_deviceToken=tok", describe(reqs[0]))
}

// TestManager_RefreshStoredToken tests that a token stored by an earlier
// run is sent as the previous token.
func TestManager_RefreshStoredToken(t *testing.T) {
	prefs := &mockPreferences{}
	prefs.On("LoadDeviceToken", "com.example.app").Return("tok0", nil)
	prefs.On("SaveDeviceToken", "com.example.app", "tok1").Return(nil)

	h := newHarness(t, prefs)
	h.start()
	dev := NewDevice(PlatformGoogle, "com.example.app", "tok1")
	require.NoError(t, h.mgr.Register(dev))
	assert.Equal(t, "tok0", dev.PreviousDeviceToken())

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "register PN_type=Google&PN_appId=com.example.app"+
		"&PN_deviceToken=tok0&PN_newDeviceToken=tok1&LS_cause=refresh.token", describe(reqs[0]))

	h.feed("MPNREG,dev1,PUSH")
	assert.Empty(t, dev.PreviousDeviceToken())
	prefs.AssertExpectations(t)
}

// TestManager_ReplayRefreshRegister tests that a token refresh sent again
// after a recovery carries restore.token and keeps both tokens.
func TestManager_ReplayRefreshRegister(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()

	require.NoError(t, h.mgr.Register(NewDevice(PlatformGoogle, "com.example.app", "tok2")))
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "register PN_type=Google&PN_appId=com.example.app"+
		"&PN_deviceToken=tok1&PN_newDeviceToken=tok2&LS_cause=refresh.token", describe(reqs[0]))

	h.ctrl.PrepareForReplay(wire.CauseRecovery)
	reqs = h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "register PN_type=Google&PN_appId=com.example.app"+
		"&PN_deviceToken=tok1&PN_newDeviceToken=tok2&LS_cause=restore.token", describe(reqs[0]))
	assert.Equal(t, wire.CauseRestoreToken, reqs[0].Cause())
}

// TestManager_RefreshRegisteredToken tests registering the same application
// again with a new token.
func TestManager_RefreshRegisteredToken(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()

	dev := NewDevice(PlatformGoogle, "com.example.app", "tok2")
	rec := &deviceRecorder{}
	dev.AddListener(rec)
	require.NoError(t, h.mgr.Register(dev))

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "register PN_type=Google&PN_appId=com.example.app"+
		"&PN_deviceToken=tok1&PN_newDeviceToken=tok2&LS_cause=refresh.token", describe(reqs[0]))

	h.feed("MPNREG,dev1,PUSH")
	assert.Equal(t, DeviceStateRegistered, h.mgr.State())
	assert.Equal(t, []string{"status:REGISTERED", "registered"}, rec.events)
	// The feeds of the device are kept.
	assert.Empty(t, h.flush())
}

// TestManager_RegisterOtherApplication tests that registering a device of
// another application ends every subscription of the previous device.
func TestManager_RegisterOtherApplication(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, rec := newSub()
	h.activate(sub, false, "mpn1")
	pending, _ := newSub()
	require.NoError(t, h.mgr.Subscribe(pending, false))
	h.mgr.UnsubscribeFilter(FilterTriggered)
	h.mgr.ResetBadge()
	rec.events = nil

	require.NoError(t, h.mgr.Register(NewDevice(PlatformGoogle, "com.other.app", "tok9")))
	assert.Equal(t, StatusUnknown, sub.Status())
	assert.False(t, sub.IsActive())
	assert.Empty(t, sub.SubscriptionID())
	assert.Equal(t, []string{"status:UNKNOWN", "unsubscribed"}, rec.events)
	assert.False(t, pending.IsActive())
	assert.Empty(t, h.mgr.Subscriptions(FilterAll))

	reqs := h.flush()
	assert.Empty(t, byOp(reqs, wire.OpActivate))
	assert.Empty(t, byOp(reqs, wire.OpDeactivate))
	assert.Empty(t, byOp(reqs, wire.OpResetBadge))
	register := byOp(reqs, wire.OpRegister)
	require.Len(t, register, 1)
	assert.Equal(t, "register PN_type=Google&PN_appId=com.other.app&PN_deviceToken=tok9", describe(register[0]))

	h.feed(fmt.Sprintf("REQOK,%d", register[0].ID), "MPNREG,dev9,PUSH")
	assert.Equal(t, DeviceStateRegistered, h.mgr.State())
	assert.ErrorIs(t, h.mgr.Unsubscribe(sub), ErrNotActive)
	for _, req := range byOp(h.flush(), wire.OpDeactivate) {
		assert.NotContains(t, describe(req), "mpn1")
	}
}

// TestManager_DeviceChanged tests that a registration answered with another
// device id fails the device.
func TestManager_DeviceChanged(t *testing.T) {
	h := newHarness(t, nil)
	dev, rec := h.registered()

	h.end()
	h.start()
	reqs := h.flush()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "register PN_type=Google&PN_appId=com.example.app&PN_deviceToken=tok1&LS_cause=restore.token",
		describe(reqs[0]))

	h.feed("MPNREG,dev2,PUSH")
	assert.Equal(t, DeviceStateUnregistered, h.mgr.State())
	assert.Equal(t, DeviceUnknown, dev.Status())
	assert.Equal(t, []string{
		"status:UNKNOWN",
		"failed:62:DeviceId or Adapter Name has unexpectedly been changed",
	}, rec.events)
}

// TestManager_RegisterRefused tests REQERR on the register request.
func TestManager_RegisterRefused(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	dev := NewDevice(PlatformApple, "app", "tok")
	rec := &deviceRecorder{}
	dev.AddListener(rec)
	require.NoError(t, h.mgr.Register(dev))
	reqs := h.flush()
	require.Len(t, reqs, 1)

	h.feed(fmt.Sprintf("REQERR,%d,40,bad token", reqs[0].ID))
	assert.Equal(t, DeviceStateUnregistered, h.mgr.State())
	assert.Equal(t, []string{"failed:40:bad token"}, rec.events)
}

// TestManager_SuspendResume tests the device status feed.
func TestManager_SuspendResume(t *testing.T) {
	h := newHarness(t, nil)
	dev, rec := h.registered()

	h.feed("U,1,1,SUSPENDED|1000")
	assert.Equal(t, DeviceStateSuspended, h.mgr.State())
	assert.True(t, dev.IsSuspended())

	h.feed("U,1,1,ACTIVE|2000")
	assert.Equal(t, DeviceStateRegistered, h.mgr.State())
	assert.Equal(t, int64(2000), dev.StatusTimestamp())
	assert.Equal(t, []string{"status:SUSPENDED", "suspended", "status:REGISTERED", "resumed"}, rec.events)
}

// TestManager_DeviceFeedRefused tests that losing the device feed fails the
// registration.
func TestManager_DeviceFeedRefused(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	dev := NewDevice(PlatformApple, "app", "tok")
	rec := &deviceRecorder{}
	dev.AddListener(rec)
	h.register(dev)
	rec.events = nil

	h.feed("UNSUB,1")
	assert.Equal(t, DeviceStateUnregistered, h.mgr.State())
	require.Len(t, rec.events, 2)
	assert.Equal(t, "status:UNKNOWN", rec.events[0])
	assert.True(t, strings.HasPrefix(rec.events[1], "failed:0:"))
}

// TestManager_Activate tests activation, MPNOK and the subscription feed.
func TestManager_Activate(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, rec := newSub()

	require.NoError(t, h.mgr.Subscribe(sub, false))
	assert.Equal(t, StatusActive, sub.Status())
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "activate LS_subId=3&LS_mode=MERGE&LS_group=item&LS_schema=f1"+
		"&PN_deviceId=dev1&PN_notificationFormat=fmt", describe(reqs[0]))

	h.feed("MPNOK,3,mpn1")
	assert.Equal(t, []string{"status:ACTIVE", "status:SUBSCRIBED", "subscribed"}, rec.events)
	assert.Equal(t, "mpn1", sub.SubscriptionID())
	assert.True(t, sub.IsSubscribed())
	assert.Equal(t, []*Subscription{sub}, h.mgr.Subscriptions(FilterSubscribed))

	feeds := h.flush()
	require.Len(t, feeds, 1)
	assert.Contains(t, describe(feeds[0]), "LS_subId=4&LS_mode=MERGE&LS_group=SUB-dev1-mpn1")

	// The row of the SUBS feed names a known subscription.
	h.feed("U,2,1,mpn1|ADD")
	assert.Len(t, h.mgr.Subscriptions(FilterAll), 1)

	rec.events = nil
	h.feed("SUBOK,4,1,10", "U,4,1,TRIGGERED|3000|fmt2|#|item|f1|PUSH|MERGE|#|#")
	assert.Contains(t, rec.events, "prop:notification_format")
	assert.Contains(t, rec.events, "status:TRIGGERED")
	assert.Equal(t, "triggered", rec.events[len(rec.events)-1])
	assert.Equal(t, "fmt2", sub.ActualNotificationFormat())
	assert.Equal(t, StatusTriggered, sub.Status())
	assert.Equal(t, int64(3000), sub.StatusTimestamp())
	assert.Equal(t, []*Subscription{sub}, h.mgr.Subscriptions(FilterTriggered))
}

// TestManager_ActivateErrors tests the synchronous checks of Subscribe.
func TestManager_ActivateErrors(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.mgr.Subscribe(nil, false), ErrInvalidSubscription)
	assert.ErrorIs(t, h.mgr.Subscribe(NewSubscription(wire.ModeMerge, []string{"item"}, []string{"f1"}), false),
		ErrInvalidSubscription)

	sub, _ := newSub()
	require.NoError(t, h.mgr.Subscribe(sub, false))
	assert.ErrorIs(t, h.mgr.Subscribe(sub, false), ErrAlreadyActive)
	assert.ErrorIs(t, sub.SetDataAdapter("OTHER"), ErrAlreadyActive)
	assert.ErrorIs(t, h.mgr.Unsubscribe(NewSubscription(wire.ModeMerge, nil, nil)), ErrNotActive)
}

// TestManager_ActivateRefused tests REQERR on an activation.
func TestManager_ActivateRefused(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, rec := newSub()
	require.NoError(t, h.mgr.Subscribe(sub, false))
	reqs := h.flush()
	require.Len(t, reqs, 1)

	h.feed(fmt.Sprintf("REQERR,%d,22,bad format", reqs[0].ID))
	assert.Equal(t, []string{"status:ACTIVE", "status:UNKNOWN", "error:22"}, rec.events)
	assert.False(t, sub.IsActive())
	assert.Empty(t, h.mgr.Subscriptions(FilterAll))

	// A refused subscription can be submitted again.
	require.NoError(t, h.mgr.Subscribe(sub, false))
}

// TestManager_UnsubscribeBeforeSend tests that a subscription never sent
// is dropped without server interaction.
func TestManager_UnsubscribeBeforeSend(t *testing.T) {
	h := newHarness(t, nil)
	sub, rec := newSub()
	require.NoError(t, h.mgr.Subscribe(sub, false))
	require.NoError(t, h.mgr.Unsubscribe(sub))

	assert.Equal(t, []string{"status:ACTIVE", "status:UNKNOWN"}, rec.events)
	assert.False(t, sub.IsActive())
	assert.Empty(t, h.mgr.Subscriptions(FilterAll))

	h.registered()
	assert.Empty(t, h.flush())
}

// TestManager_Unsubscribe tests deactivation of a subscribed subscription.
func TestManager_Unsubscribe(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, rec := newSub()
	h.activate(sub, false, "mpn1")
	rec.events = nil

	require.NoError(t, h.mgr.Unsubscribe(sub))
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "deactivate PN_deviceId=dev1&PN_subscriptionId=mpn1", describe(reqs[0]))

	h.feed(fmt.Sprintf("REQOK,%d", reqs[0].ID))
	assert.Equal(t, []string{"status:UNKNOWN", "unsubscribed"}, rec.events)
	assert.False(t, sub.IsActive())
	assert.Empty(t, sub.SubscriptionID())
	assert.Empty(t, h.mgr.Subscriptions(FilterAll))
}

// TestManager_UnsubscribeRefused tests that a refused deactivation keeps the
// subscription.
func TestManager_UnsubscribeRefused(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, rec := newSub()
	h.activate(sub, false, "mpn1")
	rec.events = nil

	require.NoError(t, h.mgr.Unsubscribe(sub))
	reqs := h.flush()
	require.Len(t, reqs, 1)
	h.feed(fmt.Sprintf("REQERR,%d,45,denied", reqs[0].ID))

	assert.Equal(t, []string{"unsub-error:45"}, rec.events)
	assert.Equal(t, StatusSubscribed, sub.Status())
	assert.True(t, sub.IsActive())
}

// TestManager_UnsubscribeWhileActivating tests that an unsubscription
// waits for the MPNOK of an activation in flight.
func TestManager_UnsubscribeWhileActivating(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, _ := newSub()
	require.NoError(t, h.mgr.Subscribe(sub, false))
	require.Len(t, h.flush(), 1)

	require.NoError(t, h.mgr.Unsubscribe(sub))
	assert.Empty(t, h.flush())

	h.feed("MPNOK,3,mpn1")
	deactivate := byOp(h.flush(), wire.OpDeactivate)
	require.Len(t, deactivate, 1)
	assert.Equal(t, "deactivate PN_deviceId=dev1&PN_subscriptionId=mpn1", describe(deactivate[0]))
}

// TestManager_SnapshotAdoption tests that subscriptions listed by the
// server are created once the list is complete.
func TestManager_SnapshotAdoption(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	dev := NewDevice(PlatformApple, "app", "tok")
	rec := &deviceRecorder{}
	dev.AddListener(rec)
	h.register(dev)
	rec.events = nil

	h.feed("U,2,1,mpn9|ADD")
	assert.Empty(t, h.mgr.Subscriptions(FilterAll))

	h.feed("EOS,2,1")
	subs := h.mgr.Subscriptions(FilterAll)
	require.Len(t, subs, 1)
	assert.Equal(t, "mpn9", subs[0].SubscriptionID())
	assert.Equal(t, StatusSubscribed, subs[0].Status())
	assert.Equal(t, []string{"subs-updated"}, rec.events)
	feeds := h.flush()
	require.Len(t, feeds, 1)
	assert.Contains(t, describe(feeds[0]), "LS_group=SUB-dev1-mpn9")

	h.feed("U,2,1,mpn10|ADD")
	assert.Len(t, h.mgr.Subscriptions(FilterAll), 2)

	h.feed("U,2,1,mpn9|DELETE")
	subs = h.mgr.Subscriptions(FilterAll)
	require.Len(t, subs, 1)
	assert.Equal(t, "mpn10", subs[0].SubscriptionID())
	assert.Equal(t, []string{"subs-updated", "subs-updated", "subs-updated"}, rec.events)
}

// TestManager_CoalescedSharedFate tests that subscriptions bound to the same
// server subscription end together.
func TestManager_CoalescedSharedFate(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()

	sub1, rec1 := newSub()
	sub2, rec2 := newSub()
	require.NoError(t, h.mgr.Subscribe(sub1, true))
	require.NoError(t, h.mgr.Subscribe(sub2, true))
	reqs := h.flush()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasSuffix(describe(reqs[0]), "&PN_coalescing=true"))

	h.feed("MPNOK,3,mpn1", "MPNOK,4,mpn1")
	assert.Equal(t, "mpn1", sub1.SubscriptionID())
	assert.Equal(t, "mpn1", sub2.SubscriptionID())
	// One feed serves both.
	require.Len(t, h.flush(), 1)

	h.feed("MPNDEL,mpn1")
	assert.Equal(t, "unsubscribed", rec1.events[len(rec1.events)-1])
	assert.Equal(t, "unsubscribed", rec2.events[len(rec2.events)-1])
	assert.False(t, sub1.IsActive())
	assert.False(t, sub2.IsActive())

	sub3, rec3 := newSub()
	sub4, rec4 := newSub()
	h.activate(sub3, true, "mpn2")
	h.activate(sub4, true, "mpn2")
	h.feed("U,2,1,mpn2|ADD", "U,2,1,mpn2|DELETE")
	assert.Equal(t, "unsubscribed", rec3.events[len(rec3.events)-1])
	assert.Equal(t, "unsubscribed", rec4.events[len(rec4.events)-1])
	assert.Empty(t, h.mgr.Subscriptions(FilterAll))
}

// TestManager_CoalescedUnsubscribe tests that deactivating one member of a
// coalesced pair ends both.
func TestManager_CoalescedUnsubscribe(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub1, _ := newSub()
	sub2, rec2 := newSub()
	h.activate(sub1, true, "mpn1")
	h.activate(sub2, true, "mpn1")

	require.NoError(t, h.mgr.Unsubscribe(sub1))
	require.NoError(t, h.mgr.Unsubscribe(sub2))
	reqs := h.flush()
	require.Len(t, reqs, 1)

	h.feed(fmt.Sprintf("REQOK,%d", reqs[0].ID))
	assert.False(t, sub1.IsActive())
	assert.Equal(t, "unsubscribed", rec2.events[len(rec2.events)-1])
}

// TestManager_UnsubscribeFilter tests that filtered deactivations are sent
// one at a time.
func TestManager_UnsubscribeFilter(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub1, rec1 := newSub()
	sub2, rec2 := newSub()
	h.activate(sub1, false, "mpn1")
	h.activate(sub2, false, "mpn2")

	h.mgr.UnsubscribeFilter(FilterAll)
	h.mgr.UnsubscribeFilter(FilterTriggered)
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "deactivate PN_deviceId=dev1", describe(reqs[0]))

	h.feed(fmt.Sprintf("REQOK,%d", reqs[0].ID))
	assert.Equal(t, "unsubscribed", rec1.events[len(rec1.events)-1])
	assert.Equal(t, "unsubscribed", rec2.events[len(rec2.events)-1])

	next := byOp(h.flush(), wire.OpDeactivate)
	require.Len(t, next, 1)
	assert.Equal(t, "deactivate PN_deviceId=dev1&PN_subscriptionStatus=TRIGGERED", describe(next[0]))
}

// TestManager_Reconfigure tests that one pn_reconf per property is in
// flight and that a refused change is not rolled back.
func TestManager_Reconfigure(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, rec := newSub()
	h.activate(sub, false, "mpn1")
	rec.events = nil

	require.NoError(t, sub.SetNotificationFormat("a"))
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "pn_reconf PN_deviceId=dev1&PN_subscriptionId=mpn1&PN_notificationFormat=a", describe(reqs[0]))

	require.NoError(t, sub.SetNotificationFormat("b"))
	require.NoError(t, sub.SetNotificationFormat("c"))
	assert.Empty(t, h.flush())

	h.feed(fmt.Sprintf("REQERR,%d,30,refused", reqs[0].ID))
	assert.Equal(t, []string{"mod-error:30:notification_format"}, rec.events)
	assert.Equal(t, "c", sub.NotificationFormat())

	reqs = h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "pn_reconf PN_deviceId=dev1&PN_subscriptionId=mpn1&PN_notificationFormat=c", describe(reqs[0]))

	require.NoError(t, sub.SetTriggerExpression("x>1"))
	reqs = h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "pn_reconf PN_deviceId=dev1&PN_subscriptionId=mpn1&PN_trigger=x%3E1", describe(reqs[0]))
}

// TestManager_ReconfigureQueuedActivation tests that a change before the
// activation is sent goes into the activation.
func TestManager_ReconfigureQueuedActivation(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, _ := newSub()
	require.NoError(t, h.mgr.Subscribe(sub, false))
	require.NoError(t, sub.SetTriggerExpression("t"))

	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(describe(reqs[0]), "&PN_notificationFormat=fmt&PN_trigger=t"))
}

// TestManager_BadgeReset tests that REQOK and MPNZERO report one reset.
func TestManager_BadgeReset(t *testing.T) {
	h := newHarness(t, nil)
	_, rec := h.registered()

	h.mgr.ResetBadge()
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "reset_badge PN_deviceId=dev1", describe(reqs[0]))

	h.feed("MPNZERO,dev1", fmt.Sprintf("REQOK,%d", reqs[0].ID))
	assert.Equal(t, []string{"badge-reset"}, rec.events)
	assert.Empty(t, h.flush())

	h.mgr.ResetBadge()
	reqs = h.flush()
	require.Len(t, reqs, 1)
	h.feed(fmt.Sprintf("REQERR,%d,50,no badge", reqs[0].ID), "MPNZERO,dev1")
	assert.Equal(t, []string{"badge-reset", "badge-failed:50"}, rec.events)
}

// TestManager_ReplayOnRecovery tests that requests in flight are sent again
// after a recovery: the register with restore.token, the others with the
// recovery cause.
func TestManager_ReplayOnRecovery(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	require.NoError(t, h.mgr.Register(NewDevice(PlatformApple, "app", "tok")))
	require.Len(t, h.flush(), 1)

	h.ctrl.PrepareForReplay(wire.CauseRecovery)
	reqs := h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, "register PN_type=Apple&PN_appId=app&PN_deviceToken=tok&LS_cause=restore.token", describe(reqs[0]))
	h.feed(fmt.Sprintf("REQOK,%d", reqs[0].ID), "MPNREG,dev1,PUSH")
	require.Len(t, h.flush(), 2)
	h.feed("SUBOK,1,1,2", "SUBCMD,2,1,2,1,2", "EOS,2,1")

	sub, _ := newSub()
	require.NoError(t, h.mgr.Subscribe(sub, false))
	require.Len(t, h.flush(), 1)

	h.ctrl.PrepareForReplay(wire.CauseRecovery)
	reqs = h.flush()
	require.Len(t, reqs, 1)
	assert.Equal(t, wire.OpActivate, reqs[0].Op)
	assert.True(t, strings.HasSuffix(describe(reqs[0]), "&LS_cause=recovery"))

	h.feed("MPNOK,3,mpn1")
	assert.True(t, sub.IsSubscribed())
}

// TestManager_SessionEndResendsActivation tests that an activation in
// flight when the session ends is sent on the next session.
func TestManager_SessionEndResendsActivation(t *testing.T) {
	h := newHarness(t, nil)
	h.registered()
	sub, _ := newSub()
	require.NoError(t, h.mgr.Subscribe(sub, false))
	require.Len(t, h.flush(), 1)

	h.end()
	h.start()
	reqs := h.flush()
	ops := make([]string, len(reqs))
	for i, req := range reqs {
		ops[i] = req.Op
	}
	assert.Equal(t, []string{wire.OpRegister, wire.OpAdd, wire.OpAdd, wire.OpActivate}, ops)
	assert.Equal(t, "6", paramValue(reqs[3], wire.ParamSubID))

	h.feed("MPNREG,dev1,PUSH", "MPNOK,6,mpn1")
	assert.True(t, sub.IsSubscribed())
}

// TestDeviceState_String tests the state names.
func TestDeviceState_String(t *testing.T) {
	assert.Equal(t, "UNREGISTERED", DeviceStateUnregistered.String())
	assert.Equal(t, "PENDING_REGISTER", DeviceStatePendingRegister.String())
	assert.Equal(t, "REGISTERED", DeviceStateRegistered.String())
	assert.Equal(t, "SUSPENDED", DeviceStateSuspended.String())
	assert.Equal(t, "UNKNOWN", DeviceState(99).String())
}
