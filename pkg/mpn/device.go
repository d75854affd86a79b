package mpn

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// MPN errors.
var (
	ErrInvalidDevice       = errors.New("invalid device")
	ErrInvalidSubscription = errors.New("invalid MPN subscription")
	ErrNotRegistered       = errors.New("device not registered")
	ErrAlreadyActive       = errors.New("MPN subscription already active")
	ErrNotActive           = errors.New("MPN subscription not active")
)

// ErrCodeDeviceChanged is reported when a registration returns a device id
// or adapter other than the ones already confirmed.
const ErrCodeDeviceChanged = 62

// Platform is the PN_type of a device.
type Platform string

// Supported platforms.
const (
	PlatformApple  Platform = "Apple"
	PlatformGoogle Platform = "Google"
)

// DeviceStatus is the status of a device as seen by the application.
type DeviceStatus uint8

const (
	DeviceUnknown DeviceStatus = iota
	DeviceRegistered
	DeviceSuspended
)

// String returns the status name.
func (s DeviceStatus) String() string {
	switch s {
	case DeviceUnknown:
		return "UNKNOWN"
	case DeviceRegistered:
		return "REGISTERED"
	case DeviceSuspended:
		return "SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// DeviceListener receives the events of a Device.
type DeviceListener interface {
	OnRegistered(dev *Device)
	OnRegistrationFailed(dev *Device, code int, message string)
	OnSuspended(dev *Device)
	OnResumed(dev *Device)
	OnStatusChanged(dev *Device, status DeviceStatus, timestamp int64)
	OnSubscriptionsUpdated(dev *Device)
	OnBadgeReset(dev *Device)
	OnBadgeResetFailed(dev *Device, code int, message string)
}

// BaseDeviceListener implements DeviceListener with no-ops, for embedding.
type BaseDeviceListener struct{}

func (BaseDeviceListener) OnRegistered(*Device)                         {}
func (BaseDeviceListener) OnRegistrationFailed(*Device, int, string)    {}
func (BaseDeviceListener) OnSuspended(*Device)                          {}
func (BaseDeviceListener) OnResumed(*Device)                            {}
func (BaseDeviceListener) OnStatusChanged(*Device, DeviceStatus, int64) {}
func (BaseDeviceListener) OnSubscriptionsUpdated(*Device)               {}
func (BaseDeviceListener) OnBadgeReset(*Device)                         {}
func (BaseDeviceListener) OnBadgeResetFailed(*Device, int, string)      {}

var _ DeviceListener = BaseDeviceListener{}

// Device is a push notification target: one application on one physical
// device. The server identity is filled in by registration.
type Device struct {
	mu sync.RWMutex

	platform Platform
	appID    string
	token    string

	// prevToken is the token stored by an earlier run, sent when it
	// differs from token.
	prevToken string

	deviceID  string
	adapter   string
	status    DeviceStatus
	timestamp int64

	listeners []DeviceListener
}

// NewDevice creates an unregistered device.
func NewDevice(platform Platform, appID, token string) *Device {
	return &Device{platform: platform, appID: appID, token: token}
}

// Validate checks the device fields.
func (d *Device) Validate() error {
	switch {
	case d.platform != PlatformApple && d.platform != PlatformGoogle:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidDevice, d.platform)
	case d.appID == "":
		return fmt.Errorf("%w: missing application id", ErrInvalidDevice)
	case d.token == "":
		return fmt.Errorf("%w: missing device token", ErrInvalidDevice)
	}
	return nil
}

// Platform returns the platform.
func (d *Device) Platform() Platform { return d.platform }

// ApplicationID returns the application id.
func (d *Device) ApplicationID() string { return d.appID }

// DeviceToken returns the current device token.
func (d *Device) DeviceToken() string { return d.token }

// PreviousDeviceToken returns the token found in the preferences store, if
// it differed from the current one.
func (d *Device) PreviousDeviceToken() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prevToken
}

// DeviceID returns the server-assigned device id, empty until registered.
func (d *Device) DeviceID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.deviceID
}

// AdapterName returns the adapter that registered the device.
func (d *Device) AdapterName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.adapter
}

// Status returns the device status.
func (d *Device) Status() DeviceStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// StatusTimestamp returns the server time of the last status change, in
// milliseconds since the epoch.
func (d *Device) StatusTimestamp() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.timestamp
}

// IsRegistered reports whether the device is registered, suspended or not.
func (d *Device) IsRegistered() bool {
	return d.Status() != DeviceUnknown
}

// IsSuspended reports whether the server suspended the device.
func (d *Device) IsSuspended() bool {
	return d.Status() == DeviceSuspended
}

// AddListener appends a listener.
func (d *Device) AddListener(l DeviceListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// RemoveListener removes a listener.
func (d *Device) RemoveListener(l DeviceListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = slices.DeleteFunc(d.listeners, func(x DeviceListener) bool { return x == l })
}

// Listeners returns a copy of the listener list.
func (d *Device) Listeners() []DeviceListener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.listeners)
}

func (d *Device) setPrevToken(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prevToken = token
}

func (d *Device) setIdentity(deviceID, adapter string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deviceID = deviceID
	d.adapter = adapter
}

// setStatus updates the status and reports whether it changed.
func (d *Device) setStatus(status DeviceStatus, timestamp int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	changed := d.status != status
	d.status = status
	if timestamp != 0 {
		d.timestamp = timestamp
	}
	return changed
}
