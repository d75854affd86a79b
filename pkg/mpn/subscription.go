package mpn

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Status is the status of an MPN subscription.
type Status uint8

const (
	// StatusUnknown: not subscribed.
	StatusUnknown Status = iota
	// StatusActive: activation requested, not yet confirmed.
	StatusActive
	// StatusSubscribed: confirmed by the server.
	StatusSubscribed
	// StatusTriggered: the trigger expression fired.
	StatusTriggered
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusActive:
		return "ACTIVE"
	case StatusSubscribed:
		return "SUBSCRIBED"
	case StatusTriggered:
		return "TRIGGERED"
	default:
		return "UNKNOWN"
	}
}

// Filter selects MPN subscriptions by status.
type Filter uint8

const (
	FilterAll Filter = iota
	FilterSubscribed
	FilterTriggered
)

// String returns the filter name.
func (f Filter) String() string {
	switch f {
	case FilterAll:
		return "ALL"
	case FilterSubscribed:
		return "SUBSCRIBED"
	case FilterTriggered:
		return "TRIGGERED"
	default:
		return "UNKNOWN"
	}
}

// ParseFilter parses a filter name. The empty string is FilterAll.
func ParseFilter(s string) (Filter, bool) {
	switch strings.ToUpper(s) {
	case "", "ALL":
		return FilterAll, true
	case "SUBSCRIBED":
		return FilterSubscribed, true
	case "TRIGGERED":
		return FilterTriggered, true
	}
	return FilterAll, false
}

// wireStatus returns the PN_subscriptionStatus value, empty for all.
func (f Filter) wireStatus() string {
	switch f {
	case FilterSubscribed:
		return "ACTIVE"
	case FilterTriggered:
		return "TRIGGERED"
	default:
		return ""
	}
}

func (f Filter) match(s Status) bool {
	switch f {
	case FilterSubscribed:
		return s == StatusSubscribed
	case FilterTriggered:
		return s == StatusTriggered
	default:
		return s != StatusUnknown
	}
}

// Property names reported by OnPropertyChanged and OnModificationError.
const (
	PropNotificationFormat = "notification_format"
	PropTrigger            = "trigger"
	PropMode               = "mode"
	PropGroup              = "group"
	PropSchema             = "schema"
	PropAdapter            = "adapter"
	PropBufferSize         = "requested_buffer_size"
	PropMaxFrequency       = "requested_max_frequency"
	PropStatusTimestamp    = "status_timestamp"
)

// SubscriptionListener receives the events of an MPN subscription.
type SubscriptionListener interface {
	OnSubscription(sub *Subscription)
	OnUnsubscription(sub *Subscription)
	OnSubscriptionError(sub *Subscription, code int, message string)
	OnUnsubscriptionError(sub *Subscription, code int, message string)
	OnTriggered(sub *Subscription)
	OnStatusChanged(sub *Subscription, status Status, timestamp int64)
	OnPropertyChanged(sub *Subscription, property string)
	OnModificationError(sub *Subscription, code int, message string, property string)
}

// BaseSubscriptionListener implements SubscriptionListener with no-ops.
type BaseSubscriptionListener struct{}

func (BaseSubscriptionListener) OnSubscription(*Subscription)                           {}
func (BaseSubscriptionListener) OnUnsubscription(*Subscription)                         {}
func (BaseSubscriptionListener) OnSubscriptionError(*Subscription, int, string)         {}
func (BaseSubscriptionListener) OnUnsubscriptionError(*Subscription, int, string)       {}
func (BaseSubscriptionListener) OnTriggered(*Subscription)                              {}
func (BaseSubscriptionListener) OnStatusChanged(*Subscription, Status, int64)           {}
func (BaseSubscriptionListener) OnPropertyChanged(*Subscription, string)                {}
func (BaseSubscriptionListener) OnModificationError(*Subscription, int, string, string) {}

var _ SubscriptionListener = BaseSubscriptionListener{}

// Subscription is a push subscription: items and fields whose updates are
// delivered to the device through the push gateway. Requested properties
// are set by the application; actual ones are confirmed by the server.
type Subscription struct {
	mu sync.RWMutex

	mode         wire.Mode
	items        []string
	group        string
	fields       []string
	schema       string
	dataAdapter  string
	bufferSize   string
	maxFrequency string
	format       string
	trigger      string

	actualFormat  string
	actualTrigger string

	status         Status
	timestamp      int64
	subscriptionID string

	listeners []SubscriptionListener

	// manager is set while the subscription is active.
	manager *Manager
}

// NewSubscription creates an MPN subscription to a list of items and fields.
func NewSubscription(mode wire.Mode, items, fields []string) *Subscription {
	return &Subscription{mode: mode, items: slices.Clone(items), fields: slices.Clone(fields)}
}

// NewGroupSubscription creates an MPN subscription to an item group and a
// field schema.
func NewGroupSubscription(mode wire.Mode, group, schema string) *Subscription {
	return &Subscription{mode: mode, group: group, schema: schema}
}

// Mode returns the subscription mode.
func (s *Subscription) Mode() wire.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Group returns the item group sent as LS_group.
func (s *Subscription) Group() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupLocked()
}

func (s *Subscription) groupLocked() string {
	if s.group != "" {
		return s.group
	}
	return strings.Join(s.items, " ")
}

// Schema returns the field schema sent as LS_schema.
func (s *Subscription) Schema() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaLocked()
}

func (s *Subscription) schemaLocked() string {
	if s.schema != "" {
		return s.schema
	}
	return strings.Join(s.fields, " ")
}

// DataAdapter returns LS_data_adapter.
func (s *Subscription) DataAdapter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataAdapter
}

func (s *Subscription) setIfInactive(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manager != nil {
		return ErrAlreadyActive
	}
	fn()
	return nil
}

// SetDataAdapter sets LS_data_adapter.
func (s *Subscription) SetDataAdapter(adapter string) error {
	return s.setIfInactive(func() { s.dataAdapter = adapter })
}

// SetRequestedBufferSize sets LS_requested_buffer_size.
func (s *Subscription) SetRequestedBufferSize(size subscription.BufferSize) error {
	return s.setIfInactive(func() { s.bufferSize = string(size) })
}

// SetRequestedMaxFrequency sets LS_requested_max_frequency.
func (s *Subscription) SetRequestedMaxFrequency(freq subscription.MaxFrequency) error {
	return s.setIfInactive(func() { s.maxFrequency = string(freq) })
}

// NotificationFormat returns the requested notification format.
func (s *Subscription) NotificationFormat() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format
}

// TriggerExpression returns the requested trigger expression.
func (s *Subscription) TriggerExpression() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trigger
}

// ActualNotificationFormat returns the format confirmed by the server.
func (s *Subscription) ActualNotificationFormat() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualFormat
}

// ActualTriggerExpression returns the trigger confirmed by the server.
func (s *Subscription) ActualTriggerExpression() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualTrigger
}

// SetNotificationFormat sets the notification format. On a subscribed
// subscription the change is sent as a pn_reconf request.
func (s *Subscription) SetNotificationFormat(format string) error {
	if format == "" {
		return fmt.Errorf("%w: empty notification format", ErrInvalidSubscription)
	}
	return s.setProperty(PropNotificationFormat, func() { s.format = format })
}

// SetTriggerExpression sets the trigger expression; empty removes it. On a
// subscribed subscription the change is sent as a pn_reconf request.
func (s *Subscription) SetTriggerExpression(trigger string) error {
	return s.setProperty(PropTrigger, func() { s.trigger = trigger })
}

func (s *Subscription) setProperty(property string, set func()) error {
	s.mu.Lock()
	set()
	m := s.manager
	s.mu.Unlock()

	if m != nil {
		m.post(func() { m.reconfigure(s, property) })
	}
	return nil
}

// Status returns the subscription status.
func (s *Subscription) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// StatusTimestamp returns the server time of the last status change.
func (s *Subscription) StatusTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timestamp
}

// SubscriptionID returns the server MPN subscription id, empty until
// confirmed. Coalesced subscriptions share it.
func (s *Subscription) SubscriptionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptionID
}

// IsActive reports whether the subscription was submitted and not yet
// unsubscribed.
func (s *Subscription) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager != nil
}

// IsSubscribed reports whether the server confirmed the subscription.
func (s *Subscription) IsSubscribed() bool {
	st := s.Status()
	return st == StatusSubscribed || st == StatusTriggered
}

// AddListener appends a listener.
func (s *Subscription) AddListener(l SubscriptionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener removes a listener.
func (s *Subscription) RemoveListener(l SubscriptionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = slices.DeleteFunc(s.listeners, func(x SubscriptionListener) bool { return x == l })
}

// Listeners returns a copy of the listener list.
func (s *Subscription) Listeners() []SubscriptionListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.listeners)
}

// Validate checks the subscription before activation.
func (s *Subscription) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case !s.mode.Valid():
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSubscription, s.mode)
	case len(s.items) == 0 && s.group == "":
		return fmt.Errorf("%w: no items", ErrInvalidSubscription)
	case len(s.fields) == 0 && s.schema == "":
		return fmt.Errorf("%w: no fields", ErrInvalidSubscription)
	case s.format == "":
		return fmt.Errorf("%w: no notification format", ErrInvalidSubscription)
	}
	for _, item := range s.items {
		if !subscription.ValidItemName(item) {
			return fmt.Errorf("%w: item name %q", ErrInvalidSubscription, item)
		}
	}
	return nil
}

// activateParams returns the parameters of the activate request.
func (s *Subscription) activateParams(subID, deviceID string, coalescing bool) wire.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p wire.Params
	p.Add(wire.ParamSubID, subID)
	p.Add(wire.ParamMode, string(s.mode))
	p.Add(wire.ParamGroup, s.groupLocked())
	p.Add(wire.ParamSchema, s.schemaLocked())
	if s.dataAdapter != "" {
		p.Add(wire.ParamDataAdapter, s.dataAdapter)
	}
	if s.bufferSize != "" {
		p.Add(wire.ParamBufferSize, s.bufferSize)
	}
	if s.maxFrequency != "" {
		p.Add(wire.ParamMaxFrequency, s.maxFrequency)
	}
	p.Add(wire.ParamPNDeviceID, deviceID)
	p.Add(wire.ParamPNFormat, s.format)
	if s.trigger != "" {
		p.Add(wire.ParamPNTrigger, s.trigger)
	}
	if coalescing {
		p.Add(wire.ParamPNCoalescing, "true")
	}
	return p
}

// requested returns the requested value of a reconfigurable property.
func (s *Subscription) requested(property string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if property == PropTrigger {
		return s.trigger
	}
	return s.format
}

func (s *Subscription) attach(m *Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manager != nil {
		return ErrAlreadyActive
	}
	s.manager = m
	return nil
}

func (s *Subscription) detach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.manager != nil
	s.manager = nil
	return was
}

// setStatus updates the status and reports whether it changed.
func (s *Subscription) setStatus(status Status, timestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.status != status
	s.status = status
	if timestamp != 0 {
		s.timestamp = timestamp
	}
	return changed
}

func (s *Subscription) setSubscriptionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptionID = id
}

// applyServerProperty stores a property read from the server and reports
// whether it changed.
func (s *Subscription) applyServerProperty(property, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dst *string
	switch property {
	case PropNotificationFormat:
		dst = &s.actualFormat
	case PropTrigger:
		dst = &s.actualTrigger
	case PropMode:
		if value == "" || wire.Mode(value) == s.mode {
			return false
		}
		s.mode = wire.Mode(value)
		return true
	case PropGroup:
		dst = &s.group
	case PropSchema:
		dst = &s.schema
	case PropAdapter:
		dst = &s.dataAdapter
	case PropBufferSize:
		dst = &s.bufferSize
	case PropMaxFrequency:
		dst = &s.maxFrequency
	default:
		return false
	}
	if *dst == value {
		return false
	}
	*dst = value
	return true
}
