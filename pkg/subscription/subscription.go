package subscription

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Subscription errors.
var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrAlreadyActive       = errors.New("subscription already active")
	ErrNotActive           = errors.New("subscription not active")
	ErrActive              = errors.New("subscription cannot be changed while active")
)

// Snapshot is the requested snapshot. Positive values are a snapshot
// length, valid in DISTINCT mode only.
type Snapshot int

const (
	// SnapshotDefault requests a snapshot in every mode but RAW.
	SnapshotDefault Snapshot = 0
	SnapshotYes     Snapshot = -1
	SnapshotNo      Snapshot = -2
)

// String returns the LS_snapshot form of the request.
func (s Snapshot) String() string {
	switch {
	case s == SnapshotDefault:
		return "DEFAULT"
	case s == SnapshotYes:
		return "true"
	case s == SnapshotNo:
		return "false"
	case s > 0:
		return strconv.Itoa(int(s))
	default:
		return "UNKNOWN"
	}
}

// MaxFrequency is the requested maximum update frequency.
type MaxFrequency string

const (
	FrequencyDefault    MaxFrequency = ""
	FrequencyUnlimited  MaxFrequency = "unlimited"
	FrequencyUnfiltered MaxFrequency = "unfiltered"
)

// FrequencyLimit requests at most updatesPerSecond updates per second.
func FrequencyLimit(updatesPerSecond float64) MaxFrequency {
	return MaxFrequency(strconv.FormatFloat(updatesPerSecond, 'f', -1, 64))
}

func (f MaxFrequency) valid() bool {
	switch f {
	case FrequencyDefault, FrequencyUnlimited, FrequencyUnfiltered:
		return true
	}
	v, err := strconv.ParseFloat(string(f), 64)
	return err == nil && v > 0
}

// BufferSize is the requested buffer size.
type BufferSize string

const (
	BufferDefault   BufferSize = ""
	BufferUnlimited BufferSize = "unlimited"
)

// BufferLimit requests a buffer of n updates.
func BufferLimit(n int) BufferSize {
	return BufferSize(strconv.Itoa(n))
}

func (b BufferSize) valid() bool {
	switch b {
	case BufferDefault, BufferUnlimited:
		return true
	}
	n, err := strconv.Atoi(string(b))
	return err == nil && n > 0
}

// Command field values of COMMAND mode.
const (
	CommandAdd    = "ADD"
	CommandUpdate = "UPDATE"
	CommandDelete = "DELETE"
)

// Field names a COMMAND subscription must carry when fields are listed.
const (
	KeyField     = "key"
	CommandField = "command"
)

// ErrCodeInvalidKey is reported when a COMMAND key is not a valid item name.
const ErrCodeInvalidKey = 14

// Subscription is an application subscription. Its configuration can only
// be changed while it is inactive, except for the requested frequency.
type Subscription struct {
	mu sync.RWMutex

	mode   wire.Mode
	items  []string
	group  string
	fields []string
	schema string

	dataAdapter  string
	snapshot     Snapshot
	maxFrequency MaxFrequency
	bufferSize   BufferSize

	secondFields  []string
	secondSchema  string
	secondAdapter string

	listeners []Listener

	active     bool
	subscribed bool
	internal   bool
	keyPos     int
	cmdPos     int

	// registry is set while the subscription is active.
	registry *Registry

	// boundID is the subId of the current Manager, 0 if unbound. Engine only.
	boundID int
}

// New creates a subscription to a list of items and fields.
func New(mode wire.Mode, items, fields []string) *Subscription {
	return &Subscription{
		mode:   mode,
		items:  slices.Clone(items),
		fields: slices.Clone(fields),
	}
}

// NewGroup creates a subscription to an item group and field schema known
// to the Metadata Adapter.
func NewGroup(mode wire.Mode, group, schema string) *Subscription {
	return &Subscription{mode: mode, group: group, schema: schema}
}

// Mode returns the subscription mode.
func (s *Subscription) Mode() wire.Mode { return s.mode }

// Items returns the item names, nil for a group subscription.
func (s *Subscription) Items() []string { return slices.Clone(s.items) }

// Fields returns the field names, nil for a schema subscription.
func (s *Subscription) Fields() []string { return slices.Clone(s.fields) }

// Group returns the item group sent as LS_group.
func (s *Subscription) Group() string {
	if s.group != "" {
		return s.group
	}
	return strings.Join(s.items, " ")
}

// Schema returns the field schema sent as LS_schema.
func (s *Subscription) Schema() string {
	if s.schema != "" {
		return s.schema
	}
	return strings.Join(s.fields, " ")
}

func (s *Subscription) setIfInactive(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ErrActive
	}
	fn()
	return nil
}

// SetDataAdapter sets LS_data_adapter.
func (s *Subscription) SetDataAdapter(adapter string) error {
	return s.setIfInactive(func() { s.dataAdapter = adapter })
}

// SetRequestedSnapshot sets the snapshot request.
func (s *Subscription) SetRequestedSnapshot(snapshot Snapshot) error {
	return s.setIfInactive(func() { s.snapshot = snapshot })
}

// SetRequestedBufferSize sets LS_requested_buffer_size.
func (s *Subscription) SetRequestedBufferSize(size BufferSize) error {
	if !size.valid() {
		return fmt.Errorf("%w: buffer size %q", ErrInvalidSubscription, size)
	}
	return s.setIfInactive(func() { s.bufferSize = size })
}

// SetRequestedMaxFrequency sets LS_requested_max_frequency. On an active
// subscription the change is sent to the server as a reconf request.
func (s *Subscription) SetRequestedMaxFrequency(freq MaxFrequency) error {
	if !freq.valid() {
		return fmt.Errorf("%w: max frequency %q", ErrInvalidSubscription, freq)
	}

	s.mu.Lock()
	if s.active && (freq == FrequencyUnfiltered || s.maxFrequency == FrequencyUnfiltered) && freq != s.maxFrequency {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot switch to or from unfiltered while active", ErrActive)
	}
	s.maxFrequency = freq
	reg := s.registry
	s.mu.Unlock()

	if reg != nil {
		reg.post(func() { reg.reconf(s) })
	}
	return nil
}

// SetCommandSecondLevelFields sets the second-level fields of a COMMAND
// subscription.
func (s *Subscription) SetCommandSecondLevelFields(fields []string) error {
	return s.setIfInactive(func() {
		s.secondFields = slices.Clone(fields)
		s.secondSchema = ""
	})
}

// SetCommandSecondLevelSchema sets the second-level field schema of a
// COMMAND subscription.
func (s *Subscription) SetCommandSecondLevelSchema(schema string) error {
	return s.setIfInactive(func() {
		s.secondSchema = schema
		s.secondFields = nil
	})
}

// SetCommandSecondLevelDataAdapter sets the data adapter of the second
// level.
func (s *Subscription) SetCommandSecondLevelDataAdapter(adapter string) error {
	return s.setIfInactive(func() { s.secondAdapter = adapter })
}

// AddListener appends a listener. Listeners are called in the order they
// were added.
func (s *Subscription) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener removes a listener.
func (s *Subscription) RemoveListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = slices.DeleteFunc(s.listeners, func(x Listener) bool { return x == l })
}

// Listeners returns a copy of the listener list.
func (s *Subscription) Listeners() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.listeners)
}

// IsActive reports whether the subscription was subscribed and not yet
// unsubscribed.
func (s *Subscription) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// IsSubscribed reports whether the server confirmed the subscription in the
// current session.
func (s *Subscription) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

// CommandKeyPosition returns the 1-based position of the key field, 0 until
// a COMMAND subscription is confirmed.
func (s *Subscription) CommandKeyPosition() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyPos
}

// CommandPosition returns the 1-based position of the command field.
func (s *Subscription) CommandPosition() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cmdPos
}

// Validate checks the configuration.
func (s *Subscription) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validate()
}

func (s *Subscription) validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidSubscription, fmt.Sprintf(format, args...))
	}

	if !s.mode.Valid() {
		return invalid("unknown mode %q", s.mode)
	}
	if len(s.items) == 0 && s.group == "" {
		return invalid("no items")
	}
	if len(s.fields) == 0 && s.schema == "" {
		return invalid("no fields")
	}
	for _, item := range s.items {
		if !ValidItemName(item) {
			return invalid("item name %q", item)
		}
	}
	for _, field := range s.fields {
		if field == "" || strings.ContainsAny(field, " \t\r\n") {
			return invalid("field name %q", field)
		}
	}
	switch {
	case s.snapshot > 0 && s.mode != wire.ModeDistinct:
		return invalid("snapshot length requires DISTINCT mode")
	case s.snapshot == SnapshotYes && s.mode == wire.ModeRaw:
		return invalid("RAW mode has no snapshot")
	case s.snapshot < SnapshotNo:
		return invalid("snapshot %d", s.snapshot)
	}
	if s.mode == wire.ModeCommand && len(s.fields) > 0 {
		if !slices.Contains(s.fields, KeyField) || !slices.Contains(s.fields, CommandField) {
			return invalid("COMMAND mode requires the %q and %q fields", KeyField, CommandField)
		}
	}
	if s.hasSecondLevel() && s.mode != wire.ModeCommand {
		return invalid("second-level fields require COMMAND mode")
	}
	return nil
}

func (s *Subscription) hasSecondLevel() bool {
	return len(s.secondFields) > 0 || s.secondSchema != ""
}

func (s *Subscription) twoLevel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode == wire.ModeCommand && s.hasSecondLevel()
}

func (s *Subscription) snapshotRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wantsSnapshot()
}

func (s *Subscription) requestedMaxFrequency() MaxFrequency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxFrequency
}

func (s *Subscription) isInternal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.internal
}

// wantsSnapshot reports whether updates may be snapshot.
func (s *Subscription) wantsSnapshot() bool {
	switch {
	case s.mode == wire.ModeRaw, s.snapshot == SnapshotNo:
		return false
	default:
		return true
	}
}

// addParams returns the parameters of the add request for subID.
func (s *Subscription) addParams(subID int) wire.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p wire.Params
	p.Add(wire.ParamSubID, strconv.Itoa(subID))
	p.Add(wire.ParamMode, string(s.mode))
	p.Add(wire.ParamGroup, s.Group())
	p.Add(wire.ParamSchema, s.Schema())
	if s.dataAdapter != "" {
		p.Add(wire.ParamDataAdapter, s.dataAdapter)
	}
	switch {
	case s.snapshot > 0:
		p.Add(wire.ParamSnapshot, strconv.Itoa(int(s.snapshot)))
	case s.wantsSnapshot():
		p.Add(wire.ParamSnapshot, "true")
	}
	if s.maxFrequency != FrequencyDefault {
		p.Add(wire.ParamMaxFrequency, string(s.maxFrequency))
	}
	if s.bufferSize != BufferDefault {
		p.Add(wire.ParamBufferSize, string(s.bufferSize))
	}
	return p
}

// secondLevel builds the subscription of the second level for key.
func (s *Subscription) secondLevel(key string) *Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Subscription{
		mode:         wire.ModeMerge,
		items:        []string{key},
		fields:       slices.Clone(s.secondFields),
		schema:       s.secondSchema,
		dataAdapter:  s.secondAdapter,
		snapshot:     SnapshotYes,
		maxFrequency: s.maxFrequency,
		internal:     true,
		active:       true,
	}
}

// fieldNames returns the names by position, first level then second level,
// or nil when the schema is not a list.
func (s *Subscription) fieldNames(nFields int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.fields) == 0 || len(s.fields) != nFields {
		return nil
	}
	return append(slices.Clone(s.fields), s.secondFields...)
}

func (s *Subscription) itemName(pos int) string {
	if pos >= 1 && pos <= len(s.items) {
		return s.items[pos-1]
	}
	return ""
}

// activate marks the subscription active for reg.
func (s *Subscription) activate(reg *Registry, internal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ErrAlreadyActive
	}
	if err := s.validate(); err != nil {
		return err
	}
	s.active = true
	s.internal = internal
	s.registry = reg
	return nil
}

// deactivate clears the active flag and reports whether it was set.
func (s *Subscription) deactivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.active
	s.active = false
	s.registry = nil
	return was
}

func (s *Subscription) setSubscribed(keyPos, cmdPos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = true
	s.keyPos = keyPos
	s.cmdPos = cmdPos
}

func (s *Subscription) clearSubscribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = false
}

// ValidItemName reports whether name can be used as an item name: not
// empty, no whitespace, not a number.
func ValidItemName(name string) bool {
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return false
	}
	_, err := strconv.Atoi(name)
	return err != nil
}
