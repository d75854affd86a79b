package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// TestSubscription_Validate tests the checks applied when subscribing.
func TestSubscription_Validate(t *testing.T) {
	tests := []struct {
		name  string
		sub   func() *Subscription
		valid bool
	}{
		{
			name:  "merge list",
			sub:   func() *Subscription { return mergeSub() },
			valid: true,
		},
		{
			name:  "group and schema",
			sub:   func() *Subscription { return NewGroup(wire.ModeMerge, "top10", "quote") },
			valid: true,
		},
		{
			name:  "bad mode",
			sub:   func() *Subscription { return New("MIXED", []string{"a"}, []string{"f"}) },
			valid: false,
		},
		{
			name:  "no items",
			sub:   func() *Subscription { return New(wire.ModeMerge, nil, []string{"f"}) },
			valid: false,
		},
		{
			name:  "no fields",
			sub:   func() *Subscription { return New(wire.ModeMerge, []string{"a"}, nil) },
			valid: false,
		},
		{
			name:  "numeric item",
			sub:   func() *Subscription { return New(wire.ModeMerge, []string{"12"}, []string{"f"}) },
			valid: false,
		},
		{
			name:  "item with space",
			sub:   func() *Subscription { return New(wire.ModeMerge, []string{"a b"}, []string{"f"}) },
			valid: false,
		},
		{
			name:  "empty field",
			sub:   func() *Subscription { return New(wire.ModeMerge, []string{"a"}, []string{""}) },
			valid: false,
		},
		{
			name: "snapshot length outside DISTINCT",
			sub: func() *Subscription {
				s := mergeSub()
				_ = s.SetRequestedSnapshot(Snapshot(5))
				return s
			},
			valid: false,
		},
		{
			name: "snapshot length in DISTINCT",
			sub: func() *Subscription {
				s := New(wire.ModeDistinct, []string{"news"}, []string{"title"})
				_ = s.SetRequestedSnapshot(Snapshot(5))
				return s
			},
			valid: true,
		},
		{
			name: "RAW snapshot",
			sub: func() *Subscription {
				s := New(wire.ModeRaw, []string{"a"}, []string{"f"})
				_ = s.SetRequestedSnapshot(SnapshotYes)
				return s
			},
			valid: false,
		},
		{
			name:  "COMMAND without key",
			sub:   func() *Subscription { return New(wire.ModeCommand, []string{"a"}, []string{"command", "x"}) },
			valid: false,
		},
		{
			name: "second level outside COMMAND",
			sub: func() *Subscription {
				s := mergeSub()
				_ = s.SetCommandSecondLevelSchema("prices")
				return s
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub().Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSubscription)
			}
		})
	}
}

// TestSubscription_Setters tests argument checks of the setters.
func TestSubscription_Setters(t *testing.T) {
	sub := mergeSub()
	assert.ErrorIs(t, sub.SetRequestedMaxFrequency("fast"), ErrInvalidSubscription)
	assert.ErrorIs(t, sub.SetRequestedMaxFrequency(FrequencyLimit(-1)), ErrInvalidSubscription)
	assert.ErrorIs(t, sub.SetRequestedBufferSize(BufferLimit(0)), ErrInvalidSubscription)
	assert.NoError(t, sub.SetRequestedBufferSize(BufferUnlimited))
	assert.NoError(t, sub.SetRequestedMaxFrequency(FrequencyUnfiltered))

	assert.Equal(t, "item1 item2", sub.Group())
	assert.Equal(t, "f1 f2", sub.Schema())
	assert.Equal(t, []string{"item1", "item2"}, sub.Items())
	assert.False(t, sub.IsActive())
}

// TestSubscription_Listeners tests listener registration.
func TestSubscription_Listeners(t *testing.T) {
	sub := mergeSub()
	a, b := &eventRecorder{}, &eventRecorder{}
	sub.AddListener(a)
	sub.AddListener(b)
	sub.RemoveListener(a)
	require.Len(t, sub.Listeners(), 1)
	assert.Same(t, b, sub.Listeners()[0])
}

func TestSnapshotString(t *testing.T) {
	assert.Equal(t, "true", SnapshotYes.String())
	assert.Equal(t, "false", SnapshotNo.String())
	assert.Equal(t, "7", Snapshot(7).String())
}

func TestValidItemName(t *testing.T) {
	assert.True(t, ValidItemName("AAPL"))
	assert.True(t, ValidItemName("item-1"))
	assert.False(t, ValidItemName(""))
	assert.False(t, ValidItemName("42"))
	assert.False(t, ValidItemName("a\tb"))
}

// TestItemUpdate_SchemaSubscription tests that updates of schema
// subscriptions only answer by position.
func TestItemUpdate_SchemaSubscription(t *testing.T) {
	u := newItemUpdate("", 3, false, nil, map[int]*string{1: ptr("x")}, []int{1})
	assert.Equal(t, 3, u.ItemPos())
	assert.Empty(t, u.ItemName())
	assert.Nil(t, u.ValueByName("f1"))
	assert.Empty(t, u.Fields())
	assert.Equal(t, map[int]*string{1: ptr("x")}, u.ChangedFieldsByPosition())
}
