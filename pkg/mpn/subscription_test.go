package mpn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// TestSubscription_Validate tests the activation checks.
func TestSubscription_Validate(t *testing.T) {
	withFormat := func(s *Subscription) *Subscription {
		_ = s.SetNotificationFormat("{}")
		return s
	}

	tests := []struct {
		name    string
		sub     *Subscription
		wantErr bool
	}{
		{"items and fields", withFormat(NewSubscription(wire.ModeMerge, []string{"a"}, []string{"f"})), false},
		{"group and schema", withFormat(NewGroupSubscription(wire.ModeDistinct, "g", "s")), false},
		{"bad mode", withFormat(NewSubscription("SOMETIMES", []string{"a"}, []string{"f"})), true},
		{"no items", withFormat(NewSubscription(wire.ModeMerge, nil, []string{"f"})), true},
		{"no fields", withFormat(NewSubscription(wire.ModeMerge, []string{"a"}, nil)), true},
		{"no format", NewSubscription(wire.ModeMerge, []string{"a"}, []string{"f"}), true},
		{"bad item", withFormat(NewSubscription(wire.ModeMerge, []string{"42"}, []string{"f"})), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSubscription)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestSubscription_ActivateParams tests the optional activation parameters.
func TestSubscription_ActivateParams(t *testing.T) {
	sub := NewGroupSubscription(wire.ModeMerge, "g", "s")
	require.NoError(t, sub.SetDataAdapter("QUOTES"))
	require.NoError(t, sub.SetRequestedBufferSize(subscription.BufferLimit(5)))
	require.NoError(t, sub.SetRequestedMaxFrequency(subscription.FrequencyLimit(1.5)))
	require.NoError(t, sub.SetNotificationFormat("{a}"))
	require.NoError(t, sub.SetTriggerExpression("x"))

	assert.Equal(t, "LS_subId=7&LS_mode=MERGE&LS_group=g&LS_schema=s&LS_data_adapter=QUOTES"+
		"&LS_requested_buffer_size=5&LS_requested_max_frequency=1.5"+
		"&PN_deviceId=dev&PN_notificationFormat=%7Ba%7D&PN_trigger=x&PN_coalescing=true",
		sub.activateParams("7", "dev", true).Encode())
}

// TestFilter tests filter names and matching.
func TestFilter(t *testing.T) {
	f, ok := ParseFilter("triggered")
	assert.True(t, ok)
	assert.Equal(t, FilterTriggered, f)
	f, ok = ParseFilter("")
	assert.True(t, ok)
	assert.Equal(t, FilterAll, f)
	_, ok = ParseFilter("pending")
	assert.False(t, ok)

	assert.True(t, FilterAll.match(StatusActive))
	assert.False(t, FilterAll.match(StatusUnknown))
	assert.True(t, FilterSubscribed.match(StatusSubscribed))
	assert.False(t, FilterSubscribed.match(StatusTriggered))
	assert.Equal(t, "ACTIVE", FilterSubscribed.wireStatus())
	assert.Empty(t, FilterAll.wireStatus())
	assert.Equal(t, "SUBSCRIBED", FilterSubscribed.String())
}

// TestStatus_String tests the status names.
func TestStatus_String(t *testing.T) {
	assert.Equal(t, "UNKNOWN", StatusUnknown.String())
	assert.Equal(t, "ACTIVE", StatusActive.String())
	assert.Equal(t, "SUBSCRIBED", StatusSubscribed.String())
	assert.Equal(t, "TRIGGERED", StatusTriggered.String())
}
