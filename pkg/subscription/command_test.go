package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

func commandSub(t *testing.T, second bool) *Subscription {
	t.Helper()
	sub := New(wire.ModeCommand, []string{"portfolio"}, []string{"key", "command"})
	if second {
		require.NoError(t, sub.SetCommandSecondLevelFields([]string{"price"}))
		require.NoError(t, sub.SetCommandSecondLevelDataAdapter("QUOTES"))
	}
	return sub
}

// startCommand subscribes sub and confirms it with SUBCMD.
func startCommand(t *testing.T, h *harness, sub *Subscription) *eventRecorder {
	t.Helper()
	h.reg.OnSessionStarted(false)
	rec := h.subscribe(sub)
	h.flush()
	require.NoError(t, h.feed("SUBCMD,1,1,2,1,2"))
	return rec
}

// TestCommand_Rows tests ADD, UPDATE and DELETE of one-level COMMAND rows.
func TestCommand_Rows(t *testing.T) {
	h := newHarness(t)
	sub := commandSub(t, false)
	rec := startCommand(t, h, sub)
	assert.Equal(t, 1, sub.CommandKeyPosition())
	assert.Equal(t, 2, sub.CommandPosition())

	require.NoError(t, h.feed("U,1,1,A|ADD", "U,1,1,B|", "U,1,1,A|UPDATE", "U,1,1,A|ADD", "U,1,1,B|DELETE"))
	require.Len(t, rec.updates, 5)

	assert.Equal(t, ptr("A"), rec.updates[0].ValueByName("key"))
	assert.Equal(t, ptr(CommandAdd), rec.updates[0].ValueByName("command"))
	assert.True(t, rec.updates[0].IsSnapshot())

	// Unchanged command field: B inherits ADD from the previous line.
	assert.Equal(t, ptr("B"), rec.updates[1].Value(1))
	assert.Equal(t, ptr(CommandAdd), rec.updates[1].Value(2))

	assert.Equal(t, ptr(CommandUpdate), rec.updates[2].Value(2))
	assert.Equal(t, []int{2}, changedPositions(rec.updates[2]))

	// ADD for a known key is an UPDATE.
	assert.Equal(t, ptr(CommandUpdate), rec.updates[3].Value(2))

	assert.Equal(t, ptr(CommandDelete), rec.updates[4].Value(2))
	assert.Empty(t, h.flush(), "no second level")
}

// TestCommand_BadOperation tests that an unknown command value is a
// protocol error.
func TestCommand_BadOperation(t *testing.T) {
	h := newHarness(t)
	startCommand(t, h, commandSub(t, false))
	assert.ErrorIs(t, h.feed("U,1,1,A|MOVE"), wire.ErrMalformedFrame)
	assert.ErrorIs(t, h.feed("U,1,1,#|ADD"), wire.ErrMalformedFrame)
}

// TestCommand_SnapshotUntilEOS tests that COMMAND rows are snapshot until
// the item's EOS.
func TestCommand_SnapshotUntilEOS(t *testing.T) {
	h := newHarness(t)
	rec := startCommand(t, h, commandSub(t, false))

	require.NoError(t, h.feed("U,1,1,A|ADD", "U,1,1,B|ADD", "EOS,1,1", "U,1,1,C|ADD"))
	assert.True(t, rec.updates[0].IsSnapshot())
	assert.True(t, rec.updates[1].IsSnapshot())
	assert.False(t, rec.updates[2].IsSnapshot())
}

// TestCommand_SecondLevel tests that a second level is subscribed per key
// and its values follow the first-level fields.
func TestCommand_SecondLevel(t *testing.T) {
	h := newHarness(t)
	rec := startCommand(t, h, commandSub(t, true))

	require.NoError(t, h.feed("U,1,1,AAPL|ADD"))
	assert.Equal(t, []string{
		"control\r\nLS_reqId=2&LS_op=add&LS_subId=2&LS_mode=MERGE&LS_group=AAPL&LS_schema=price" +
			"&LS_data_adapter=QUOTES&LS_snapshot=true&LS_ack=false",
	}, h.flush())

	require.NoError(t, h.feed("SUBOK,2,1,1", "U,2,1,150"))
	assert.Equal(t, []string{"subscribed", "update:1", "update:1"}, rec.events, "second level is not reported as a subscription")

	u := rec.lastUpdate()
	assert.Equal(t, ptr("AAPL"), u.ValueByName("key"))
	assert.Equal(t, ptr(CommandUpdate), u.ValueByName("command"))
	assert.Equal(t, ptr("150"), u.ValueByName("price"))
	assert.Equal(t, []int{2, 3}, changedPositions(u))

	// A first-level update keeps the second-level values.
	require.NoError(t, h.feed("U,2,1,151", "U,1,1,|UPDATE"))
	u = rec.lastUpdate()
	assert.Equal(t, ptr("151"), u.Value(3))
	assert.Empty(t, changedPositions(u))

	require.NoError(t, h.feed("OV,2,1,4"))
	assert.Equal(t, "second-lost:4:AAPL", rec.events[len(rec.events)-1])
}

// TestCommand_DeleteRetiresSecondLevel tests that DELETE and UNSUB of the
// second level give the same result in either order.
func TestCommand_DeleteRetiresSecondLevel(t *testing.T) {
	final := func(t *testing.T, unsubFirst bool) (*ItemUpdate, []string) {
		h := newHarness(t)
		rec := startCommand(t, h, commandSub(t, true))
		require.NoError(t, h.feed("U,1,1,AAPL|ADD"))
		h.flush()
		require.NoError(t, h.feed("SUBOK,2,1,1", "U,2,1,150"))

		var sent []string
		if unsubFirst {
			require.NoError(t, h.feed("UNSUB,2", "U,1,1,|DELETE"))
			sent = h.flush()
		} else {
			require.NoError(t, h.feed("U,1,1,|DELETE"))
			sent = h.flush()
			require.NoError(t, h.feed("UNSUB,2"))
		}
		// Late second-level updates are dropped.
		require.NoError(t, h.feed("U,2,1,152"))
		return rec.lastUpdate(), sent
	}

	deleteFirst, sent := final(t, false)
	assert.Equal(t, []string{"control\r\nLS_reqId=3&LS_op=delete&LS_subId=2"}, sent)
	unsubFirst, sent := final(t, true)
	assert.Empty(t, sent)

	for _, u := range []*ItemUpdate{deleteFirst, unsubFirst} {
		assert.Equal(t, ptr(CommandDelete), u.Value(2))
		assert.True(t, u.HasValue(3))
		assert.Nil(t, u.Value(3))
	}
	assert.Equal(t, deleteFirst.FieldsByPosition(), unsubFirst.FieldsByPosition())
}

// TestCommand_InvalidKey tests that a key that is not an item name raises
// error 14 and keeps its first-level updates.
func TestCommand_InvalidKey(t *testing.T) {
	h := newHarness(t)
	rec := startCommand(t, h, commandSub(t, true))

	require.NoError(t, h.feed("U,1,1,42|ADD", "U,1,1,42|UPDATE"))
	assert.Equal(t, []string{"subscribed", "update:1", "second-error:14:42", "update:1"}, rec.events)
	assert.Empty(t, h.flush())
}

// TestCommand_SecondLevelRefused tests a REQERR on a second-level add.
func TestCommand_SecondLevelRefused(t *testing.T) {
	h := newHarness(t)
	rec := startCommand(t, h, commandSub(t, true))
	require.NoError(t, h.feed("U,1,1,AAPL|ADD"))
	h.flush()

	assert.True(t, h.ctrl.OnReqErr(2, 21, "no such item"))
	assert.Equal(t, "second-error:21:AAPL", rec.events[len(rec.events)-1])
	assert.True(t, rec.updates[0].HasValue(1))

	// The row still gets first-level updates.
	require.NoError(t, h.feed("U,1,1,|UPDATE"))
	assert.Equal(t, "update:1", rec.events[len(rec.events)-1])
}

// TestCommand_Frequency tests that the minimum frequency over both levels is
// reported only when it changes.
func TestCommand_Frequency(t *testing.T) {
	h := newHarness(t)
	rec := startCommand(t, h, commandSub(t, true))

	require.NoError(t, h.feed("CONF,1,10,filtered"))
	require.NoError(t, h.feed("U,1,1,A|ADD", "U,1,1,B|ADD"))
	h.flush()
	require.NoError(t, h.feed("SUBOK,2,1,1", "SUBOK,3,1,1"))

	require.NoError(t, h.feed(
		"CONF,2,5,filtered",
		"CONF,2,5,filtered",
		"CONF,3,8,filtered",
		"U,1,1,A|DELETE",
		"U,1,1,B|DELETE",
	))

	var freqs []string
	for _, e := range rec.events {
		if len(e) > 5 && e[:5] == "freq:" {
			freqs = append(freqs, e)
		}
	}
	assert.Equal(t, []string{"freq:10", "freq:5", "freq:8", "freq:10"}, freqs)
}

// TestCommand_FrequencyOnlySecondLevel tests that the frequency of a
// subscription whose first level sends no CONF falls back to none when its
// last second level goes away.
func TestCommand_FrequencyOnlySecondLevel(t *testing.T) {
	h := newHarness(t)
	rec := startCommand(t, h, commandSub(t, true))

	require.NoError(t, h.feed("U,1,1,A|ADD"))
	h.flush()
	require.NoError(t, h.feed("SUBOK,2,1,1", "CONF,2,5,filtered", "U,1,1,A|DELETE"))

	var freqs []string
	for _, e := range rec.events {
		if len(e) > 5 && e[:5] == "freq:" {
			freqs = append(freqs, e)
		}
	}
	assert.Equal(t, []string{"freq:5", "freq:none"}, freqs)
	assert.Equal(t, "freq:none", rec.events[len(rec.events)-1])
}

// TestCommand_ClearSnapshotRetiresKeys tests that CS drops every row and
// second level.
func TestCommand_ClearSnapshotRetiresKeys(t *testing.T) {
	h := newHarness(t)
	rec := startCommand(t, h, commandSub(t, true))
	require.NoError(t, h.feed("U,1,1,A|ADD"))
	h.flush()
	require.NoError(t, h.feed("SUBOK,2,1,1", "CS,1,1"))

	assert.Equal(t, []string{"control\r\nLS_reqId=3&LS_op=delete&LS_subId=2"}, h.flush())
	assert.Equal(t, "cs:1", rec.events[len(rec.events)-1])

	// The key is new again.
	require.NoError(t, h.feed("U,1,1,A|UPDATE"))
	assert.Equal(t, ptr(CommandAdd), rec.lastUpdate().Value(2))
}

// TestCommand_UnsubscribeStopsSecondLevels tests that unsubscribing the
// first level deletes the second levels first.
func TestCommand_UnsubscribeStopsSecondLevels(t *testing.T) {
	h := newHarness(t)
	sub := commandSub(t, true)
	startCommand(t, h, sub)
	require.NoError(t, h.feed("U,1,1,A|ADD"))
	h.flush()
	require.NoError(t, h.feed("SUBOK,2,1,1"))

	require.NoError(t, h.reg.Unsubscribe(sub))
	assert.Equal(t, []string{
		"control\r\nLS_reqId=3&LS_op=delete&LS_subId=2",
		"control\r\nLS_reqId=4&LS_op=delete&LS_subId=1",
	}, h.flush())
}

// TestCommand_SessionEnd tests that second levels are not sent again on a
// new session; they come back with the keys.
func TestCommand_SessionEnd(t *testing.T) {
	h := newHarness(t)
	startCommand(t, h, commandSub(t, true))
	require.NoError(t, h.feed("U,1,1,A|ADD"))
	h.flush()

	h.reg.OnSessionEnded()
	h.ctrl.Reset()
	h.reg.OnSessionStarted(false)
	lines := h.flush()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "LS_subId=3&LS_mode=COMMAND")
}

func changedPositions(u *ItemUpdate) []int {
	var out []int
	for p := 1; p <= 8; p++ {
		if u.IsValueChanged(p) {
			out = append(out, p)
		}
	}
	return out
}
