package log

import (
	"bytes"
	"io"
	"testing"
	"time"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func captureOf(t *testing.T, events ...Event) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	return &buf
}

func readAll(t *testing.T, buf *bytes.Buffer, f Filter) []Event {
	t.Helper()
	r := NewStreamReader(nopCloser{buf}, f)
	defer r.Close()

	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderFilter(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "a", SessionID: "S1", Direction: DirectionOut, Category: CategoryFrame, Frame: NewFrameEvent("create_session", "create_session")},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", SessionID: "S1", Direction: DirectionIn, Category: CategoryFrame, Frame: NewFrameEvent("CONOK", "CONOK,S1,1,1,*")},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "a", SessionID: "S1", Direction: DirectionIn, Category: CategoryFrame, Frame: NewFrameEvent("U", "U,1,1,a")},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "b", SessionID: "S2", Direction: DirectionNone, Layer: LayerEngine, Category: CategoryState, StateChange: &StateChangeEvent{NewState: "CONNECTED"}},
	}

	in := DirectionIn
	state := CategoryState
	engine := LayerEngine
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"connection", Filter{ConnectionID: "a"}, 3},
		{"session", Filter{SessionID: "S2"}, 1},
		{"direction", Filter{Direction: &in}, 2},
		{"category", Filter{Category: &state}, 1},
		{"layer", Filter{Layer: &engine}, 1},
		{"frame name", Filter{FrameName: "U"}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{ConnectionID: "a", Direction: &in, FrameName: "CONOK"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, captureOf(t, events...), tt.filter)
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader("/nonexistent/client.tlog"); err == nil {
		t.Error("expected error for missing file")
	}
}
