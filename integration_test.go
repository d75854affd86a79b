package tlcp_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcp-protocol/tlcp-go/pkg/client"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

const waitTimeout = 5 * time.Second

// pushServer is a minimal TLCP server over WebSocket. It answers session
// creation, acknowledges every control request and publishes one update
// per subscribed item.
type pushServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []url.Values
	destroy  bool
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{}
	upgrader := websocket.Upgrader{Subprotocols: []string{wire.WSSubprotocol}}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lightstreamer" {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			for _, reply := range ps.handle(string(msg)) {
				if err := ws.WriteMessage(websocket.TextMessage, []byte(reply+"\r\n")); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) handle(msg string) []string {
	name, body, _ := strings.Cut(msg, "\r\n")
	switch name {
	case wire.RequestWSOK:
		return []string{"WSOK"}
	case wire.RequestCreateSession:
		return []string{"CONOK,S1,50000,5000,*", "SERVNAME,Integration"}
	case wire.RequestControl:
	default:
		return nil
	}

	params, err := url.ParseQuery(body)
	if err != nil {
		return []string{"ERROR,67,malformed"}
	}
	ps.mu.Lock()
	ps.requests = append(ps.requests, params)
	ps.mu.Unlock()

	reqID, subID := params.Get("LS_reqId"), params.Get("LS_subId")
	switch params.Get("LS_op") {
	case "add":
		items := strings.Fields(params.Get("LS_group"))
		fields := strings.Fields(params.Get("LS_schema"))
		replies := []string{"REQOK," + reqID, "SUBOK," + subID + "," + strconv.Itoa(len(items)) + "," + strconv.Itoa(len(fields))}
		for i, item := range items {
			values := make([]string, len(fields))
			for j := range fields {
				values[j] = item + "-" + fields[j]
			}
			replies = append(replies, "U,"+subID+","+strconv.Itoa(i+1)+","+strings.Join(values, "|"))
		}
		return replies
	case "delete":
		return []string{"REQOK," + reqID, "UNSUB," + subID}
	case "destroy":
		ps.mu.Lock()
		ps.destroy = true
		ps.mu.Unlock()
		return []string{"REQOK," + reqID}
	default:
		return []string{"REQOK," + reqID}
	}
}

func (ps *pushServer) ops() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	var out []string
	for _, r := range ps.requests {
		out = append(out, r.Get("LS_op"))
	}
	return out
}

func (ps *pushServer) destroyed() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.destroy
}

// events collects client and subscription callbacks.
type events struct {
	subscription.BaseListener

	mu       sync.Mutex
	statuses []string
	updates  map[string]map[string]string
	subbed   bool
	unsubbed bool
}

func newEvents() *events {
	return &events{updates: make(map[string]map[string]string)}
}

func (e *events) OnStatusChange(status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, status)
}

func (e *events) OnServerError(int, string) {}
func (e *events) OnPropertyChange(string)  {}

var _ client.Listener = (*events)(nil)

func (e *events) OnSubscription(*subscription.Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subbed = true
}

func (e *events) OnUnsubscription(*subscription.Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unsubbed = true
}

func (e *events) OnItemUpdate(_ *subscription.Subscription, u *subscription.ItemUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	values := make(map[string]string)
	for name, v := range u.Fields() {
		if v != nil {
			values[name] = *v
		}
	}
	e.updates[u.ItemName()] = values
}

func (e *events) snapshot() (statuses []string, updates int, subbed, unsubbed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.statuses...), len(e.updates), e.subbed, e.unsubbed
}

// TestIntegration_WebSocketSession runs a client against a TLCP server over
// a real WebSocket: session creation, subscription, updates,
// unsubscription and session destruction.
func TestIntegration_WebSocketSession(t *testing.T) {
	srv := newPushServer(t)

	capturePath := filepath.Join(t.TempDir(), "client.tlog")
	capture, err := log.NewFileLogger(capturePath)
	require.NoError(t, err)

	cfg := client.DefaultConfig()
	cfg.ServerAddress = srv.URL
	cfg.AdapterSet = "DEMO"
	cfg.Transport = session.TransportWS
	cfg.ProtocolLogger = capture

	c, err := client.New(cfg)
	require.NoError(t, err)

	ev := newEvents()
	c.AddListener(ev)

	sub := subscription.New(wire.ModeMerge, []string{"item1", "item2"}, []string{"last", "time"})
	sub.AddListener(ev)
	require.NoError(t, c.Subscribe(sub))
	require.NoError(t, c.Connect())

	require.Eventually(t, func() bool {
		_, updates, subbed, _ := ev.snapshot()
		return subbed && updates == 2
	}, waitTimeout, 10*time.Millisecond)

	assert.Equal(t, "CONNECTED:WS-STREAMING", c.Status())
	assert.Equal(t, "S1", c.SessionInfo().SessionID)
	assert.True(t, sub.IsSubscribed())

	ev.mu.Lock()
	assert.Equal(t, map[string]string{"last": "item2-last", "time": "item2-time"}, ev.updates["item2"])
	ev.mu.Unlock()

	require.NoError(t, c.Unsubscribe(sub))
	require.Eventually(t, func() bool {
		_, _, _, unsubbed := ev.snapshot()
		return unsubbed
	}, waitTimeout, 10*time.Millisecond)
	assert.Empty(t, c.Subscriptions())

	require.NoError(t, c.Close())
	require.Eventually(t, srv.destroyed, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, []string{"add", "delete", "destroy"}, srv.ops())
	assert.ErrorIs(t, c.Close(), client.ErrClosed)

	statuses, _, _, _ := ev.snapshot()
	assert.Contains(t, statuses, "CONNECTING")
	assert.Contains(t, statuses, "CONNECTED:WS-STREAMING")

	require.NoError(t, capture.Close())
	reader, err := log.NewReader(capturePath)
	require.NoError(t, err)
	defer reader.Close()
	frames := 0
	for {
		e, err := reader.Next()
		if err != nil {
			break
		}
		if e.Frame != nil {
			frames++
		}
	}
	assert.Greater(t, frames, 5, "protocol capture should record the exchanged lines")
}
