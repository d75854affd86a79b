package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// wsConn is a WebSocket connection.
type wsConn struct {
	d      *Dialer
	h      session.Handler
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
	ended  bool
}

var _ session.Conn = (*wsConn)(nil)

func (c *wsConn) run(ready <-chan struct{}) {
	<-ready

	url := c.d.WebSocketURL()
	ws, resp, err := c.d.ws.DialContext(c.ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.end(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()
	c.d.debugLog("websocket open", "url", url, "subprotocol", ws.Subprotocol())

	if !c.live() {
		return
	}
	c.h.OnOpen()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.end(nil)
			} else {
				c.end(err)
			}
			return
		}
		for _, line := range splitLines(string(msg)) {
			if !c.live() {
				return
			}
			c.h.OnLine(line)
		}
	}
}

// Send writes one request as a text message.
func (c *wsConn) Send(name string, params wire.Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ended {
		return ErrClosed
	}
	if c.ws == nil {
		return ErrNotOpen
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.d.config.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(wire.EncodeRequest(name, params)))
}

// Close sends a close frame and releases the socket.
func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return
	}
	deadline := time.Now().Add(c.d.config.WriteTimeout)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = ws.Close()
}

func (c *wsConn) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.ended
}

// end reports the end of the connection once. A nil err is an orderly
// close by the server.
func (c *wsConn) end(err error) {
	c.mu.Lock()
	if c.closed || c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
	if err != nil {
		c.d.debugLog("websocket failed", "error", err)
		c.h.OnError(err)
		return
	}
	c.h.OnClose()
}
