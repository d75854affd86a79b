package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

const (
	maxLineSize  = 1 << 20
	controlQueue = 64
)

type httpRequest struct {
	name string
	body string
}

// httpConn is an HTTP streaming or polling connection: one long POST for
// the session stream plus ordered POSTs for control requests.
type httpConn struct {
	d      *Dialer
	h      session.Handler
	ctx    context.Context
	cancel context.CancelFunc

	requests chan httpRequest

	mu        sync.Mutex
	open      bool
	streaming bool
	closed    bool
	ended     bool
}

var _ session.Conn = (*httpConn)(nil)

func newHTTPConn(d *Dialer, h session.Handler, ctx context.Context, cancel context.CancelFunc) *httpConn {
	return &httpConn{
		d:        d,
		h:        h,
		ctx:      ctx,
		cancel:   cancel,
		requests: make(chan httpRequest, controlQueue),
	}
}

func (c *httpConn) run(ready <-chan struct{}) {
	<-ready

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.open = true
	c.mu.Unlock()

	go c.controlLoop()
	c.h.OnOpen()
}

// Send starts the session stream for create_session and bind_session and
// queues any other request.
func (c *httpConn) Send(name string, params wire.Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ended {
		return ErrClosed
	}
	if !c.open {
		return ErrNotOpen
	}

	req := httpRequest{name: name, body: params.Encode()}
	if name == wire.RequestCreateSession || name == wire.RequestBindSession {
		if c.streaming {
			return fmt.Errorf("%w: stream already started", ErrNotOpen)
		}
		c.streaming = true
		go c.stream(req)
		return nil
	}

	select {
	case c.requests <- req:
		return nil
	default:
		return fmt.Errorf("control queue full (%d requests)", controlQueue)
	}
}

// Close cancels every pending HTTP call.
func (c *httpConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *httpConn) stream(req httpRequest) {
	resp, err := c.post(req)
	if err != nil {
		c.end(err)
		return
	}
	defer resp.Body.Close()

	if err := c.readLines(resp.Body); err != nil {
		c.end(err)
		return
	}
	c.end(nil)
}

func (c *httpConn) controlLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.requests:
			resp, err := c.post(req)
			if err != nil {
				c.end(err)
				return
			}
			err = c.readLines(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				c.end(err)
				return
			}
		}
	}
}

func (c *httpConn) post(req httpRequest) (*http.Response, error) {
	url := c.d.RequestURL(req.name)
	httpReq, err := http.NewRequestWithContext(c.ctx, http.MethodPost, url, strings.NewReader(req.body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.d.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s", ErrHTTPStatus, req.name, resp.Status)
	}
	c.d.debugLog("http request", "request", req.name, "status", resp.StatusCode)
	return resp, nil
}

func (c *httpConn) readLines(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if !c.live() {
			return nil
		}
		c.h.OnLine(line)
	}
	return scanner.Err()
}

func (c *httpConn) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.ended
}

// end reports the end of the connection once. A nil err is the server
// closing the stream.
func (c *httpConn) end(err error) {
	c.mu.Lock()
	if c.closed || c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.mu.Unlock()

	c.cancel()
	if err != nil {
		c.d.debugLog("http connection failed", "error", err)
		c.h.OnError(err)
		return
	}
	c.h.OnClose()
}
