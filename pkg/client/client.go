package client

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/tlcp-protocol/tlcp-go/pkg/connection"
	"github.com/tlcp-protocol/tlcp-go/pkg/mpn"
	"github.com/tlcp-protocol/tlcp-go/pkg/session"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/timer"
	"github.com/tlcp-protocol/tlcp-go/pkg/transport"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client closed")

// Listener receives client level events. Callbacks run on the executor.
type Listener interface {
	// OnStatusChange reports the new status, e.g. "CONNECTED:WS-STREAMING".
	OnStatusChange(status string)

	// OnServerError reports a server refusal that ended the session.
	OnServerError(code int, message string)

	// OnPropertyChange reports a change of a session property, see the
	// session.Prop constants.
	OnPropertyChange(name string)
}

// BaseListener implements Listener with no-ops, for embedding.
type BaseListener struct{}

func (BaseListener) OnStatusChange(string)     {}
func (BaseListener) OnServerError(int, string) {}
func (BaseListener) OnPropertyChange(string)   {}

var _ Listener = BaseListener{}

// Client is a TLCP client: one session, its subscriptions and its push
// notification device. All methods are safe for concurrent use.
type Client struct {
	logger    *slog.Logger
	exec      Executor
	ownsExec  bool
	loop      *loop
	timers    *timer.Manager
	sess      *session.Session
	reg       *subscription.Registry
	mpn       *mpn.Manager
	listeners []Listener

	mu     sync.RWMutex
	status connection.Status
	info   session.Info
	closed bool
}

// New creates a disconnected client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		logger: cfg.Logger,
		exec:   cfg.Executor,
		loop:   newLoop(cfg.Logger),
	}
	if c.exec == nil {
		c.exec = NewSerialExecutor(cfg.Logger)
		c.ownsExec = true
	}

	dialer := cfg.Dialer
	if dialer == nil {
		d, err := transport.NewDialer(transport.Config{
			ServerAddress: cfg.ServerAddress,
			TLS:           cfg.TLS,
			Logger:        cfg.Logger,
		})
		if err != nil {
			c.closeExecutor()
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		dialer = d
	}

	sched := cfg.Scheduler
	if sched == nil {
		c.timers = timer.NewManager(c.loop.post)
		sched = c.timers
	}

	c.sess = session.New(cfg.sessionConfig(), dialer, sched, c.loop.post, (*sessionEvents)(c))
	c.reg = subscription.NewRegistry(c.sess.Control(), subscription.Config{
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
		Dispatch:       c.exec.Submit,
		Post:           c.loop.post,
	})
	c.mpn = mpn.NewManager(c.sess.Control(), c.reg, mpn.Config{
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
		Preferences:    cfg.Preferences,
		Dispatch:       c.exec.Submit,
		Post:           c.loop.post,
	})

	c.loop.after = c.sess.Flush
	c.loop.start()
	return c, nil
}

// Connect opens a session. It does nothing if one is open or being
// opened.
func (c *Client) Connect() error {
	return c.post(func() { c.sess.Connect() })
}

// Disconnect destroys the session. Subscriptions stay and are sent again
// on the next Connect.
func (c *Client) Disconnect() error {
	return c.post(func() { c.sess.Disconnect() })
}

// Close disconnects and stops the client. Further calls fail with
// ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.loop.call(func() { c.sess.Disconnect() })
	if c.timers != nil {
		c.timers.CancelAll()
	}
	c.loop.stop()
	c.closeExecutor()
	return nil
}

// Status returns the current status, e.g. "DISCONNECTED".
func (c *Client) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.String()
}

// SessionInfo returns the properties of the current session.
func (c *Client) SessionInfo() session.Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// AddListener adds l. Adding a listener twice has no effect.
func (c *Client) AddListener(l Listener) {
	c.loop.post(func() {
		if !slices.Contains(c.listeners, l) {
			c.listeners = append(c.listeners, l)
		}
	})
}

// RemoveListener removes l.
func (c *Client) RemoveListener(l Listener) {
	c.loop.post(func() {
		c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return x == l })
	})
}

// Subscribe activates sub. It is sent once a session is open.
func (c *Client) Subscribe(sub *subscription.Subscription) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.reg.Subscribe(sub)
}

// Unsubscribe deactivates sub.
func (c *Client) Unsubscribe(sub *subscription.Subscription) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.reg.Unsubscribe(sub)
}

// Subscriptions returns the active subscriptions. Must not be called
// from a listener running on an InlineExecutor.
func (c *Client) Subscriptions() []*subscription.Subscription {
	var out []*subscription.Subscription
	c.loop.call(func() { out = c.reg.Subscriptions() })
	return out
}

// RegisterForMPN registers dev for push notifications.
func (c *Client) RegisterForMPN(dev *mpn.Device) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.mpn.Register(dev)
}

// MPNDevice returns the registered device, or nil.
func (c *Client) MPNDevice() *mpn.Device {
	var dev *mpn.Device
	c.loop.call(func() { dev = c.mpn.Device() })
	return dev
}

// SubscribeMPN activates a push notification subscription. With
// coalescing an equivalent server subscription is reused.
func (c *Client) SubscribeMPN(sub *mpn.Subscription, coalescing bool) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.mpn.Subscribe(sub, coalescing)
}

// UnsubscribeMPN deactivates a push notification subscription.
func (c *Client) UnsubscribeMPN(sub *mpn.Subscription) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.mpn.Unsubscribe(sub)
}

// UnsubscribeMPNSubscriptions deactivates every push notification
// subscription of the device matching filter.
func (c *Client) UnsubscribeMPNSubscriptions(filter mpn.Filter) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.mpn.UnsubscribeFilter(filter)
	return nil
}

// ResetMPNBadge resets the application badge of the device.
func (c *Client) ResetMPNBadge() error {
	if c.isClosed() {
		return ErrClosed
	}
	c.mpn.ResetBadge()
	return nil
}

// MPNSubscriptions returns the push notification subscriptions matching
// filter. Must not be called from a listener running on an
// InlineExecutor.
func (c *Client) MPNSubscriptions(filter mpn.Filter) []*mpn.Subscription {
	var out []*mpn.Subscription
	c.loop.call(func() { out = c.mpn.Subscriptions(filter) })
	return out
}

func (c *Client) post(fn func()) error {
	if c.isClosed() || !c.loop.tryPost(fn) {
		return ErrClosed
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) closeExecutor() {
	if c.ownsExec {
		c.exec.Close()
	}
}

func (c *Client) notify(fn func(Listener)) {
	for _, l := range c.listeners {
		l := l
		c.exec.Submit(func() { fn(l) })
	}
}

// sessionEvents wires session events to the registry and the MPN
// manager. It runs on the loop.
type sessionEvents Client

func (e *sessionEvents) OnSessionStarted(recovered bool) {
	c := (*Client)(e)
	c.mpn.OnSessionStarted(recovered)
	c.reg.OnSessionStarted(recovered)
	c.mpn.SendPending()
}

func (e *sessionEvents) OnSessionEnded() {
	c := (*Client)(e)
	c.mpn.OnSessionEnded()
	c.reg.OnSessionEnded()
}

func (e *sessionEvents) OnFrame(f wire.Frame) {
	c := (*Client)(e)
	if err := c.reg.OnFrame(f); err != nil {
		c.sess.Restart(err.Error())
		return
	}
	if err := c.mpn.OnFrame(f); err != nil {
		c.sess.Restart(err.Error())
	}
}

func (e *sessionEvents) OnStatusChange(status connection.Status) {
	c := (*Client)(e)
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("client status changed", "status", status)
	}
	name := status.String()
	c.notify(func(l Listener) { l.OnStatusChange(name) })
}

func (e *sessionEvents) OnServerError(code int, message string) {
	c := (*Client)(e)
	c.notify(func(l Listener) { l.OnServerError(code, message) })
}

func (e *sessionEvents) OnPropertyChange(name string) {
	c := (*Client)(e)
	c.mu.Lock()
	c.info = c.sess.Info()
	c.mu.Unlock()
	c.notify(func(l Listener) { l.OnPropertyChange(name) })
}

var _ session.Listener = (*sessionEvents)(nil)
