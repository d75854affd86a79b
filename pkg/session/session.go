package session

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/tlcp-protocol/tlcp-go/pkg/connection"
	"github.com/tlcp-protocol/tlcp-go/pkg/control"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/timer"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// State is the state of the session state machine.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStalled
	StateRecovering
	StateRetrying
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateStalled:
		return "STALLED"
	case StateRecovering:
		return "RECOVERING"
	case StateRetrying:
		return "RETRYING"
	default:
		return "UNKNOWN"
	}
}

// Names of the session properties reported through OnPropertyChange.
const (
	PropSessionID    = "sessionId"
	PropKeepAlive    = "keepaliveInterval"
	PropRequestLimit = "requestLimit"
	PropServerName   = "serverSocketName"
	PropClientIP     = "clientIp"
	PropBandwidth    = "realMaxBandwidth"
	PropControlLink  = "serverInstanceAddress"
)

// Timer names.
const (
	timerRetry     = "retry"
	timerStalled   = "stalled"
	timerReconnect = "reconnect"
	timerRecovery  = "recovery"
	timerBind      = "bind"
	timerLoop      = "loop"
)

// Listener receives session events on the event loop.
type Listener interface {
	// OnSessionStarted is called after CONOK of a new session, or after
	// the CONOK of a successful recovery with recovered set.
	OnSessionStarted(recovered bool)

	// OnSessionEnded is called once when a session is gone for good.
	OnSessionEnded()

	// OnFrame delivers a data notification, in arrival order.
	OnFrame(f wire.Frame)

	// OnStatusChange reports a change of the client status.
	OnStatusChange(status connection.Status)

	// OnServerError reports CONERR, END or ERROR that ended the session.
	OnServerError(code int, message string)

	// OnPropertyChange reports a change of a session property.
	OnPropertyChange(name string)
}

// Info holds the session properties learned from the server.
type Info struct {
	SessionID    string
	KeepAlive    time.Duration
	RequestLimit int
	ControlLink  string
	ServerName   string
	ClientIP     string
	Bandwidth    string
}

type openRequest struct {
	name   string
	params wire.Params
}

// Session is the client side of one logical TLCP session at a time.
type Session struct {
	cfg      Config
	dialer   Dialer
	post     func(func())
	listener Listener
	logger   *slog.Logger

	ctrl    *control.Channel
	timers  *timer.Set
	backoff *connection.Backoff

	state  State
	status connection.Status

	// gen identifies the current connection; events of older connections
	// are dropped.
	gen      uint64
	conn     Conn
	kind     Kind
	rec      *log.Recorder
	pending  openRequest
	gotFrame bool

	// binding is set while a bind_session of the current session is
	// outstanding on the primary transport.
	binding bool

	// wsFailed selects HTTP streaming until the next Connect.
	wsFailed bool

	// recoveryBound is set once the recovery bind got its CONOK.
	recoveryBound bool

	info         Info
	oldSessionID string

	// progressive counts data notifications of the session; skip counts
	// notifications to discard after PROG.
	progressive int
	skip        int
}

// New creates a disconnected Session. post schedules a function on the
// event loop and is used for transport callbacks.
func New(cfg Config, dialer Dialer, sched timer.Scheduler, post func(func()), listener Listener) *Session {
	return &Session{
		cfg:      cfg,
		dialer:   dialer,
		post:     post,
		listener: listener,
		logger:   cfg.Logger,
		ctrl:     control.NewChannel(cfg.Logger),
		timers:   timer.NewSet(sched),
		backoff:  connection.NewBackoffWithConfig(cfg.Retry),
	}
}

// Control returns the control channel of the session.
func (s *Session) Control() *control.Channel { return s.ctrl }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Status returns the client status.
func (s *Session) Status() connection.Status { return s.status }

// Kind returns the kind of the current connection.
func (s *Session) Kind() Kind { return s.kind }

// Info returns the session properties.
func (s *Session) Info() Info { return s.info }

// Progressive returns the number of data notifications received in the
// current session.
func (s *Session) Progressive() int { return s.progressive }

// Connect creates a session. It does nothing unless the session is
// disconnected.
func (s *Session) Connect() {
	if s.state != StateDisconnected {
		return
	}
	s.wsFailed = false
	s.oldSessionID = ""
	s.backoff.Reset()
	s.createSession(wire.CauseAPI)
}

// Disconnect destroys the session and closes the connection.
func (s *Session) Disconnect() {
	if s.state == StateDisconnected {
		return
	}
	if s.canSend() {
		var p wire.Params
		p.Add(wire.ParamCloseSocket, "true")
		p.Add(wire.ParamCause, wire.CauseAPI)
		s.ctrl.Reset()
		_ = s.ctrl.Enqueue(&control.Request{Op: wire.OpDestroy, Params: p})
		if err := s.ctrl.Flush(s.sendControl); err != nil {
			s.debugLog("destroy not sent", "error", err)
		}
	}
	s.shutdown()
}

// Restart abandons the current session and creates a new one. It is used
// when the data stream can no longer be trusted.
func (s *Session) Restart(reason string) {
	if s.state == StateDisconnected {
		return
	}
	s.logError("restarting session", "reason", reason)
	s.rec.Error(log.LayerEngine, reason, "", 0)
	s.recreate(s.errorCause())
}

// Flush sends queued control requests if a transport is bound.
func (s *Session) Flush() {
	if !s.canSend() {
		return
	}
	if err := s.ctrl.Flush(s.sendControl); err != nil {
		s.onConnError(s.gen, err)
	}
}

func (s *Session) canSend() bool {
	return s.conn != nil && (s.state == StateConnected || s.state == StateStalled)
}

func (s *Session) sendControl(req *control.Request) error {
	params := req.WireParams()
	if s.kind != KindWS {
		params = append(wire.Params{{Key: wire.ParamSession, Value: s.info.SessionID}}, params...)
	}
	s.rec.FrameOut(wire.RequestControl, wire.EncodeRequest(wire.RequestControl, params))
	s.rec.Request(req.ID, req.Op, log.RequestSent, req.Cause(), 0, "")
	return s.conn.Send(wire.RequestControl, params)
}

// primaryKind is the transport used for new sessions and rebinds.
func (s *Session) primaryKind() Kind {
	switch s.cfg.Transport {
	case TransportHTTPStreaming:
		return KindHTTPStreaming
	case TransportHTTPPolling:
		return KindHTTPPolling
	case TransportWS:
		return KindWS
	}
	if s.wsFailed {
		return KindHTTPStreaming
	}
	return KindWS
}

func (s *Session) createParams(kind Kind, cause string) wire.Params {
	var p wire.Params
	p.Add(wire.ParamCID, s.cfg.ClientID)
	p.Add(wire.ParamSendSync, "false")
	p.Add(wire.ParamCause, cause)
	if s.oldSessionID != "" {
		p.Add(wire.ParamOldSession, s.oldSessionID)
	}
	if s.cfg.KeepaliveHint > 0 {
		p.Add(wire.ParamKeepaliveMillis, strconv.FormatInt(s.cfg.KeepaliveHint.Milliseconds(), 10))
	}
	if s.cfg.AdapterSet != "" {
		p.Add(wire.ParamAdapterSet, s.cfg.AdapterSet)
	}
	if s.cfg.User != "" {
		p.Add(wire.ParamUser, s.cfg.User)
	}
	if s.cfg.Password != "" {
		p.Add(wire.ParamPassword, s.cfg.Password)
	}
	if kind == KindHTTPPolling {
		p.Add(wire.ParamPolling, "true")
	}
	return p
}

func (s *Session) bindParams(kind Kind, cause string, recovery bool) wire.Params {
	var p wire.Params
	p.Add(wire.ParamSession, s.info.SessionID)
	if recovery {
		p.Add(wire.ParamRecoveryFrom, strconv.Itoa(s.progressive))
	}
	if recovery || kind == KindHTTPPolling {
		p.Add(wire.ParamPolling, "true")
	}
	if cause != "" {
		p.Add(wire.ParamCause, cause)
	}
	if s.cfg.KeepaliveHint > 0 && kind != KindHTTPPolling {
		p.Add(wire.ParamKeepaliveMillis, strconv.FormatInt(s.cfg.KeepaliveHint.Milliseconds(), 10))
	}
	return p
}

// createSession opens a new session on the primary transport.
func (s *Session) createSession(cause string) {
	s.binding = false
	s.recoveryBound = false
	s.setState(StateConnecting, cause)
	s.setStatus(connection.StatusConnecting)
	kind := s.primaryKind()
	s.open(kind, wire.RequestCreateSession, s.createParams(kind, cause))
}

// rebind opens a bind_session of the current session, after delay.
func (s *Session) rebind(kind Kind, cause string, delay time.Duration) {
	s.closeConn()
	s.timers.Stop(timerStalled)
	s.timers.Stop(timerReconnect)
	s.binding = true
	s.setState(StateConnecting, "rebind")

	bind := func() {
		s.open(kind, wire.RequestBindSession, s.bindParams(kind, cause, false))
	}
	if delay > 0 {
		s.timers.Start(timerLoop, delay, bind)
		return
	}
	bind()
}

// open dials a connection and sends the request once it is open.
func (s *Session) open(kind Kind, name string, params wire.Params) {
	s.closeConn()
	s.gen++
	gen := s.gen
	s.kind = kind
	s.gotFrame = false
	s.pending = openRequest{name: name, params: params}
	s.rec = log.NewRecorder(s.cfg.ProtocolLogger, kind.String())
	s.rec.SetSessionID(s.info.SessionID)

	s.timers.Start(timerBind, s.cfg.ConnectTimeout, func() {
		s.onConnError(gen, ErrConnectTimeout)
	})

	s.debugLog("opening connection", "kind", kind, "request", name)
	conn, err := s.dialer.Dial(kind, &connHandler{s: s, gen: gen})
	if err != nil {
		s.onConnError(gen, err)
		return
	}
	if gen == s.gen {
		s.conn = conn
	} else {
		conn.Close()
	}
}

func (s *Session) closeConn() {
	s.gen++
	s.timers.Stop(timerBind)
	s.timers.Stop(timerLoop)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Session) onOpen(gen uint64) {
	if gen != s.gen || s.conn == nil {
		return
	}
	if s.kind == KindWS {
		if !s.send(wire.RequestWSOK, nil) {
			return
		}
	}
	s.send(s.pending.name, s.pending.params)
}

func (s *Session) send(name string, params wire.Params) bool {
	s.rec.FrameOut(name, wire.EncodeRequest(name, params))
	if err := s.conn.Send(name, params); err != nil {
		s.onConnError(s.gen, err)
		return false
	}
	return true
}

func (s *Session) onLine(gen uint64, line string) {
	if gen != s.gen {
		return
	}
	s.gotFrame = true

	f, err := wire.ParseFrame(line)
	if err != nil {
		s.rec.FrameIn("", line)
		s.logError("malformed frame", "line", line, "error", err)
		s.rec.Error(log.LayerTransport, err.Error(), line, 0)
		if s.info.SessionID != "" {
			s.recreate(s.errorCause())
		} else {
			s.retry(s.errorCause())
		}
		return
	}
	s.rec.FrameIn(f.Name(), line)

	if s.state == StateConnected || s.state == StateStalled {
		s.restartStalled()
	}
	s.dispatch(f)
}

func (s *Session) onConnError(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	s.debugLog("connection failed", "kind", s.kind, "state", s.state, "error", err)
	s.rec.Error(log.LayerTransport, err.Error(), "", 0)

	switch s.state {
	case StateConnecting:
		if s.kind == KindWS && !s.gotFrame && s.cfg.Transport == TransportAuto {
			s.wsFailed = true
			if s.binding {
				s.open(KindHTTPStreaming, wire.RequestBindSession,
					s.bindParams(KindHTTPStreaming, wire.CauseWSUnavailable, false))
			} else {
				s.open(KindHTTPStreaming, wire.RequestCreateSession,
					s.createParams(KindHTTPStreaming, wire.CauseWSUnavailable))
			}
			return
		}
		if s.binding {
			s.lost(s.errorCause())
			return
		}
		s.retry(s.errorCause())
	case StateConnected, StateStalled:
		s.lost(s.errorCause())
	case StateRecovering:
		s.recreate(wire.CauseRecoveryError)
	}
}

func (s *Session) errorCause() string {
	if s.kind == KindWS {
		return wire.CauseWSError
	}
	return wire.CauseHTTPError
}

// lost handles the failure of the connection of a live session.
func (s *Session) lost(cause string) {
	if s.cfg.SessionRecoveryTimeout > 0 && s.info.SessionID != "" {
		s.recover()
		return
	}
	s.recreate(cause)
}

// recover starts a recovery bind over HTTP polling.
func (s *Session) recover() {
	s.closeConn()
	s.timers.Stop(timerStalled)
	s.timers.Stop(timerReconnect)
	s.binding = false
	s.recoveryBound = false
	s.skip = 0
	s.setState(StateRecovering, "connection lost")
	s.setStatus(connection.StatusTryingRecovery)
	if !s.timers.Active(timerRecovery) {
		s.timers.Start(timerRecovery, s.cfg.SessionRecoveryTimeout, func() {
			if s.state == StateRecovering || (s.state == StateConnecting && s.binding) {
				s.debugLog("recovery window elapsed", "error", ErrRecoveryTimeout)
				s.recreate(wire.CauseRecoveryError)
			}
		})
	}
	s.open(KindHTTPPolling, wire.RequestBindSession, s.bindParams(KindHTTPPolling, "", true))
}

// recreate ends the current session and creates a new one at once.
func (s *Session) recreate(cause string) {
	old := s.info.SessionID
	s.closeConn()
	s.timers.StopAll()
	s.endSession()
	s.oldSessionID = old
	s.createSession(cause)
}

// retry schedules a new creation attempt after the backoff delay.
func (s *Session) retry(cause string) {
	s.closeConn()
	s.timers.StopAll()
	s.endSession()
	delay := s.backoff.Next()
	s.setState(StateRetrying, cause)
	s.setStatus(connection.StatusWillRetry)
	s.debugLog("retrying", "delay", delay, "attempt", s.backoff.Attempts())
	s.timers.Start(timerRetry, delay, func() {
		s.createSession(cause)
	})
}

// shutdown closes everything and settles in Disconnected.
func (s *Session) shutdown() {
	s.closeConn()
	s.timers.StopAll()
	s.endSession()
	s.oldSessionID = ""
	s.setState(StateDisconnected, "")
	s.setStatus(connection.StatusDisconnected)
}

func (s *Session) endSession() {
	s.binding = false
	s.recoveryBound = false
	s.progressive = 0
	s.skip = 0
	if s.info.SessionID == "" {
		return
	}
	s.info = Info{}
	s.ctrl.Reset()
	s.listener.OnSessionEnded()
}

func (s *Session) restartStalled() {
	s.timers.Stop(timerReconnect)
	if s.state == StateStalled {
		s.setState(StateConnected, "data received")
		s.setStatus(kindStatus(s.kind))
	}
	s.timers.Start(timerStalled, s.info.KeepAlive+s.cfg.StalledTimeout, s.onStalled)
}

func (s *Session) onStalled() {
	if s.state != StateConnected {
		return
	}
	s.setState(StateStalled, "no data")
	s.setStatus(connection.StatusStalled)
	gen := s.gen
	s.timers.Start(timerReconnect, s.cfg.ReconnectTimeout, func() {
		s.onConnError(gen, ErrStalled)
	})
}

func kindStatus(k Kind) connection.Status {
	switch k {
	case KindHTTPStreaming:
		return connection.StatusHTTPStreaming
	case KindHTTPPolling:
		return connection.StatusHTTPPolling
	default:
		return connection.StatusWSStreaming
	}
}

func (s *Session) setState(st State, reason string) {
	if s.state == st {
		return
	}
	s.debugLog("session state", "from", s.state, "to", st, "reason", reason)
	s.rec.State(log.StateEntitySession, s.info.SessionID, s.state.String(), st.String(), reason)
	s.state = st
}

func (s *Session) setStatus(st connection.Status) {
	if s.status == st {
		return
	}
	s.status = st
	s.listener.OnStatusChange(st)
}

func (s *Session) setProperty(name string, changed bool) {
	if changed {
		s.listener.OnPropertyChange(name)
	}
}

func (s *Session) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Session) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// connHandler forwards the events of one connection to the event loop.
type connHandler struct {
	s   *Session
	gen uint64
}

func (h *connHandler) OnOpen() {
	h.s.post(func() { h.s.onOpen(h.gen) })
}

func (h *connHandler) OnLine(line string) {
	h.s.post(func() { h.s.onLine(h.gen, line) })
}

func (h *connHandler) OnError(err error) {
	h.s.post(func() { h.s.onConnError(h.gen, err) })
}

func (h *connHandler) OnClose() {
	h.s.post(func() { h.s.onConnError(h.gen, ErrConnectionClosed) })
}

var _ Handler = (*connHandler)(nil)
