package session

import (
	"github.com/tlcp-protocol/tlcp-go/pkg/connection"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

func (s *Session) dispatch(f wire.Frame) {
	switch f := f.(type) {
	case wire.ConOK:
		s.onConOK(f)
	case wire.ConErr:
		s.onConErr(f)
	case wire.End:
		s.onServerEnd(f.Code, f.Message)
	case wire.Error:
		s.onServerEnd(f.Code, f.Message)
	case wire.Loop:
		s.onLoop(f)
	case wire.Prog:
		s.onProg(f)
	case wire.WSOK, wire.Probe, wire.NoOp, wire.Sync:
	case wire.ServName:
		s.setProperty(PropServerName, s.info.ServerName != f.Server)
		s.info.ServerName = f.Server
	case wire.ClientIP:
		changed := s.info.ClientIP != f.IP
		s.info.ClientIP = f.IP
		s.setProperty(PropClientIP, changed)
	case wire.Cons:
		changed := s.info.Bandwidth != f.Bandwidth
		s.info.Bandwidth = f.Bandwidth
		s.setProperty(PropBandwidth, changed)
	case wire.ReqOK:
		if s.ctrl.OnReqOK(f.ReqID) {
			s.rec.Request(f.ReqID, "", log.RequestAcked, "", 0, "")
		} else {
			s.debugLog("REQOK for unknown request", "reqId", f.ReqID)
		}
	case wire.ReqErr:
		if s.ctrl.OnReqErr(f.ReqID, f.Code, f.Message) {
			s.rec.Request(f.ReqID, "", log.RequestRefused, "", f.Code, f.Message)
		} else {
			s.debugLog("REQERR for unknown request", "reqId", f.ReqID, "code", f.Code)
		}
	case wire.Unknown:
		if s.logger != nil {
			s.logger.Warn("ignoring unknown frame", "tag", f.Tag, "line", f.Line)
		}
	default:
		if wire.IsDataNotification(f) {
			s.onData(f)
		}
	}
}

func (s *Session) onData(f wire.Frame) {
	if !s.receiving() {
		s.debugLog("dropping data notification outside a session", "frame", f.Name(), "state", s.state)
		return
	}
	if s.skip > 0 {
		s.skip--
		return
	}
	s.progressive++
	s.listener.OnFrame(f)
}

// receiving reports whether data notifications belong to the session.
func (s *Session) receiving() bool {
	switch s.state {
	case StateConnected, StateStalled:
		return true
	case StateRecovering:
		return s.recoveryBound
	}
	return false
}

func (s *Session) onConOK(f wire.ConOK) {
	s.timers.Stop(timerBind)

	switch {
	case s.state == StateRecovering:
		if f.SessionID != s.info.SessionID {
			s.recreate(wire.CauseRecoveryError)
			return
		}
		s.recoveryBound = true
		s.updateSessionInfo(f)
		s.ctrl.PrepareForReplay(wire.CauseRecovery)
		s.debugLog("session recovered", "session", f.SessionID, "progressive", s.progressive)
		s.listener.OnSessionStarted(true)

	case s.state == StateConnecting && s.binding:
		if f.SessionID != s.info.SessionID {
			s.recreate(s.errorCause())
			return
		}
		s.binding = false
		s.timers.Stop(timerRecovery)
		s.updateSessionInfo(f)
		s.setState(StateConnected, "bound")
		s.setStatus(kindStatus(s.kind))
		s.restartStalled()
		s.Flush()

	case s.state == StateConnecting:
		s.progressive = 0
		s.skip = 0
		s.backoff.Reset()
		s.info = Info{SessionID: f.SessionID}
		s.rec.SetSessionID(f.SessionID)
		s.listener.OnPropertyChange(PropSessionID)
		s.updateSessionInfo(f)
		s.setState(StateConnected, "created")
		s.setStatus(kindStatus(s.kind))
		s.restartStalled()
		s.listener.OnSessionStarted(false)
		s.Flush()

	default:
		s.debugLog("unexpected CONOK", "state", s.state)
	}
}

func (s *Session) updateSessionInfo(f wire.ConOK) {
	if s.info.KeepAlive != f.KeepAlive && f.KeepAlive > 0 {
		s.info.KeepAlive = f.KeepAlive
		s.listener.OnPropertyChange(PropKeepAlive)
	}
	if s.info.RequestLimit != f.RequestLimit {
		s.info.RequestLimit = f.RequestLimit
		s.listener.OnPropertyChange(PropRequestLimit)
	}
	if s.info.ControlLink != f.ControlLink {
		s.info.ControlLink = f.ControlLink
		s.listener.OnPropertyChange(PropControlLink)
	}
}

func (s *Session) onConErr(f wire.ConErr) {
	s.rec.Error(log.LayerEngine, f.Message, "CONERR", f.Code)
	if s.binding || s.state == StateRecovering {
		// The server no longer knows the session.
		s.recreate(wire.CauseRecoveryError)
		return
	}
	s.fail(f.Code, f.Message)
}

func (s *Session) onServerEnd(code int, message string) {
	s.rec.Error(log.LayerEngine, message, "END", code)
	s.fail(code, message)
}

func (s *Session) fail(code int, message string) {
	if s.logger != nil {
		s.logger.Warn("session refused by server", "code", code, "message", message)
	}
	s.shutdown()
	s.listener.OnServerError(code, message)
}

func (s *Session) onLoop(f wire.Loop) {
	switch {
	case s.state == StateRecovering && s.recoveryBound:
		s.recoveryBound = false
		s.rebind(s.primaryKind(), wire.CauseRecoveryLoop, f.Delay)
		s.setStatus(connection.StatusTryingRecovery)
	case s.state == StateConnected || s.state == StateStalled:
		cause := wire.CauseLoop
		if s.kind == KindHTTPPolling {
			cause = ""
		}
		s.rebind(s.kind, cause, f.Delay)
	default:
		s.debugLog("unexpected LOOP", "state", s.state)
	}
}

func (s *Session) onProg(f wire.Prog) {
	if s.state != StateRecovering || !s.recoveryBound {
		s.debugLog("unexpected PROG", "state", s.state)
		return
	}
	if f.Progressive > s.progressive {
		s.logError("recovery failed", "error", ErrProgressMismatch,
			"server", f.Progressive, "client", s.progressive)
		s.recreate(wire.CauseRecoveryError)
		return
	}
	s.skip = s.progressive - f.Progressive
}
