package wire

import (
	"strconv"
	"strings"
	"time"
)

// Frame is one parsed server line. The concrete types below are the only
// implementations; dispatch on them with a type switch.
type Frame interface {
	Name() string
}

// Session frames.
type (
	// WSOK acknowledges the wsok request on a WebSocket.
	WSOK struct{}

	// ConOK confirms a created or bound session.
	ConOK struct {
		SessionID    string
		RequestLimit int
		KeepAlive    time.Duration
		ControlLink  string
	}

	// ConErr refuses a session request.
	ConErr struct {
		Code    int
		Message string
	}

	// End closes the session on the server side.
	End struct {
		Code    int
		Message string
	}

	// Error reports a request that could not be interpreted.
	Error struct {
		Code    int
		Message string
	}

	// Loop asks the client to rebind the session, after Delay.
	Loop struct {
		Delay time.Duration
	}

	// Prog carries the progressive of the first notification that follows
	// a recovery bind.
	Prog struct {
		Progressive int
	}

	// Probe is a keepalive.
	Probe struct{}

	// NoOp carries padding the client ignores.
	NoOp struct {
		Text string
	}

	// Sync reports seconds elapsed since session start.
	Sync struct {
		Seconds int
	}

	// ServName is the name of the server instance.
	ServName struct {
		Server string
	}

	// ClientIP is the client address seen by the server.
	ClientIP struct {
		IP string
	}

	// Cons is the bandwidth granted to the session in kbps, or "unlimited".
	Cons struct {
		Bandwidth string
	}

	// Unknown is a well-formed line with an unrecognized name.
	Unknown struct {
		Tag  string
		Line string
	}
)

// Control frames.
type (
	ReqOK struct {
		ReqID uint64
	}

	ReqErr struct {
		ReqID   uint64
		Code    int
		Message string
	}
)

// Subscription frames.
type (
	SubOK struct {
		SubID  int
		Items  int
		Fields int
	}

	SubCmd struct {
		SubID  int
		Items  int
		Fields int
		KeyPos int
		CmdPos int
	}

	Unsub struct {
		SubID int
	}

	Update struct {
		SubID  int
		Item   int
		Values string
	}

	EOS struct {
		SubID int
		Item  int
	}

	CS struct {
		SubID int
		Item  int
	}

	OV struct {
		SubID int
		Item  int
		Lost  int
	}

	Conf struct {
		SubID     int
		Frequency Frequency
		Filtered  bool
	}
)

// MPN frames.
type (
	MPNReg struct {
		DeviceID string
		Adapter  string
	}

	MPNOK struct {
		SubID          int
		SubscriptionID string
	}

	MPNDel struct {
		SubscriptionID string
	}

	MPNZero struct {
		DeviceID string
	}
)

func (WSOK) Name() string { return "WSOK" }
func (ConOK) Name() string { return "CONOK" }
func (ConErr) Name() string { return "CONERR" }
func (End) Name() string { return "END" }
func (Error) Name() string { return "ERROR" }
func (Loop) Name() string { return "LOOP" }
func (Prog) Name() string { return "PROG" }
func (Probe) Name() string { return "PROBE" }
func (NoOp) Name() string { return "NOOP" }
func (Sync) Name() string { return "SYNC" }
func (ServName) Name() string { return "SERVNAME" }
func (ClientIP) Name() string { return "CLIENTIP" }
func (Cons) Name() string { return "CONS" }
func (u Unknown) Name() string { return u.Tag }
func (ReqOK) Name() string { return "REQOK" }
func (ReqErr) Name() string { return "REQERR" }
func (SubOK) Name() string { return "SUBOK" }
func (SubCmd) Name() string { return "SUBCMD" }
func (Unsub) Name() string { return "UNSUB" }
func (Update) Name() string { return "U" }
func (EOS) Name() string { return "EOS" }
func (CS) Name() string { return "CS" }
func (OV) Name() string { return "OV" }
func (Conf) Name() string { return "CONF" }
func (MPNReg) Name() string { return "MPNREG" }
func (MPNOK) Name() string { return "MPNOK" }
func (MPNDel) Name() string { return "MPNDEL" }
func (MPNZero) Name() string { return "MPNZERO" }

// IsDataNotification reports whether f counts towards the session
// progressive used for recovery.
func IsDataNotification(f Frame) bool {
	switch f.(type) {
	case Update, EOS, CS, OV, Conf, Unsub, SubOK, SubCmd,
		MPNReg, MPNOK, MPNDel, MPNZero:
		return true
	}
	return false
}

// ParseFrame parses one server line (without the trailing CRLF).
func ParseFrame(line string) (Frame, error) {
	if line == "" {
		return nil, malformed(line, "empty line")
	}

	tag, rest, _ := strings.Cut(line, ",")
	p := fieldParser{line: line, rest: rest}

	var f Frame
	switch tag {
	case "WSOK":
		f = WSOK{}
	case "CONOK":
		f = ConOK{
			SessionID:    p.str(),
			RequestLimit: p.num(),
			KeepAlive:    time.Duration(p.num()) * time.Millisecond,
			ControlLink:  p.last(),
		}
	case "CONERR":
		f = ConErr{Code: p.num(), Message: p.text()}
	case "END":
		f = End{Code: p.num(), Message: p.text()}
	case "ERROR":
		f = Error{Code: p.num(), Message: p.text()}
	case "LOOP":
		f = Loop{Delay: time.Duration(p.num()) * time.Millisecond}
	case "PROG":
		f = Prog{Progressive: p.num()}
	case "PROBE":
		f = Probe{}
	case "NOOP":
		f = NoOp{Text: rest}
	case "SYNC":
		f = Sync{Seconds: p.num()}
	case "SERVNAME":
		f = ServName{Server: p.text()}
	case "CLIENTIP":
		f = ClientIP{IP: p.last()}
	case "CONS":
		f = Cons{Bandwidth: p.last()}
	case "REQOK":
		if rest == "" {
			f = ReqOK{}
		} else {
			f = ReqOK{ReqID: p.reqID()}
		}
	case "REQERR":
		f = ReqErr{ReqID: p.reqID(), Code: p.num(), Message: p.text()}
	case "SUBOK":
		f = SubOK{SubID: p.num(), Items: p.num(), Fields: p.lastNum()}
	case "SUBCMD":
		f = SubCmd{SubID: p.num(), Items: p.num(), Fields: p.num(), KeyPos: p.num(), CmdPos: p.lastNum()}
	case "UNSUB":
		f = Unsub{SubID: p.lastNum()}
	case "U":
		f = Update{SubID: p.num(), Item: p.num(), Values: p.last()}
	case "EOS":
		f = EOS{SubID: p.num(), Item: p.lastNum()}
	case "CS":
		f = CS{SubID: p.num(), Item: p.lastNum()}
	case "OV":
		f = OV{SubID: p.num(), Item: p.num(), Lost: p.lastNum()}
	case "CONF":
		conf := Conf{SubID: p.num()}
		conf.Frequency = p.frequency()
		switch flag := p.last(); flag {
		case "filtered":
			conf.Filtered = true
		case "unfiltered":
		default:
			p.fail("bad filter flag %q", flag)
		}
		f = conf
	case "MPNREG":
		f = MPNReg{DeviceID: p.str(), Adapter: p.last()}
	case "MPNOK":
		f = MPNOK{SubID: p.num(), SubscriptionID: p.last()}
	case "MPNDEL":
		f = MPNDel{SubscriptionID: p.last()}
	case "MPNZERO":
		f = MPNZero{DeviceID: p.last()}
	default:
		return Unknown{Tag: tag, Line: line}, nil
	}

	if p.err != nil {
		return nil, p.err
	}
	return f, nil
}

// fieldParser consumes comma-separated arguments left to right and keeps
// the first error.
type fieldParser struct {
	line string
	rest string
	done bool
	err  *ProtocolError
}

func (p *fieldParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = malformed(p.line, format, args...)
	}
}

func (p *fieldParser) next() string {
	if p.done {
		p.fail("missing argument")
		return ""
	}
	tok, rest, found := strings.Cut(p.rest, ",")
	p.rest = rest
	p.done = !found
	return tok
}

// last returns everything that remains, commas included.
func (p *fieldParser) last() string {
	if p.done {
		p.fail("missing argument")
		return ""
	}
	p.done = true
	return p.rest
}

func (p *fieldParser) str() string {
	return p.next()
}

// text decodes the remaining percent-encoded argument.
func (p *fieldParser) text() string {
	s, err := DecodeValue(p.last())
	if err != nil {
		p.fail("bad message: %v", err)
	}
	return s
}

func (p *fieldParser) atoi(tok string) int {
	n, err := strconv.Atoi(tok)
	if err != nil {
		p.fail("bad integer %q", tok)
	}
	return n
}

func (p *fieldParser) num() int {
	return p.atoi(p.next())
}

func (p *fieldParser) lastNum() int {
	return p.atoi(p.last())
}

func (p *fieldParser) reqID() uint64 {
	tok := p.next()
	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		p.fail("bad request id %q", tok)
	}
	return n
}

func (p *fieldParser) frequency() Frequency {
	tok := p.next()
	f, err := ParseFrequency(tok)
	if err != nil {
		p.fail("bad frequency %q", tok)
	}
	return f
}
