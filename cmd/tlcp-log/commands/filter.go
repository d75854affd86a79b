package commands

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tlcp-protocol/tlcp-go/pkg/log"
)

// Selection picks the TLCP traffic the filter command copies.
//
// Session, Conn, Since and Until narrow the capture. Frames, Ops and SubID
// select kinds of traffic: an event is kept when it matches any of them, or
// when none is set. Refused keeps only the failures among what is left.
type Selection struct {
	Output string

	Session string
	Conn    string
	Since   string
	Until   string

	// Frames are frame tags, e.g. U, SUBOK, CONF.
	Frames []string
	// Ops are control request operations, e.g. add, delete, register.
	Ops []string
	// SubID keeps the frames and state changes of one subscription.
	SubID int

	// Refused keeps refused requests, errors and the frames reporting them.
	Refused bool
}

// subscriptionFrames carry the subId as their first argument.
var subscriptionFrames = []string{"SUBOK", "SUBCMD", "UNSUB", "U", "EOS", "CS", "OV", "CONF"}

// failureFrames report a refusal or the end of a session.
var failureFrames = []string{"REQERR", "CONERR", "ERROR", "END"}

func parseBound(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s time: %w", name, err)
	}
	return &t, nil
}

// scope returns the reader filter for the session, connection and time
// window of the selection.
func (s Selection) scope() (log.Filter, error) {
	since, err := parseBound("since", s.Since)
	if err != nil {
		return log.Filter{}, err
	}
	until, err := parseBound("until", s.Until)
	if err != nil {
		return log.Filter{}, err
	}
	return log.Filter{
		ConnectionID: s.Conn,
		SessionID:    s.Session,
		TimeStart:    since,
		TimeEnd:      until,
	}, nil
}

func (s Selection) selectsKind() bool {
	return len(s.Frames) > 0 || len(s.Ops) > 0 || s.SubID > 0
}

func (s Selection) keep(e log.Event) bool {
	if s.selectsKind() && !s.matchFrame(e) && !s.matchOp(e) && !s.matchSub(e) {
		return false
	}
	return !s.Refused || failed(e)
}

func (s Selection) matchFrame(e log.Event) bool {
	return e.Frame != nil && slices.Contains(s.Frames, e.Frame.Name)
}

func (s Selection) matchOp(e log.Event) bool {
	return e.Request != nil && slices.Contains(s.Ops, e.Request.Op)
}

func (s Selection) matchSub(e log.Event) bool {
	if s.SubID <= 0 {
		return false
	}
	id := strconv.Itoa(s.SubID)
	switch {
	case e.Frame != nil && slices.Contains(subscriptionFrames, e.Frame.Name):
		args := strings.SplitN(e.Frame.Line, ",", 3)
		return len(args) > 1 && args[1] == id
	case e.StateChange != nil:
		return e.StateChange.Entity == log.StateEntitySubscription && e.StateChange.EntityID == id
	}
	return false
}

func failed(e log.Event) bool {
	switch {
	case e.Error != nil:
		return true
	case e.Request != nil:
		return e.Request.Outcome == log.RequestRefused
	case e.Frame != nil:
		return slices.Contains(failureFrames, e.Frame.Name)
	}
	return false
}

// RunFilter copies the events of the capture at path picked by sel to
// sel.Output. It returns the number of events written.
func RunFilter(path string, sel Selection) (int, error) {
	scope, err := sel.scope()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(sel.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer out.Close()

	written := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("failed to read event: %w", err)
		}
		if sel.keep(event) {
			out.Log(event)
			written++
		}
	}
}
