package subscription

import (
	"log/slog"
	"slices"

	"github.com/tlcp-protocol/tlcp-go/pkg/control"
	"github.com/tlcp-protocol/tlcp-go/pkg/log"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

// Controller is the part of the control channel used by managers.
// *control.Channel implements it.
type Controller interface {
	Enqueue(req *control.Request) error
	Complete(req *control.Request)
	Abandon(req *control.Request)
}

var _ Controller = (*control.Channel)(nil)

// Config configures a Registry.
type Config struct {
	// Logger receives debug output. May be nil.
	Logger *slog.Logger

	// ProtocolLogger receives subscription state changes. May be nil.
	ProtocolLogger log.Logger

	// Dispatch runs listener callbacks of application subscriptions. Nil
	// runs them inline.
	Dispatch func(func())

	// Post runs a function on the event loop. Nil runs it inline.
	Post func(func())
}

// Registry owns the subscriptions of a client and their managers.
type Registry struct {
	ctrl     Controller
	logger   *slog.Logger
	rec      *log.Recorder
	dispatch func(func())
	postFn   func(func())

	// live is set between session start and end.
	live      bool
	lastSubID int
	managers  map[int]*Manager

	// internal subscriptions are sent before application ones.
	internal []*Subscription
	subs     []*Subscription
}

// NewRegistry creates an empty registry sending requests through ctrl.
func NewRegistry(ctrl Controller, cfg Config) *Registry {
	return &Registry{
		ctrl:     ctrl,
		logger:   cfg.Logger,
		rec:      log.NewRecorder(cfg.ProtocolLogger, "ENGINE"),
		dispatch: cfg.Dispatch,
		postFn:   cfg.Post,
		managers: make(map[int]*Manager),
	}
}

// Subscribe activates sub. It is sent now if a session is up, otherwise
// when one starts. Safe for concurrent use.
func (r *Registry) Subscribe(sub *Subscription) error {
	if sub == nil {
		return ErrInvalidSubscription
	}
	if err := sub.activate(r, false); err != nil {
		return err
	}
	r.post(func() { r.add(sub) })
	return nil
}

// Unsubscribe deactivates sub. Safe for concurrent use.
func (r *Registry) Unsubscribe(sub *Subscription) error {
	if sub == nil || !sub.deactivate() {
		return ErrNotActive
	}
	r.post(func() { r.remove(sub) })
	return nil
}

// SubscribeInternal activates a subscription owned by the client itself.
// Its listeners run on the event loop. Event loop only.
func (r *Registry) SubscribeInternal(sub *Subscription) error {
	if err := sub.activate(r, true); err != nil {
		return err
	}
	r.add(sub)
	return nil
}

// UnsubscribeInternal deactivates an internal subscription. Event loop only.
func (r *Registry) UnsubscribeInternal(sub *Subscription) {
	if sub.deactivate() {
		r.remove(sub)
	}
}

// Subscriptions returns the active application subscriptions.
func (r *Registry) Subscriptions() []*Subscription {
	return slices.Clone(r.subs)
}

// Manager returns the manager bound to subID, or nil.
func (r *Registry) Manager(subID int) *Manager {
	return r.managers[subID]
}

// NextSubID hands out a subId. Subscriptions and push activations share
// the sequence.
func (r *Registry) NextSubID() int {
	r.lastSubID++
	return r.lastSubID
}

// OnSessionStarted sends every active subscription, internal ones first.
// A recovered session keeps its bindings.
func (r *Registry) OnSessionStarted(recovered bool) {
	if recovered {
		return
	}
	r.live = true
	for _, sub := range r.internal {
		if sub.boundID == 0 {
			r.bind(sub)
		}
	}
	for _, sub := range r.subs {
		if sub.boundID == 0 {
			r.bind(sub)
		}
	}
}

// OnSessionEnded aborts every binding.
func (r *Registry) OnSessionEnded() {
	r.live = false
	ids := make([]int, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		r.managers[id].abort()
	}
	r.managers = make(map[int]*Manager)
}

// OnFrame routes a subscription data notification to its manager. Other
// frames are ignored. The error is a protocol violation that should end
// the session.
func (r *Registry) OnFrame(f wire.Frame) error {
	subID, ok := frameSubID(f)
	if !ok {
		return nil
	}
	m := r.managers[subID]
	if m == nil {
		r.debugLog("notification for unknown subscription", "frame", f.Name(), "subId", subID)
		return nil
	}

	switch f := f.(type) {
	case wire.SubOK:
		m.onSubOK(f.Items, f.Fields, 0, 0)
	case wire.SubCmd:
		m.onSubOK(f.Items, f.Fields, f.KeyPos, f.CmdPos)
	case wire.Update:
		return m.onUpdate(f)
	case wire.EOS:
		return m.onEOS(f.Item)
	case wire.CS:
		return m.onCS(f.Item)
	case wire.OV:
		return m.onOV(f.Item, f.Lost)
	case wire.Conf:
		m.onConf(f.Frequency)
	case wire.Unsub:
		m.onUnsub()
	}
	return nil
}

func frameSubID(f wire.Frame) (int, bool) {
	switch f := f.(type) {
	case wire.SubOK:
		return f.SubID, true
	case wire.SubCmd:
		return f.SubID, true
	case wire.Update:
		return f.SubID, true
	case wire.EOS:
		return f.SubID, true
	case wire.CS:
		return f.SubID, true
	case wire.OV:
		return f.SubID, true
	case wire.Conf:
		return f.SubID, true
	case wire.Unsub:
		return f.SubID, true
	default:
		return 0, false
	}
}

func (r *Registry) add(sub *Subscription) {
	if sub.isInternal() {
		r.internal = append(r.internal, sub)
	} else {
		r.subs = append(r.subs, sub)
	}
	if r.live {
		r.bind(sub)
	}
}

func (r *Registry) remove(sub *Subscription) {
	r.unlist(sub)
	if sub.boundID == 0 {
		return
	}
	if m := r.managers[sub.boundID]; m != nil {
		m.unsubscribe()
	}
}

// drop forgets a subscription the server ended.
func (r *Registry) drop(sub *Subscription) {
	r.unlist(sub)
	sub.deactivate()
}

func (r *Registry) unlist(sub *Subscription) {
	match := func(s *Subscription) bool { return s == sub }
	r.internal = slices.DeleteFunc(r.internal, match)
	r.subs = slices.DeleteFunc(r.subs, match)
}

func (r *Registry) bind(sub *Subscription) *Manager {
	m := newManager(r, sub, r.NextSubID())
	r.managers[m.subID] = m
	sub.boundID = m.subID
	m.sendAdd()
	return m
}

func (r *Registry) bindSecondLevel(parent *Manager, itemPos int, key string) *Manager {
	m := newManager(r, parent.sub.secondLevel(key), r.NextSubID())
	m.parentID = parent.subID
	m.parentItem = itemPos
	m.parentKey = key
	r.managers[m.subID] = m
	m.sub.boundID = m.subID
	m.sendAdd()
	return m
}

func (r *Registry) reconf(sub *Subscription) {
	if sub.boundID == 0 {
		return
	}
	if m := r.managers[sub.boundID]; m != nil {
		m.reconf()
	}
}

func (r *Registry) notify(sub *Subscription, fn func(Listener)) {
	listeners := sub.Listeners()
	if len(listeners) == 0 {
		return
	}
	run := func() {
		for _, l := range listeners {
			fn(l)
		}
	}
	if r.dispatch == nil || sub.isInternal() {
		run()
		return
	}
	r.dispatch(run)
}

func (r *Registry) post(fn func()) {
	if r.postFn == nil {
		fn()
		return
	}
	r.postFn(fn)
}

func (r *Registry) debugLog(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Registry) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}
