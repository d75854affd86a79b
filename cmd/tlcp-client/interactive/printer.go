package interactive

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/tlcp-protocol/tlcp-go/pkg/client"
	"github.com/tlcp-protocol/tlcp-go/pkg/mpn"
	"github.com/tlcp-protocol/tlcp-go/pkg/subscription"
	"github.com/tlcp-protocol/tlcp-go/pkg/wire"
)

var (
	itemColor   = color.New(color.FgCyan, color.Bold).SprintFunc()
	fieldColor  = color.New(color.FgGreen).SprintFunc()
	statusColor = color.New(color.FgYellow).SprintFunc()
	errorColor  = color.New(color.FgRed).SprintFunc()
	nullColor   = color.New(color.Faint).SprintFunc()
)

// Printer writes client, subscription and push notification events to a
// terminal. It implements every listener interface of the client.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// SetOutput redirects the printer, e.g. to a readline writer.
func (p *Printer) SetOutput(out io.Writer) {
	p.mu.Lock()
	p.out = out
	p.mu.Unlock()
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

// formatFields renders name=value pairs in the order of names. Names
// missing from values are skipped.
func formatFields(names []string, values map[string]*string) string {
	parts := make([]string, 0, len(values))
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			continue
		}
		val := nullColor("<null>")
		if v != nil {
			val = *v
		}
		parts = append(parts, fieldColor(name)+"="+val)
	}
	return strings.Join(parts, " ")
}

// sortedKeys returns the keys of values in lexical order, for updates
// whose field names are not known up front.
func sortedKeys(values map[string]*string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describe(sub *subscription.Subscription) string {
	if items := sub.Items(); len(items) > 0 {
		return string(sub.Mode()) + " " + strings.Join(items, ",")
	}
	return string(sub.Mode()) + " " + sub.Group()
}

// client.Listener

func (p *Printer) OnStatusChange(status string) {
	p.printf("%s %s", statusColor("[status]"), status)
}

func (p *Printer) OnServerError(code int, message string) {
	p.printf("%s server error %d: %s", errorColor("[error]"), code, message)
}

func (p *Printer) OnPropertyChange(string) {}

var _ client.Listener = (*Printer)(nil)

// subscription.Listener

func (p *Printer) OnSubscription(sub *subscription.Subscription) {
	p.printf("%s subscribed: %s", statusColor("[sub]"), describe(sub))
}

func (p *Printer) OnSubscriptionError(sub *subscription.Subscription, code int, message string) {
	p.printf("%s subscription refused (%d %s): %s", errorColor("[sub]"), code, message, describe(sub))
}

func (p *Printer) OnUnsubscription(sub *subscription.Subscription) {
	p.printf("%s unsubscribed: %s", statusColor("[sub]"), describe(sub))
}

func (p *Printer) OnItemUpdate(sub *subscription.Subscription, update *subscription.ItemUpdate) {
	fields := update.ChangedFields()
	names := sub.Fields()
	if len(names) == 0 || sub.Mode() == wire.ModeCommand {
		names = sortedKeys(fields)
	}
	marker := ""
	if update.IsSnapshot() {
		marker = " (snapshot)"
	}
	item := update.ItemName()
	if item == "" {
		item = fmt.Sprintf("#%d", update.ItemPos())
	}
	p.printf("%s%s %s", itemColor(item), marker, formatFields(names, fields))
}

func (p *Printer) OnEndOfSnapshot(_ *subscription.Subscription, itemName string, itemPos int) {
	p.printf("%s end of snapshot %s(%d)", statusColor("[sub]"), itemName, itemPos)
}

func (p *Printer) OnClearSnapshot(_ *subscription.Subscription, itemName string, itemPos int) {
	p.printf("%s clear snapshot %s(%d)", statusColor("[sub]"), itemName, itemPos)
}

func (p *Printer) OnItemLostUpdates(_ *subscription.Subscription, itemName string, itemPos int, lost int) {
	p.printf("%s %d updates lost on %s(%d)", errorColor("[sub]"), lost, itemName, itemPos)
}

func (p *Printer) OnRealMaxFrequency(sub *subscription.Subscription, freq *wire.Frequency) {
	value := "none"
	if freq != nil {
		value = freq.String()
	}
	p.printf("%s max frequency %s: %s", statusColor("[sub]"), value, describe(sub))
}

func (p *Printer) OnCommandSecondLevelSubscriptionError(_ *subscription.Subscription, code int, message string, key string) {
	p.printf("%s second level of %s refused (%d %s)", errorColor("[sub]"), key, code, message)
}

func (p *Printer) OnCommandSecondLevelItemLostUpdates(_ *subscription.Subscription, lost int, key string) {
	p.printf("%s %d updates lost on second level of %s", errorColor("[sub]"), lost, key)
}

var _ subscription.Listener = (*Printer)(nil)

// mpnPrinter prints device events.
type mpnPrinter struct{ *Printer }

func (p mpnPrinter) OnRegistered(dev *mpn.Device) {
	p.printf("%s device registered: %s", statusColor("[mpn]"), dev.DeviceID())
}

func (p mpnPrinter) OnRegistrationFailed(_ *mpn.Device, code int, message string) {
	p.printf("%s registration failed (%d %s)", errorColor("[mpn]"), code, message)
}

func (p mpnPrinter) OnSuspended(*mpn.Device) {
	p.printf("%s device suspended", statusColor("[mpn]"))
}

func (p mpnPrinter) OnResumed(*mpn.Device) {
	p.printf("%s device resumed", statusColor("[mpn]"))
}

func (p mpnPrinter) OnStatusChanged(*mpn.Device, mpn.DeviceStatus, int64) {}

func (p mpnPrinter) OnSubscriptionsUpdated(*mpn.Device) {}

func (p mpnPrinter) OnBadgeReset(*mpn.Device) {
	p.printf("%s badge reset", statusColor("[mpn]"))
}

func (p mpnPrinter) OnBadgeResetFailed(_ *mpn.Device, code int, message string) {
	p.printf("%s badge reset failed (%d %s)", errorColor("[mpn]"), code, message)
}

var _ mpn.DeviceListener = mpnPrinter{}

// mpnSubPrinter prints push subscription events.
type mpnSubPrinter struct{ *Printer }

func (p mpnSubPrinter) OnSubscription(sub *mpn.Subscription) {
	p.printf("%s push subscription active: %s", statusColor("[mpn]"), sub.SubscriptionID())
}

func (p mpnSubPrinter) OnUnsubscription(sub *mpn.Subscription) {
	p.printf("%s push subscription removed: %s", statusColor("[mpn]"), sub.SubscriptionID())
}

func (p mpnSubPrinter) OnSubscriptionError(_ *mpn.Subscription, code int, message string) {
	p.printf("%s push subscription refused (%d %s)", errorColor("[mpn]"), code, message)
}

func (p mpnSubPrinter) OnUnsubscriptionError(_ *mpn.Subscription, code int, message string) {
	p.printf("%s push unsubscription refused (%d %s)", errorColor("[mpn]"), code, message)
}

func (p mpnSubPrinter) OnTriggered(sub *mpn.Subscription) {
	p.printf("%s push subscription triggered: %s", statusColor("[mpn]"), sub.SubscriptionID())
}

func (p mpnSubPrinter) OnStatusChanged(*mpn.Subscription, mpn.Status, int64) {}

func (p mpnSubPrinter) OnPropertyChanged(*mpn.Subscription, string) {}

func (p mpnSubPrinter) OnModificationError(_ *mpn.Subscription, code int, message string, property string) {
	p.printf("%s change of %s refused (%d %s)", errorColor("[mpn]"), property, code, message)
}

var _ mpn.SubscriptionListener = mpnSubPrinter{}

// DeviceListener returns a listener printing device events.
func (p *Printer) DeviceListener() mpn.DeviceListener { return mpnPrinter{p} }

// PushListener returns a listener printing push subscription events.
func (p *Printer) PushListener() mpn.SubscriptionListener { return mpnSubPrinter{p} }
