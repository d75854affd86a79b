package mpn

import "github.com/tlcp-protocol/tlcp-go/pkg/subscription"

// deviceFeed listens to DEV-<deviceId>.
type deviceFeed struct {
	subscription.BaseListener
	m *Manager
}

func (f *deviceFeed) OnItemUpdate(sub *subscription.Subscription, u *subscription.ItemUpdate) {
	if sub != f.m.devFeed {
		return
	}
	status := u.ValueByName("status")
	if status == nil {
		return
	}
	f.m.onDeviceStatus(*status, parseTimestamp(u.ValueByName("status_timestamp")))
}

func (f *deviceFeed) OnSubscriptionError(sub *subscription.Subscription, code int, message string) {
	if sub == f.m.devFeed {
		f.m.registrationFailed(code, message)
	}
}

func (f *deviceFeed) OnUnsubscription(sub *subscription.Subscription) {
	if sub == f.m.devFeed {
		f.m.registrationFailed(0, "device status subscription ended by the server")
	}
}

// subsFeed listens to SUBS-<deviceId>, one row per server MPN subscription.
type subsFeed struct {
	subscription.BaseListener
	m *Manager
}

func (f *subsFeed) OnItemUpdate(sub *subscription.Subscription, u *subscription.ItemUpdate) {
	if sub != f.m.subsFeed {
		return
	}
	key, cmd := u.ValueByName(subscription.KeyField), u.ValueByName(subscription.CommandField)
	if key == nil || cmd == nil {
		return
	}
	f.m.onServerRow(*key, *cmd)
}

func (f *subsFeed) OnEndOfSnapshot(sub *subscription.Subscription, _ string, _ int) {
	if sub == f.m.subsFeed {
		f.m.onSnapshotEnd()
	}
}

func (f *subsFeed) OnSubscriptionError(sub *subscription.Subscription, code int, message string) {
	if sub == f.m.subsFeed {
		f.m.registrationFailed(code, message)
	}
}

func (f *subsFeed) OnUnsubscription(sub *subscription.Subscription) {
	if sub == f.m.subsFeed {
		f.m.registrationFailed(0, "device subscription list ended by the server")
	}
}

// groupFeed listens to SUB-<deviceId>-<mpnSubId>.
type groupFeed struct {
	subscription.BaseListener
	m  *Manager
	id string
}

func (f *groupFeed) OnItemUpdate(_ *subscription.Subscription, u *subscription.ItemUpdate) {
	f.m.onGroupUpdate(f.id, u)
}

func (f *groupFeed) OnSubscriptionError(_ *subscription.Subscription, code int, message string) {
	if f.m.logger != nil {
		f.m.logger.Warn("MPN subscription feed refused", "mpnSubId", f.id, "code", code, "message", message)
	}
}
