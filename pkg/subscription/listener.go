package subscription

import "github.com/tlcp-protocol/tlcp-go/pkg/wire"

// Listener receives the events of a Subscription.
type Listener interface {
	// OnSubscription is called when the server confirms the subscription.
	OnSubscription(sub *Subscription)

	// OnSubscriptionError is called when the server refuses the
	// subscription. The subscription is no longer active.
	OnSubscriptionError(sub *Subscription, code int, message string)

	// OnUnsubscription is called when a confirmed subscription ends, for
	// whatever reason.
	OnUnsubscription(sub *Subscription)

	// OnItemUpdate delivers one update.
	OnItemUpdate(sub *Subscription, update *ItemUpdate)

	// OnEndOfSnapshot is called on EOS.
	OnEndOfSnapshot(sub *Subscription, itemName string, itemPos int)

	// OnClearSnapshot is called on CS.
	OnClearSnapshot(sub *Subscription, itemName string, itemPos int)

	// OnItemLostUpdates reports updates dropped by the server.
	OnItemLostUpdates(sub *Subscription, itemName string, itemPos int, lost int)

	// OnRealMaxFrequency reports the frequency granted by the server. A nil
	// freq means the server no longer reports one.
	OnRealMaxFrequency(sub *Subscription, freq *wire.Frequency)

	// OnCommandSecondLevelSubscriptionError reports that the second level
	// of key could not be subscribed.
	OnCommandSecondLevelSubscriptionError(sub *Subscription, code int, message string, key string)

	// OnCommandSecondLevelItemLostUpdates reports updates dropped on the
	// second level of key.
	OnCommandSecondLevelItemLostUpdates(sub *Subscription, lost int, key string)
}

// BaseListener implements Listener with no-ops, for embedding.
type BaseListener struct{}

func (BaseListener) OnSubscription(*Subscription)                                             {}
func (BaseListener) OnSubscriptionError(*Subscription, int, string)                           {}
func (BaseListener) OnUnsubscription(*Subscription)                                           {}
func (BaseListener) OnItemUpdate(*Subscription, *ItemUpdate)                                  {}
func (BaseListener) OnEndOfSnapshot(*Subscription, string, int)                               {}
func (BaseListener) OnClearSnapshot(*Subscription, string, int)                               {}
func (BaseListener) OnItemLostUpdates(*Subscription, string, int, int)                        {}
func (BaseListener) OnRealMaxFrequency(*Subscription, *wire.Frequency)                        {}
func (BaseListener) OnCommandSecondLevelSubscriptionError(*Subscription, int, string, string) {}
func (BaseListener) OnCommandSecondLevelItemLostUpdates(*Subscription, int, string)           {}

var _ Listener = BaseListener{}
