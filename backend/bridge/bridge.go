package bridge

import (
	"log"
	"sync"
	"time"

	"github.com/andi/stepline/backend/models"
)

// Handler receives push events for one subscribed order.
type Handler func(models.PushEvent)

// Subscription is an ownership-scoped handle on an order subscription.
// Unsubscribing is idempotent.
type Subscription struct {
	orderID string
	bridge  *Bridge
	once    sync.Once
}

// Unsubscribe removes the subscription from the bridge.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bridge.remove(s)
	})
}

// Bridge fans production-tracker push events out to views subscribed by
// order id, and records a last-update marker per order. It never touches
// workflow state: local edit-in-progress drafts must not be overwritten by
// a push arriving mid-edit. The marker is advisory (it triggers refetches),
// so concurrent events simply last-write-win.
type Bridge struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]Handler
	lastUpdate  map[string]time.Time
}

// New creates a bridge with no subscriptions.
func New() *Bridge {
	return &Bridge{
		subscribers: make(map[string]map[*Subscription]Handler),
		lastUpdate:  make(map[string]time.Time),
	}
}

// Subscribe registers a handler for an order's push events and returns the
// handle that scopes the subscription to the caller's lifetime.
func (b *Bridge) Subscribe(orderID string, fn Handler) *Subscription {
	sub := &Subscription{orderID: orderID, bridge: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[orderID] == nil {
		b.subscribers[orderID] = make(map[*Subscription]Handler)
	}
	b.subscribers[orderID][sub] = fn
	return sub
}

func (b *Bridge) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.orderID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subscribers, sub.orderID)
	}
}

// Publish delivers one push event. Unknown event types are dropped; known
// ones advance the order's last-update marker and notify every subscriber.
// A missing subscriber set is not an error, the manual refresh path stays
// available regardless.
func (b *Bridge) Publish(evt models.PushEvent) {
	if !evt.Type.Known() {
		log.Printf("Ignoring unknown push event type %q for order %s", evt.Type, evt.OrderID)
		return
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now()
	}

	b.mu.Lock()
	if evt.ReceivedAt.After(b.lastUpdate[evt.OrderID]) {
		b.lastUpdate[evt.OrderID] = evt.ReceivedAt
	}
	handlers := make([]Handler, 0, len(b.subscribers[evt.OrderID]))
	for _, fn := range b.subscribers[evt.OrderID] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(evt)
	}
}

// LastUpdate returns the most recent push time seen for an order.
func (b *Bridge) LastUpdate(orderID string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.lastUpdate[orderID]
	return t, ok
}

// SubscriberCount returns the number of subscriptions for an order.
func (b *Bridge) SubscriberCount(orderID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[orderID])
}
