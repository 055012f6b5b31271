package reactor

import (
	"sync"

	"github.com/ankurah/ankurah/internal/value"
)

// Subscription is a caller's handle on one or more live queries registered
// with a Reactor; it aggregates their notifications into one channel per
// spec.md §4.5's quiescence guarantee (one notification per subscription per
// processed change), and tracks which entities the caller currently has
// visibility into via entitySubs, grounded on
// original_source/core/src/reactor/subscription_state.rs's SubscriptionState
// (entity_subscriptions / entities fields).
type Subscription struct {
	id      SubscriptionID
	reactor *Reactor

	mu         sync.Mutex
	queries    []QueryID
	entitySubs map[value.EntityID]bool

	notifyMu sync.Mutex
	handler  func(Notification)
}

func (s *Subscription) ID() SubscriptionID { return s.id }

// OnNotify registers the callback invoked for every Notification this
// subscription's queries produce. Only one handler is kept; registering a
// new one replaces the last, matching how a single caller owns a
// subscription for its lifetime.
func (s *Subscription) OnNotify(handler func(Notification)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.handler = handler
}

func (s *Subscription) deliver(n Notification) {
	s.notifyMu.Lock()
	h := s.handler
	s.notifyMu.Unlock()
	if h != nil {
		h(n)
	}
	s.mu.Lock()
	for _, item := range n.Items {
		switch item.Change {
		case Remove:
			delete(s.entitySubs, item.Entity.ID())
		default:
			s.entitySubs[item.Entity.ID()] = true
		}
	}
	s.mu.Unlock()
}

// Unsubscribe tears down every query this subscription owns.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	queries := append([]QueryID(nil), s.queries...)
	s.queries = nil
	s.mu.Unlock()
	for _, id := range queries {
		s.reactor.UnregisterQuery(id)
	}
	s.reactor.mu.Lock()
	delete(s.reactor.subscriptions, s.id)
	s.reactor.mu.Unlock()
}

// Contains reports whether id is currently a member of any query this
// subscription owns.
func (s *Subscription) Contains(id value.EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entitySubs[id]
}

// Queries returns the ids of every query registered under this
// subscription.
func (s *Subscription) Queries() []QueryID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QueryID(nil), s.queries...)
}

// Dispatch delivers notifications produced by Reactor.ApplyChange to the
// subscriptions they target. Reactor.ApplyChange itself is pure (it returns
// notifications rather than delivering them) so callers can batch across
// multiple entity changes before dispatching; most callers should just call
// this immediately after ApplyChange.
func (r *Reactor) Dispatch(notifications []Notification) {
	r.mu.Lock()
	subs := make(map[SubscriptionID]*Subscription, len(notifications))
	for _, n := range notifications {
		if s, ok := r.subscriptions[n.SubscriptionID]; ok {
			subs[n.SubscriptionID] = s
		}
	}
	r.mu.Unlock()
	for _, n := range notifications {
		if s, ok := subs[n.SubscriptionID]; ok {
			s.deliver(n)
		}
	}
}
