// Package eventbus is the NATS/JetStream-backed peer transport: Broadcaster
// publishes committed entity changes to a per-collection subject,
// Bus.Subscribe consumes them durably (a reconnecting peer replays whatever
// it missed instead of losing updates), and registered Handlers turn a
// received Envelope into a subscription.UpdateItem for UpdateApplier.Apply.
// Grounded on _examples/steveyegge-beads/internal/eventbus's Bus/Handler
// dispatch shape, repointed from Claude Code hook events at Ankurah
// entity-update envelopes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

// Bus dispatches received envelopes to registered handlers and publishes
// outbound envelopes to JetStream.
type Bus struct {
	handlers []Handler
	js       nats.JetStreamContext
	mu       sync.RWMutex
}

func New() *Bus { return &Bus{} }

func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

func (b *Bus) JetStreamEnabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js != nil
}

func (b *Bus) JetStream() nats.JetStreamContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js
}

// Register adds a handler. Handlers run in priority order determined by
// registration order (first registered, first run) since, unlike the
// original command-dispatch bus, envelope handlers don't carry a priority
// of their own — there's normally exactly one (the UpdateApplier bridge).
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Dispatch runs every registered handler against a locally received
// envelope. Handler errors are logged and do not stop the chain.
func (b *Bus) Dispatch(ctx context.Context, env *Envelope) error {
	if env == nil {
		return fmt.Errorf("eventbus: nil envelope")
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("eventbus: context canceled: %w", err)
		}
		if err := h.Handle(ctx, env); err != nil {
			log.Printf("eventbus: handler %q error for %s/%s: %v", h.ID(), env.Collection, env.EntityID, err)
		}
	}
	return nil
}

// Publish sends env to its collection's subject for every peer subscribed
// to consume it. Requires JetStream to be configured; returns an error
// rather than silently dropping since, unlike the original hook bus, a
// dropped update here is a correctness gap, not a missed notification.
func (b *Bus) Publish(env *Envelope) error {
	b.mu.RLock()
	js := b.js
	b.mu.RUnlock()
	if js == nil {
		return fmt.Errorf("eventbus: JetStream not configured")
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	subject := SubjectForCollection(env.Collection)
	if _, err := js.Publish(subject, data); err != nil {
		return fmt.Errorf("eventbus: publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe starts a durable JetStream consumer for collection and
// dispatches every received envelope to the registered handlers until ctx
// is canceled. durableName should be stable per peer so a reconnect resumes
// from its last acknowledged sequence instead of replaying from the start.
func (b *Bus) Subscribe(ctx context.Context, collection, durableName string) error {
	b.mu.RLock()
	js := b.js
	b.mu.RUnlock()
	if js == nil {
		return fmt.Errorf("eventbus: JetStream not configured")
	}

	sub, err := js.Subscribe(SubjectForCollection(collection), func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("eventbus: malformed envelope on %s: %v", msg.Subject, err)
			return
		}
		if err := b.Dispatch(ctx, &env); err != nil {
			log.Printf("eventbus: dispatch failed for %s: %v", msg.Subject, err)
			return
		}
		_ = msg.Ack()
	}, nats.Durable(durableName), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("eventbus: subscribe to %s: %w", collection, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}
