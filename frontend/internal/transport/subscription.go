package transport

import (
	"encoding/json"
	"sync"

	"github.com/wavoo-crm/crmchat/shared/logger"
)

// Handler receives the raw JSON payload of an event (nil when the event
// carried none).
type Handler func(payload json.RawMessage)

// EventSource is what feature components see of the connection: they may
// attach listeners and emit events, never connect or disconnect it.
type EventSource interface {
	On(event string, fn Handler) *Subscription
	Emit(event string, payload any) error
	Connected() bool
}

// Subscription is a registered listener. Close detaches it; it is safe to
// call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Group ties the lifetime of several subscriptions to one owner.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (g *Group) Add(subs ...*Subscription) {
	g.mu.Lock()
	g.subs = append(g.subs, subs...)
	g.mu.Unlock()
}

func (g *Group) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// Subscribe decodes each payload into T before calling fn. Payloads that do
// not decode are logged and dropped.
func Subscribe[T any](src EventSource, event string, fn func(T)) *Subscription {
	return src.On(event, func(raw json.RawMessage) {
		var v T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				logger.Log.Warn("dropping malformed event payload",
					"component", "transport",
					"event", event,
					"error", err)
				return
			}
		}
		fn(v)
	})
}

// Bus is the listener registry. Publish runs handlers synchronously in
// registration order.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]registered
}

type registered struct {
	id uint64
	fn Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]registered)}
}

func (b *Bus) On(event string, fn Handler) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], registered{id: id, fn: fn})
	b.mu.Unlock()

	return NewSubscription(func() { b.off(event, id) })
}

func (b *Bus) off(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i, r := range list {
		if r.id == id {
			b.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

func (b *Bus) Publish(event string, payload json.RawMessage) {
	b.mu.RLock()
	list := append([]registered(nil), b.handlers[event]...)
	b.mu.RUnlock()
	for _, r := range list {
		r.fn(payload)
	}
}

// Listeners reports how many handlers are attached to event.
func (b *Bus) Listeners(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}
