// Package transporttest provides an in-memory EventSource for tests of
// components that listen on the socket.
package transporttest

import (
	"encoding/json"
	"sync"

	"github.com/wavoo-crm/crmchat/frontend/internal/transport"
)

type Emitted struct {
	Event   string
	Payload json.RawMessage
}

// Source delivers pushed events synchronously on the caller's goroutine and
// records every emit.
type Source struct {
	bus *transport.Bus

	mu        sync.Mutex
	connected bool
	emitted   []Emitted
	EmitErr   error
}

func New() *Source {
	return &Source{bus: transport.NewBus(), connected: true}
}

func (s *Source) On(event string, fn transport.Handler) *transport.Subscription {
	return s.bus.On(event, fn)
}

func (s *Source) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EmitErr != nil {
		return s.EmitErr
	}
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	s.emitted = append(s.emitted, Emitted{Event: event, Payload: raw})
	return nil
}

func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Source) SetConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Push delivers payload to every listener of event. A string payload is
// taken as raw JSON.
func (s *Source) Push(event string, payload any) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
	case string:
		raw = json.RawMessage(p)
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			panic(err)
		}
		raw = b
	}
	s.bus.Publish(event, raw)
}

func (s *Source) Emitted() []Emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Emitted(nil), s.emitted...)
}

// EmittedEvents returns the names of emitted events in order.
func (s *Source) EmittedEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.emitted))
	for _, e := range s.emitted {
		names = append(names, e.Event)
	}
	return names
}

func (s *Source) Listeners(event string) int {
	return s.bus.Listeners(event)
}

var _ transport.EventSource = (*Source)(nil)
