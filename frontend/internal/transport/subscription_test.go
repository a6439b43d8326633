package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	*Bus
}

func (fakeSource) Emit(string, any) error { return nil }
func (fakeSource) Connected() bool        { return true }

func TestBusOrderAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	var calls []string

	first := bus.On("msg:new", func(json.RawMessage) { calls = append(calls, "first") })
	bus.On("msg:new", func(json.RawMessage) { calls = append(calls, "second") })

	bus.Publish("msg:new", nil)
	assert.Equal(t, []string{"first", "second"}, calls)

	first.Close()
	first.Close()
	calls = nil
	bus.Publish("msg:new", nil)
	assert.Equal(t, []string{"second"}, calls)
	assert.Equal(t, 1, bus.Listeners("msg:new"))
}

func TestGroupClosesEverything(t *testing.T) {
	bus := NewBus()
	var g Group
	g.Add(bus.On("a", func(json.RawMessage) {}), bus.On("b", func(json.RawMessage) {}))
	assert.Equal(t, 1, bus.Listeners("a"))

	g.Close()
	assert.Equal(t, 0, bus.Listeners("a"))
	assert.Equal(t, 0, bus.Listeners("b"))
}

func TestSubscribeDecodes(t *testing.T) {
	src := fakeSource{NewBus()}
	type payload struct {
		TenantID string `json:"tenantId"`
	}
	var got []payload
	Subscribe(src, "wa:status", func(p payload) { got = append(got, p) })

	src.Publish("wa:status", json.RawMessage(`{"tenantId":"t1"}`))
	src.Publish("wa:status", json.RawMessage(`not json`))
	src.Publish("wa:status", nil)

	assert.Equal(t, []payload{{TenantID: "t1"}, {}}, got)
}

func TestSubscriptionCloseDuringPublish(t *testing.T) {
	bus := NewBus()
	var sub *Subscription
	count := 0
	sub = bus.On("x", func(json.RawMessage) {
		count++
		sub.Close()
	})
	bus.Publish("x", nil)
	bus.Publish("x", nil)
	assert.Equal(t, 1, count)
}
