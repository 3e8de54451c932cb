package consensus

import (
	"sync"

	"tx2poa/authority"
)

type EventType string

const (
	EventVerdict  EventType = "block.verdict"
	EventRollback EventType = "chain.rollback"
	EventEviction EventType = "authority.evicted"
	EventDemoted  EventType = "role.demoted"
)

// Event is what the supervisor publishes after a decision. Only the fields
// relevant to Type are set.
type Event struct {
	Type        EventType
	Verdict     Verdict
	Target      uint64         // rollback target
	Authorities *authority.Set // set after an eviction
	Err         error          // cause of a demotion
}

type EventHandler func(Event)

type EventBus interface {
	Subscribe(topic EventType, handler EventHandler)
	Publish(event Event)
}

type SimpleEventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
}

func NewEventBus() EventBus {
	return &SimpleEventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

func (eb *SimpleEventBus) Subscribe(topic EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[topic] = append(eb.handlers[topic], handler)
}

// Publish runs the handlers on the caller's goroutine, in subscription order.
func (eb *SimpleEventBus) Publish(event Event) {
	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
