package ssdp

import (
	"reflect"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Topic names used by the core. Consumers (description server, device
// model, CLI) subscribe to these; the core never consumes a topic itself.
const (
	TopicNewDevice        = "ssdp.new_device"
	TopicRemovedDevice    = "ssdp.removed_device"
	TopicDatagramReceived = "ssdp.datagram_received"
	TopicLog              = "ssdp.log"
)

// Handler receives a topic's payload. A Handler must not panic; Bus
// recovers from one anyway so a single bad subscriber cannot take down
// publish for the rest.
type Handler func(payload ...any)

// Bus is a named-topic publish/subscribe hub for in-process consumers.
// Delivery is synchronous and sequential: Publish does not return until
// every subscriber for that topic has been called, in subscription order.
// It is passed explicitly at Engine construction rather than reached for
// as a package global, so tests can observe exactly what the engine emits.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

// Subscribe registers handler for topic. The same handler value may be
// subscribed more than once; Unsubscribe removes one occurrence.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// Unsubscribe removes handler from topic. It compares by pointer identity
// of the underlying function value; pass the exact Handler value given to
// Subscribe. Safe to call from inside a handler currently executing — the
// removal takes effect starting with the next Publish.
func (b *Bus) Unsubscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subs[topic]
	target := handlerID(handler)
	for i, h := range handlers {
		if handlerID(h) == target {
			b.subs[topic] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every subscriber of topic, in subscription
// order, synchronously. A handler's panic is recovered and logged so it
// never propagates out of Publish.
func (b *Bus) Publish(topic string, payload ...any) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.Unlock()

	for _, h := range handlers {
		callHandler(h, payload)
	}
}

func handlerID(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

func callHandler(h Handler, payload []any) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warnf("ssdp: event handler panicked: %v", rec)
		}
	}()
	h(payload...)
}

// Topics returns the set of topic names that currently have at least one
// subscriber, for debug/introspection use.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for topic, handlers := range b.subs {
		if len(handlers) > 0 {
			out = append(out, topic)
		}
	}
	return out
}
