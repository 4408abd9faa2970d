// Copyright (C) 2024 right-sizer contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package bus implements the single in-process publish/subscribe bus
// (§4.1) with an optional bridge to an external broker. Every other
// component of the core talks to its peers only through this package.
package bus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is the envelope carried on every topic.
type Message struct {
	Topic     string
	Timestamp time.Time
	Payload   interface{}
	// external marks a message that arrived from the bridged broker, so
	// the bridge does not republish it outward and create a loop.
	external bool
}

// Handler processes one Message. It is invoked in the bus's own
// execution context, exactly once per message, in publish order for its
// (topic, subscriber) pair.
type Handler func(Message)

// Unsubscribe removes a handler previously returned by Subscribe.
type Unsubscribe func()

// ExternalClient is the bridge boundary to an external broker (NATS,
// Kafka, ...). The core never depends on a concrete implementation.
type ExternalClient interface {
	// Publish forwards one message outward. Returning an error does not
	// fail the local publish; it is logged.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers a callback for inbound external messages and
	// returns an error only if the subscription itself could not be made.
	Subscribe(ctx context.Context, onMessage func(topic string, payload []byte)) error
	Close() error
}

type subscriber struct {
	id      string
	topic   string
	handler Handler
	queue   chan Message
	stop    chan struct{}
}

// Bus is the concrete, concurrency-safe implementation of the core's
// publish/subscribe contract.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	bufferSize  int
	dropCount   int64
	dropMu      sync.Mutex

	bridgePrefix string
	external     ExternalClient
	bridgeCancel context.CancelFunc

	log *zap.Logger

	closed bool
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithBufferSize overrides the default per-subscriber queue depth.
func WithBufferSize(n int) Option {
	return func(b *Bus) { b.bufferSize = n }
}

// WithLogger overrides the zap logger used for bus diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// New constructs a Bus. Default buffer size is 256 messages per
// subscriber, matching the bounded-queue backpressure policy in §5.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[string][]*subscriber),
		bufferSize:  256,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topic. It returns an unsubscribe
// handle. The id is used only for diagnostics; callers that do not care
// may pass "".
func (b *Bus) Subscribe(topic, id string, handler Handler) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		id:      id,
		topic:   topic,
		handler: handler,
		queue:   make(chan Message, b.bufferSize),
		stop:    make(chan struct{}),
	}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	go b.deliverLoop(sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s == sub {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				close(sub.stop)
				return
			}
		}
	}
}

// deliverLoop drains one subscriber's FIFO queue, guaranteeing
// publish-order delivery per (topic, subscriber) independent of how
// slow this particular handler is relative to its peers.
func (b *Bus) deliverLoop(sub *subscriber) {
	for {
		select {
		case msg, ok := <-sub.queue:
			if !ok {
				return
			}
			b.invoke(sub, msg)
		case <-sub.stop:
			return
		}
	}
}

func (b *Bus) invoke(sub *subscriber, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber handler panicked",
				zap.String("topic", sub.topic), zap.String("subscriber", sub.id),
				zap.Any("panic", r))
		}
	}()
	sub.handler(msg)
}

// Publish fires msg to every subscriber of topic. It never blocks the
// caller longer than it takes to enqueue onto each subscriber's bounded
// queue; a full queue increments the drop counter instead of blocking.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.publish(Message{Topic: topic, Timestamp: time.Now(), Payload: payload})
}

func (b *Bus) publish(msg Message) {
	b.mu.RLock()
	subs := append([]*subscriber(nil), b.subscribers[msg.Topic]...)
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	for _, sub := range subs {
		select {
		case sub.queue <- msg:
		default:
			b.dropMu.Lock()
			b.dropCount++
			b.dropMu.Unlock()
			b.log.Warn("dropped message: subscriber queue full",
				zap.String("topic", msg.Topic), zap.String("subscriber", sub.id))
		}
	}

	if !msg.external && b.external != nil && b.bridgePrefix != "" && hasPrefix(msg.Topic, b.bridgePrefix) {
		b.forwardExternal(msg)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// DropCount returns the number of messages dropped to backpressure so
// far; used by the status/query surface.
func (b *Bus) DropCount() int64 {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.dropCount
}

// Stats summarizes bus occupancy for the query surface.
type Stats struct {
	TopicCount      int
	SubscriberCount int
	DropCount       int64
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, subs := range b.subscribers {
		total += len(subs)
	}
	return Stats{TopicCount: len(b.subscribers), SubscriberCount: total, DropCount: b.DropCount()}
}

// Close stops all delivery loops. Already-queued messages are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, s := range subs {
			close(s.stop)
		}
	}
	if b.bridgeCancel != nil {
		b.bridgeCancel()
	}
	if b.external != nil {
		_ = b.external.Close()
	}
}
