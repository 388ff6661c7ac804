// Package events is the in-process bus poll lifecycle notifications are
// published on. Subscribers get a buffered channel per event type; a
// subscriber that stops draining its channel loses events instead of
// stalling the publisher.
package events

import (
	"sync"
	"time"

	"github.com/garagevoting/garage-node/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueSize is the buffer of every subscriber channel.
const QueueSize = 64

// Type names an event kind.
type Type string

// All subscribes to every event type.
const All Type = "*"

type SubscriberID int

type HandlerFunc func(Event)

// Event is a notification. Data holds one of the payload structs declared
// by the publisher.
type Event struct {
	Type      Type
	Timestamp time.Time
	Data      any
}

func New(typ Type, data any) Event {
	return Event{Type: typ, Timestamp: time.Now(), Data: data}
}

type subscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

// deliver never blocks. It returns false when the event was dropped.
func (s *subscriber) deliver(evt Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

type metrics struct {
	published   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
}

// Bus fans events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type]map[SubscriberID]*subscriber
	lastID      SubscriberID
	metrics     *metrics
	handlers    sync.WaitGroup
}

// NewBus returns an empty bus. Metrics are registered on promRegistry when
// it is not nil.
func NewBus(promRegistry prometheus.Registerer) *Bus {
	b := &Bus{subscribers: make(map[Type]map[SubscriberID]*subscriber)}
	if promRegistry != nil {
		b.initMetrics(promRegistry)
	}
	return b
}

func (b *Bus) initMetrics(promRegistry prometheus.Registerer) {
	factory := promauto.With(promRegistry)
	b.metrics = &metrics{
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_events_published_total",
			Help: "events published on the bus",
		}, []string{"type"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_events_dropped_total",
			Help: "events dropped because a subscriber queue was full",
		}, []string{"type"}),
		subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "garage_events_subscribers",
			Help: "current subscribers per event type",
		}, []string{"type"}),
	}
}

// Subscribe returns a channel receiving events of typ, or of every type
// when typ is All. The channel is closed by Unsubscribe or Stop.
func (b *Bus) Subscribe(typ Type) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{ch: make(chan Event, QueueSize)}
	b.lastID++
	id := b.lastID
	if _, ok := b.subscribers[typ]; !ok {
		b.subscribers[typ] = make(map[SubscriberID]*subscriber)
	}
	b.subscribers[typ][id] = sub
	if b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(string(typ)).Inc()
	}
	return id, sub.ch
}

// SubscribeFunc calls fn for every event of typ from a dedicated goroutine.
func (b *Bus) SubscribeFunc(typ Type, fn HandlerFunc) SubscriberID {
	id, ch := b.Subscribe(typ)
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		for evt := range ch {
			fn(evt)
		}
	}()
	return id
}

func (b *Bus) Unsubscribe(typ Type, id SubscriberID) {
	b.mu.Lock()
	var sub *subscriber
	if subs, ok := b.subscribers[typ]; ok {
		sub = subs[id]
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.subscribers, typ)
		}
	}
	if sub != nil && b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(string(typ)).Dec()
	}
	b.mu.Unlock()
	if sub != nil {
		sub.close()
	}
}

// Publish delivers evt to the subscribers of its type and to the All
// subscribers.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subscribers[evt.Type])+len(b.subscribers[All]))
	for _, sub := range b.subscribers[evt.Type] {
		targets = append(targets, sub)
	}
	if evt.Type != All {
		for _, sub := range b.subscribers[All] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.deliver(evt) {
			log.Debugw("event dropped, subscriber queue full", "type", string(evt.Type))
			if b.metrics != nil {
				b.metrics.dropped.WithLabelValues(string(evt.Type)).Inc()
			}
		}
	}
	if b.metrics != nil {
		b.metrics.published.WithLabelValues(string(evt.Type)).Inc()
	}
}

// Stop closes every subscriber channel and waits for SubscribeFunc
// handlers to return. The bus stays usable afterwards.
func (b *Bus) Stop() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[Type]map[SubscriberID]*subscriber)
	b.mu.Unlock()
	for _, byID := range subs {
		for _, sub := range byID {
			sub.close()
		}
	}
	if b.metrics != nil {
		b.metrics.subscribers.Reset()
	}
	b.handlers.Wait()
}
