package events

import (
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testType Type = "test.event"

func receive(c *qt.C, ch <-chan Event) Event {
	select {
	case evt, ok := <-ch:
		c.Assert(ok, qt.IsTrue, qt.Commentf("channel closed"))
		return evt
	case <-time.After(time.Second):
		c.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestPublishSubscribe(t *testing.T) {
	c := qt.New(t)
	bus := NewBus(nil)
	defer bus.Stop()

	_, ch1 := bus.Subscribe(testType)
	_, ch2 := bus.Subscribe(testType)
	_, other := bus.Subscribe("other.event")
	_, all := bus.Subscribe(All)

	bus.Publish(New(testType, 42))

	c.Assert(receive(c, ch1).Data, qt.Equals, 42)
	c.Assert(receive(c, ch2).Data, qt.Equals, 42)
	c.Assert(receive(c, all).Type, qt.Equals, testType)
	c.Assert(other, qt.HasLen, 0)
}

func TestUnsubscribe(t *testing.T) {
	c := qt.New(t)
	bus := NewBus(nil)
	defer bus.Stop()

	id, ch := bus.Subscribe(testType)
	bus.Unsubscribe(testType, id)
	_, ok := <-ch
	c.Assert(ok, qt.IsFalse)

	// publishing with no subscribers left is a no-op
	bus.Publish(New(testType, nil))
	bus.Unsubscribe(testType, id)
}

func TestSubscribeFunc(t *testing.T) {
	c := qt.New(t)
	bus := NewBus(nil)

	var calls atomic.Int32
	done := make(chan struct{})
	bus.SubscribeFunc(testType, func(evt Event) {
		if calls.Add(1) == 3 {
			close(done)
		}
	})
	for i := range 3 {
		bus.Publish(New(testType, i))
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		c.Fatal("handler was not called")
	}
	bus.Stop()
	c.Assert(calls.Load(), qt.Equals, int32(3))
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	c := qt.New(t)
	reg := prometheus.NewRegistry()
	bus := NewBus(reg)
	defer bus.Stop()

	_, ch := bus.Subscribe(testType)
	for i := range QueueSize + 5 {
		bus.Publish(New(testType, i))
	}
	c.Assert(ch, qt.HasLen, QueueSize)
	c.Assert(testutil.ToFloat64(bus.metrics.dropped.WithLabelValues(string(testType))), qt.Equals, float64(5))
	c.Assert(testutil.ToFloat64(bus.metrics.published.WithLabelValues(string(testType))), qt.Equals, float64(QueueSize+5))
	c.Assert(testutil.ToFloat64(bus.metrics.subscribers.WithLabelValues(string(testType))), qt.Equals, float64(1))
}

func TestStopClosesChannels(t *testing.T) {
	c := qt.New(t)
	bus := NewBus(nil)
	_, ch := bus.Subscribe(testType)
	bus.Stop()
	_, ok := <-ch
	c.Assert(ok, qt.IsFalse)

	// still usable after Stop
	_, ch = bus.Subscribe(testType)
	bus.Publish(New(testType, "again"))
	c.Assert(receive(c, ch).Data, qt.Equals, "again")
	bus.Stop()
}
