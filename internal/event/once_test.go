package event

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	stockerr "github.com/Iron-Ham/stockroom/internal/errors"
)

func TestSubscribeOnce_DeliversOnce(t *testing.T) {
	bus := NewBus[topic, item]()

	var received []item
	target := Sink(func(it item) { received = append(received, it) })
	once := SubscribeOnce(bus, topicWidget, target)

	if bus.Count(topicWidget) != 1 {
		t.Fatalf("Expected the wrapper to be registered, got %d", bus.Count(topicWidget))
	}

	for _, name := range []string{"first", "second", "third"} {
		if err := bus.Publish(topicWidget, item{name: name}); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}

	if len(received) != 1 || received[0].name != "first" {
		t.Errorf("Expected exactly the first payload, got %v", received)
	}
	if !once.Done() {
		t.Error("Once should report Done after delivering")
	}
	if len(bus.Topics()) != 0 {
		t.Errorf("Wrapper should detach after delivery, topics: %v", bus.Topics())
	}
}

func TestSubscribeOnce_TargetStaysSubscribedElsewhere(t *testing.T) {
	bus := NewBus[topic, item]()

	calls := 0
	target := Sink(func(item) { calls++ })
	bus.Subscribe(topicWidget, target)
	SubscribeOnce(bus, topicWidget, target)

	_ = bus.Publish(topicWidget, item{})
	if calls != 2 {
		t.Fatalf("Expected direct and wrapped registrations to both run, got %d", calls)
	}

	_ = bus.Publish(topicWidget, item{})
	if calls != 3 {
		t.Errorf("Expected only the direct registration to remain, got %d calls", calls)
	}
	if bus.Count(topicWidget) != 1 {
		t.Errorf("Expected 1 registration left, got %d", bus.Count(topicWidget))
	}
}

func TestSubscribeOnce_PreservesNeighbours(t *testing.T) {
	bus := NewBus[topic, item]()
	rec := &recorder{}

	bus.Subscribe(topicWidget, rec.listener("L1"))
	SubscribeOnce(bus, topicWidget, rec.listener("once"))
	bus.Subscribe(topicWidget, rec.listener("L3"))

	_ = bus.Publish(topicWidget, item{})
	if got, want := rec.got(), []string{"L1", "once", "L3"}; !slices.Equal(got, want) {
		t.Errorf("First pass: expected %v, got %v", want, got)
	}

	rec.reset()
	_ = bus.Publish(topicWidget, item{})
	if got, want := rec.got(), []string{"L1", "L3"}; !slices.Equal(got, want) {
		t.Errorf("Second pass: expected %v, got %v", want, got)
	}
}

func TestSubscribeOnce_OtherTopicDoesNotFire(t *testing.T) {
	bus := NewBus[topic, item]()

	once := SubscribeOnce(bus, topicWidget, Sink(func(item) {
		t.Error("Once should not fire for another topic")
	}))
	_ = bus.Publish(topicHammer, item{})

	if once.Done() {
		t.Error("Once should still be armed")
	}
	if once.Topic() != topicWidget {
		t.Errorf("Topic() = %s, want %s", once.Topic(), topicWidget)
	}
	if bus.Count(topicWidget) != 1 {
		t.Errorf("Unpublished wrapper should stay registered, got %d", bus.Count(topicWidget))
	}
}

func TestSubscribeOnce_ErrorRearms(t *testing.T) {
	bus := NewBus[topic, item]()
	boom := errors.New("not ready")

	attempts := 0
	once := SubscribeOnce(bus, topicWidget, Func(func(item) error {
		attempts++
		if attempts == 1 {
			return boom
		}
		return nil
	}))

	err := bus.Publish(topicWidget, item{})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the target error to reach the publisher, got %v", err)
	}
	if once.Done() || bus.Count(topicWidget) != 1 {
		t.Fatal("A failed delivery should leave the wrapper registered")
	}

	if err := bus.Publish(topicWidget, item{}); err != nil {
		t.Fatalf("Second attempt returned error: %v", err)
	}
	if !once.Done() || bus.Count(topicWidget) != 0 {
		t.Error("A successful retry should detach the wrapper")
	}

	_ = bus.Publish(topicWidget, item{})
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestSubscribeOnce_PanicRearms(t *testing.T) {
	bus := NewBus[topic, item]()

	attempts := 0
	once := SubscribeOnce(bus, topicWidget, Sink(func(item) {
		attempts++
		if attempts == 1 {
			panic("shelf collapsed")
		}
	}))

	err := bus.Publish(topicWidget, item{})
	if !errors.Is(err, stockerr.ErrListenerPanicked) {
		t.Fatalf("Expected ErrListenerPanicked, got %v", err)
	}
	if once.Done() {
		t.Fatal("A panicking delivery should leave the wrapper armed")
	}

	_ = bus.Publish(topicWidget, item{})
	if !once.Done() || attempts != 2 {
		t.Errorf("Expected delivery on the second attempt, done=%v attempts=%d", once.Done(), attempts)
	}
}

func TestOnce_Cancel(t *testing.T) {
	bus := NewBus[topic, item]()

	once := SubscribeOnce(bus, topicWidget, Sink(func(item) {
		t.Error("Canceled Once should not deliver")
	}))

	if !once.Cancel() {
		t.Fatal("Cancel should succeed on an armed Once")
	}
	if once.Cancel() {
		t.Error("Second Cancel should return false")
	}
	if !once.Done() {
		t.Error("Canceled Once should report Done")
	}
	if bus.Count(topicWidget) != 0 {
		t.Errorf("Cancel should detach the wrapper, got %d", bus.Count(topicWidget))
	}

	_ = bus.Publish(topicWidget, item{})
}

func TestOnce_CancelAfterDelivery(t *testing.T) {
	bus := NewBus[topic, item]()
	once := SubscribeOnce(bus, topicWidget, Sink(func(item) {}))

	_ = bus.Publish(topicWidget, item{})
	if once.Cancel() {
		t.Error("Cancel should return false after delivery")
	}
}

func TestOnce_HandleAfterDetach(t *testing.T) {
	bus := NewBus[topic, item]()

	calls := 0
	once := SubscribeOnce(bus, topicWidget, Sink(func(item) { calls++ }))
	_ = bus.Publish(topicWidget, item{})

	// A pass that snapshotted the wrapper before it detached still calls Handle.
	if err := once.Handle(item{}); err != nil {
		t.Errorf("Handle after delivery returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single delivery, got %d", calls)
	}
}

func TestSubscribeOnce_ConcurrentPublish(t *testing.T) {
	bus := NewBus[topic, item]()

	var delivered atomic.Int32
	once := SubscribeOnce(bus, topicWidget, Sink(func(item) {
		delivered.Add(1)
	}))

	var wg sync.WaitGroup
	for range 64 {
		wg.Go(func() {
			_ = bus.Publish(topicWidget, item{})
		})
	}
	wg.Wait()

	if got := delivered.Load(); got != 1 {
		t.Errorf("Expected exactly one delivery under concurrent publish, got %d", got)
	}
	if !once.Done() {
		t.Error("Once should be done")
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected the wrapper to be gone, got %d subscriptions", bus.SubscriptionCount())
	}
}

func TestSubscribeOnce_ManyWrappers(t *testing.T) {
	bus := NewBus[topic, item]()

	var delivered atomic.Int32
	for range 10 {
		SubscribeOnce(bus, topicWidget, Sink(func(item) { delivered.Add(1) }))
	}

	_ = bus.Publish(topicWidget, item{})
	_ = bus.Publish(topicWidget, item{})

	if got := delivered.Load(); got != 10 {
		t.Errorf("Expected each wrapper to deliver once, got %d deliveries", got)
	}
	if bus.Count(topicWidget) != 0 {
		t.Errorf("Expected every wrapper to detach, got %d", bus.Count(topicWidget))
	}
}
