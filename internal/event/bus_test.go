package event

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	stockerr "github.com/Iron-Ham/stockroom/internal/errors"
	"github.com/Iron-Ham/stockroom/internal/logging"
)

type topic string

const (
	topicWidget topic = "WIDGET"
	topicHammer topic = "HAMMER"
	topicRope   topic = "ROPE"
)

type item struct {
	name string
}

// recorder appends a label to a shared log each time one of its listeners runs.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) listener(label string) *FuncListener[item] {
	return Sink(func(item) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, label)
	})
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

type dispatchObservation struct {
	topic           string
	invoked, failed int
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []dispatchObservation
}

func (f *fakeRecorder) ObserveDispatch(topic string, invoked, failed int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, dispatchObservation{topic, invoked, failed})
}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus[topic, item]()

	called := false
	bus.Subscribe(topicWidget, Sink(func(item) { called = true }))

	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if bus.Count(topicWidget) != 1 {
		t.Errorf("Expected 1 subscription for WIDGET, got %d", bus.Count(topicWidget))
	}
	if called {
		t.Error("Listener should not be called until an event is published")
	}
}

func TestBus_WidgetScenario(t *testing.T) {
	bus := NewBus[topic, item]()

	var received []item
	a := Sink(func(it item) { received = append(received, it) })
	bus.Subscribe(topicWidget, a)

	if err := bus.Notify(New(topicWidget, item{name: "widget"})); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if len(received) != 1 || received[0].name != "widget" {
		t.Fatalf("Expected one delivery of the widget payload, got %v", received)
	}

	if !bus.Unsubscribe(topicWidget, a) {
		t.Error("Unsubscribe should return true for a registered listener")
	}
	if err := bus.Notify(New(topicWidget, item{name: "widget"})); err != nil {
		t.Fatalf("Notify after unsubscribe returned error: %v", err)
	}
	if len(received) != 1 {
		t.Errorf("Listener should not be called after unsubscribing, got %d calls", len(received))
	}
}

func TestBus_RegistrationOrder(t *testing.T) {
	bus := NewBus[topic, item]()
	rec := &recorder{}

	bus.Subscribe(topicWidget, rec.listener("L1"))
	bus.Subscribe(topicWidget, rec.listener("L2"))
	bus.Subscribe(topicWidget, rec.listener("L3"))

	if err := bus.Publish(topicWidget, item{}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	want := []string{"L1", "L2", "L3"}
	if got := rec.got(); !slices.Equal(got, want) {
		t.Errorf("Expected dispatch order %v, got %v", want, got)
	}
}

func TestBus_IsolationAcrossTopics(t *testing.T) {
	bus := NewBus[topic, item]()

	bus.Subscribe(topicHammer, Sink(func(item) {
		t.Error("HAMMER listener should not be called for WIDGET events")
	}))

	called := false
	bus.Subscribe(topicWidget, Sink(func(item) { called = true }))

	if err := bus.Publish(topicWidget, item{}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if !called {
		t.Error("WIDGET listener should have been called")
	}
}

func TestBus_NotifyNoListeners(t *testing.T) {
	fr := &fakeRecorder{}
	bus := NewBus[topic, item](WithRecorder(fr))

	bus.Subscribe(topicHammer, Sink(func(item) {
		t.Error("Listener should not be called for non-matching topic")
	}))

	for range 3 {
		if err := bus.Publish(topicWidget, item{}); err != nil {
			t.Fatalf("Publishing into the void should not fail: %v", err)
		}
	}

	if bus.Count(topicWidget) != 0 {
		t.Error("Publishing should not create registry entries")
	}
	if len(bus.Topics()) != 1 {
		t.Errorf("Expected only HAMMER to be registered, got %v", bus.Topics())
	}
	if len(fr.obs) != 3 || fr.obs[0] != (dispatchObservation{"WIDGET", 0, 0}) {
		t.Errorf("Expected three empty dispatch observations, got %v", fr.obs)
	}
}

func TestBus_UnsubscribeRemovesOneOccurrence(t *testing.T) {
	bus := NewBus[topic, item]()

	calls := 0
	l := Sink(func(item) { calls++ })
	bus.Subscribe(topicWidget, l)
	bus.Subscribe(topicWidget, l)

	_ = bus.Publish(topicWidget, item{})
	if calls != 2 {
		t.Fatalf("Expected duplicate registration to be invoked twice, got %d", calls)
	}

	if !bus.Unsubscribe(topicWidget, l) {
		t.Fatal("Unsubscribe should return true")
	}
	if bus.Count(topicWidget) != 1 {
		t.Errorf("Expected 1 remaining registration, got %d", bus.Count(topicWidget))
	}

	calls = 0
	_ = bus.Publish(topicWidget, item{})
	if calls != 1 {
		t.Errorf("Expected remaining registration to be invoked once, got %d", calls)
	}
}

func TestBus_UnsubscribeFirstMatchKeepsOrder(t *testing.T) {
	bus := NewBus[topic, item]()
	rec := &recorder{}

	a := rec.listener("A")
	b := rec.listener("B")
	bus.Subscribe(topicWidget, a)
	bus.Subscribe(topicWidget, b)
	bus.Subscribe(topicWidget, a)

	bus.Unsubscribe(topicWidget, a)
	_ = bus.Publish(topicWidget, item{})

	want := []string{"B", "A"}
	if got := rec.got(); !slices.Equal(got, want) {
		t.Errorf("Expected %v after removing the first A, got %v", want, got)
	}
}

func TestBus_UnsubscribeNonExistent(t *testing.T) {
	bus := NewBus[topic, item]()
	l := Sink(func(item) {})

	if bus.Unsubscribe(topicWidget, l) {
		t.Error("Unsubscribe should return false for an absent topic")
	}

	bus.Subscribe(topicWidget, Sink(func(item) {}))
	if bus.Unsubscribe(topicWidget, l) {
		t.Error("Unsubscribe should return false for an unregistered listener")
	}
	if bus.Unsubscribe(topicHammer, l) {
		t.Error("Unsubscribe should return false for a different topic")
	}
	if bus.Count(topicWidget) != 1 {
		t.Errorf("Failed unsubscribe should not change the registry, got %d", bus.Count(topicWidget))
	}
}

func TestBus_EmptyTopicIsDeleted(t *testing.T) {
	bus := NewBus[topic, item]()
	l := Sink(func(item) {})

	bus.Subscribe(topicWidget, l)
	bus.Unsubscribe(topicWidget, l)

	if topics := bus.Topics(); len(topics) != 0 {
		t.Errorf("Expected no topics after last unsubscribe, got %v", topics)
	}
	bus.mu.RLock()
	_, present := bus.subscribers[topicWidget]
	bus.mu.RUnlock()
	if present {
		t.Error("Registry should not keep an empty entry")
	}
}

func TestBus_SelfUnsubscribeDuringDispatch(t *testing.T) {
	bus := NewBus[topic, item]()
	rec := &recorder{}

	var self *FuncListener[item]
	self = Sink(func(item) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, "L2")
		rec.mu.Unlock()
		bus.Unsubscribe(topicWidget, self)
	})

	bus.Subscribe(topicWidget, rec.listener("L1"))
	bus.Subscribe(topicWidget, self)
	bus.Subscribe(topicWidget, rec.listener("L3"))

	_ = bus.Publish(topicWidget, item{})
	if got, want := rec.got(), []string{"L1", "L2", "L3"}; !slices.Equal(got, want) {
		t.Errorf("First pass: expected %v, got %v", want, got)
	}

	rec.reset()
	_ = bus.Publish(topicWidget, item{})
	if got, want := rec.got(), []string{"L1", "L3"}; !slices.Equal(got, want) {
		t.Errorf("Second pass: expected %v, got %v", want, got)
	}
}

func TestBus_UnsubscribeOtherDuringDispatch(t *testing.T) {
	bus := NewBus[topic, item]()
	rec := &recorder{}

	later := rec.listener("L3")
	bus.Subscribe(topicWidget, Sink(func(item) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, "L1")
		rec.mu.Unlock()
		bus.Unsubscribe(topicWidget, later)
	}))
	bus.Subscribe(topicWidget, rec.listener("L2"))
	bus.Subscribe(topicWidget, later)

	_ = bus.Publish(topicWidget, item{})
	if got, want := rec.got(), []string{"L1", "L2", "L3"}; !slices.Equal(got, want) {
		t.Errorf("Removal should not affect the in-flight pass: expected %v, got %v", want, got)
	}

	rec.reset()
	_ = bus.Publish(topicWidget, item{})
	if got, want := rec.got(), []string{"L1", "L2"}; !slices.Equal(got, want) {
		t.Errorf("Removal should affect later passes: expected %v, got %v", want, got)
	}
}

func TestBus_SubscribeDuringDispatch(t *testing.T) {
	bus := NewBus[topic, item]()
	rec := &recorder{}

	added := false
	bus.Subscribe(topicWidget, Sink(func(item) {
		if !added {
			added = true
			bus.Subscribe(topicWidget, rec.listener("late"))
		}
	}))

	_ = bus.Publish(topicWidget, item{})
	if got := rec.got(); len(got) != 0 {
		t.Errorf("Listener added mid-pass should not run in that pass, got %v", got)
	}

	_ = bus.Publish(topicWidget, item{})
	if got := rec.got(); !slices.Equal(got, []string{"late"}) {
		t.Errorf("Listener added mid-pass should run in the next pass, got %v", got)
	}
}

func TestBus_FailFast(t *testing.T) {
	fr := &fakeRecorder{}
	bus := NewBus[topic, item](WithRecorder(fr))
	rec := &recorder{}
	boom := errors.New("boom")

	bus.Subscribe(topicWidget, rec.listener("L1"))
	bus.Subscribe(topicWidget, Func(func(item) error { return boom }))
	bus.Subscribe(topicWidget, rec.listener("L3"))

	err := bus.Publish(topicWidget, item{})
	if err == nil {
		t.Fatal("Expected the listener error to reach the caller")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected errors.Is(err, boom), got %v", err)
	}
	if !errors.Is(err, stockerr.ErrListenerFailed) {
		t.Errorf("Expected errors.Is(err, ErrListenerFailed), got %v", err)
	}

	var dispatchErr *stockerr.DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("Expected a *DispatchError, got %T", err)
	}
	if dispatchErr.Topic != "WIDGET" || dispatchErr.Index != 1 {
		t.Errorf("Expected topic WIDGET listener 1, got %s listener %d", dispatchErr.Topic, dispatchErr.Index)
	}

	if got := rec.got(); !slices.Equal(got, []string{"L1"}) {
		t.Errorf("Listeners after the failure should be skipped, got %v", got)
	}
	if len(fr.obs) != 1 || fr.obs[0] != (dispatchObservation{"WIDGET", 2, 1}) {
		t.Errorf("Expected observation {WIDGET 2 1}, got %v", fr.obs)
	}
}

func TestBus_ContinueOnError(t *testing.T) {
	bus := NewBus[topic, item](WithFailurePolicy(ContinueOnError))
	rec := &recorder{}
	first := errors.New("first")
	second := errors.New("second")

	bus.Subscribe(topicWidget, Func(func(item) error { return first }))
	bus.Subscribe(topicWidget, rec.listener("L2"))
	bus.Subscribe(topicWidget, Func(func(item) error { return second }))
	bus.Subscribe(topicWidget, rec.listener("L4"))

	err := bus.Publish(topicWidget, item{})
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("Expected both failures in the returned error, got %v", err)
	}
	if got := rec.got(); !slices.Equal(got, []string{"L2", "L4"}) {
		t.Errorf("Expected every healthy listener to run, got %v", got)
	}
	if bus.Policy() != ContinueOnError {
		t.Errorf("Policy() = %v, want %v", bus.Policy(), ContinueOnError)
	}
}

func TestBus_ListenerPanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter(&buf, logging.LevelDebug)

	t.Run("fail fast reports the panic", func(t *testing.T) {
		bus := NewBus[topic, item](WithLogger(logger))
		calls := 0
		bus.Subscribe(topicWidget, Sink(func(item) {
			calls++
			panic("listener panic")
		}))
		bus.Subscribe(topicWidget, Sink(func(item) { calls++ }))

		err := bus.Publish(topicWidget, item{})
		if !errors.Is(err, stockerr.ErrListenerPanicked) {
			t.Fatalf("Expected ErrListenerPanicked, got %v", err)
		}
		var dispatchErr *stockerr.DispatchError
		if !errors.As(err, &dispatchErr) || dispatchErr.PanicValue != "listener panic" {
			t.Errorf("Expected the recovered value on the error, got %#v", dispatchErr)
		}
		if calls != 1 {
			t.Errorf("Expected the pass to stop at the panic, got %d calls", calls)
		}

		// The bus stays usable after a panic.
		bus.Unsubscribe(topicWidget, bus.subscribers[topicWidget][0])
		if err := bus.Publish(topicWidget, item{}); err != nil {
			t.Errorf("Expected a clean pass after removing the panicking listener, got %v", err)
		}
	})

	t.Run("continue runs remaining listeners", func(t *testing.T) {
		bus := NewBus[topic, item](WithLogger(logger), WithFailurePolicy(ContinueOnError))
		calls := 0
		bus.Subscribe(topicWidget, Sink(func(item) {
			calls++
			panic("listener panic")
		}))
		bus.Subscribe(topicWidget, Sink(func(item) { calls++ }))

		err := bus.Publish(topicWidget, item{})
		if !errors.Is(err, stockerr.ErrListenerPanicked) {
			t.Errorf("Expected ErrListenerPanicked, got %v", err)
		}
		if calls != 2 {
			t.Errorf("Expected both listeners to be called despite panic, got %d calls", calls)
		}
	})

	if !strings.Contains(buf.String(), `"msg":"listener panicked"`) {
		t.Errorf("Expected the panic to be logged, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"component":"bus"`) {
		t.Errorf("Expected bus log entries to carry component=bus, got %s", buf.String())
	}
}

func TestBus_NotifyContext(t *testing.T) {
	t.Run("canceled before dispatch", func(t *testing.T) {
		bus := NewBus[topic, item]()
		bus.Subscribe(topicWidget, Sink(func(item) {
			t.Error("Listener should not run on a canceled context")
		}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := bus.NotifyContext(ctx, New(topicWidget, item{}))
		if !errors.Is(err, stockerr.ErrDispatchCanceled) {
			t.Errorf("Expected ErrDispatchCanceled, got %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})

	t.Run("canceled by a listener", func(t *testing.T) {
		bus := NewBus[topic, item]()
		rec := &recorder{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		bus.Subscribe(topicWidget, rec.listener("L1"))
		bus.Subscribe(topicWidget, Sink(func(item) { cancel() }))
		bus.Subscribe(topicWidget, rec.listener("L3"))

		err := bus.NotifyContext(ctx, New(topicWidget, item{}))
		if !errors.Is(err, stockerr.ErrDispatchCanceled) {
			t.Errorf("Expected ErrDispatchCanceled, got %v", err)
		}
		if got := rec.got(); !slices.Equal(got, []string{"L1"}) {
			t.Errorf("Expected only L1 to run, got %v", got)
		}
	})

	t.Run("no listeners ignores context", func(t *testing.T) {
		bus := NewBus[topic, item]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := bus.NotifyContext(ctx, New(topicWidget, item{})); err != nil {
			t.Errorf("Expected nil for a topic without listeners, got %v", err)
		}
	})
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus[topic, item]()

	var events []string
	all := Sink(func(it item) { events = append(events, "wildcard:"+it.name) })
	bus.SubscribeAll(all)
	bus.Subscribe(topicWidget, Sink(func(it item) { events = append(events, "specific:"+it.name) }))

	_ = bus.Publish(topicWidget, item{name: "w"})
	_ = bus.Publish(topicRope, item{name: "r"})

	want := []string{"specific:w", "wildcard:w", "wildcard:r"}
	if !slices.Equal(events, want) {
		t.Errorf("Expected %v, got %v", want, events)
	}

	if !bus.UnsubscribeAll(all) {
		t.Error("UnsubscribeAll should return true for a registered wildcard listener")
	}
	if bus.UnsubscribeAll(all) {
		t.Error("UnsubscribeAll should return false once removed")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus[topic, item]()

	bus.Subscribe(topicWidget, Sink(func(item) {}))
	bus.Subscribe(topicHammer, Sink(func(item) {}))
	bus.SubscribeAll(Sink(func(item) {}))

	if bus.SubscriptionCount() != 3 {
		t.Errorf("Expected 3 subscriptions before clear, got %d", bus.SubscriptionCount())
	}

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after clear, got %d", bus.SubscriptionCount())
	}
}

func TestBus_InstancesAreIndependent(t *testing.T) {
	first := NewBus[topic, item]()
	second := NewBus[topic, item]()

	first.Subscribe(topicWidget, Sink(func(item) {}))

	if second.SubscriptionCount() != 0 {
		t.Errorf("A new bus should start empty, got %d subscriptions", second.SubscriptionCount())
	}
	second.Subscribe(topicWidget, Sink(func(item) {
		t.Error("Publishing on the first bus should not reach the second")
	}))
	_ = first.Publish(topicWidget, item{})
}

// sliceListener has a non-comparable dynamic type.
type sliceListener []string

func (s sliceListener) Handle(item) error { return nil }

func TestBus_NonComparableListener(t *testing.T) {
	bus := NewBus[topic, item]()
	l := sliceListener{"a"}

	bus.Subscribe(topicWidget, l)
	if err := bus.Publish(topicWidget, item{}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if bus.Unsubscribe(topicWidget, l) {
		t.Error("Non-comparable listeners cannot be matched for removal")
	}
	if bus.Count(topicWidget) != 1 {
		t.Errorf("Expected registration to remain, got %d", bus.Count(topicWidget))
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus[topic, item]()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe(topicWidget, Sink(func(item) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			_ = bus.Publish(topicWidget, item{})
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("Expected 100 calls, got %d", calls)
	}
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus[topic, item]()

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			l := Sink(func(item) {})
			bus.Subscribe(topicWidget, l)
			_ = bus.Publish(topicWidget, item{})
			bus.Unsubscribe(topicWidget, l)
		})
	}
	wg.Wait()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("Expected 0 subscriptions after concurrent add/remove, got %d", bus.SubscriptionCount())
	}
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    FailurePolicy
		wantErr bool
	}{
		{"", FailFast, false},
		{"fail_fast", FailFast, false},
		{"FAIL-FAST", FailFast, false},
		{"continue", ContinueOnError, false},
		{"continue_on_error", ContinueOnError, false},
		{"retry", FailFast, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFailurePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFailurePolicy(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if FailurePolicy(7).String() != "FailurePolicy(7)" {
		t.Errorf("unexpected String() for unknown policy: %s", FailurePolicy(7))
	}
	if !slices.Equal(ValidFailurePolicies(), []string{"fail_fast", "continue"}) {
		t.Errorf("unexpected ValidFailurePolicies(): %v", ValidFailurePolicies())
	}
}
