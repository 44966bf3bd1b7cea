package event

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/stockroom/internal/errors"
	"github.com/Iron-Ham/stockroom/internal/logging"
)

// Bus is a synchronous pub-sub event bus keyed by topics of type K carrying
// payloads of type P. It allows components to communicate without direct
// dependencies. Every Bus owns its registry; nothing is shared between
// instances.
type Bus[K comparable, P any] struct {
	mu          sync.RWMutex
	subscribers map[K][]Listener[P] // never holds an empty slice
	wildcard    []Listener[P]

	policy   FailurePolicy
	logger   *logging.Logger
	recorder Recorder
}

// NewBus creates a new event bus.
func NewBus[K comparable, P any](opts ...Option) *Bus[K, P] {
	s := settings{
		policy: FailFast,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Bus[K, P]{
		subscribers: make(map[K][]Listener[P]),
		policy:      s.policy,
		logger:      s.logger.WithComponent("bus"),
		recorder:    s.recorder,
	}
}

// Registry slices are copy-on-write: Subscribe and Unsubscribe always build
// a new slice, so a snapshot taken by Notify is never modified underneath it.

// Subscribe registers a listener for a topic. Subscribing the same listener
// twice registers it twice; it is then invoked twice per notification.
func (b *Bus[K, P]) Subscribe(topic K, l Listener[P]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(slices.Clip(b.subscribers[topic]), l)
}

// Unsubscribe removes the first registration of l under topic.
// Returns false, and does nothing, if l is not registered under topic.
func (b *Bus[K, P]) Unsubscribe(topic K, l Listener[P]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return false
	}
	i := indexOf(subs, l)
	if i < 0 {
		return false
	}
	if len(subs) == 1 {
		delete(b.subscribers, topic)
		return true
	}
	b.subscribers[topic] = slices.Concat(subs[:i], subs[i+1:])
	return true
}

// SubscribeAll registers a listener for every topic. Wildcard listeners run
// after the topic's own listeners, in registration order.
func (b *Bus[K, P]) SubscribeAll(l Listener[P]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(slices.Clip(b.wildcard), l)
}

// UnsubscribeAll removes the first wildcard registration of l.
func (b *Bus[K, P]) UnsubscribeAll(l Listener[P]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := indexOf(b.wildcard, l)
	if i < 0 {
		return false
	}
	b.wildcard = slices.Concat(b.wildcard[:i], b.wildcard[i+1:])
	return true
}

// Notify dispatches ev to the listeners registered for its topic at the
// moment Notify is called, in registration order, then to wildcard
// listeners. It returns after every listener in that snapshot has run or
// the failure policy stopped the pass.
//
// Listeners may call Subscribe or Unsubscribe on this bus, including on
// themselves; such changes apply to later passes only. Whether a listener
// removed concurrently by another goroutine still runs in an in-flight pass
// is undefined.
//
// A listener error or panic is returned as a *errors.DispatchError. Under
// ContinueOnError all failures are returned joined.
func (b *Bus[K, P]) Notify(ev Event[K, P]) error {
	return b.NotifyContext(context.Background(), ev)
}

// Publish is shorthand for Notify(New(topic, payload)).
func (b *Bus[K, P]) Publish(topic K, payload P) error {
	return b.NotifyContext(context.Background(), New(topic, payload))
}

// NotifyContext is Notify with cancellation: ctx is checked before each
// listener, and a done context ends the pass with an error matching both
// errors.ErrDispatchCanceled and ctx.Err(). A listener already running is
// not interrupted.
func (b *Bus[K, P]) NotifyContext(ctx context.Context, ev Event[K, P]) error {
	b.mu.RLock()
	specific := b.subscribers[ev.topic]
	wildcard := b.wildcard
	b.mu.RUnlock()

	topic := fmt.Sprint(ev.topic)
	start := time.Now()

	if len(specific) == 0 && len(wildcard) == 0 {
		b.logger.Debug("no listeners for topic", "topic", topic)
		b.record(topic, 0, 0, start)
		return nil
	}

	targets := specific
	if len(wildcard) > 0 {
		targets = slices.Concat(specific, wildcard)
	}

	var errs []error
	invoked, failed := 0, 0
	for i, l := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%w after %d of %d listeners: %w",
				errors.ErrDispatchCanceled, i, len(targets), err))
			break
		}
		invoked++
		if err := b.safeCall(topic, i, l, ev.payload); err != nil {
			failed++
			errs = append(errs, err)
			if b.policy == FailFast {
				break
			}
		}
	}

	b.record(topic, invoked, failed, start)

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

// safeCall invokes a listener and converts a panic into a DispatchError so
// the pass ends under the bus's failure policy instead of unwinding the
// caller's goroutine.
func (b *Bus[K, P]) safeCall(topic string, index int, l Listener[P], payload P) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			b.logger.Error("listener panicked",
				"topic", topic,
				"listener", index,
				"panic", fmt.Sprint(r),
				"stack", string(stack))
			err = errors.NewPanicError(topic, index, r, stack)
		}
	}()

	if herr := l.Handle(payload); herr != nil {
		b.logger.Warn("listener failed",
			"topic", topic,
			"listener", index,
			"policy", b.policy.String(),
			"error", herr.Error())
		return errors.NewDispatchError(topic, index, herr)
	}
	return nil
}

func (b *Bus[K, P]) record(topic string, invoked, failed int, start time.Time) {
	if b.recorder != nil {
		b.recorder.ObserveDispatch(topic, invoked, failed, time.Since(start))
	}
}

// Clear removes all subscriptions.
func (b *Bus[K, P]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[K][]Listener[P])
	b.wildcard = nil
}

// SubscriptionCount returns the total number of active subscriptions,
// wildcard subscriptions included.
func (b *Bus[K, P]) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.wildcard)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}

// Count returns the number of registrations under topic.
func (b *Bus[K, P]) Count(topic K) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Topics returns every topic with at least one listener, in no particular
// order.
func (b *Bus[K, P]) Topics() []K {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]K, 0, len(b.subscribers))
	for topic := range b.subscribers {
		topics = append(topics, topic)
	}
	return topics
}

// Policy returns the bus's failure policy.
func (b *Bus[K, P]) Policy() FailurePolicy {
	return b.policy
}

func indexOf[P any](subs []Listener[P], l Listener[P]) int {
	for i, s := range subs {
		if sameListener(s, l) {
			return i
		}
	}
	return -1
}

// sameListener compares listeners without panicking on non-comparable
// dynamic types; such listeners never match.
func sameListener[P any](a, b Listener[P]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}
