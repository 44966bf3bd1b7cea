package event

import "sync/atomic"

const (
	onceArmed int32 = iota
	onceDelivering
	onceDone
)

// Once is a self-detaching subscription: it forwards the first payload
// published to its topic to the target listener, then unsubscribes itself.
// The bus holds the Once, never the target, so the target may stay
// subscribed elsewhere.
//
// If the target returns an error or panics, the Once stays subscribed and
// the next publish is another attempt. A Once whose topic is never
// published stays registered until Cancel is called.
type Once[K comparable, P any] struct {
	bus    *Bus[K, P]
	topic  K
	target Listener[P]
	state  atomic.Int32
}

// SubscribeOnce registers a self-detaching wrapper around target under topic
// and returns its handle.
func SubscribeOnce[K comparable, P any](bus *Bus[K, P], topic K, target Listener[P]) *Once[K, P] {
	o := &Once[K, P]{
		bus:    bus,
		topic:  topic,
		target: target,
	}
	bus.Subscribe(topic, o)
	return o
}

// Handle forwards payload to the target at most once. Concurrent dispatch
// passes that reach the Once while a delivery is in flight are skipped.
func (o *Once[K, P]) Handle(payload P) error {
	if !o.state.CompareAndSwap(onceArmed, onceDelivering) {
		return nil
	}

	delivered := false
	defer func() {
		if !delivered {
			o.state.Store(onceArmed)
			return
		}
		o.state.Store(onceDone)
		o.bus.Unsubscribe(o.topic, o)
	}()

	if err := o.target.Handle(payload); err != nil {
		return err
	}
	delivered = true
	return nil
}

// Cancel detaches the Once without delivering. It returns false if the
// payload was already delivered or a delivery is in progress.
func (o *Once[K, P]) Cancel() bool {
	if !o.state.CompareAndSwap(onceArmed, onceDone) {
		return false
	}
	o.bus.Unsubscribe(o.topic, o)
	return true
}

// Done reports whether the Once has delivered or been canceled.
func (o *Once[K, P]) Done() bool {
	return o.state.Load() == onceDone
}

// Topic returns the topic the Once is subscribed under.
func (o *Once[K, P]) Topic() K {
	return o.topic
}
