// Package event provides a typed, in-process pub-sub event bus for
// decoupled communication inside stockroom.
//
// Publishers announce events without knowing who, if anyone, is listening;
// listeners register interest in topics without knowing who produces them.
// The inventory manager publishes one event per received item, and the store
// subscribes customers to the items they are waiting for.
//
// # Main Types
//
//   - [Bus]: synchronous dispatcher keyed by a comparable topic type K,
//     delivering payloads of type P
//   - [Event]: immutable (topic, payload) pair
//   - [Listener]: anything with Handle(P) error; [Func] and [Sink] adapt functions
//   - [Once]: self-detaching subscription created by [SubscribeOnce]
//
// # Dispatch Semantics
//
// Notify invokes the listeners registered for the event's topic when Notify
// begins, in registration order, on the caller's goroutine. Publishing to a
// topic with no listeners is a no-op. Listeners may subscribe or unsubscribe
// (themselves included) while being dispatched; the change applies to later
// passes only.
//
// # Failures
//
// The default [FailFast] policy stops a pass at the first failing listener
// and returns a *errors.DispatchError to the Notify caller. [ContinueOnError]
// runs every listener and returns all failures joined. A panicking listener
// is recovered, logged, and reported the same way as a returned error.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. The registry is guarded by one RWMutex
// that is never held while a listener runs.
//
// # Basic Usage
//
//	bus := event.NewBus[inventory.Kind, inventory.Item]()
//
//	widget := event.Sink(func(it inventory.Item) {
//	    fmt.Println("widget arrived:", it.ID)
//	})
//	bus.Subscribe(inventory.Widget, widget)
//
//	_ = bus.Publish(inventory.Widget, item)
//
//	bus.Unsubscribe(inventory.Widget, widget)
//
//	// Deliver once, then detach.
//	event.SubscribeOnce(bus, inventory.Widget, event.Sink(notifyCustomer))
package event
