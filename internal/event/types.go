package event

// Event pairs a topic with its payload. Events are values; the bus does not
// retain them after a dispatch pass completes.
type Event[K comparable, P any] struct {
	topic   K
	payload P
}

// New creates an Event for topic carrying payload.
func New[K comparable, P any](topic K, payload P) Event[K, P] {
	return Event[K, P]{topic: topic, payload: payload}
}

// Topic returns the identifier the event is published under.
func (e Event[K, P]) Topic() K { return e.topic }

// Payload returns the value delivered to listeners.
func (e Event[K, P]) Payload() P { return e.payload }

// Listener receives payloads published to the topics it is subscribed to.
//
// The bus compares listeners with == to find them again on Unsubscribe, so
// implementations should have comparable dynamic types, typically pointers.
// A listener with a non-comparable dynamic type can be subscribed and
// notified but never unsubscribed.
type Listener[P any] interface {
	Handle(payload P) error
}

// FuncListener adapts a function to the Listener interface. Each call to
// Func or Sink returns a distinct handle, so the same function subscribed
// twice through two handles is two different listeners.
type FuncListener[P any] struct {
	fn func(P) error
}

// Func wraps fn as a Listener.
func Func[P any](fn func(P) error) *FuncListener[P] {
	return &FuncListener[P]{fn: fn}
}

// Sink wraps a function that cannot fail as a Listener.
func Sink[P any](fn func(P)) *FuncListener[P] {
	return &FuncListener[P]{fn: func(p P) error {
		fn(p)
		return nil
	}}
}

// Handle calls the wrapped function.
func (f *FuncListener[P]) Handle(payload P) error {
	return f.fn(payload)
}
