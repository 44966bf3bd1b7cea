package inventory

import (
	"slices"
	"sync"
)

// Arrival is what a customer is told when an item they wait for arrives.
type Arrival struct {
	Customer string
	Item     Item
}

// Customer is a listener on the item bus. It does not subscribe itself; the
// Store subscribes it once per item kind it waits for.
type Customer struct {
	Name string

	onArrival func(Arrival)

	mu       sync.Mutex
	received []Item
}

// NewCustomer creates a customer. onArrival, if non-nil, is called for every
// item the customer receives.
func NewCustomer(name string, onArrival func(Arrival)) *Customer {
	return &Customer{Name: name, onArrival: onArrival}
}

// Handle implements event.Listener.
func (c *Customer) Handle(it Item) error {
	c.mu.Lock()
	c.received = append(c.received, it)
	c.mu.Unlock()

	if c.onArrival != nil {
		c.onArrival(Arrival{Customer: c.Name, Item: it})
	}
	return nil
}

// Received returns the items delivered to the customer so far.
func (c *Customer) Received() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.received)
}
