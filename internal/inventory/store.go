package inventory

import (
	"context"
	"slices"
	"sync"

	"github.com/Iron-Ham/stockroom/internal/event"
	"github.com/Iron-Ham/stockroom/internal/logging"
)

// Order is a customer waiting for one item of a kind.
type Order struct {
	Customer string
	Kind     Kind
}

type order struct {
	customer *Customer
	once     *event.Once[Kind, Item]
}

// Store connects customers to incoming stock. It never tracks which items a
// customer has received: each wait is a one-shot subscription on the item
// bus that detaches after delivering.
type Store struct {
	items   *ItemBus
	manager *Manager
	logger  *logging.Logger

	mu     sync.Mutex
	orders []order
}

// NewStore creates a store whose customers wait on bus and whose shipments
// go through manager.
func NewStore(bus *ItemBus, manager *Manager, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		items:   bus,
		manager: manager,
		logger:  logger.WithComponent("store"),
	}
}

// NotifyWhenArrives subscribes c to the next item of kind. The customer is
// notified at most once for this call, however many such items arrive.
func (s *Store) NotifyWhenArrives(c *Customer, kind Kind) *event.Once[Kind, Item] {
	once := event.SubscribeOnce(s.items, kind, c)

	s.mu.Lock()
	s.orders = append(s.pruneLocked(), order{customer: c, once: once})
	s.mu.Unlock()

	s.logger.Debug("customer waiting", "customer", c.Name, "kind", kind.String())
	return once
}

// ReceiveInventory hands a shipment to the inventory manager.
func (s *Store) ReceiveInventory(ctx context.Context, shipment Shipment) (Shipment, error) {
	return s.manager.Receive(ctx, shipment)
}

// Waiting returns the orders that have not been fulfilled or canceled, in
// the order they were placed.
func (s *Store) Waiting() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = s.pruneLocked()

	out := make([]Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = Order{Customer: o.customer.Name, Kind: o.once.Topic()}
	}
	return out
}

// CancelOrders cancels every pending order for c and returns how many were
// canceled.
func (s *Store) CancelOrders(c *Customer) int {
	s.mu.Lock()
	pending := slices.Clone(s.orders)
	s.mu.Unlock()

	canceled := 0
	for _, o := range pending {
		if o.customer == c && o.once.Cancel() {
			canceled++
		}
	}
	if canceled > 0 {
		s.logger.Info("orders canceled", "customer", c.Name, "count", canceled)
	}
	return canceled
}

// pruneLocked drops fulfilled and canceled orders. s.mu must be held.
func (s *Store) pruneLocked() []order {
	return slices.DeleteFunc(s.orders, func(o order) bool {
		return o.once.Done()
	})
}
