package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/stockroom/internal/errors"
	"github.com/Iron-Ham/stockroom/internal/event"
	"github.com/Iron-Ham/stockroom/internal/logging"
)

// ShipmentTopic identifies shipment-level events.
type ShipmentTopic string

// ShipmentReceived is published after every item of a shipment has been
// published on the item bus.
const ShipmentReceived ShipmentTopic = "SHIPMENT_RECEIVED"

// ItemBus carries one event per received item, keyed by the item's Kind.
type ItemBus = event.Bus[Kind, Item]

// ShipmentBus carries one event per received shipment.
type ShipmentBus = event.Bus[ShipmentTopic, Shipment]

// Manager receives shipments and announces their contents. It does not know
// who is waiting for what: it publishes each item under its Kind whether or
// not anyone listens.
type Manager struct {
	items     *ItemBus
	shipments *ShipmentBus
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.Mutex
	stock map[Kind]int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithShipmentBus makes the manager publish ShipmentReceived on bus.
func WithShipmentBus(bus *ShipmentBus) ManagerOption {
	return func(m *Manager) {
		m.shipments = bus
	}
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp received shipments.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager publishing items on bus.
func NewManager(bus *ItemBus, opts ...ManagerOption) *Manager {
	m := &Manager{
		items:  bus,
		logger: logging.NopLogger(),
		now:    time.Now,
		stock:  make(map[Kind]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("inventory")
	return m
}

// Receive records a shipment and publishes each of its items, in order, on
// the item bus. A listener failure stops the shipment under the bus's
// fail-fast policy; items already published stay counted. Under
// continue-on-error every item is published and all failures are returned.
// A done ctx stops the shipment before the next item is counted, whether or
// not anyone listens for it.
func (m *Manager) Receive(ctx context.Context, s Shipment) (Shipment, error) {
	if len(s.Items) == 0 {
		return s, errors.ErrEmptyShipment
	}
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = m.now()
	}

	m.logger.Info("receiving shipment",
		"shipment", s.ID,
		"source", s.Source,
		"items", len(s.Items))

	var errs []error
	for _, it := range s.Items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%w before item %s: %w", errors.ErrDispatchCanceled, it.ID, err))
			break
		}
		m.addStock(it.Kind)
		if err := m.items.NotifyContext(ctx, event.New(it.Kind, it)); err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", it.ID, err))
			if m.items.Policy() == event.FailFast || errors.Is(err, errors.ErrDispatchCanceled) {
				break
			}
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		m.logger.Warn("shipment delivery incomplete",
			"shipment", s.ID,
			"error", err.Error())
		return s, err
	}

	if m.shipments != nil {
		if err := m.shipments.NotifyContext(ctx, event.New(ShipmentReceived, s)); err != nil {
			return s, fmt.Errorf("shipment %s: %w", s.ID, err)
		}
	}
	return s, nil
}

// Stock returns how many items of kind have been received.
func (m *Manager) Stock(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[kind]
}

func (m *Manager) addStock(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[kind]++
}
