package scenario

import (
	"context"

	"github.com/Iron-Ham/stockroom/internal/event"
	"github.com/Iron-Ham/stockroom/internal/inventory"
	"github.com/Iron-Ham/stockroom/internal/logging"
)

// ShipmentResult is the outcome of receiving one shipment.
type ShipmentResult struct {
	Shipment inventory.Shipment
	Err      error
}

// Report summarizes a finished run.
type Report struct {
	Arrivals  []inventory.Arrival
	Shipments []ShipmentResult
	// Waiting lists the orders still unfulfilled when the run ended.
	Waiting []inventory.Order
	Stock   map[inventory.Kind]int
}

// Failed returns the number of shipments that did not complete.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Shipments {
		if s.Err != nil {
			n++
		}
	}
	return n
}

type runConfig struct {
	policy     event.FailurePolicy
	logger     *logging.Logger
	recorder   event.Recorder
	onArrival  func(inventory.Arrival)
	onShipment func(ShipmentResult)
}

// Option configures Run.
type Option func(*runConfig)

// WithPolicy sets the item bus failure policy.
func WithPolicy(p event.FailurePolicy) Option {
	return func(c *runConfig) { c.policy = p }
}

// WithLogger sets the logger shared by the bus, manager and store.
func WithLogger(l *logging.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches a dispatch recorder to both buses.
func WithRecorder(r event.Recorder) Option {
	return func(c *runConfig) { c.recorder = r }
}

// OnArrival is called as each customer notification happens.
func OnArrival(fn func(inventory.Arrival)) Option {
	return func(c *runConfig) { c.onArrival = fn }
}

// OnShipment is called after each shipment is received.
func OnShipment(fn func(ShipmentResult)) Option {
	return func(c *runConfig) { c.onShipment = fn }
}

// Run wires a fresh bus, manager and store, places every customer's orders,
// then receives the shipments in order. A failing shipment is recorded in
// the report and the run continues with the next one. Run stops early only
// when ctx is done.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	cfg := runConfig{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	busOpts := []event.Option{
		event.WithFailurePolicy(cfg.policy),
		event.WithLogger(cfg.logger),
	}
	if cfg.recorder != nil {
		busOpts = append(busOpts, event.WithRecorder(cfg.recorder))
	}

	items := event.NewBus[inventory.Kind, inventory.Item](busOpts...)
	shipments := event.NewBus[inventory.ShipmentTopic, inventory.Shipment](busOpts...)
	manager := inventory.NewManager(items,
		inventory.WithShipmentBus(shipments),
		inventory.WithManagerLogger(cfg.logger))
	store := inventory.NewStore(items, manager, cfg.logger)

	report := &Report{Stock: make(map[inventory.Kind]int)}

	for _, cs := range s.Customers {
		c := inventory.NewCustomer(cs.Name, func(a inventory.Arrival) {
			report.Arrivals = append(report.Arrivals, a)
			if cfg.onArrival != nil {
				cfg.onArrival(a)
			}
		})
		for _, kind := range cs.Wants {
			store.NotifyWhenArrives(c, kind)
		}
	}

	for _, m := range s.Shipments {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		shipment, err := m.Shipment()
		if err == nil {
			shipment.Source = "scenario"
			shipment, err = store.ReceiveInventory(ctx, shipment)
		}

		res := ShipmentResult{Shipment: shipment, Err: err}
		report.Shipments = append(report.Shipments, res)
		if cfg.onShipment != nil {
			cfg.onShipment(res)
		}
	}

	report.Waiting = store.Waiting()
	for _, k := range inventory.Kinds() {
		if n := manager.Stock(k); n > 0 {
			report.Stock[k] = n
		}
	}
	return report, nil
}
