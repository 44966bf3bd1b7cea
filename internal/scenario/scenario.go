// Package scenario describes and runs store simulations: a set of customers
// waiting for items and a sequence of shipments received by the store.
package scenario

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/stockroom/internal/errors"
	"github.com/Iron-Ham/stockroom/internal/inventory"
)

// Scenario is the YAML description of a simulation:
//
//	customers:
//	  - name: Jake
//	    wants: [widget]
//	shipments:
//	  - items: [hammer, baseball, cheese]
//	  - id: second
//	    items: [rope, cheese, widget]
type Scenario struct {
	Name      string               `yaml:"name,omitempty"`
	Customers []CustomerSpec       `yaml:"customers"`
	Shipments []inventory.Manifest `yaml:"shipments"`
}

// CustomerSpec names a customer and the item kinds they wait for, one
// delivery per entry.
type CustomerSpec struct {
	Name  string           `yaml:"name"`
	Wants []inventory.Kind `yaml:"wants"`
}

// Default returns the built-in scenario: Jake waits for a widget while
// three shipments arrive, two of them carrying widgets.
func Default() *Scenario {
	return &Scenario{
		Name: "widget",
		Customers: []CustomerSpec{
			{Name: "Jake", Wants: []inventory.Kind{inventory.Widget}},
		},
		Shipments: []inventory.Manifest{
			{Items: []inventory.Kind{inventory.Hammer, inventory.Baseball, inventory.Cheese}},
			{Items: []inventory.Kind{inventory.Rope, inventory.Cheese, inventory.Widget}},
			{Items: []inventory.Kind{inventory.Rope, inventory.Cheese, inventory.Widget}},
		},
	}
}

// Parse decodes and validates a scenario from r.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.NewValidationError("scenario is empty")
		}
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks that every customer is named and every shipment has items.
func (s *Scenario) Validate() error {
	var errs []error
	for i, c := range s.Customers {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, errors.NewValidationError("customer name cannot be empty").
				WithField(fmt.Sprintf("customers[%d].name", i)))
		}
	}
	if len(s.Shipments) == 0 {
		errs = append(errs, errors.NewValidationError("scenario needs at least one shipment").
			WithField("shipments"))
	}
	for i, m := range s.Shipments {
		if len(m.Items) == 0 {
			errs = append(errs, errors.NewValidationError("shipment has no items").
				WithField(fmt.Sprintf("shipments[%d].items", i)))
		}
	}
	return errors.Join(errs...)
}
