package inventory

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/stockroom/internal/errors"
)

// Item is a single unit of received stock.
type Item struct {
	ID         string
	Kind       Kind
	ShipmentID string
}

// Shipment is a batch of items received together.
type Shipment struct {
	ID         string
	Source     string
	Items      []Item
	ReceivedAt time.Time
}

// NewShipment builds a shipment of the given kinds. An empty id is replaced
// by a random UUID. Item ids are derived from the shipment id and position.
func NewShipment(id string, kinds ...Kind) (Shipment, error) {
	if len(kinds) == 0 {
		return Shipment{}, errors.ErrEmptyShipment
	}
	if id == "" {
		id = uuid.NewString()
	}

	items := make([]Item, len(kinds))
	for i, k := range kinds {
		items[i] = Item{
			ID:         fmt.Sprintf("%s/%d", id, i+1),
			Kind:       k,
			ShipmentID: id,
		}
	}
	return Shipment{ID: id, Items: items}, nil
}

// Kinds returns the kinds of the shipment's items in order.
func (s Shipment) Kinds() []Kind {
	kinds := make([]Kind, len(s.Items))
	for i, it := range s.Items {
		kinds[i] = it.Kind
	}
	return kinds
}

// Manifest is the YAML description of a shipment:
//
//	id: monday-delivery   # optional
//	items: [hammer, rope, widget]
type Manifest struct {
	ID    string `yaml:"id,omitempty"`
	Items []Kind `yaml:"items"`
}

// Shipment converts the manifest into a Shipment.
func (m Manifest) Shipment() (Shipment, error) {
	return NewShipment(m.ID, m.Items...)
}

// ParseManifest decodes a manifest from r. source names the origin of the
// data for error messages and is recorded on the resulting shipment.
func ParseManifest(r io.Reader, source string) (Shipment, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Shipment{}, errors.NewManifestError("manifest is empty", errors.ErrEmptyShipment).WithSource(source)
		}
		return Shipment{}, errors.NewManifestError("failed to decode manifest", err).WithSource(source)
	}

	s, err := m.Shipment()
	if err != nil {
		return Shipment{}, errors.NewManifestError("manifest lists no items", err).WithSource(source)
	}
	s.Source = source
	return s, nil
}

// LoadManifest reads and parses the manifest file at path.
func LoadManifest(path string) (Shipment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Shipment{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(bytes.NewReader(data), path)
}
