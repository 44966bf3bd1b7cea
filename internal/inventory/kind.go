package inventory

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/stockroom/internal/errors"
)

// Kind identifies a type of stock item. It is the topic type of the item
// bus: customers wait on a Kind and the manager publishes each received
// item under its Kind.
type Kind string

// Known item kinds.
const (
	Hammer     Kind = "HAMMER"
	Rope       Kind = "ROPE"
	Widget     Kind = "WIDGET"
	Baseball   Kind = "BASEBALL"
	Cheese     Kind = "CHEESE"
	Milk       Kind = "MILK"
	Toothpaste Kind = "TOOTHPASTE"
)

var knownKinds = []Kind{Hammer, Rope, Widget, Baseball, Cheese, Milk, Toothpaste}

// Kinds returns every known item kind.
func Kinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// ParseKind converts a case-insensitive item name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range knownKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errors.ErrUnknownItem, s)
}

// String returns the lower-case item name used in manifests and output.
func (k Kind) String() string {
	return strings.ToLower(string(k))
}

// UnmarshalYAML parses a scalar item name, rejecting unknown kinds.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*k = parsed
	return nil
}

// MarshalYAML writes the lower-case item name.
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}
