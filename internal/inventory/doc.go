// Package inventory models a small store built on the event bus.
//
// A [Manager] receives [Shipment]s and publishes every [Item] on an
// [ItemBus] under the item's [Kind]. A [Store] lets [Customer]s wait for a
// kind: each wait is an event.Once subscription, so a customer hears about
// the first matching item only and later arrivals of the same kind pass
// them by. Shipments are described in YAML manifests, see [ParseManifest].
package inventory
