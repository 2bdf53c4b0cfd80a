// Package events carries domain events out of the services: to Kafka for
// downstream consumers and to in-process subscribers such as the admin feed.
package events

import (
	"context"
	"time"
)

const TopicOrders = "storefront-orders"

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
)

type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// HubPublisher broadcasts events to in-process subscribers.
type HubPublisher struct {
	Hub *Hub[Event]
}

func (h HubPublisher) Publish(_ context.Context, e Event) error {
	h.Hub.Publish(e)
	return nil
}
