package enums

import "slices"

// OutboxAggregateType is the kind of entity an outbox row is about.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateNotification OutboxAggregateType = "notification"
)

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains([]OutboxAggregateType{AggregateOrder, AggregateNotification}, a)
}

// OutboxEventType is the event carried by an outbox row. The relay routes
// rows to topics by this value.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

// OutboxEventTypes lists every event type the service emits.
func OutboxEventTypes() []OutboxEventType {
	return []OutboxEventType{EventOrderCreated, EventOrderStatusChanged, EventNotificationRequested}
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(OutboxEventTypes(), e)
}
