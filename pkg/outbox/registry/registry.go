// Package registry maps outbox event types to Pub/Sub topics and checks that a
// stored row decodes into the payload its type promises before it leaves the
// database.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/printlab/printlab-backend/pkg/config"
	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/outbox/payloads"
)

type route struct {
	topic      string
	aggregate  enums.OutboxAggregateType
	newPayload func() any
}

// Routed is an outbox row that passed validation, with its destination.
type Routed struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type Registry struct {
	routes map[enums.OutboxEventType]route
}

func New(cfg config.PubSubConfig) (*Registry, error) {
	var missing []string
	if cfg.OrdersTopic == "" {
		missing = append(missing, "orders topic")
	}
	if cfg.NotificationTopic == "" {
		missing = append(missing, "notification topic")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("registry: %v required", missing)
	}

	return &Registry{routes: map[enums.OutboxEventType]route{
		enums.EventOrderCreated: {
			topic:      cfg.OrdersTopic,
			aggregate:  enums.AggregateOrder,
			newPayload: func() any { return &payloads.OrderCreatedEvent{} },
		},
		enums.EventOrderStatusChanged: {
			topic:      cfg.OrdersTopic,
			aggregate:  enums.AggregateOrder,
			newPayload: func() any { return &payloads.OrderStatusChangedEvent{} },
		},
		enums.EventNotificationRequested: {
			topic:      cfg.NotificationTopic,
			aggregate:  enums.AggregateNotification,
			newPayload: func() any { return &payloads.NotificationRequestedEvent{} },
		},
	}}, nil
}

// Topics returns the distinct destination topics, sorted.
func (r *Registry) Topics() []string {
	set := map[string]struct{}{}
	for _, rt := range r.routes {
		set[rt.topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Route validates row and decodes its payload. Every error it returns is
// permanent: the row content will not change between attempts.
func (r *Registry) Route(row models.OutboxEvent) (*Routed, error) {
	rt, ok := r.routes[row.EventType]
	if !ok {
		return nil, outbox.Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	}
	if row.AggregateType != rt.aggregate {
		return nil, outbox.Permanent(fmt.Errorf("%s rows belong to %s aggregates, got %s", row.EventType, rt.aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, outbox.Permanent(errors.New("aggregate id missing"))
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, outbox.Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, outbox.Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}
	payload := rt.newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, outbox.Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	return &Routed{Topic: rt.topic, Envelope: env, Payload: payload}, nil
}
