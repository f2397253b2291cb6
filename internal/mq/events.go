package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/libranet/apiserver/types"
)

// Attribute keys set on every book request event.
const (
	AttrEventType = "event_type"
	AttrStatus    = "status"
	AttrRequestID = "request_id"
)

// EventPublisher publishes book request events to a single channel.
type EventPublisher struct {
	mq      *MQ
	channel string
}

func NewEventPublisher(m *MQ, channel string) *EventPublisher {
	return &EventPublisher{mq: m, channel: channel}
}

// PublishBookRequestEvent encodes event as JSON and publishes it.
func (p *EventPublisher) PublishBookRequestEvent(ctx context.Context, event types.BookRequestEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		AttrEventType: event.Type,
		AttrStatus:    string(event.Status),
		AttrRequestID: strconv.Itoa(event.RequestID),
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s event for request %d: %w", event.Type, event.RequestID, err)
	}
	return nil
}

// DecodeBookRequestEvent parses a message produced by PublishBookRequestEvent.
func DecodeBookRequestEvent(msg Message) (types.BookRequestEvent, error) {
	var event types.BookRequestEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.BookRequestEvent{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	return event, nil
}
