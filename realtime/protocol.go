package realtime

import (
	"fmt"

	"noticeboard/models"
)

// WebsocketPath is where the realtime server accepts connections
const WebsocketPath = "/realtime/v1/websocket"

const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessageStatus      = "status"
	MessageChange      = "change"
)

// Message is a single JSON frame in either direction
type Message struct {
	Type    string                    `json:"type"`
	Topic   string                    `json:"topic,omitempty"`
	Filter  string                    `json:"filter,omitempty"`
	Events  []models.EventType        `json:"events,omitempty"`
	Status  models.SubscriptionStatus `json:"status,omitempty"`
	Message string                    `json:"message,omitempty"`
	Change  *models.ChangeEvent       `json:"change,omitempty"`
}

// SubscribeMessage asks the server to start delivering changes for scope
func SubscribeMessage(scope models.Scope) Message {
	return Message{
		Type:   MessageSubscribe,
		Topic:  scope.Topic(),
		Filter: scope.Filter(),
		Events: scope.Events,
	}
}

// Scope rebuilds the subscription scope a subscribe message describes
func (m Message) Scope() (models.Scope, error) {
	if m.Topic == "" {
		return models.Scope{}, fmt.Errorf("subscribe without a topic")
	}
	id, err := models.ParseFilter(m.Filter)
	if err != nil {
		return models.Scope{}, err
	}
	for _, e := range m.Events {
		switch e {
		case models.EventInsert, models.EventUpdate, models.EventDelete:
		default:
			return models.Scope{}, fmt.Errorf("unknown event %q", e)
		}
	}
	return models.Scope{PostId: id, Events: m.Events}, nil
}
