package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/mqtt"
)

// RealtimeChannel is the WebSocket channel alerts are broadcast on.
const RealtimeChannel = "alert.raised"

// Publisher is the subset of the MQTT client the MQTT sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
}

// MQTTSink publishes alerts as JSON on hostelgate/alert/{type}. Alerts are
// events, not state, so they are never retained.
type MQTTSink struct {
	client Publisher
}

// NewMQTTSink creates an MQTT alert sink.
func NewMQTTSink(client Publisher) *MQTTSink {
	return &MQTTSink{client: client}
}

// Publish sends the alert to the broker.
func (s *MQTTSink) Publish(_ context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshalling alert: %w", err)
	}
	return s.client.Publish(mqtt.Topics{}.Alert(a.Type), payload, s.client.QoS(), false)
}

// Broadcaster pushes realtime events to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubSink broadcasts alerts to WebSocket clients subscribed to RealtimeChannel.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a WebSocket alert sink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

// Publish broadcasts the alert. It never fails; slow clients drop messages.
func (s *HubSink) Publish(_ context.Context, a Alert) error {
	s.hub.Broadcast(RealtimeChannel, a)
	return nil
}
