package radio

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is a fire-and-forget topic/value sink.
type Publisher interface {
	Publish(topic string, value any) error
	Close()
}

// MQTTPublisher publishes encoded values on arbitrary topics of a shared client.
type MQTTPublisher struct {
	client  mqtt.Client
	codec   Codec
	qos     byte
	timeout time.Duration
}

func NewMQTTPublisher(client mqtt.Client, codec Codec, qos byte) *MQTTPublisher {
	if codec == nil {
		codec = JSON
	}
	return &MQTTPublisher{
		client:  client,
		codec:   codec,
		qos:     qos,
		timeout: 2 * time.Second,
	}
}

// Publish does not surface delivery acknowledgement; an error only means the
// message could not be handed to the client.
func (p *MQTTPublisher) Publish(topic string, value any) error {
	payload, err := p.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message on %s: %w", topic, err)
	}
	slog.Debug("radio: published", "topic", topic, "value", value)
	return nil
}

func (p *MQTTPublisher) Close() {
	CloseMQTTConn(p.client)
}
