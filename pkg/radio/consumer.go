package radio

import (
	"context"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on a subscription filter.
type Handler func(filter string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages until the context ends.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// MultiConsumer subscribes the same handler to several topic filters.
type MultiConsumer struct {
	client  mqtt.Client
	filters []string
	qos     byte
	handler Handler
}

func NewMultiConsumer(client mqtt.Client, filters []string, qos byte, handler Handler) *MultiConsumer {
	return &MultiConsumer{
		client:  client,
		filters: filters,
		qos:     qos,
		handler: handler,
	}
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.handler = handler
}

// ConsumeMessage blocks until ctx is cancelled, then unsubscribes.
func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	for _, filter := range m.filters {
		token := m.client.Subscribe(filter, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
			if m.handler == nil {
				slog.Warn("radio: no handler set", "filter", filter)
				return
			}
			if err := m.handler(filter, msg); err != nil {
				slog.Warn("radio: error handling message", "topic", msg.Topic(), "error", err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			slog.Error("radio: error subscribing", "filter", filter, "error", token.Error())
		} else {
			slog.Info("radio: subscribed", "filter", filter)
		}
	}

	<-ctx.Done()

	if token := m.client.Unsubscribe(m.filters...); token != nil {
		token.Wait()
	}
}
