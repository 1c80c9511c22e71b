package radio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// NATSPublisher maps slash-separated topics onto dot-separated NATS subjects.
type NATSPublisher struct {
	conn  *nats.Conn
	codec Codec
}

// NewNATSPublisher connects with the same bounded exponential backoff as the MQTT link.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig, codec Codec) (*NATSPublisher, error) {
	if codec == nil {
		codec = JSON
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var conn *nats.Conn
	err := backoff.Retry(func() error {
		c, err := nats.Connect(cfg.URL, nats.Name(cfg.Name), nats.MaxReconnects(-1))
		if err != nil {
			slog.Warn("radio: failed to connect to nats", "url", cfg.URL, "error", err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 4), ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("radio: connected to nats", "url", cfg.URL)
	return &NATSPublisher{conn: conn, codec: codec}, nil
}

// SubjectFor converts "soil-sensor/<id>/raw" into "soil-sensor.<id>.raw".
func SubjectFor(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (p *NATSPublisher) Publish(topic string, value any) error {
	payload, err := p.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	if err := p.conn.Publish(SubjectFor(topic), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
