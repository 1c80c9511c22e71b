package radio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
	// MaxRetries bounds the connect attempts; 0 means 5.
	MaxRetries int `yaml:"max_retries"`
}

// NewMQTTConn connects to the broker, retrying with exponential backoff.
// The connection is closed when ctx is done.
func NewMQTTConn(ctx context.Context, cfg *MQTTConfig) (mqtt.Client, error) {
	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("radio: mqtt connection lost", "error", err)
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			slog.Warn("radio: failed to connect to mqtt broker", "broker", connAddr, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	slog.Info("radio: connected to mqtt broker", "broker", connAddr)

	go func() {
		<-ctx.Done()
		CloseMQTTConn(client)
	}()

	return client, nil
}

func CloseMQTTConn(client mqtt.Client) {
	if client.IsConnected() {
		client.Disconnect(250)
		slog.Info("radio: mqtt connection closed")
	}
}
