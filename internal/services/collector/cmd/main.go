package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/LeonardoBeccarini/soilnode/internal/config"
	"github.com/LeonardoBeccarini/soilnode/internal/logfields"
	"github.com/LeonardoBeccarini/soilnode/internal/services/collector"
	"github.com/LeonardoBeccarini/soilnode/internal/topic"
	"github.com/LeonardoBeccarini/soilnode/pkg/radio"
)

var CLI struct {
	Config       string `short:"c" help:"Deployment file shared with the nodes (topics, radio, logging)" type:"path" env:"SOILNODE_CONFIG"`
	ClientID     string `help:"MQTT client id" default:"soil-collector" env:"COLLECTOR_CLIENT_ID"`
	QoS          byte   `help:"Subscription QoS" default:"1" env:"COLLECTOR_QOS"`
	HTTPAddr     string `help:"HTTP listen address" default:":8080" env:"COLLECTOR_HTTP_ADDR"`
	InfluxURL    string `help:"InfluxDB URL" default:"http://localhost:8086" env:"INFLUX_URL"`
	InfluxToken  string `help:"InfluxDB token" env:"INFLUX_TOKEN"`
	InfluxOrg    string `help:"InfluxDB organisation" env:"INFLUX_ORG"`
	InfluxBucket string `help:"InfluxDB bucket" default:"soil" env:"INFLUX_BUCKET"`
}

func main() {
	_ = godotenv.Load()
	kong.Parse(&CLI, kong.Description("Collects soil node telemetry into InfluxDB."))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}
	logger, closer := config.NewLogger(cfg.Logging, os.Stdout)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === InfluxDB ===
	sink, influx, err := collector.NewInfluxWriter(collector.InfluxConfig{
		URL: CLI.InfluxURL, Token: CLI.InfluxToken, Org: CLI.InfluxOrg, Bucket: CLI.InfluxBucket,
	})
	if err != nil {
		logger.Error("collector: influx", logfields.Error(err))
		os.Exit(1)
	}
	defer influx.Close()

	// === MQTT ===
	mqttCfg := cfg.Radio.MQTT
	mqttCfg.ClientID = CLI.ClientID
	client, err := radio.NewMQTTConn(ctx, &mqttCfg)
	if err != nil {
		logger.Error("collector: mqtt connection error", logfields.Error(err))
		os.Exit(1)
	}
	defer radio.CloseMQTTConn(client)

	codec, err := radio.CodecByName(cfg.Radio.Codec)
	if err != nil {
		logger.Error("collector: codec", logfields.Error(err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	router := topic.NewRouter(cfg.Topics, cfg.Deployment.SingleSensor)
	svc := collector.NewService(collector.Options{
		Router:     router,
		Codec:      codec,
		Deployment: cfg.Deployment.Name,
	}, sink, nil, logger, collector.NewMetrics(reg))

	// === HTTP ===
	hs := &http.Server{
		Addr:              CLI.HTTPAddr,
		Handler:           collector.NewHTTPMux(svc, client, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("collector: HTTP listening", slog.String("addr", CLI.HTTPAddr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("collector: http server error", logfields.Error(err))
			stop()
		}
	}()

	// === Consumer ===
	consumer := radio.NewMultiConsumer(client, router.Subscriptions(), CLI.QoS, nil)
	svc.Start(ctx, consumer)

	logger.Info("collector: shutting down")
	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
}
