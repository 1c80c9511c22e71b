package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/soilnode/internal/config"
	"github.com/LeonardoBeccarini/soilnode/internal/logfields"
	sensornode "github.com/LeonardoBeccarini/soilnode/internal/sensor-node"
	sensorSimulator "github.com/LeonardoBeccarini/soilnode/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/soilnode/internal/serialbridge"
	"github.com/LeonardoBeccarini/soilnode/pkg/radio"
	"github.com/LeonardoBeccarini/soilnode/pkg/scheduler"
)

var CLI struct {
	Config      string `short:"c" help:"Deployment file (YAML). Defaults apply when empty." type:"path" env:"SOILNODE_CONFIG"`
	LogLevel    string `help:"Override logging.level" env:"SOILNODE_LOG_LEVEL"`
	Transport   string `help:"Override radio.transport (mqtt|nats)" env:"SOILNODE_TRANSPORT"`
	Broker      string `help:"Override radio.mqtt.host" env:"SOILNODE_MQTT_HOST"`
	User        string `help:"MQTT user" env:"SOILNODE_MQTT_USER"`
	Password    string `help:"MQTT password" env:"SOILNODE_MQTT_PASSWORD"`
	NATSURL     string `name:"nats-url" help:"Override radio.nats.url" env:"SOILNODE_NATS_URL"`
	SerialPort  string `help:"Read sensors from this serial port instead of the simulator" env:"SOILNODE_SERIAL_PORT"`
	MetricsAddr string `help:"Override metrics_addr" env:"SOILNODE_METRICS_ADDR"`
	StatusAddr  string `help:"Override status_addr" env:"SOILNODE_STATUS_ADDR"`
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	kong.Parse(&CLI, kong.Description("Soil sensing node: samples sensors and publishes readings over the radio link."))

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}

	logger, closer := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	_ = closer.Close()
	if err != nil {
		logger.Error("node: exited", logfields.Error(err))
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Logging.Level, CLI.LogLevel)
	set(&cfg.Radio.Transport, CLI.Transport)
	set(&cfg.Radio.MQTT.Host, CLI.Broker)
	set(&cfg.Radio.MQTT.User, CLI.User)
	set(&cfg.Radio.MQTT.Password, CLI.Password)
	set(&cfg.Radio.NATS.URL, CLI.NATSURL)
	set(&cfg.MetricsAddr, CLI.MetricsAddr)
	set(&cfg.StatusAddr, CLI.StatusAddr)
	if CLI.SerialPort != "" {
		cfg.Source.Kind = "serial"
		cfg.Source.Serial.Port = CLI.SerialPort
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pub, err := openRadio(ctx, cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	sched, err := scheduler.New(nil)
	if err != nil {
		return err
	}
	defer func() { _ = sched.Stop() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps := sensornode.Deps{
		Publisher: pub,
		Scheduler: sched,
		Logger:    logger,
		Metrics:   sensornode.NewMetrics(reg),
	}

	var startSource func(*sensornode.Node) error
	switch cfg.Source.Kind {
	case "serial":
		hub, err := serialbridge.Open(cfg.Source.Serial.Port, cfg.Source.Serial.BaudRate, cfg.Deployment.MaxSoilSensors, logger)
		if err != nil {
			return err
		}
		deps.Thermometer, deps.Soil, deps.Battery, deps.LED = hub.Thermometer, hub.Soil, hub.Battery, hub.LED
		startSource = func(n *sensornode.Node) error {
			go func() {
				if err := hub.Run(ctx, n); err != nil {
					logger.Error("serial: reader stopped", logfields.Error(err))
				}
			}()
			return nil
		}
	default:
		sim := sensorSimulator.NewSensorSimulator(sensorSimulator.Config{
			Devices:   cfg.Source.Simulator.Devices,
			Seed:      cfg.Source.Simulator.Seed,
			ErrorRate: cfg.Source.Simulator.ErrorRate,
			Battery:   cfg.Intervals.Battery,
		}, sched, nil, logger)
		sim.Thermometer.SetUpdateInterval(cfg.Intervals.Thermometer.Service)
		sim.Soil.SetUpdateInterval(cfg.Intervals.Soil.Service)
		deps.Thermometer, deps.Soil, deps.Battery, deps.LED = sim.Thermometer, sim.Soil, sim.Battery, sim.LED
		startSource = func(n *sensornode.Node) error {
			go pressOnSignal(ctx, sim.Button)
			return sim.Start(n)
		}
	}

	node, err := sensornode.New(sensornode.OptionsFromConfig(cfg), deps)
	if err != nil {
		return err
	}
	if err := startSource(node); err != nil {
		return fmt.Errorf("start %s source: %w", cfg.Source.Kind, err)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("node: metrics listening", slog.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("node: metrics server failed", logfields.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if cfg.StatusAddr != "" {
		lis, err := net.Listen("tcp", cfg.StatusAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.StatusAddr, err)
		}
		gs := grpc.NewServer()
		sensornode.RegisterStatusService(gs, node)
		go func() {
			logger.Info("node: status service listening", slog.String("addr", cfg.StatusAddr))
			if err := gs.Serve(lis); err != nil {
				logger.Error("node: status service failed", logfields.Error(err))
			}
		}()
		defer gs.GracefulStop()
	}

	logger.Info("node: running",
		slog.String("deployment", cfg.Deployment.Name),
		slog.String("transport", cfg.Radio.Transport),
		slog.String("codec", cfg.Radio.Codec),
		slog.String("source", cfg.Source.Kind))
	return node.Run(ctx)
}

func openRadio(ctx context.Context, cfg *config.Config) (radio.Publisher, error) {
	codec, err := radio.CodecByName(cfg.Radio.Codec)
	if err != nil {
		return nil, err
	}
	switch cfg.Radio.Transport {
	case "nats":
		pub, err := radio.NewNATSPublisher(ctx, cfg.Radio.NATS, codec)
		if err != nil {
			return nil, fmt.Errorf("NATS connect error: %w", err)
		}
		return pub, nil
	default:
		client, err := radio.NewMQTTConn(ctx, &cfg.Radio.MQTT)
		if err != nil {
			return nil, fmt.Errorf("MQTT connect error: %w", err)
		}
		return radio.NewMQTTPublisher(client, codec, cfg.Radio.MQTT.QoS), nil
	}
}

// pressOnSignal maps SIGUSR1 to a click and SIGUSR2 to a hold of the simulated button.
func pressOnSignal(ctx context.Context, b *sensorSimulator.Button) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigc)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sigc:
			if s == syscall.SIGUSR2 {
				b.Hold()
			} else {
				b.Click()
			}
		}
	}
}
