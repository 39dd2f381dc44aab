package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-transport/config"
	"mqtt-transport/internal/bridge"
	"mqtt-transport/internal/logger"
	"mqtt-transport/internal/metrics"
	"mqtt-transport/internal/stats"
	"mqtt-transport/internal/transport"
	"mqtt-transport/internal/transport/paho"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to config file")

	// Optional override flags
	clientIDOverride := flag.String("client-id", "", "override mqtt client id (empty = use config)")
	hostOverride := flag.String("host", "", "override mqtt broker host (empty = use config)")
	portOverride := flag.Int("port", 0, "override mqtt broker port (0 = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")

	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*clientIDOverride,
		*hostOverride,
		*portOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
	)

	// Initialize logger
	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	paho.EnableLibraryLogging(logger)

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Build the transport manager over the paho adapter
	params := transport.ConnectionParams{
		ClientID:  cfg.MQTT.ClientID,
		Host:      cfg.MQTT.Host,
		Port:      cfg.MQTT.Port,
		Keepalive: cfg.MQTT.KeepaliveDuration(),
	}

	statsCollector := stats.NewCollector()
	if cfg.Metrics.Enabled {
		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}
		statsReporter := stats.NewReporter(statsCollector, logger, updateInterval)
		statsReporter.Start()
		defer statsReporter.Stop()
	}

	client := paho.NewClient(params, logger)

	manager, err := transport.NewManager(client, params, logger, metricsService, statsCollector)
	if err != nil {
		logger.Fatal("failed to create transport manager", "error", err)
	}

	manager.SetSubscriptionTimeout(cfg.MQTT.SubscriptionTimeoutDuration())
	if will := cfg.MQTT.Will; will != nil {
		if err := manager.SetWill(will.Topic, []byte(will.Payload), will.QoS, will.Retain); err != nil {
			logger.Fatal("failed to configure will", "error", err)
		}
	}

	if err := manager.Start(); err != nil {
		logger.Fatal("failed to start transport manager", "error", err)
	}

	// Start the NATS bridge if enabled
	var natsBridge *bridge.Bridge
	if cfg.Bridge.Enabled {
		natsBridge, err = bridge.New(cfg.Bridge, manager, logger)
		if err != nil {
			manager.Stop()
			logger.Fatal("failed to create bridge", "error", err)
		}
		if err := natsBridge.Start(); err != nil {
			natsBridge.Close()
			manager.Stop()
			logger.Fatal("failed to start bridge", "error", err)
		}
	}

	logger.Info("mqtt-transport started",
		"clientId", cfg.MQTT.ClientID,
		"broker", cfg.MQTT.Host,
		"bridgeEnabled", cfg.Bridge.Enabled,
		"metricsEnabled", cfg.Metrics.Enabled)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}

	if natsBridge != nil {
		natsBridge.Close()
	}
	manager.Stop()

	if err := manager.Err(); err != nil {
		logger.Error("transport manager reported error", "error", err)
	}
}
