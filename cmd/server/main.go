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

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/api"
	"github.com/heyhotcake/shelfeye/internal/config"
	"github.com/heyhotcake/shelfeye/internal/dispatch"
	"github.com/heyhotcake/shelfeye/internal/engine"
	"github.com/heyhotcake/shelfeye/internal/evaluator"
	"github.com/heyhotcake/shelfeye/internal/ingest"
	"github.com/heyhotcake/shelfeye/internal/monitor"
	"github.com/heyhotcake/shelfeye/internal/queue"
	"github.com/heyhotcake/shelfeye/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config/config.yaml)")
	flag.Parse()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	hours, err := cfg.BusinessHours.Window()
	if err != nil {
		logger.Fatal("Invalid business hours", zap.Error(err))
	}

	// Connect to NATS
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URLs[0], opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Open storage
	stores, closeStores, err := openStores(logger, cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer closeStores()

	// Build the alert pipeline
	backoff := &queue.ExponentialBackoff{
		InitialDelay: cfg.Engine.BackoffBase,
		MaxDelay:     cfg.Engine.BackoffCap,
		Multiplier:   2.0,
	}
	alertQueue := queue.NewManager(logger, stores.Alerts, stores.Audit, backoff, cfg.Engine.MaxRetries)
	tracker := monitor.NewCameraTracker(logger)
	eval := evaluator.New(logger, hours)

	dispatcher := dispatch.NewDispatcher(logger, cfg.Engine.ChannelTimeout, cfg.Engine.DispatchWorkers)
	registerChannels(logger, cfg, dispatcher)

	consumer, err := ingest.NewConsumer(logger, js, stores.History, tracker)
	if err != nil {
		logger.Fatal("Failed to create capture consumer", zap.Error(err))
	}

	eng := engine.New(logger, engine.Options{
		TickSchedule:          cfg.Engine.TickSchedule,
		ParallelSlots:         cfg.Engine.ParallelSlots,
		DispatchTimeout:       cfg.Engine.DispatchTimeout,
		SuppressOnCameraAlert: cfg.Engine.SuppressOnCameraAlert,
	}, eval, alertQueue, dispatcher, tracker, stores.Rules, stores.Slots, stores.History)

	sampler := monitor.NewHostSampler(logger, cfg.Monitor.HostSampleInterval)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Start everything
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("Failed to start capture consumer", zap.Error(err))
	}
	sampler.Start(ctx)
	if err := eng.Start(ctx); err != nil {
		logger.Fatal("Failed to start engine", zap.Error(err))
	}

	router := api.NewRouter(logger, api.Stores{
		Rules:  stores.Rules,
		Slots:  stores.Slots,
		Alerts: stores.Alerts,
		Audit:  stores.Audit,
	}, tracker)

	server := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("API server listening", zap.String("addr", cfg.API.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", zap.Error(err))
	}
	eng.Stop()
	sampler.Stop()
	consumer.Stop()

	logger.Info("Shutdown complete")
}

// boundStores groups the store interfaces the rest of the process
// consumes, independent of backend.
type boundStores struct {
	History storage.DetectionHistory
	Alerts  storage.AlertStore
	Rules   storage.RuleStore
	Slots   storage.SlotStore
	Audit   storage.AuditSink
}

// openStores selects the backend at process start. Backends are never
// mixed at runtime.
func openStores(logger *zap.Logger, cfg *config.Config) (boundStores, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn("Using in-memory storage, all state is lost on restart")
		store := storage.NewMemoryStore()
		return boundStores{
			History: store.History,
			Alerts:  store.Alerts,
			Rules:   store.Rules,
			Slots:   store.Slots,
			Audit:   store.Audit,
		}, func() {}, nil
	default:
		store, err := storage.NewSQLiteStore(logger, cfg.Storage.DBPath)
		if err != nil {
			return boundStores{}, nil, err
		}
		return boundStores{
			History: store.History,
			Alerts:  store.Alerts,
			Rules:   store.Rules,
			Slots:   store.Slots,
			Audit:   store.Audit,
		}, func() { store.Close() }, nil
	}
}

func registerChannels(logger *zap.Logger, cfg *config.Config, dispatcher *dispatch.Dispatcher) {
	if cfg.Channels.Email.Enabled {
		dispatcher.Register(dispatch.NewEmailChannel(logger, dispatch.EmailConfig{
			Host:     cfg.Channels.Email.Host,
			Port:     cfg.Channels.Email.Port,
			Username: cfg.Channels.Email.Username,
			Password: cfg.Channels.Email.Password,
			From:     cfg.Channels.Email.From,
			To:       cfg.Channels.Email.To,
		}), cfg.Channels.Email.Optional)
	}
	if cfg.Channels.Spreadsheet.Enabled {
		dispatcher.Register(
			dispatch.NewSpreadsheetChannel(logger, cfg.Channels.Spreadsheet.Path),
			cfg.Channels.Spreadsheet.Optional)
	}
	if cfg.Channels.Sound.Enabled {
		dispatcher.Register(
			dispatch.NewSoundChannel(logger, cfg.Channels.Sound.Command, cfg.Channels.Sound.Args...),
			cfg.Channels.Sound.Optional)
	}
	if cfg.Channels.Webhook.Enabled {
		dispatcher.Register(
			dispatch.NewWebhookChannel(logger, cfg.Channels.Webhook.URL, nil),
			cfg.Channels.Webhook.Optional)
	}
}
