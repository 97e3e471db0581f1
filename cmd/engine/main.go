package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/bridge"
	"github.com/agilemesh/ceremony-engine/internal/config"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/engine"
	"github.com/agilemesh/ceremony-engine/internal/logger"
	"github.com/agilemesh/ceremony-engine/internal/providers/jetstream"
)

var (
	configPath = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "", "Path to the directory holding .env files")
)

func main() {
	flag.Parse()

	config.ChdirRepoRoot()

	// Load configuration
	cfg, err := config.LoadEngineConfig(*configPath, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "ceremony-engine"},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.Info("Starting Ceremony Engine")

	owner := common.HexToAddress(cfg.Engine.Owner)
	admin := common.HexToAddress(cfg.Engine.Admin)
	if domain.IsZeroAddress(owner) || domain.IsZeroAddress(admin) {
		logger.Fatal("Owner and admin must be non-zero identities",
			zap.String("owner", cfg.Engine.Owner),
			zap.String("admin", cfg.Engine.Admin))
	}

	// Initialize adapters
	jsonAdapter := adapter.NewJSON()
	natsJS := adapter.NewNatsJetStream()
	clock := adapter.NewClock()

	// Connect the event publisher
	publisher, err := jetstream.NewPublisher(
		jetstream.Config{
			URL:               cfg.NATS.URL,
			StreamName:        cfg.NATS.StreamName,
			MaxReconnects:     cfg.NATS.MaxReconnects,
			ReconnectWait:     cfg.NATS.ReconnectWait,
			ConnectionName:    cfg.NATS.ConnectionName,
			PublishMaxElapsed: cfg.NATS.PublishMaxElapsed,
		},
		natsJS,
		jsonAdapter,
	)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer publisher.Close()
	logger.Info("Connected event publisher", zap.String("stream", cfg.NATS.StreamName))

	var ceiling *big.Int
	if cfg.Engine.ContributionCeiling > 0 {
		ceiling = big.NewInt(cfg.Engine.ContributionCeiling)
	}

	// Build the engine with its default facets
	eng, err := engine.New(engine.Options{
		Owner:               owner,
		ContributionCeiling: ceiling,
		Publisher:           publisher,
		Clock:               clock,
	})
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}

	// Bootstrap the one-time setup. Rerunning against an initialized state is
	// rejected by the engine, which is fine on restart.
	if err := eng.Initialize(
		context.Background(),
		owner,
		big.NewInt(cfg.Engine.ExchangeRate),
		cfg.Engine.VestingPeriod,
		admin,
	); err != nil && !errors.Is(err, domain.ErrAlreadyInitialized) {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}
	logger.Info("Engine initialized",
		zap.String("owner", owner.Hex()),
		zap.String("admin", admin.Hex()))

	// Create the operations bridge
	opsBridge, err := bridge.NewBridge(
		bridge.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			ConsumerName:   cfg.NATS.ConsumerName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName + "-ops",
			AckWaitTimeout: cfg.NATS.AckWait,
			MaxDeliver:     cfg.NATS.MaxDeliver,
			OpsSubject:     cfg.NATS.OpsSubject,
		},
		natsJS,
		eng.Router(),
		jsonAdapter,
	)
	if err != nil {
		logger.Fatal("Failed to create operations bridge", zap.Error(err))
	}
	defer opsBridge.Close()
	logger.Info("Operations bridge created",
		zap.String("stream", cfg.NATS.StreamName),
		zap.String("consumer", cfg.NATS.ConsumerName))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel for bridge errors
	errCh := make(chan error, 1)

	// Start the bridge
	go func() {
		if err := opsBridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.Error(err, zap.String("component", "bridge"))
		cancel()
	case <-publisher.CloseChan():
		logger.Warn("Event publisher connection closed")
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	logger.Info("Ceremony Engine stopped")
}
