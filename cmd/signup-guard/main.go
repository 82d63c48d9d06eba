package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/audit"
	"github.com/mikey/signup-guard/internal/adapters/store"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/di"
	"github.com/mikey/signup-guard/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	gw ports.Gateway,
	kv core.KeyValueStore,
	dispatcher *audit.Dispatcher,
) error {
	defer func() { _ = logger.Sync() }()

	if err := gw.Start(); err != nil {
		logger.Error("Failed to start gateway", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop taking requests before the sinks they feed
	if err := gw.Stop(); err != nil {
		logger.Error("Failed to stop gateway", zap.Error(err))
	}

	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			logger.Error("Failed to close audit dispatcher", zap.Error(err))
		}
	}

	if stopper, ok := kv.(store.Stopper); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}
