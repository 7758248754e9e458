package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/llm-harassment-filter/internal/core"
	"github.com/mikey/llm-harassment-filter/internal/di"
	"go.uber.org/zap"
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
	chatTransport core.ChatTransport,
	ensemble *core.Ensemble,
	temporal *core.TemporalAnalyzer,
	feedback *core.FeedbackLoop,
	store core.KeyValueStore,
) error {
	defer logger.Sync()

	// Start the transport
	if err := chatTransport.Start(); err != nil {
		logger.Fatal("Failed to start transport", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the transport first so no new messages arrive
	if err := chatTransport.Stop(); err != nil {
		logger.Error("Failed to stop transport", zap.Error(err))
	}

	logger.Info("Ensemble calibration at shutdown",
		zap.String("health", string(ensemble.Health())),
		zap.Float64("disagreement_rate", ensemble.DisagreementRate()))

	// Drain the feedback queue and publish any pending retune
	feedback.Stop()
	temporal.Stop()

	// Stop the store if needed
	if stopper, ok := store.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}
