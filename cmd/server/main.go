package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend/internal/api"
	"backend/internal/config"
	"backend/internal/deployment"
	"backend/internal/identity"
	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/results"
	"backend/internal/storage"
	"backend/internal/voting"

	clocks "github.com/vimeo/go-clocks"
	"go.uber.org/zap"
)

func main() {
	configuration, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(logger.Configuration{
		LogFile:   configuration.LogFile,
		ErrorFile: configuration.ErrorFile,
		Level:     configuration.LogLevel,
		Console:   configuration.Console,
	})
	defer logger.Sync()

	sqliteStorage, err := storage.NewSqliteStorage(configuration.DatabasePath)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	ledgerClient, err := ledger.NewTONClient(
		configuration.ElectionContractAddress,
		configuration.TonAPIToken,
		configuration.LedgerTimeout,
	)
	if err != nil {
		logger.Fatal("failed to initialize ledger client", zap.Error(err))
	}

	clock := clocks.DefaultClock()
	registry := identity.NewRegistry(sqliteStorage)

	server, err := api.NewServer(api.Dependencies{
		ListenAddress: configuration.ListenAddress,
		Voting:        voting.NewService(sqliteStorage, clock, configuration.TokenTTL),
		Coordinator:   deployment.NewCoordinator(sqliteStorage, registry, clock),
		Reconciler:    results.NewReconciler(sqliteStorage, registry, ledgerClient, configuration.LedgerTimeout),
		RateLimiter: api.NewRateLimiter(
			api.NewExpirableBucketStore(4096, configuration.RateLimitTTL),
			clock,
			configuration.RateLimitPerMinute,
		),
	})
	if err != nil {
		logger.Fatal("failed to initialize api server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped with error", zap.Error(err))
		}
	case <-waitForInterrupt():
		logger.Info("interrupt signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop server cleanly", zap.Error(err))
		}
	}
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
