package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/api"
	"github.com/yourusername/offline-mirror-go/api/handlers"
	"github.com/yourusername/offline-mirror-go/internal/app"
	"github.com/yourusername/offline-mirror-go/internal/domain"
	"github.com/yourusername/offline-mirror-go/internal/infrastructure"
	"github.com/yourusername/offline-mirror-go/internal/offline"
	"github.com/yourusername/offline-mirror-go/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file")

func main() {
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(config.Offline.LogsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logs directory: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// sync and error categories
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Offline.LogsDir,
	})
	if err != nil {
		log.Fatal("Failed to initialize multi-logger", zap.Error(err))
	}
	defer multiLog.Close()

	if err := run(config, log, multiLog); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(config *domain.Config, log *zap.Logger, multiLog *logger.MultiLogger) error {
	log.Info("Starting offline mirror server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("documents_dir", config.Offline.DocumentsDir),
		zap.String("session_id", config.Offline.SessionID))

	if err := os.MkdirAll(config.Offline.DocumentsDir, 0755); err != nil {
		return fmt.Errorf("failed to create documents directory: %w", err)
	}

	repo, err := infrastructure.NewSQLiteSyncJobRepository(config.Sync.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	tasks := infrastructure.NewHTTPTaskProvider(&config.Fetch, log)
	resolver := infrastructure.NewCanvasFileResolver(tasks, log)
	fetcher := offline.NewContentFetcher(tasks, resolver, afero.NewOsFs(), offline.FetcherConfig{
		DocumentsDir: config.Offline.DocumentsDir,
		SessionID:    config.Offline.SessionID,
		Section:      domain.SectionPages,
	}, log)

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	syncMgr := app.NewSyncManager(repo, fetcher, notifier, &config.Sync, config.Fetch.Concurrency, log)
	queueMgr := app.NewQueueManager(repo, syncMgr, &config.Sync, multiLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Sync.AutoStartWorkers {
		if err := queueMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(queueMgr, syncMgr, log, multiLog, config.Offline.LogsDir)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// running jobs are requeued when their context is cancelled
	cancel()
	if queueMgr.IsRunning() {
		if err := queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
	}

	log.Info("Server exited")
	return nil
}
