package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coffersTech/logvault/internal/archive"
	"github.com/coffersTech/logvault/internal/config"
	"github.com/coffersTech/logvault/internal/hub"
	"github.com/coffersTech/logvault/internal/ingest"
	"github.com/coffersTech/logvault/internal/server"
	"github.com/coffersTech/logvault/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		addr   string
		webDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the REST API over the record file. When configured, also runs the
Kafka consumer and periodic archive snapshots.

Examples:
  logvault serve
  logvault serve --addr :9000 --db /var/lib/logvault/logs.json
  LOGVAULT_API_KEY_HASH=$(logvault hash-token s3cret) logvault serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if webDir != "" {
				cfg.Server.WebDir = webDir
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&webDir, "web", "", "directory of static viewer files (overrides server.web_dir)")
	return cmd
}

func runServe(cfg *config.Config) error {
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return err
	}
	count, err := store.Count()
	if err != nil {
		return err
	}
	logger.Info("logvault starting", "db", store.Path(), "records", count)

	h := hub.New()
	srv := server.NewServer(store, h, server.Options{
		WebDir:       cfg.Server.WebDir,
		APIKeyHash:   cfg.Server.APIKeyHash,
		IngestRate:   cfg.Server.IngestRate,
		IngestBurst:  cfg.Server.IngestBurst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       logger,
	})
	if cfg.Server.APIKeyHash == "" {
		logger.Warn("API key auth disabled; set server.api_key_hash to require a token")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	var archiver *archive.Archiver
	if cfg.Archive.Enabled() {
		archiver, err = archive.NewArchiver(cfg.Archive.Dir, cfg.Archive.Retention.Std(), store, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiver.Run(ctx, cfg.Archive.Interval.Std())
		}()
	}

	if cfg.Kafka.Enabled() {
		consumer := ingest.NewConsumer(ingest.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			GroupID:       cfg.Kafka.GroupID,
			BatchSize:     cfg.Kafka.BatchSize,
			FlushInterval: cfg.Kafka.FlushInterval.Std(),
		}, store, h, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		serveErr <- srv.Start(cfg.Server.Addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	h.Close()

	cancel()
	wg.Wait()

	if archiver != nil {
		if _, err := archiver.Snapshot(); err != nil {
			logger.Error("final snapshot failed", "error", err)
		}
	}

	logger.Info("logvault exited gracefully")
	return nil
}
