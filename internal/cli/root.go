package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/coffersTech/logvault/internal/config"
	"github.com/coffersTech/logvault/internal/storage"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	dbPath     string
}

// NewRootCommand builds the logvault command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "logvault",
		Short: "logvault: log ingestion and query service",
		Long: `logvault stores log records in a single JSON file and serves them over
a REST API with filtering, sorting, pagination, statistics and a live tail.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "logvault.yaml", "config file (missing file means defaults)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path of the JSON record file (overrides storage.path)")

	root.AddCommand(
		newServeCommand(opts),
		newStatsCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newHashTokenCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config and applies the flags shared by every command.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Storage.Path = o.dbPath
	}
	return cfg, nil
}

func (o *rootOptions) openStore() (*storage.Store, *config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
