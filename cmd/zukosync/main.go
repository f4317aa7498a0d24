package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	syncer "github.com/datarmony/zukosync/internal/sync"
	"github.com/datarmony/zukosync/pkg/config"
	"github.com/datarmony/zukosync/pkg/logger"
	"github.com/datarmony/zukosync/pkg/notify"
	"github.com/datarmony/zukosync/pkg/warehouse"
	"github.com/datarmony/zukosync/pkg/zuko"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "zukosync",
		Short: "Zukosync - incremental session sync from Zuko to BigQuery",
		Long: `Zukosync periodically extracts form analytics sessions from the Zuko
egress API, flattens them into tabular rows and loads only previously
unseen rows into per-form BigQuery tables.`,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zukosync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Execute one sync run and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signalContext()
			defer stop()

			runner, wh, err := buildRunner(ctx, configPath)
			if err != nil {
				return err
			}
			defer wh.Close()
			defer logger.Sync()

			summary, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			if summary.Failed() {
				return fmt.Errorf("sync run completed with errors")
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP endpoints that trigger sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signalContext()
			defer stop()

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			runner, wh, err := wireRunner(ctx, cfg)
			if err != nil {
				return err
			}
			defer wh.Close()
			defer logger.Sync()

			server := syncer.NewServer(runner, &cfg.Server, logger.Get())
			return server.Start(ctx)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildRunner(ctx context.Context, configPath string) (*syncer.Runner, *warehouse.BigQueryWarehouse, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return wireRunner(ctx, cfg)
}

func wireRunner(ctx context.Context, cfg *config.Config) (*syncer.Runner, *warehouse.BigQueryWarehouse, error) {
	log := logger.Get()

	client := zuko.NewClient(&zuko.Config{
		BaseURL:        cfg.API.BaseURL,
		APIKey:         cfg.API.APIKey,
		RequestTimeout: cfg.API.RequestTimeout,
		Retry: &zuko.RetryPolicy{
			MaxAttempts:     cfg.Retry.Attempts,
			InitialDelay:    cfg.Retry.InitialDelay,
			MaxDelay:        cfg.Retry.MaxDelay,
			Multiplier:      cfg.Retry.Multiplier,
			RandomizeFactor: 0.25,
		},
	}, log)

	wh, err := warehouse.NewBigQueryWarehouse(ctx, &cfg.BigQuery, log)
	if err != nil {
		return nil, nil, err
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		notifier = notify.NewSMTPNotifier(&cfg.Notify, log)
	}

	log.Info("wired sync runner",
		zap.Int("forms", len(cfg.Sync.Forms)),
		zap.String("dataset", cfg.BigQuery.DatasetID),
		zap.Bool("notify", cfg.Notify.Enabled))
	return syncer.NewRunner(cfg, client, wh, notifier, log), wh, nil
}
