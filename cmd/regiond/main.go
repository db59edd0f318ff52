// Package main provides the entry point for the regiond offline region service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/regiond/internal/app"
	"github.com/jobrunner/regiond/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "regiond",
	Short: "regiond - offline map region service",
	Long: `regiond downloads map regions for offline use and keeps a registry
of the downloads in flight.

It provides a REST API to start region downloads, follow their progress,
list the regions stored in the offline database and delete them.

Features:
  - Region definitions round-tripped through the offline database
  - Progress streaming over server-sent events
  - Tile sources: local files, HTTP, AWS S3, Azure Blob, Go CDK buckets
  - Region manifests with hot-reload
  - TLS with automatic certificate management
  - Prometheus metrics`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("regiond %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration OK (source %s, engine %s)\n", cfg.Source.Type, cfg.Engine.Path)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	// Server flags
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().Int("port", 8080, "server port")
	rootCmd.Flags().Bool("tls", false, "enable TLS")
	rootCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	rootCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	rootCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Engine flags
	rootCmd.Flags().String("db", "./data/offline.db", "offline database path")
	rootCmd.Flags().Int64("max-tiles", 6000, "maximum tiles per region")

	// Tile source flags
	rootCmd.Flags().String("source-type", "local", "tile source type (local, http, s3, azure, bucket)")
	rootCmd.Flags().String("source-path", "./tiles", "local tile directory")
	rootCmd.Flags().String("source-url", "", "tile server base URL (http) or bucket URL (bucket)")

	// Manifest flags
	rootCmd.Flags().String("manifests", "", "region manifest directory")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("server.host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", rootCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", rootCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("server.cors.allowed_origins", rootCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("engine.path", rootCmd.Flags().Lookup("db"))
	_ = viper.BindPFlag("engine.max_tiles", rootCmd.Flags().Lookup("max-tiles"))
	_ = viper.BindPFlag("source.type", rootCmd.Flags().Lookup("source-type"))
	_ = viper.BindPFlag("source.local_path", rootCmd.Flags().Lookup("source-path"))
	_ = viper.BindPFlag("source.http.base_url", rootCmd.Flags().Lookup("source-url"))
	_ = viper.BindPFlag("source.bucket.url", rootCmd.Flags().Lookup("source-url"))
	_ = viper.BindPFlag("manifests.dir", rootCmd.Flags().Lookup("manifests"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting regiond",
		"version", version,
		"address", cfg.Server.Address(),
		"source_type", cfg.Source.Type,
		"engine_path", cfg.Engine.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		err := application.Start(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serverErr <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-serverErr:
		if runErr != nil {
			logger.Error("server error", "error", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return errors.Join(runErr, err)
	}

	logger.Info("server stopped")
	return runErr
}
