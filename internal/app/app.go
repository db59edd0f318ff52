// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	httpAdapter "github.com/jobrunner/regiond/internal/adapters/http"
	"github.com/jobrunner/regiond/internal/adapters/metrics"
	"github.com/jobrunner/regiond/internal/adapters/offlinedb"
	"github.com/jobrunner/regiond/internal/adapters/tiles"
	tlsAdapter "github.com/jobrunner/regiond/internal/adapters/tls"
	"github.com/jobrunner/regiond/internal/adapters/watcher"
	"github.com/jobrunner/regiond/internal/application"
	"github.com/jobrunner/regiond/internal/config"
	"github.com/jobrunner/regiond/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Source        output.TileSource
	Engine        *offlinedb.Engine
	Registry      *application.DownloadRegistry
	Regions       *application.RegionService
	Manifests     *application.ManifestLoader
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
	MetricsServer *metrics.Server
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	var collector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		collector = app.Metrics
	}

	source, err := initSource(ctx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("initializing tile source: %w", err)
	}
	app.Source = source

	engine, err := offlinedb.Open(ctx, offlinedb.Config{
		Path:        cfg.Engine.Path,
		MaxTiles:    cfg.Engine.MaxTiles,
		KeyTemplate: cfg.Engine.KeyTemplate,
	}, source, logger)
	if err != nil {
		_ = app.closeSource()
		return nil, fmt.Errorf("opening offline engine: %w", err)
	}
	app.Engine = engine

	app.Registry = application.NewDownloadRegistry(collector, logger)
	app.Regions = application.NewRegionService(
		app.Registry,
		engine,
		collector,
		logger,
		application.RegionServiceConfig{IDAttempts: cfg.Engine.IDAttempts},
	)
	app.Manifests = application.NewManifestLoader(app.Regions, logger)
	app.HealthService = application.NewHealthService(engine, app.Registry)

	app.HTTPServer = httpAdapter.NewServer(cfg.Server, app.Regions, app.HealthService, logger)

	if app.Metrics != nil {
		app.HTTPServer.Router().Use(app.Metrics.Middleware)
		if cfg.Metrics.Port > 0 {
			app.MetricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, app.Metrics.Handler(), logger)
		} else {
			app.HTTPServer.Router().Handle(cfg.Metrics.Path, app.Metrics.Handler())
		}
	}

	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(cfg.TLS, cfg.Server, app.HTTPServer.Handler(), logger)
		if err != nil {
			_ = app.close()
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	if cfg.Manifests.Dir != "" && cfg.Manifests.Watch {
		w, err := watcher.New(
			watcher.Config{
				Paths:    []string{cfg.Manifests.Dir},
				Debounce: cfg.Manifests.Debounce,
				Filter:   application.IsManifestFile,
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize manifest watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start loads manifests, starts the watcher and the metrics listener, and
// serves the API until Shutdown.
func (a *App) Start(ctx context.Context) error {
	a.loadManifests(ctx)

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start manifest watcher", "error", err)
		}
	}

	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.ManageCertificates(ctx); err != nil {
			return err
		}
		return a.TLSServer.ListenAndServe()
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("TLS server shutdown error", "error", err)
		}
	} else if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	return a.close()
}

// close releases the engine and the tile source.
func (a *App) close() error {
	var errs []error
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing engine: %w", err))
		}
	}
	if err := a.closeSource(); err != nil {
		errs = append(errs, fmt.Errorf("closing tile source: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeSource() error {
	if c, ok := a.Source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// loadManifests starts downloads for manifests that have no region yet.
func (a *App) loadManifests(ctx context.Context) {
	if a.Config.Manifests.Dir == "" {
		return
	}
	if _, err := a.Manifests.LoadDir(ctx, a.Config.Manifests.Dir); err != nil {
		a.Logger.Warn("failed to load manifests", "dir", a.Config.Manifests.Dir, "error", err)
	}
}

// handleFileEvent keeps regions in step with the manifest directory.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		_, err := a.Manifests.LoadFile(ctx, event.Path)
		return err

	case watcher.OpDelete:
		_, err := a.Manifests.RemoveManifest(ctx, application.ManifestName(event.Path))
		return err
	}

	return nil
}

// initSource initializes the configured tile source.
func initSource(ctx context.Context, cfg config.SourceConfig) (output.TileSource, error) {
	switch output.TileSourceType(cfg.Type) {
	case output.TileSourceLocal:
		return tiles.NewLocalSource(cfg.LocalPath), nil

	case output.TileSourceHTTP:
		return tiles.NewHTTPSource(tiles.HTTPConfig{
			BaseURL:     cfg.HTTP.BaseURL,
			Timeout:     cfg.HTTP.Timeout,
			Username:    cfg.HTTP.Username,
			Password:    cfg.HTTP.Password,
			AccessToken: cfg.HTTP.AccessToken,
		}), nil

	case output.TileSourceS3:
		return tiles.NewS3Source(ctx, tiles.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case output.TileSourceAzure:
		return tiles.NewAzureSource(tiles.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case output.TileSourceBucket:
		return tiles.OpenBucketSource(ctx, cfg.Bucket.URL, cfg.Bucket.Prefix)

	default:
		return nil, fmt.Errorf("unknown tile source type: %s", cfg.Type)
	}
}
