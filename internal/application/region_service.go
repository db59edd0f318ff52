package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/regiond/internal/domain"
	"github.com/jobrunner/regiond/internal/ports/output"
)

// RegionService coordinates region downloads between the registry and the
// offline engine.
type RegionService struct {
	registry   *DownloadRegistry
	engine     output.OfflineEngine
	ids        IDGenerator
	metrics    output.MetricsCollector
	logger     *slog.Logger
	idAttempts int
}

// RegionServiceConfig holds configuration for the region service.
type RegionServiceConfig struct {
	IDAttempts  int
	IDGenerator IDGenerator
}

// NewRegionService creates a new region service.
func NewRegionService(
	registry *DownloadRegistry,
	engine output.OfflineEngine,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg RegionServiceConfig,
) *RegionService {
	if cfg.IDAttempts <= 0 {
		cfg.IDAttempts = 8
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = RandomIDGenerator{}
	}

	return &RegionService{
		registry:   registry,
		engine:     engine,
		ids:        cfg.IDGenerator,
		metrics:    metrics,
		logger:     logger,
		idAttempts: cfg.IDAttempts,
	}
}

// StartDownload creates a tracked download for def, registers it and starts
// it. It returns once the engine has accepted the download; progress is
// observed through WatchDownload.
func (s *RegionService) StartDownload(ctx context.Context, def domain.RegionDefinition) (*domain.RegionDescriptor, error) {
	if err := def.Validate(); err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	metadata, err := CanonicalMetadata(def.Metadata)
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	def.Metadata = metadata

	id, err := s.nextRegionID(ctx)
	if err != nil {
		return nil, err
	}

	blob, err := Encode(def, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	download, err := s.engine.CreateTrackedDownload(ctx, def, blob)
	s.metrics.ObserveEngineDuration("create", time.Since(start))
	s.metrics.IncEngineOperations("create", err == nil)
	if err != nil {
		s.logger.Error("failed to create tracked download", "id", id, "error", err)
		return nil, &domain.EngineError{Operation: "create", Err: err}
	}

	desc := domain.RegionDescriptor{ID: id, Definition: def}
	handle := newDownloadHandle(desc, download)
	s.registry.Register(id, handle)

	// The download outlives the request that started it.
	events := download.Start(context.WithoutCancel(ctx))
	s.metrics.IncDownloadsStarted()
	go s.pump(handle, events)

	s.logger.Info("region download started",
		"id", id,
		"engine_key", download.Key(),
		"style", def.StyleURL,
		"min_zoom", def.MinZoom,
		"max_zoom", def.MaxZoom,
	)

	return &desc, nil
}

// pump forwards engine events to the handle and releases it once the
// download has ended.
func (s *RegionService) pump(handle *DownloadHandle, events <-chan domain.DownloadEvent) {
	id := handle.ID()
	var lastBytes int64
	terminal := false

	for ev := range events {
		if delta := ev.Progress.CompletedBytes - lastBytes; delta > 0 {
			s.metrics.AddDownloadedBytes(delta)
			lastBytes = ev.Progress.CompletedBytes
		}
		handle.publish(ev)

		if ev.IsTerminal() && !terminal {
			terminal = true
			s.finish(id, ev)
		}
	}

	if !terminal {
		ev := domain.FailedEvent(handle.Latest().Progress, "download ended without a result")
		handle.publish(ev)
		s.finish(id, ev)
	}
}

func (s *RegionService) finish(id domain.RegionID, ev domain.DownloadEvent) {
	success := ev.Kind == domain.EventComplete
	s.metrics.IncDownloadsFinished(success)

	if success {
		s.logger.Info("region download complete",
			"id", id,
			"resources", ev.Progress.CompletedResources,
			"bytes", ev.Progress.CompletedBytes,
		)
	} else {
		s.logger.Warn("region download failed", "id", id, "message", ev.Message)
	}

	s.registry.Release(id)
}

// nextRegionID draws ids until one is unused by both the registry and the
// persisted records.
func (s *RegionService) nextRegionID(ctx context.Context) (domain.RegionID, error) {
	persisted, err := s.persistedIDs(ctx)
	if err != nil {
		return 0, err
	}

	for attempt := 0; attempt < s.idAttempts; attempt++ {
		id := s.ids.NextID()
		if id < 0 {
			continue
		}
		if _, taken := persisted[id]; taken || s.registry.Has(id) {
			s.logger.Debug("region id collision", "id", id, "attempt", attempt+1)
			continue
		}
		return id, nil
	}

	return 0, fmt.Errorf("%w after %d attempts", domain.ErrIDExhausted, s.idAttempts)
}

func (s *RegionService) persistedIDs(ctx context.Context) (map[domain.RegionID]struct{}, error) {
	records, err := s.listRecords(ctx)
	if err != nil {
		return nil, &domain.EngineError{Operation: "list", Err: err}
	}

	ids := make(map[domain.RegionID]struct{}, len(records))
	for _, rec := range records {
		if desc := Decode(rec.Context); desc != nil {
			ids[desc.ID] = struct{}{}
		}
	}
	return ids, nil
}

func (s *RegionService) listRecords(ctx context.Context) ([]output.PersistedRecord, error) {
	start := time.Now()
	records, err := s.engine.ListRecords(ctx)
	s.metrics.ObserveEngineDuration("list", time.Since(start))
	s.metrics.IncEngineOperations("list", err == nil)
	return records, err
}

// ActiveDownloads returns the registered in-flight downloads.
func (s *RegionService) ActiveDownloads() []domain.DownloadSnapshot {
	return s.registry.Snapshot()
}

// WatchDownload subscribes to the events of a registered download.
func (s *RegionService) WatchDownload(id domain.RegionID) (<-chan domain.DownloadEvent, func(), error) {
	handle, ok := s.registry.Lookup(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", domain.ErrDownloadNotFound, id)
	}
	events, cancel := handle.Subscribe()
	return events, cancel, nil
}

// ReleaseDownload drops the handle registered under id. The engine download
// keeps running; its events are no longer observable.
func (s *RegionService) ReleaseDownload(id domain.RegionID) {
	if s.registry.Release(id) {
		s.logger.Info("download handle released", "id", id)
	}
}
