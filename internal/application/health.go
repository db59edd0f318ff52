package application

import (
	"context"

	"github.com/jobrunner/regiond/internal/ports/input"
	"github.com/jobrunner/regiond/internal/ports/output"
)

// HealthService provides health check functionality.
type HealthService struct {
	engine   output.OfflineEngine
	registry *DownloadRegistry
}

// NewHealthService creates a new health service.
func NewHealthService(engine output.OfflineEngine, registry *DownloadRegistry) *HealthService {
	return &HealthService{
		engine:   engine,
		registry: registry,
	}
}

// IsHealthy returns true if the engine answers a ping.
func (s *HealthService) IsHealthy(ctx context.Context) bool {
	return s.engine.Ping(ctx) == nil
}

// IsReady returns true if the service is ready to accept requests.
func (s *HealthService) IsReady(ctx context.Context) bool {
	return s.IsHealthy(ctx)
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"engine":   "ok",
		"registry": "ok",
	}

	healthy := true
	if err := s.engine.Ping(ctx); err != nil {
		components["engine"] = err.Error()
		healthy = false
	}

	persisted := 0
	if healthy {
		records, err := s.engine.ListRecords(ctx)
		if err != nil {
			components["engine"] = err.Error()
			healthy = false
		} else {
			// Records written by other components are not regions.
			for _, rec := range records {
				if Decode(rec.Context) != nil {
					persisted++
				}
			}
		}
	}

	return input.HealthDetails{
		Healthy:          healthy,
		Ready:            healthy,
		ActiveDownloads:  s.registry.Len(),
		PersistedRegions: persisted,
		Components:       components,
	}
}
