// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/regiond/internal/domain"
)

// RegionService defines the primary port for offline region management.
type RegionService interface {
	// StartDownload registers and starts a download, returning as soon as the
	// download has been handed to the engine.
	StartDownload(ctx context.Context, def domain.RegionDefinition) (*domain.RegionDescriptor, error)

	// ListRegions returns all persisted regions with a decodable context.
	ListRegions(ctx context.Context) ([]domain.RegionDescriptor, error)

	// GetRegion returns a persisted region with its engine state.
	GetRegion(ctx context.Context, id domain.RegionID) (*domain.RegionStatus, error)

	// DeleteRegion removes the persisted region with the given id.
	DeleteRegion(ctx context.Context, id domain.RegionID) error

	// ActiveDownloads returns the registered in-flight downloads.
	ActiveDownloads() []domain.DownloadSnapshot

	// WatchDownload subscribes to events of an in-flight download. The
	// channel is closed after the terminal event; cancel unsubscribes early.
	WatchDownload(id domain.RegionID) (events <-chan domain.DownloadEvent, cancel func(), err error)

	// ReleaseDownload drops the handle registered under id. It is a no-op
	// for unknown ids.
	ReleaseDownload(id domain.RegionID)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy          bool              // Overall health status
	Ready            bool              // Ready to accept requests
	ActiveDownloads  int               // Number of registered downloads
	PersistedRegions int               // Number of engine records that decode as regions
	Components       map[string]string // Component statuses
}
