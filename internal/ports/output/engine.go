// Package output defines the secondary/driven ports of the application.
package output

//go:generate mockgen -destination=./mocks/engine.go . OfflineEngine,TrackedDownload,TileSource

import (
	"context"
	"time"

	"github.com/jobrunner/regiond/internal/domain"
)

// OfflineEngine defines the secondary port for the offline storage engine.
// The engine owns tile fetching and persistence; it has no notion of region
// ids and only carries the opaque context blob attached at creation.
type OfflineEngine interface {
	// CreateTrackedDownload creates a persisted record for the definition,
	// attaching contextBlob as opaque metadata. The download is not started.
	CreateTrackedDownload(ctx context.Context, def domain.RegionDefinition, contextBlob []byte) (TrackedDownload, error)

	// ListRecords returns all persisted records in engine-defined order.
	ListRecords(ctx context.Context) ([]PersistedRecord, error)

	// RemoveRecord removes a record and its cached resources, cancelling any
	// download still running for it.
	RemoveRecord(ctx context.Context, record PersistedRecord) error

	// Ping checks that the engine is usable.
	Ping(ctx context.Context) error
}

// TrackedDownload is the engine's handle for one record's download.
type TrackedDownload interface {
	// Key returns the engine's own record key.
	Key() int64

	// Start begins downloading and returns immediately. Events are delivered
	// on the returned channel; the last event is terminal and the channel is
	// closed after it. The caller must drain the channel.
	Start(ctx context.Context) <-chan domain.DownloadEvent
}

// PersistedRecord is the engine's view of a stored region.
type PersistedRecord struct {
	Key       int64                   // Engine record key
	Context   []byte                  // Opaque context blob
	State     domain.DownloadState    // Persisted state
	Progress  domain.DownloadProgress // Persisted counters
	CreatedAt time.Time
}
