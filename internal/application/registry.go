// Package application contains the application services.
package application

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/jobrunner/regiond/internal/domain"
	"github.com/jobrunner/regiond/internal/ports/output"
)

// DownloadRegistry maps region ids to in-flight download handles. It is the
// sole owner of every handle; a handle leaves the registry on its terminal
// event or on an explicit release.
type DownloadRegistry struct {
	mu      sync.RWMutex
	handles map[domain.RegionID]*DownloadHandle
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewDownloadRegistry creates an empty registry.
func NewDownloadRegistry(metrics output.MetricsCollector, logger *slog.Logger) *DownloadRegistry {
	return &DownloadRegistry{
		handles: make(map[domain.RegionID]*DownloadHandle),
		metrics: metrics,
		logger:  logger,
	}
}

// Register inserts a handle. An existing entry for the id is replaced.
func (r *DownloadRegistry) Register(id domain.RegionID, handle *DownloadHandle) {
	r.mu.Lock()
	if _, exists := r.handles[id]; exists {
		r.logger.Warn("replacing registered download", "id", id)
	}
	r.handles[id] = handle
	count := len(r.handles)
	// The gauge is set under the lock so that updates land in mutation order.
	r.metrics.SetActiveDownloads(count)
	r.mu.Unlock()

	r.logger.Debug("download registered", "id", id, "active", count)
}

// Release removes the handle for id. It is safe to call any number of times
// and reports whether an entry was removed.
func (r *DownloadRegistry) Release(id domain.RegionID) bool {
	r.mu.Lock()
	_, ok := r.handles[id]
	delete(r.handles, id)
	count := len(r.handles)
	if ok {
		r.metrics.SetActiveDownloads(count)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("download released", "id", id, "active", count)
	}
	return ok
}

// Lookup returns the handle registered under id.
func (r *DownloadRegistry) Lookup(id domain.RegionID) (*DownloadHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[id]
	return h, ok
}

// Has returns true if a handle is registered under id.
func (r *DownloadRegistry) Has(id domain.RegionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[id]
	return ok
}

// Len returns the number of registered handles.
func (r *DownloadRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Snapshot returns the state of all registered downloads ordered by start time.
func (r *DownloadRegistry) Snapshot() []domain.DownloadSnapshot {
	r.mu.RLock()
	handles := make([]*DownloadHandle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	snapshots := make([]domain.DownloadSnapshot, len(handles))
	for i, h := range handles {
		snapshots[i] = h.Snapshot()
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.Before(snapshots[j].StartedAt)
	})
	return snapshots
}
