package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/regiond/internal/domain"
	"github.com/jobrunner/regiond/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDownload is a TrackedDownload whose events are pushed by the test.
type fakeDownload struct {
	key     int64
	events  chan domain.DownloadEvent
	started chan struct{}

	mu       sync.Mutex
	startCtx context.Context
}

func newFakeDownload(key int64) *fakeDownload {
	return &fakeDownload{
		key:     key,
		events:  make(chan domain.DownloadEvent, 16),
		started: make(chan struct{}),
	}
}

func (d *fakeDownload) Key() int64 { return d.key }

func (d *fakeDownload) Start(ctx context.Context) <-chan domain.DownloadEvent {
	d.mu.Lock()
	d.startCtx = ctx
	d.mu.Unlock()
	close(d.started)
	return d.events
}

func (d *fakeDownload) context() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startCtx
}

func (d *fakeDownload) emit(ev domain.DownloadEvent) {
	d.events <- ev
}

func (d *fakeDownload) finish(ev domain.DownloadEvent) {
	d.events <- ev
	close(d.events)
}

// fakeEngine is an in-memory OfflineEngine.
type fakeEngine struct {
	mu        sync.Mutex
	records   []output.PersistedRecord
	downloads []*fakeDownload
	nextKey   int64
	removed   []int64

	createErr error
	listErr   error
	removeErr error
	pingErr   error
}

func (e *fakeEngine) CreateTrackedDownload(_ context.Context, _ domain.RegionDefinition, contextBlob []byte) (output.TrackedDownload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.createErr != nil {
		return nil, e.createErr
	}
	e.nextKey++
	blob := make([]byte, len(contextBlob))
	copy(blob, contextBlob)
	e.records = append(e.records, output.PersistedRecord{
		Key:       e.nextKey,
		Context:   blob,
		State:     domain.StateInactive,
		CreatedAt: time.Now(),
	})
	d := newFakeDownload(e.nextKey)
	e.downloads = append(e.downloads, d)
	return d, nil
}

func (e *fakeEngine) ListRecords(_ context.Context) ([]output.PersistedRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listErr != nil {
		return nil, e.listErr
	}
	out := make([]output.PersistedRecord, len(e.records))
	copy(out, e.records)
	return out, nil
}

func (e *fakeEngine) RemoveRecord(_ context.Context, record output.PersistedRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removeErr != nil {
		return e.removeErr
	}
	for i, r := range e.records {
		if r.Key == record.Key {
			e.records = append(e.records[:i], e.records[i+1:]...)
			e.removed = append(e.removed, r.Key)
			return nil
		}
	}
	return errors.New("no such record")
}

func (e *fakeEngine) Ping(_ context.Context) error {
	return e.pingErr
}

func (e *fakeEngine) addRecord(key int64, blob []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, output.PersistedRecord{Key: key, Context: blob, State: domain.StateComplete})
}

func (e *fakeEngine) lastDownload() *fakeDownload {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.downloads) == 0 {
		return nil
	}
	return e.downloads[len(e.downloads)-1]
}

func (e *fakeEngine) removedKeys() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.removed...)
}

// sequenceIDs yields the given ids in order, then repeats the last one.
func sequenceIDs(ids ...domain.RegionID) IDGenerator {
	var mu sync.Mutex
	i := 0
	return IDGeneratorFunc(func() domain.RegionID {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i]
		if i < len(ids)-1 {
			i++
		}
		return id
	})
}

func newTestService(engine output.OfflineEngine, ids IDGenerator) (*RegionService, *DownloadRegistry) {
	registry := NewDownloadRegistry(&output.NoOpMetrics{}, testLogger())
	service := NewRegionService(registry, engine, &output.NoOpMetrics{}, testLogger(), RegionServiceConfig{
		IDAttempts:  4,
		IDGenerator: ids,
	})
	return service, registry
}

func testDefinition() domain.RegionDefinition {
	return domain.RegionDefinition{
		Bounds:   domain.LatLngBounds{South: 52.3, West: 13.0, North: 52.7, East: 13.8},
		MinZoom:  0,
		MaxZoom:  10,
		StyleURL: "mapbox://styles/test/streets",
	}
}

func mustEncode(def domain.RegionDefinition, id domain.RegionID) []byte {
	blob, err := Encode(def, id)
	if err != nil {
		panic(err)
	}
	return blob
}
