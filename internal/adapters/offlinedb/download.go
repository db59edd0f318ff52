package offlinedb

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb/maptile"

	"github.com/jobrunner/regiond/internal/domain"
)

const (
	eventBuffer = 16

	// progressFlushInterval is the number of tiles between progress writes.
	progressFlushInterval = 50
)

// trackedDownload implements output.TrackedDownload for one record.
type trackedDownload struct {
	engine   *Engine
	key      int64
	styleKey string
	ranges   []tileRange
	required int64

	once sync.Once
}

// Key returns the record key.
func (d *trackedDownload) Key() int64 {
	return d.key
}

// Start launches the download. A second call, or a call on a closed engine,
// yields a single failed event.
func (d *trackedDownload) Start(ctx context.Context) <-chan domain.DownloadEvent {
	events := make(chan domain.DownloadEvent, eventBuffer)

	started := false
	d.once.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		r, ok := d.engine.track(d.key, cancel)
		if !ok {
			cancel()
			return
		}
		started = true
		go d.run(runCtx, r, events)
	})

	if !started {
		events <- domain.FailedEvent(domain.DownloadProgress{RequiredResources: d.required}, "download cannot be started")
		close(events)
	}
	return events
}

func (d *trackedDownload) run(ctx context.Context, r *run, events chan<- domain.DownloadEvent) {
	defer d.engine.untrack(d.key, r)
	defer close(events)

	e := d.engine
	progress := domain.DownloadProgress{RequiredResources: d.required}

	// State writes must land even after cancellation.
	persistCtx := context.WithoutCancel(ctx)

	if err := d.persist(persistCtx, domain.StateActive, progress); err != nil {
		events <- domain.FailedEvent(progress, err.Error())
		return
	}
	events <- domain.ProgressEvent(progress)

	e.logger.Info("download running", "key", d.key, "tiles", d.required, "source", e.source.Name())

	var failure error
	for _, tr := range d.ranges {
		ok := tr.Each(func(t maptile.Tile) bool {
			if err := ctx.Err(); err != nil {
				failure = errors.New("download cancelled")
				return false
			}

			size, err := d.fetchTile(ctx, t)
			if err != nil {
				if ctx.Err() != nil {
					failure = errors.New("download cancelled")
				} else {
					failure = err
				}
				return false
			}

			progress.CompletedResources++
			progress.CompletedBytes += size
			if progress.CompletedResources%progressFlushInterval == 0 {
				if err := d.persist(persistCtx, domain.StateActive, progress); err != nil {
					e.logger.Warn("failed to persist progress", "key", d.key, "error", err)
				}
			}
			events <- domain.ProgressEvent(progress)
			return true
		})
		if !ok {
			break
		}
	}

	if failure != nil {
		state := domain.StateFailed
		if ctx.Err() != nil {
			state = domain.StateInactive
		}
		if err := d.persist(persistCtx, state, progress); err != nil {
			e.logger.Warn("failed to persist state", "key", d.key, "error", err)
		}
		e.logger.Warn("download stopped", "key", d.key, "error", failure)
		events <- domain.FailedEvent(progress, failure.Error())
		return
	}

	if err := d.persist(persistCtx, domain.StateComplete, progress); err != nil {
		events <- domain.FailedEvent(progress, err.Error())
		return
	}
	e.logger.Info("download complete", "key", d.key, "tiles", progress.CompletedResources, "bytes", progress.CompletedBytes)
	events <- domain.CompleteEvent(progress)
}

// fetchTile fetches and stores one tile, returning its size. Tiles missing
// from the source count as downloaded with no data.
func (d *trackedDownload) fetchTile(ctx context.Context, t maptile.Tile) (int64, error) {
	key := tileKey(d.engine.keyTemplate, d.styleKey, t)

	data, err := d.engine.source.Fetch(ctx, key)
	if errors.Is(err, domain.ErrTileNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetching tile %s: %w", key, err)
	}

	if _, err := d.engine.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tiles (region_id, z, x, y, data) VALUES (?, ?, ?, ?, ?)`,
		d.key, uint32(t.Z), t.X, t.Y, data,
	); err != nil {
		return 0, fmt.Errorf("storing tile %s: %w", key, err)
	}
	return int64(len(data)), nil
}

func (d *trackedDownload) persist(ctx context.Context, state domain.DownloadState, p domain.DownloadProgress) error {
	_, err := d.engine.db.ExecContext(ctx, `
		UPDATE regions
		SET state = ?, completed_resources = ?, required_resources = ?, completed_bytes = ?
		WHERE id = ?`,
		string(state), p.CompletedResources, p.RequiredResources, p.CompletedBytes, d.key,
	)
	if err != nil {
		return fmt.Errorf("updating region state: %w", err)
	}
	return nil
}

// styleKey turns a style URL into a key prefix by dropping the scheme.
func styleKey(styleURL string) string {
	s := styleURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(path.Clean("/"+s), "/")
	return s
}

// tileKey expands the key template for a tile.
func tileKey(template, style string, t maptile.Tile) string {
	return strings.NewReplacer(
		"{style}", style,
		"{z}", strconv.FormatUint(uint64(t.Z), 10),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
	).Replace(template)
}
