// Package offlinedb provides the SQLite-backed offline region engine.
package offlinedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jobrunner/regiond/internal/domain"
	"github.com/jobrunner/regiond/internal/ports/output"
)

// DefaultKeyTemplate is the tile key layout used when none is configured.
const DefaultKeyTemplate = "{style}/{z}/{x}/{y}.pbf"

// Config holds engine configuration.
type Config struct {
	Path        string // SQLite database file
	MaxTiles    int64  // Upper bound of tiles per region
	KeyTemplate string // Tile source key with {style}, {z}, {x}, {y}
}

// Engine implements the OfflineEngine port on a SQLite database.
type Engine struct {
	db          *sql.DB
	source      output.TileSource
	logger      *slog.Logger
	maxTiles    int64
	keyTemplate string

	mu      sync.Mutex
	running map[int64]*run
	closed  bool
	wg      sync.WaitGroup
}

// run tracks one executing download.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Open opens or creates the engine database.
func Open(ctx context.Context, cfg Config, source output.TileSource, logger *slog.Logger) (*Engine, error) {
	if cfg.MaxTiles <= 0 {
		cfg.MaxTiles = 6000
	}
	if cfg.KeyTemplate == "" {
		cfg.KeyTemplate = DefaultKeyTemplate
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := openDB(ctx, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening offline database: %w", err)
	}

	reset, err := migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if reset > 0 {
		logger.Warn("reset interrupted downloads", "count", reset)
	}

	logger.Info("offline database opened", "path", cfg.Path, "source", source.Name())

	return &Engine{
		db:          db,
		source:      source,
		logger:      logger,
		maxTiles:    cfg.MaxTiles,
		keyTemplate: cfg.KeyTemplate,
		running:     make(map[int64]*run),
	}, nil
}

// openDB opens the SQLite database with WAL and foreign keys enabled.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// Downloads write concurrently; a single connection serializes them.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CreateTrackedDownload inserts an inactive record for def.
func (e *Engine) CreateTrackedDownload(ctx context.Context, def domain.RegionDefinition, contextBlob []byte) (output.TrackedDownload, error) {
	if e.isClosed() {
		return nil, domain.ErrEngineClosed
	}

	ranges := pyramid(def.Bounds, def.MinZoom, def.MaxZoom)
	required := countTiles(ranges)
	if required > e.maxTiles {
		return nil, fmt.Errorf("region requires %d tiles, exceeding the limit of %d", required, e.maxTiles)
	}

	res, err := e.db.ExecContext(ctx, `
		INSERT INTO regions (south, west, north, east, min_zoom, max_zoom, style_url, context, state, required_resources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.Bounds.South, def.Bounds.West, def.Bounds.North, def.Bounds.East,
		def.MinZoom, def.MaxZoom, def.StyleURL, contextBlob,
		string(domain.StateInactive), required, time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting region record: %w", err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading region key: %w", err)
	}

	e.logger.Debug("region record created", "key", key, "tiles", required)

	return &trackedDownload{
		engine:   e,
		key:      key,
		styleKey: styleKey(def.StyleURL),
		ranges:   ranges,
		required: required,
	}, nil
}

// ListRecords returns all records ordered by key.
func (e *Engine) ListRecords(ctx context.Context) ([]output.PersistedRecord, error) {
	if e.isClosed() {
		return nil, domain.ErrEngineClosed
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT id, context, state, completed_resources, required_resources, completed_bytes, created_at
		FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying regions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]output.PersistedRecord, 0)
	for rows.Next() {
		var (
			rec       output.PersistedRecord
			state     string
			createdAt int64
		)
		if err := rows.Scan(&rec.Key, &rec.Context, &state,
			&rec.Progress.CompletedResources, &rec.Progress.RequiredResources, &rec.Progress.CompletedBytes,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning region: %w", err)
		}
		rec.State = domain.DownloadState(state)
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating regions: %w", err)
	}
	return records, nil
}

// RemoveRecord stops a running download for the record and deletes the
// record together with its tiles.
func (e *Engine) RemoveRecord(ctx context.Context, record output.PersistedRecord) error {
	if e.isClosed() {
		return domain.ErrEngineClosed
	}

	e.mu.Lock()
	r := e.running[record.Key]
	e.mu.Unlock()
	if r != nil {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tiles WHERE region_id = ?`, record.Key); err != nil {
		return fmt.Errorf("deleting tiles: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM regions WHERE id = ?`, record.Key)
	if err != nil {
		return fmt.Errorf("deleting region: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: key %d", domain.ErrRecordNotFound, record.Key)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing removal: %w", err)
	}

	e.logger.Debug("region record removed", "key", record.Key)
	return nil
}

// TileData returns a stored tile of a record.
func (e *Engine) TileData(ctx context.Context, key int64, z, x, y uint32) ([]byte, error) {
	var data []byte
	err := e.db.QueryRowContext(ctx,
		`SELECT data FROM tiles WHERE region_id = ? AND z = ? AND x = ? AND y = ?`,
		key, z, x, y,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading tile: %w", err)
	}
	return data, nil
}

// Ping checks that the database is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if e.isClosed() {
		return domain.ErrEngineClosed
	}
	return e.db.PingContext(ctx)
}

// Close cancels running downloads, waits for them and closes the database.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, r := range e.running {
		r.cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	return e.db.Close()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// track registers a running download. It fails once the engine is closed.
func (e *Engine) track(key int64, cancel context.CancelFunc) (*run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, false
	}
	if _, exists := e.running[key]; exists {
		return nil, false
	}
	r := &run{cancel: cancel, done: make(chan struct{})}
	e.running[key] = r
	e.wg.Add(1)
	return r, true
}

func (e *Engine) untrack(key int64, r *run) {
	e.mu.Lock()
	delete(e.running, key)
	e.mu.Unlock()

	r.cancel()
	close(r.done)
	e.wg.Done()
}
