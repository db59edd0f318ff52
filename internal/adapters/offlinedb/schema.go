package offlinedb

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS regions (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	south               REAL    NOT NULL,
	west                REAL    NOT NULL,
	north               REAL    NOT NULL,
	east                REAL    NOT NULL,
	min_zoom            REAL    NOT NULL,
	max_zoom            REAL    NOT NULL,
	style_url           TEXT    NOT NULL,
	context             BLOB,
	state               TEXT    NOT NULL DEFAULT 'inactive',
	completed_resources INTEGER NOT NULL DEFAULT 0,
	required_resources  INTEGER NOT NULL DEFAULT 0,
	completed_bytes     INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tiles (
	region_id INTEGER NOT NULL REFERENCES regions(id) ON DELETE CASCADE,
	z         INTEGER NOT NULL,
	x         INTEGER NOT NULL,
	y         INTEGER NOT NULL,
	data      BLOB    NOT NULL,
	PRIMARY KEY (region_id, z, x, y)
);
`

// migrate creates the schema and resets downloads interrupted by a previous
// process back to inactive.
func migrate(ctx context.Context, db *sql.DB) (int64, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return 0, fmt.Errorf("creating schema: %w", err)
	}

	res, err := db.ExecContext(ctx, `UPDATE regions SET state = 'inactive' WHERE state = 'active'`)
	if err != nil {
		return 0, fmt.Errorf("resetting interrupted downloads: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
