package output

import "context"

// TileSource defines the secondary port the engine fetches tiles from.
type TileSource interface {
	// Fetch returns the tile stored under key. A missing tile is reported as
	// domain.ErrTileNotFound.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Name returns the source type for logs and health output.
	Name() string
}

// TileSourceType represents the type of tile source backend.
type TileSourceType string

const (
	TileSourceLocal  TileSourceType = "local"
	TileSourceHTTP   TileSourceType = "http"
	TileSourceS3     TileSourceType = "s3"
	TileSourceAzure  TileSourceType = "azure"
	TileSourceBucket TileSourceType = "bucket"
)
