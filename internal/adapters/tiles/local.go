// Package tiles provides tile source adapters.
package tiles

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jobrunner/regiond/internal/domain"
)

// LocalSource serves tiles from a directory tree.
type LocalSource struct {
	basePath string
}

// NewLocalSource creates a new local tile source.
func NewLocalSource(basePath string) *LocalSource {
	return &LocalSource{basePath: basePath}
}

// Fetch reads the tile stored under key.
func (s *LocalSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := filepath.Join(s.basePath, filepath.FromSlash(cleanKey(key)))
	data, err := os.ReadFile(p) //#nosec G304 -- key is cleaned and rooted at basePath
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTileNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Name returns the source name.
func (s *LocalSource) Name() string {
	return "local:" + s.basePath
}

// cleanKey normalizes a tile key and keeps it from escaping its root.
func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

// joinKey prefixes key, if a prefix is configured.
func joinKey(prefix, key string) string {
	key = cleanKey(key)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
