package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/regiond/internal/domain"
	"github.com/jobrunner/regiond/internal/ports/input"
)

// ManifestMetadataKey is the metadata key recording which manifest a region
// was created from.
const ManifestMetadataKey = "manifest"

// manifestFile is the YAML form of a region manifest.
type manifestFile struct {
	Bounds   [][]float64    `yaml:"bounds"`
	StyleURL string         `yaml:"style_url"`
	MinZoom  float64        `yaml:"min_zoom"`
	MaxZoom  float64        `yaml:"max_zoom"`
	Metadata map[string]any `yaml:"metadata"`
}

// ParseManifest decodes a YAML manifest into a region definition.
func ParseManifest(data []byte) (domain.RegionDefinition, error) {
	var m manifestFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return domain.RegionDefinition{}, &domain.ValidationError{
			Field:      "manifest",
			Value:      len(data),
			Constraint: "YAML document",
			Message:    err.Error(),
		}
	}
	if len(m.Bounds) != 2 || len(m.Bounds[0]) != 2 || len(m.Bounds[1]) != 2 {
		return domain.RegionDefinition{}, fmt.Errorf("%w: expected [[south, west], [north, east]]", domain.ErrInvalidBounds)
	}
	metadata, err := CanonicalMetadata(m.Metadata)
	if err != nil {
		return domain.RegionDefinition{}, err
	}

	def := domain.RegionDefinition{
		Bounds: domain.LatLngBounds{
			South: m.Bounds[0][0],
			West:  m.Bounds[0][1],
			North: m.Bounds[1][0],
			East:  m.Bounds[1][1],
		},
		MinZoom:  m.MinZoom,
		MaxZoom:  m.MaxZoom,
		StyleURL: m.StyleURL,
		Metadata: metadata,
	}
	return def, def.Validate()
}

// ManifestName derives the manifest name from its file path.
func ManifestName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsManifestFile reports whether path has a manifest extension.
func IsManifestFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ManifestLoader starts downloads for region manifests found on disk.
type ManifestLoader struct {
	regions input.RegionService
	logger  *slog.Logger
}

// NewManifestLoader creates a new manifest loader.
func NewManifestLoader(regions input.RegionService, logger *slog.Logger) *ManifestLoader {
	return &ManifestLoader{
		regions: regions,
		logger:  logger,
	}
}

// LoadDir loads every manifest in dir and returns the number of downloads
// started. A failing manifest is logged and does not stop the others.
func (l *ManifestLoader) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading manifest directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsManifestFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	started := 0
	for _, name := range names {
		desc, err := l.LoadFile(ctx, filepath.Join(dir, name))
		if err != nil {
			l.logger.Error("failed to load manifest", "file", name, "error", err)
			continue
		}
		if desc != nil {
			started++
		}
	}

	l.logger.Info("manifests loaded", "dir", dir, "files", len(names), "started", started)
	return started, nil
}

// LoadFile starts a download for the manifest at path. It returns nil
// without error when a region for the manifest already exists.
func (l *ManifestLoader) LoadFile(ctx context.Context, path string) (*domain.RegionDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	def, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", filepath.Base(path), err)
	}

	name := ManifestName(path)
	existing, err := l.regionsFor(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		l.logger.Debug("manifest already has a region", "manifest", name, "id", existing[0].ID)
		return nil, nil
	}

	metadata := make(map[string]any, len(def.Metadata)+1)
	for k, v := range def.Metadata {
		metadata[k] = v
	}
	metadata[ManifestMetadataKey] = name
	def.Metadata = metadata

	desc, err := l.regions.StartDownload(ctx, def)
	if err != nil {
		return nil, err
	}

	l.logger.Info("manifest download started", "manifest", name, "id", desc.ID)
	return desc, nil
}

// RemoveManifest deletes every region created from the named manifest.
func (l *ManifestLoader) RemoveManifest(ctx context.Context, name string) (int, error) {
	regions, err := l.regionsFor(ctx, name)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, r := range regions {
		if err := l.regions.DeleteRegion(ctx, r.ID); err != nil {
			var notFound *domain.RegionNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		l.logger.Info("manifest regions removed", "manifest", name, "count", removed)
	}
	return removed, errors.Join(errs...)
}

func (l *ManifestLoader) regionsFor(ctx context.Context, name string) ([]domain.RegionDescriptor, error) {
	all, err := l.regions.ListRegions(ctx)
	if err != nil {
		return nil, err
	}

	var matched []domain.RegionDescriptor
	for _, r := range all {
		if v, ok := r.Definition.MetadataString(ManifestMetadataKey); ok && v == name {
			matched = append(matched, r)
		}
	}
	return matched, nil
}
