// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RegionID identifies an offline region. It is a non-negative 63-bit integer
// generated when the download is requested.
type RegionID int64

// String returns the decimal representation of the id.
func (id RegionID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseRegionID parses a decimal region id.
func ParseRegionID(s string) (RegionID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0, &ValidationError{
			Field:      "id",
			Value:      s,
			Constraint: "[0, 2^63)",
			Message:    "region id must be a non-negative integer",
		}
	}
	return RegionID(v), nil
}

// Zoom limits accepted for offline regions.
const (
	MinZoomLevel = 0
	MaxZoomLevel = 22
)

// LatLngBounds is a geographic bounding box in WGS 84 degrees.
type LatLngBounds struct {
	South float64 // Minimum latitude
	West  float64 // Minimum longitude
	North float64 // Maximum latitude
	East  float64 // Maximum longitude
}

// Validate checks that the bounds are finite, in range and ordered.
func (b LatLngBounds) Validate() error {
	for _, v := range []float64{b.South, b.West, b.North, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{
				Field:      "bounds",
				Value:      v,
				Constraint: "finite",
				Message:    "bounds must be finite numbers",
				Kind:       ErrInvalidBounds,
			}
		}
	}
	if b.South < -90 || b.North > 90 {
		return &ValidationError{
			Field:      "latitude",
			Value:      [2]float64{b.South, b.North},
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
			Kind:       ErrInvalidBounds,
		}
	}
	if b.West < -180 || b.East > 180 {
		return &ValidationError{
			Field:      "longitude",
			Value:      [2]float64{b.West, b.East},
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
			Kind:       ErrInvalidBounds,
		}
	}
	if b.South > b.North || b.West > b.East {
		return &ValidationError{
			Field:      "bounds",
			Value:      b.String(),
			Constraint: "south <= north, west <= east",
			Message:    "bounds corners are out of order",
			Kind:       ErrInvalidBounds,
		}
	}
	return nil
}

// String returns a string representation of the bounds.
func (b LatLngBounds) String() string {
	return fmt.Sprintf("[%f,%f]-[%f,%f]", b.South, b.West, b.North, b.East)
}

// RegionDefinition describes what to download for offline use.
type RegionDefinition struct {
	Bounds   LatLngBounds
	MinZoom  float64
	MaxZoom  float64
	StyleURL string         // Style URI or identifier
	Metadata map[string]any // Arbitrary caller data
}

// Validate checks the definition for values that cannot be downloaded or
// encoded.
func (d RegionDefinition) Validate() error {
	if err := d.Bounds.Validate(); err != nil {
		return err
	}
	if math.IsNaN(d.MinZoom) || math.IsNaN(d.MaxZoom) ||
		d.MinZoom < MinZoomLevel || d.MaxZoom > MaxZoomLevel || d.MinZoom > d.MaxZoom {
		return &ValidationError{
			Field:      "zoom",
			Value:      [2]float64{d.MinZoom, d.MaxZoom},
			Constraint: fmt.Sprintf("%d <= minZoom <= maxZoom <= %d", MinZoomLevel, MaxZoomLevel),
			Message:    "zoom range is invalid",
			Kind:       ErrInvalidZoom,
		}
	}
	if strings.TrimSpace(d.StyleURL) == "" {
		return &ValidationError{
			Field:      "mapStyleUrl",
			Value:      d.StyleURL,
			Constraint: "non-empty",
			Message:    "style URL is required",
		}
	}
	return nil
}

// MetadataString returns a metadata value if it is a string.
func (d RegionDefinition) MetadataString(key string) (string, bool) {
	if d.Metadata == nil {
		return "", false
	}
	s, ok := d.Metadata[key].(string)
	return s, ok
}

// RegionDescriptor is a region definition together with its generated id.
type RegionDescriptor struct {
	ID         RegionID
	Definition RegionDefinition
}

// RegionStatus combines a descriptor with the engine's persisted state.
type RegionStatus struct {
	Descriptor RegionDescriptor
	State      DownloadState
	Progress   DownloadProgress
	CreatedAt  time.Time
	Active     bool // A download handle is registered for the id
}
