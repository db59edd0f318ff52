package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hashicorp/go-version"

	"github.com/jobrunner/regiond/internal/domain"
)

// ContextFormatVersion is written into every context blob.
const ContextFormatVersion = "1.0.0"

// Blobs without a formatVersion predate versioning and are read as 1.0.0.
var (
	legacyFormatVersion   = version.Must(version.NewVersion("1.0.0"))
	supportedContextRange = version.MustConstraints(version.NewConstraint(">= 1.0, < 2.0"))
)

// regionJSON is the wire form shared by context blobs and API responses.
type regionJSON struct {
	FormatVersion string          `json:"formatVersion,omitempty"`
	ID            *int64          `json:"id,omitempty"`
	Definition    *definitionJSON `json:"definition"`
	Metadata      map[string]any  `json:"metadata"`
}

// definitionJSON carries bounds as [[south, west], [north, east]].
type definitionJSON struct {
	Bounds      [][]float64 `json:"bounds"`
	MapStyleURL string      `json:"mapStyleUrl"`
	MinZoom     float64     `json:"minZoom"`
	MaxZoom     float64     `json:"maxZoom"`
}

func toDefinitionJSON(def domain.RegionDefinition) *definitionJSON {
	return &definitionJSON{
		Bounds: [][]float64{
			{def.Bounds.South, def.Bounds.West},
			{def.Bounds.North, def.Bounds.East},
		},
		MapStyleURL: def.StyleURL,
		MinZoom:     def.MinZoom,
		MaxZoom:     def.MaxZoom,
	}
}

func (d *definitionJSON) toDomain(metadata map[string]any) (domain.RegionDefinition, error) {
	if len(d.Bounds) != 2 || len(d.Bounds[0]) != 2 || len(d.Bounds[1]) != 2 {
		return domain.RegionDefinition{}, fmt.Errorf("%w: expected [[south, west], [north, east]]", domain.ErrInvalidBounds)
	}
	def := domain.RegionDefinition{
		Bounds: domain.LatLngBounds{
			South: d.Bounds[0][0],
			West:  d.Bounds[0][1],
			North: d.Bounds[1][0],
			East:  d.Bounds[1][1],
		},
		MinZoom:  d.MinZoom,
		MaxZoom:  d.MaxZoom,
		StyleURL: d.MapStyleURL,
		Metadata: metadata,
	}
	return def, def.Validate()
}

// Encode serializes a definition and its id into a context blob.
func Encode(def domain.RegionDefinition, id domain.RegionID) ([]byte, error) {
	if id < 0 {
		return nil, &domain.EncodingError{RegionID: &id, Err: &domain.ValidationError{
			Field:      "id",
			Value:      int64(id),
			Constraint: ">= 0",
			Message:    "region id must be non-negative",
		}}
	}
	if err := def.Validate(); err != nil {
		return nil, &domain.EncodingError{RegionID: &id, Err: err}
	}

	rawID := int64(id)
	data, err := json.Marshal(regionJSON{
		FormatVersion: ContextFormatVersion,
		ID:            &rawID,
		Definition:    toDefinitionJSON(def),
		Metadata:      def.Metadata,
	})
	if err != nil {
		return nil, &domain.EncodingError{RegionID: &id, Err: err}
	}
	return data, nil
}

// Decode parses a context blob. It returns nil for anything that is not a
// descriptor written by Encode, including blobs attached by other producers.
func Decode(data []byte) *domain.RegionDescriptor {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	var raw regionJSON
	if err := decodeStrict(data, &raw); err != nil {
		return nil
	}
	if raw.ID == nil || *raw.ID < 0 || raw.Definition == nil {
		return nil
	}
	if !compatibleFormat(raw.FormatVersion) {
		return nil
	}

	def, err := raw.Definition.toDomain(raw.Metadata)
	if err != nil {
		return nil
	}
	return &domain.RegionDescriptor{ID: domain.RegionID(*raw.ID), Definition: def}
}

// decodeStrict decodes exactly one JSON value, keeping metadata numbers in
// their canonical form.
func decodeStrict(data []byte, raw *regionJSON) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(raw); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	raw.Metadata = canonicalMap(raw.Metadata)
	return nil
}

// CanonicalMetadata returns metadata in the form Decode produces: JSON
// values only, integral numbers as int64, other numbers as float64. A nil
// map stays nil and an empty map stays empty.
func CanonicalMetadata(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, &domain.ValidationError{
			Field:      "metadata",
			Constraint: "JSON values",
			Message:    err.Error(),
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, &domain.ValidationError{
			Field:      "metadata",
			Constraint: "JSON values",
			Message:    err.Error(),
		}
	}
	return canonicalMap(out), nil
}

func canonicalMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = canonicalValue(v)
	}
	return m
}

func canonicalValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		return canonicalNumber(t)
	case map[string]any:
		return canonicalMap(t)
	case []any:
		for i, e := range t {
			t[i] = canonicalValue(e)
		}
		return t
	default:
		return v
	}
}

// canonicalNumber maps integral values that fit into int64 to int64 so that
// they survive a JSON round trip without loss.
func canonicalNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < 1<<63 {
		return int64(f)
	}
	return f
}

func compatibleFormat(s string) bool {
	v := legacyFormatVersion
	if s != "" {
		parsed, err := version.NewVersion(s)
		if err != nil {
			return false
		}
		v = parsed
	}
	return supportedContextRange.Check(v)
}

func descriptorJSON(desc domain.RegionDescriptor) regionJSON {
	id := int64(desc.ID)
	return regionJSON{
		ID:         &id,
		Definition: toDefinitionJSON(desc.Definition),
		Metadata:   desc.Definition.Metadata,
	}
}

// MarshalDescriptor returns the public JSON form of a descriptor.
func MarshalDescriptor(desc domain.RegionDescriptor) ([]byte, error) {
	return json.Marshal(descriptorJSON(desc))
}

// MarshalDescriptors serializes a listing. An empty listing is "[]".
func MarshalDescriptors(descs []domain.RegionDescriptor) ([]byte, error) {
	out := make([]regionJSON, 0, len(descs))
	for _, d := range descs {
		out = append(out, descriptorJSON(d))
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, &domain.ListError{Err: err}
	}
	return data, nil
}

// ParseDownloadRequest reads a download request body of the form
// {"definition": {...}, "metadata": {...}}.
func ParseDownloadRequest(body []byte) (domain.RegionDefinition, error) {
	var raw regionJSON
	if err := decodeStrict(body, &raw); err != nil {
		return domain.RegionDefinition{}, &domain.ValidationError{
			Field:      "body",
			Value:      len(body),
			Constraint: "JSON object",
			Message:    "request body is not valid JSON: " + err.Error(),
		}
	}
	if raw.Definition == nil {
		return domain.RegionDefinition{}, &domain.ValidationError{
			Field:      "definition",
			Constraint: "required",
			Message:    "definition is required",
		}
	}
	return raw.Definition.toDomain(raw.Metadata)
}
