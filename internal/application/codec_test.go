package application

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobrunner/regiond/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	def := testDefinition()
	def.Metadata = map[string]any{
		"name":     "Berlin",
		"priority": int64(2),
		"ratio":    0.5,
		"tags":     []any{"a", int64(1)},
		"nested":   map[string]any{"ok": true, "none": nil},
	}

	blob, err := Encode(def, 42)
	require.NoError(t, err)

	desc := Decode(blob)
	require.NotNil(t, desc)
	assert.Equal(t, domain.RegionID(42), desc.ID)
	assert.Equal(t, def, desc.Definition)
}

func TestRoundTripKeepsMetadataShape(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
	}{
		{name: "absent", metadata: nil},
		{name: "empty", metadata: map[string]any{}},
		{name: "integer", metadata: map[string]any{"priority": int64(2)}},
		{name: "beyond float precision", metadata: map[string]any{"owner_id": int64(9007199254740993)}},
		{name: "negative", metadata: map[string]any{"offset": int64(-3), "tiny": -0.125}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition()
			def.Metadata = tt.metadata

			blob, err := Encode(def, 5)
			require.NoError(t, err)
			desc := Decode(blob)
			require.NotNil(t, desc)
			assert.Equal(t, tt.metadata, desc.Definition.Metadata)

			again, err := Encode(desc.Definition, desc.ID)
			require.NoError(t, err)
			assert.Equal(t, string(blob), string(again))
		})
	}
}

func TestCanonicalMetadata(t *testing.T) {
	got, err := CanonicalMetadata(map[string]any{
		"int":     2,
		"uint":    uint32(7),
		"float":   2.0,
		"frac":    2.5,
		"big":     uint64(9007199254740993),
		"list":    []string{"x"},
		"nested":  map[string]int{"n": 1},
		"missing": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"int":     int64(2),
		"uint":    int64(7),
		"float":   int64(2),
		"frac":    2.5,
		"big":     int64(9007199254740993),
		"list":    []any{"x"},
		"nested":  map[string]any{"n": int64(1)},
		"missing": nil,
	}, got)

	got, err = CanonicalMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = CanonicalMetadata(map[string]any{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = CanonicalMetadata(map[string]any{"bad": make(chan int)})
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr), "want ValidationError, got %T", err)
	assert.Equal(t, "metadata", vErr.Field)
}

func TestEncodeWritesFormatVersion(t *testing.T) {
	blob, err := Encode(testDefinition(), 7)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(blob, &raw))
	assert.Equal(t, ContextFormatVersion, raw["formatVersion"])
	assert.EqualValues(t, 7, raw["id"])
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		def    func() domain.RegionDefinition
		id     domain.RegionID
		target error
	}{
		{
			name:   "negative id",
			def:    testDefinition,
			id:     -1,
			target: domain.ErrInvalidInput,
		},
		{
			name: "south above north",
			def: func() domain.RegionDefinition {
				d := testDefinition()
				d.Bounds.South, d.Bounds.North = 53, 52
				return d
			},
			id:     1,
			target: domain.ErrInvalidInput,
		},
		{
			name: "latitude out of range",
			def: func() domain.RegionDefinition {
				d := testDefinition()
				d.Bounds.North = 91
				return d
			},
			id:     1,
			target: domain.ErrInvalidInput,
		},
		{
			name: "non-finite longitude",
			def: func() domain.RegionDefinition {
				d := testDefinition()
				d.Bounds.East = math.Inf(1)
				return d
			},
			id:     1,
			target: domain.ErrInvalidInput,
		},
		{
			name: "min zoom above max zoom",
			def: func() domain.RegionDefinition {
				d := testDefinition()
				d.MinZoom, d.MaxZoom = 12, 4
				return d
			},
			id:     1,
			target: domain.ErrInvalidInput,
		},
		{
			name: "missing style",
			def: func() domain.RegionDefinition {
				d := testDefinition()
				d.StyleURL = "  "
				return d
			},
			id:     1,
			target: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encode(tt.def(), tt.id)
			require.Error(t, err)
			assert.Nil(t, blob)

			var encErr *domain.EncodingError
			require.True(t, errors.As(err, &encErr), "want EncodingError, got %T", err)
			require.NotNil(t, encErr.RegionID)
			assert.Equal(t, tt.id, *encErr.RegionID)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "not json", data: "region 42"},
		{name: "json array", data: `[1, 2]`},
		{name: "json string", data: `"hello"`},
		{name: "foreign object", data: `{"owner": "someone else"}`},
		{name: "missing id", data: `{"definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
		{name: "negative id", data: `{"id": -5, "definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
		{name: "fractional id", data: `{"id": 1.5, "definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
		{name: "missing definition", data: `{"id": 3}`},
		{name: "short bounds", data: `{"id": 3, "definition": {"bounds": [[1, 1]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
		{name: "inverted bounds", data: `{"id": 3, "definition": {"bounds": [[2, 2], [1, 1]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
		{name: "future format", data: `{"formatVersion": "2.0.0", "id": 3, "definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
		{name: "garbage format", data: `{"formatVersion": "latest", "id": 3, "definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Decode([]byte(tt.data)))
		})
	}
}

func TestDecodeAcceptsUnversionedAndMinorVersions(t *testing.T) {
	for _, data := range []string{
		`{"id": 3, "definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`,
		`{"formatVersion": "1.4.0", "id": 3, "definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s", "minZoom": 0, "maxZoom": 1}}`,
	} {
		desc := Decode([]byte(data))
		require.NotNil(t, desc, data)
		assert.Equal(t, domain.RegionID(3), desc.ID)
		assert.Equal(t, "s", desc.Definition.StyleURL)
	}
}

func TestMarshalDescriptors(t *testing.T) {
	data, err := MarshalDescriptors(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	data, err = MarshalDescriptors([]domain.RegionDescriptor{{ID: 9, Definition: testDefinition()}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{
		"id": 9,
		"definition": {
			"bounds": [[52.3, 13.0], [52.7, 13.8]],
			"mapStyleUrl": "mapbox://styles/test/streets",
			"minZoom": 0,
			"maxZoom": 10
		},
		"metadata": null
	}]`, string(data))
}

func TestMarshalDescriptorsUnsupportedMetadata(t *testing.T) {
	def := testDefinition()
	def.Metadata = map[string]any{"bad": make(chan int)}

	_, err := MarshalDescriptors([]domain.RegionDescriptor{{ID: 1, Definition: def}})
	var listErr *domain.ListError
	assert.True(t, errors.As(err, &listErr))
}

func TestParseDownloadRequest(t *testing.T) {
	def, err := ParseDownloadRequest([]byte(`{
		"definition": {"bounds": [[52.3, 13.0], [52.7, 13.8]], "mapStyleUrl": "mapbox://styles/x", "minZoom": 1, "maxZoom": 5},
		"metadata": {"name": "Berlin"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 52.3, def.Bounds.South)
	assert.Equal(t, 13.8, def.Bounds.East)
	assert.Equal(t, "mapbox://styles/x", def.StyleURL)
	assert.Equal(t, 5.0, def.MaxZoom)
	name, ok := def.MetadataString("name")
	assert.True(t, ok)
	assert.Equal(t, "Berlin", name)

	def, err = ParseDownloadRequest([]byte(`{
		"definition": {"bounds": [[52.3, 13.0], [52.7, 13.8]], "mapStyleUrl": "s", "minZoom": 1, "maxZoom": 5},
		"metadata": {"owner_id": 9007199254740993, "priority": 2, "ratio": 0.25, "empty": {}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"owner_id": int64(9007199254740993),
		"priority": int64(2),
		"ratio":    0.25,
		"empty":    map[string]any{},
	}, def.Metadata)

	_, err = ParseDownloadRequest([]byte(`{"definition": {"bounds": [[1, 1], [2, 2]], "mapStyleUrl": "s"}} {}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ParseDownloadRequest([]byte(`{`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ParseDownloadRequest([]byte(`{"metadata": {}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ParseDownloadRequest([]byte(`{"definition": {"bounds": [[1, 1]], "mapStyleUrl": "s"}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidBounds)
}
