package offlinedb

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/jobrunner/regiond/internal/domain"
)

// maxMercatorLat is the latitude limit of the web mercator projection.
const maxMercatorLat = 85.0511287798

// tileRange is the inclusive block of tiles covering a region at one zoom.
type tileRange struct {
	Z          maptile.Zoom
	MinX, MaxX uint32
	MinY, MaxY uint32
}

// Count returns the number of tiles in the range.
func (r tileRange) Count() int64 {
	return int64(r.MaxX-r.MinX+1) * int64(r.MaxY-r.MinY+1)
}

// Each calls fn for every tile in row-major order until fn returns false.
func (r tileRange) Each(fn func(maptile.Tile) bool) bool {
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			if !fn(maptile.New(x, y, r.Z)) {
				return false
			}
		}
	}
	return true
}

// pyramid returns the tile ranges covering bounds from floor(minZoom) to
// ceil(maxZoom).
func pyramid(bounds domain.LatLngBounds, minZoom, maxZoom float64) []tileRange {
	lo := int(math.Floor(minZoom))
	hi := int(math.Ceil(maxZoom))
	if lo < domain.MinZoomLevel {
		lo = domain.MinZoomLevel
	}
	if hi > domain.MaxZoomLevel {
		hi = domain.MaxZoomLevel
	}

	north := clampLat(bounds.North)
	south := clampLat(bounds.South)

	ranges := make([]tileRange, 0, hi-lo+1)
	for z := lo; z <= hi; z++ {
		zoom := maptile.Zoom(z)
		topLeft := maptile.At(orb.Point{bounds.West, north}, zoom)
		bottomRight := maptile.At(orb.Point{bounds.East, south}, zoom)

		limit := uint32(1)<<uint(z) - 1
		ranges = append(ranges, tileRange{
			Z:    zoom,
			MinX: min(topLeft.X, limit),
			MaxX: min(bottomRight.X, limit),
			MinY: min(topLeft.Y, limit),
			MaxY: min(bottomRight.Y, limit),
		})
	}
	return ranges
}

// countTiles returns the total number of tiles across ranges.
func countTiles(ranges []tileRange) int64 {
	var n int64
	for _, r := range ranges {
		n += r.Count()
	}
	return n
}

func clampLat(lat float64) float64 {
	return math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
}
