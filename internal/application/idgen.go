package application

import (
	"math"
	"math/rand/v2"

	"github.com/jobrunner/regiond/internal/domain"
)

// IDGenerator produces candidate region ids.
type IDGenerator interface {
	NextID() domain.RegionID
}

// RandomIDGenerator draws ids uniformly from [0, MaxInt64).
type RandomIDGenerator struct{}

// NextID implements IDGenerator.
func (RandomIDGenerator) NextID() domain.RegionID {
	return domain.RegionID(rand.Int64N(math.MaxInt64))
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() domain.RegionID

// NextID implements IDGenerator.
func (f IDGeneratorFunc) NextID() domain.RegionID {
	return f()
}
