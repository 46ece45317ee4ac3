// Package boundary extracts field polygons from vegetation-index rasters,
// refines rough polygons against image edges and tracks boundary change
// between dates.
package boundary

import "errors"

var (
	// ErrInvalidInput marks rejected arguments: degenerate polygons,
	// out-of-range radii or coordinates.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoBoundary is returned when no field could be found where one was
	// expected.
	ErrNoBoundary = errors.New("no field boundary detected")
)

// Config holds the tunables of the pipeline. Defaults are starting points
// for 10 m imagery.
type Config struct {
	// CultivatedThreshold separates cultivated from bare pixels (NDVI).
	CultivatedThreshold float64
	// EdgeThreshold is the minimum normalized Sobel magnitude of an edge.
	EdgeThreshold float64
	// SimplifyToleranceM is the Douglas-Peucker tolerance in meters.
	SimplifyToleranceM float64
	// MaxVertices caps the vertex count of a simplified ring.
	MaxVertices int
	MinAreaHa   float64
	MinQuality  float64
	// DefaultBufferM is used by RefineBoundary when no buffer is given.
	DefaultBufferM float64
	MaxRadiusM     float64
	// StableBandPct is the symmetric percent change still reported as stable.
	StableBandPct float64
	// ShiftThresholdM marks a vertex as affected when it moved further.
	ShiftThresholdM float64
}

func DefaultConfig() Config {
	return Config{
		CultivatedThreshold: 0.35,
		EdgeThreshold:       0.08,
		SimplifyToleranceM:  8,
		MaxVertices:         64,
		MinAreaHa:           0.5,
		MinQuality:          0.3,
		DefaultBufferM:      30,
		MaxRadiusM:          5000,
		StableBandPct:       5,
		ShiftThresholdM:     15,
	}
}

// Validate checks that every tunable is usable.
func (c Config) Validate() error {
	switch {
	case c.SimplifyToleranceM <= 0:
		return errors.New("boundary: simplify tolerance must be positive")
	case c.MaxVertices < 4:
		return errors.New("boundary: max vertices must be at least 4")
	case c.MinQuality < 0 || c.MinQuality > 1:
		return errors.New("boundary: min quality must be within [0,1]")
	case c.MaxRadiusM <= 0:
		return errors.New("boundary: max radius must be positive")
	case c.StableBandPct < 0:
		return errors.New("boundary: stable band must not be negative")
	}
	return nil
}
