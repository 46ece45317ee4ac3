package models

import "math"

// VegetationIndices: the six per-field indices returned by a provider.
// Values are immutable once produced; use Clamp to bring them into range.
type VegetationIndices struct {
	NDVI     float64 `bson:"ndvi"     json:"ndvi"`     // vegetation greenness
	NDWI     float64 `bson:"ndwi"     json:"ndwi"`     // water content
	EVI      float64 `bson:"evi"      json:"evi"`      // enhanced vegetation
	SAVI     float64 `bson:"savi"     json:"savi"`     // soil-adjusted vegetation
	LAI      float64 `bson:"lai"      json:"lai"`      // leaf area estimate (m²/m²)
	NDMI     float64 `bson:"ndmi"     json:"ndmi"`     // moisture
	Provider string  `bson:"provider" json:"provider"` // producing provider
}

// Physical ranges of each index.
const (
	NormalizedMin = -1.0
	NormalizedMax = 1.0
	SAVIMin       = -1.5
	SAVIMax       = 1.5
	LAIMin        = 0.0
	LAIMax        = 10.0
)

// Clamp returns a copy with every index clamped to its physical range.
// NaN values collapse to the lower bound.
func (v VegetationIndices) Clamp() VegetationIndices {
	out := v
	out.NDVI = clamp(v.NDVI, NormalizedMin, NormalizedMax)
	out.NDWI = clamp(v.NDWI, NormalizedMin, NormalizedMax)
	out.EVI = clamp(v.EVI, NormalizedMin, NormalizedMax)
	out.SAVI = clamp(v.SAVI, SAVIMin, SAVIMax)
	out.LAI = clamp(v.LAI, LAIMin, LAIMax)
	out.NDMI = clamp(v.NDMI, NormalizedMin, NormalizedMax)
	return out
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
