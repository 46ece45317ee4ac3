package models

import "time"

// HealthStatus: five ordered levels, best first.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "Excellent"
	HealthGood      HealthStatus = "Good"
	HealthFair      HealthStatus = "Fair"
	HealthPoor      HealthStatus = "Poor"
	HealthCritical  HealthStatus = "Critical"
)

// Anomaly is a flag raised during health assessment.
type Anomaly string

const (
	AnomalyLowVegetation   Anomaly = "low_vegetation_cover"
	AnomalyWaterStress     Anomaly = "water_stress"
	AnomalyMoistureDeficit Anomaly = "moisture_deficit"
	AnomalyPoorCanopy      Anomaly = "poor_canopy"
	AnomalySparseLeaves    Anomaly = "sparse_leaves"
)

// BilingualText carries the same advice in English and Arabic.
type BilingualText struct {
	En string `bson:"en" json:"en"`
	Ar string `bson:"ar" json:"ar"`
}

// ProviderFailure records one provider that was asked and did not serve.
type ProviderFailure struct {
	Provider string `bson:"provider"       json:"provider"`
	Kind     string `bson:"kind"           json:"kind"` // transport | auth | quota | decode | no_data
	Reason   string `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Provenance describes how a result was obtained.
type Provenance struct {
	Provider        string            `bson:"provider"                  json:"provider"`
	IsSimulated     bool              `bson:"isSimulated"               json:"isSimulated"`
	IsCached        bool              `bson:"isCached"                  json:"isCached"`
	FailedProviders []ProviderFailure `bson:"failedProviders,omitempty" json:"failedProviders,omitempty"`
}

// FieldAnalysis: one health assessment of a field. Created per request;
// callers snapshot it if persistence is needed.
type FieldAnalysis struct {
	FieldID         string            `bson:"fieldId"         json:"fieldId"`
	AnalyzedAt      time.Time         `bson:"analyzedAt"      json:"analyzedAt"`
	Location        GeoPoint          `bson:"location"        json:"location"`
	Satellite       SatelliteKind     `bson:"satellite"       json:"satellite"`
	Indices         VegetationIndices `bson:"indices"         json:"indices"`
	HealthScore     float64           `bson:"healthScore"     json:"healthScore"` // 0..100
	HealthStatus    HealthStatus      `bson:"healthStatus"    json:"healthStatus"`
	Anomalies       []Anomaly         `bson:"anomalies"       json:"anomalies"`
	Recommendations []BilingualText   `bson:"recommendations" json:"recommendations"`

	Provenance `bson:",inline"`
}
