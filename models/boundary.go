package models

import "time"

// FieldBoundary: one detected or refined field polygon.
// Coordinates form a closed ring: the last point repeats the first.
type FieldBoundary struct {
	Coordinates  []GeoPoint `bson:"coordinates"  json:"coordinates"`
	AreaHa       float64    `bson:"areaHa"       json:"areaHa"`
	PerimeterM   float64    `bson:"perimeterM"   json:"perimeterM"`
	Centroid     GeoPoint   `bson:"centroid"     json:"centroid"`
	Confidence   float64    `bson:"confidence"   json:"confidence"`   // 0..1
	QualityScore float64    `bson:"qualityScore" json:"qualityScore"` // edge-gradient consistency 0..1
	DetectedAt   time.Time  `bson:"detectedAt"   json:"detectedAt"`
	Provider     string     `bson:"provider,omitempty" json:"provider,omitempty"`
}

// ChangeType classifies a boundary comparison.
type ChangeType string

const (
	ChangeStable      ChangeType = "stable"
	ChangeExpansion   ChangeType = "expansion"
	ChangeContraction ChangeType = "contraction"
)

// BoundaryChange: pairwise comparison of a previous and a current boundary.
type BoundaryChange struct {
	FieldID             string         `bson:"fieldId" json:"fieldId"`
	ChangeType          ChangeType     `bson:"changeType" json:"changeType"`
	ChangePercent       float64        `bson:"changePercent" json:"changePercent"`
	PreviousAreaHa      float64        `bson:"previousAreaHa" json:"previousAreaHa"`
	CurrentAreaHa       float64        `bson:"currentAreaHa" json:"currentAreaHa"`
	AreaDeltaHa         float64        `bson:"areaDeltaHa" json:"areaDeltaHa"`
	MeanShiftM          float64        `bson:"meanShiftM" json:"meanShiftM"`
	Confidence          float64        `bson:"confidence" json:"confidence"`
	AffectedCoordinates []GeoPoint     `bson:"affectedCoordinates" json:"affectedCoordinates"`
	DetectedAt          time.Time      `bson:"detectedAt" json:"detectedAt"`
	Current             *FieldBoundary `bson:"current,omitempty" json:"current,omitempty"`
}
