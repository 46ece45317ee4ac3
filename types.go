package main

import (
	"encoding/json"
	"time"

	"cropwatch/models"
)

// Request/response DTOs. Keep them minimal and explicit.
// Dates are "YYYY-MM-DD" or RFC 3339; empty means today.

type analyzeReq struct {
	Location  models.GeoPoint `json:"location"`
	Date      string          `json:"date,omitempty"`
	Satellite string          `json:"satellite,omitempty"`
}

type stageReq struct {
	FieldID      string               `json:"fieldId"`
	Crop         string               `json:"crop"`
	Observations []models.Observation `json:"observations"`
	PlantingDate *time.Time           `json:"plantingDate,omitempty"`
	AsOf         *time.Time           `json:"asOf,omitempty"`
}

type stageBatchReq struct {
	Fields []stageReq `json:"fields"`
}

type stageBatchResp struct {
	Results []*models.PhenologyResult `json:"results"`
}

type cropResp struct {
	Crop       models.CropKind      `json:"crop"`
	Name       models.BilingualText `json:"name"`
	SeasonDays int                  `json:"seasonDays"`
	Stages     []models.GrowthStage `json:"stages"`
}

type detectBoundaryReq struct {
	Center    models.GeoPoint `json:"center"`
	RadiusM   float64         `json:"radiusM"`
	Date      string          `json:"date,omitempty"`
	Satellite string          `json:"satellite,omitempty"`
}

type refineBoundaryReq struct {
	Polygon   json.RawMessage `json:"polygon"` // GeoJSON Polygon, Feature or FeatureCollection
	BufferM   float64         `json:"bufferM,omitempty"`
	Date      string          `json:"date,omitempty"`
	Satellite string          `json:"satellite,omitempty"`
}

type boundaryChangeReq struct {
	Previous  json.RawMessage `json:"previous"` // GeoJSON polygon of the last known boundary
	Date      string          `json:"date,omitempty"`
	Satellite string          `json:"satellite,omitempty"`
}

type providersResp struct {
	Providers []string `json:"providers"`
}

type errorResp struct {
	Error           string                   `json:"error"`
	FailedProviders []models.ProviderFailure `json:"failedProviders,omitempty"`
}
