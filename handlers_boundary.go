package main

import (
	"encoding/json"
	"net/http"

	"cropwatch/boundary"
	"cropwatch/models"
)

// handleDetectBoundaries returns every field found around a point as a
// GeoJSON FeatureCollection.
func (a *App) handleDetectBoundaries(w http.ResponseWriter, r *http.Request) {
	var req detectBoundaryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	date, kind, err := parseDateKind(req.Date, req.Satellite)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	found, err := a.boundary.DetectBoundary(r.Context(), req.Center, req.RadiusM, date, kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeGeoJSON(w, found)
}

// handleRefineBoundary snaps a hand-drawn polygon to nearby image edges.
func (a *App) handleRefineBoundary(w http.ResponseWriter, r *http.Request) {
	var req refineBoundaryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(req.Polygon) == 0 {
		http.Error(w, "polygon is required", http.StatusBadRequest)
		return
	}
	rough, err := boundary.PolygonFromGeoJSON(req.Polygon)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	date, kind, err := parseDateKind(req.Date, req.Satellite)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	refined, err := a.boundary.RefineBoundary(r.Context(), rough, req.BufferM, date, kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeGeoJSON(w, []models.FieldBoundary{*refined})
}

func writeGeoJSON(w http.ResponseWriter, boundaries []models.FieldBoundary) {
	raw, err := json.Marshal(boundary.ToFeatureCollection(boundaries))
	if err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(raw)
}
