package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cropwatch/boundary"
	"cropwatch/models"
	"cropwatch/phenology"
	"cropwatch/satellite"

	"github.com/go-chi/chi/v5"
)

// handleAnalyzeField scores the health of one field from its latest indices.
func (a *App) handleAnalyzeField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req analyzeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	date, kind, err := parseDateKind(req.Date, req.Satellite)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := checkLocation(req.Location); err != nil {
		a.writeError(w, r, err)
		return
	}

	out, err := a.sat.AnalyzeField(r.Context(), id, req.Location, date, kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleFieldPhenology classifies the growth stage of one field from its
// observation series.
func (a *App) handleFieldPhenology(w http.ResponseWriter, r *http.Request) {
	var req stageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.FieldID = chi.URLParam(r, "id")

	out, err := a.phenology.DetectCurrentStage(req.toRequest())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleBoundaryChange compares the stored boundary of a field with the one
// visible at the given date.
func (a *App) handleBoundaryChange(w http.ResponseWriter, r *http.Request) {
	var req boundaryChangeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(req.Previous) == 0 {
		http.Error(w, "previous polygon is required", http.StatusBadRequest)
		return
	}
	previous, err := boundary.PolygonFromGeoJSON(req.Previous)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	date, kind, err := parseDateKind(req.Date, req.Satellite)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	out, err := a.boundary.DetectBoundaryChange(r.Context(), chi.URLParam(r, "id"), previous, date, kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- helpers ----

// errBadRequest marks malformed query or body parameters.
var errBadRequest = errors.New("bad request")

func (s stageReq) toRequest() phenology.Request {
	req := phenology.Request{
		FieldID:      s.FieldID,
		Crop:         models.CropKind(s.Crop),
		Observations: s.Observations,
		PlantingDate: s.PlantingDate,
	}
	if s.AsOf != nil {
		req.AsOf = *s.AsOf
	}
	return req
}

// dateOnlyUTC normalizes a timestamp to 00:00:00 UTC (one bucket per day).
func dateOnlyUTC(t time.Time) time.Time {
	tt := t.UTC()
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, time.UTC)
}

// parseDate accepts "YYYY-MM-DD" or RFC 3339; empty means today.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return dateOnlyUTC(time.Now()), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", errBadRequest, s)
	}
	return dateOnlyUTC(t), nil
}

func parseDateKind(date, sat string) (time.Time, models.SatelliteKind, error) {
	d, err := parseDate(date)
	if err != nil {
		return time.Time{}, "", err
	}
	kind, ok := models.ParseSatelliteKind(sat)
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: unknown satellite %q", errBadRequest, sat)
	}
	return d, kind, nil
}

func checkLocation(p models.GeoPoint) error {
	if !(p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180) {
		return fmt.Errorf("%w: location out of range", errBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps typed failures onto HTTP statuses. NoData is transient and
// carries the per-provider failure list.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var noData *satellite.NoDataError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, phenology.ErrInvalidInput),
		errors.Is(err, boundary.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	case errors.As(err, &noData):
		w.Header().Set("Retry-After", "300")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Error: err.Error(), FailedProviders: noData.FailedProviders})
	case errors.Is(err, boundary.ErrNoBoundary):
		writeJSON(w, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResp{Error: "timeout"})
	default:
		a.logger.Error("request_failed", "path", r.URL.Path, "request_id", requestID(r.Context()), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}
