package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cropwatch/models"
	"cropwatch/satellite"
)

// maxSceneWindow bounds the from/to span of a scene search.
const maxSceneWindow = 366 * 24 * time.Hour

func (a *App) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersResp{Providers: a.sat.ProviderNames()})
}

// handleSearchScenes lists acquisitions over a point.
// Query: lat, lon, from, to, maxCloud, satellite (empty means any). The
// window is at most maxSceneWindow.
func (a *App) handleSearchScenes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := queryPoint(q.Get("lat"), q.Get("lon"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	from := to.AddDate(0, 0, -30)
	if s := q.Get("from"); s != "" {
		if from, err = parseDate(s); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	if from.After(to) {
		a.writeError(w, r, fmt.Errorf("%w: from is after to", errBadRequest))
		return
	}
	if to.Sub(from) > maxSceneWindow {
		a.writeError(w, r, fmt.Errorf("%w: search window exceeds %d days", errBadRequest, int(maxSceneWindow.Hours()/24)))
		return
	}
	maxCloud, err := queryFloat(q.Get("maxCloud"), 0)
	if err != nil || maxCloud < 0 || maxCloud > 100 {
		a.writeError(w, r, fmt.Errorf("%w: maxCloud must be within [0,100]", errBadRequest))
		return
	}
	var kind models.SatelliteKind
	if s := q.Get("satellite"); s != "" {
		var ok bool
		if kind, ok = models.ParseSatelliteKind(s); !ok {
			a.writeError(w, r, fmt.Errorf("%w: unknown satellite %q", errBadRequest, s))
			return
		}
	}

	out, err := a.sat.SearchScenes(r.Context(), satellite.SceneQuery{
		Location:      loc,
		From:          from,
		To:            to.AddDate(0, 0, 1).Add(-1),
		MaxCloudCover: maxCloud,
		Satellite:     kind,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetIndices returns the six vegetation indices at a point.
// Query: lat, lon, date, satellite.
func (a *App) handleGetIndices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := queryPoint(q.Get("lat"), q.Get("lon"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	date, kind, err := parseDateKind(q.Get("date"), q.Get("satellite"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.sat.GetIndices(r.Context(), loc, date, kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetRaster returns an NDVI grid. Query: bbox=minLon,minLat,maxLon,maxLat,
// date, satellite.
func (a *App) handleGetRaster(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bbox, err := queryBBox(q.Get("bbox"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	date, kind, err := parseDateKind(q.Get("date"), q.Get("satellite"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.sat.GetIndexRaster(r.Context(), bbox, date, kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func queryFloat(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func queryPoint(lat, lon string) (models.GeoPoint, error) {
	if lat == "" || lon == "" {
		return models.GeoPoint{}, fmt.Errorf("%w: lat and lon are required", errBadRequest)
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lon, 64)
	if err1 != nil || err2 != nil {
		return models.GeoPoint{}, fmt.Errorf("%w: lat and lon must be numbers", errBadRequest)
	}
	p := models.GeoPoint{Lat: la, Lon: lo}
	return p, checkLocation(p)
}

func queryBBox(s string) (models.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.BBox{}, fmt.Errorf("%w: bbox must be minLon,minLat,maxLon,maxLat", errBadRequest)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.BBox{}, fmt.Errorf("%w: bbox value %q", errBadRequest, p)
		}
		v[i] = f
	}
	b := models.BBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat || checkLocation(models.GeoPoint{Lat: b.MinLat, Lon: b.MinLon}) != nil ||
		checkLocation(models.GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}) != nil {
		return models.BBox{}, fmt.Errorf("%w: bbox is empty or out of range", errBadRequest)
	}
	return b, nil
}
