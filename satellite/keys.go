package satellite

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"cropwatch/models"
)

// Call kinds are part of every cache key.
const (
	callScenes  = "scenes"
	callIndices = "indices"
	callRaster  = "raster"
)

// quantum is the location grid used for cache keys (~110 m).
const quantum = 1e-3

// ScenesKey builds the cache key of a scene search.
func ScenesKey(q SceneQuery) string {
	return makeKey(
		callScenes,
		canonicalPoint(q.Location),
		canonicalDate(q.From),
		canonicalDate(q.To),
		fmt.Sprintf("%g", q.MaxCloudCover),
		string(q.Satellite),
	)
}

// IndicesKey builds the cache key of an index lookup.
func IndicesKey(loc models.GeoPoint, date time.Time, kind models.SatelliteKind) string {
	return makeKey(callIndices, canonicalPoint(loc), canonicalDate(date), string(kind))
}

// RasterKey builds the cache key of an index raster.
func RasterKey(b models.BBox, date time.Time, kind models.SatelliteKind) string {
	return makeKey(
		callRaster,
		canonicalPoint(models.GeoPoint{Lat: b.MinLat, Lon: b.MinLon}),
		canonicalPoint(models.GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}),
		canonicalDate(date),
		string(kind),
	)
}

func canonicalPoint(p models.GeoPoint) string {
	return fmt.Sprintf("%.3f,%.3f", quantize(p.Lat), quantize(p.Lon))
}

func quantize(v float64) float64 {
	q := math.Round(v/quantum) * quantum
	if q == 0 {
		return 0 // drop negative zero
	}
	return q
}

func canonicalDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func makeKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	h := sha1.Sum([]byte(joined))
	return hex.EncodeToString(h[:])
}
