package satellite

import (
	"testing"
	"time"

	"cropwatch/models"

	"github.com/stretchr/testify/assert"
)

func TestIndicesKey(t *testing.T) {
	date := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	base := IndicesKey(models.GeoPoint{Lat: 30.0441, Lon: 31.2358}, date, models.SatelliteSentinel2)

	assert.Len(t, base, 40)
	assert.Equal(t, base,
		IndicesKey(models.GeoPoint{Lat: 30.0444, Lon: 31.2362}, date.Add(10*time.Hour), models.SatelliteSentinel2),
		"same quantum cell and UTC day share a key")
	assert.NotEqual(t, base,
		IndicesKey(models.GeoPoint{Lat: 30.0461, Lon: 31.2358}, date, models.SatelliteSentinel2))
	assert.NotEqual(t, base,
		IndicesKey(models.GeoPoint{Lat: 30.0441, Lon: 31.2358}, date.AddDate(0, 0, 1), models.SatelliteSentinel2))
	assert.NotEqual(t, base,
		IndicesKey(models.GeoPoint{Lat: 30.0441, Lon: 31.2358}, date, models.SatelliteLandsat9))
}

func TestKeys_CallKindIsPartOfKey(t *testing.T) {
	loc := models.GeoPoint{Lat: 1, Lon: 2}
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := SceneQuery{Location: loc, From: date, To: date, Satellite: models.SatelliteSentinel2}

	assert.NotEqual(t, ScenesKey(q), IndicesKey(loc, date, models.SatelliteSentinel2))
	assert.NotEqual(t,
		RasterKey(models.BBox{MinLon: 2, MinLat: 1, MaxLon: 2, MaxLat: 1}, date, models.SatelliteSentinel2),
		IndicesKey(loc, date, models.SatelliteSentinel2))
}

func TestScenesKey_CloudFilter(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := SceneQuery{Location: models.GeoPoint{Lat: 1, Lon: 2}, From: date, To: date.AddDate(0, 1, 0)}
	other := q
	other.MaxCloudCover = 20
	assert.NotEqual(t, ScenesKey(q), ScenesKey(other))
}

func TestQuantize_NoNegativeZero(t *testing.T) {
	assert.Equal(t, canonicalPoint(models.GeoPoint{Lat: -0.0001, Lon: 0.0001}), canonicalPoint(models.GeoPoint{}))
}
