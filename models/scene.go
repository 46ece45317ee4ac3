package models

import (
	"strings"
	"time"
)

// SatelliteKind identifies the sensor platform a scene or index comes from.
type SatelliteKind string

const (
	SatelliteSentinel2 SatelliteKind = "sentinel-2"
	SatelliteLandsat8  SatelliteKind = "landsat-8"
	SatelliteLandsat9  SatelliteKind = "landsat-9"
	SatelliteModis     SatelliteKind = "modis"
)

// ParseSatelliteKind normalizes user input; empty maps to Sentinel-2.
func ParseSatelliteKind(s string) (SatelliteKind, bool) {
	switch k := SatelliteKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SatelliteSentinel2, true
	case SatelliteSentinel2, SatelliteLandsat8, SatelliteLandsat9, SatelliteModis:
		return k, true
	default:
		return "", false
	}
}

// Scene: point-in-time acquisition metadata.
type Scene struct {
	ID           string        `bson:"id"                     json:"id"`
	Satellite    SatelliteKind `bson:"satellite"              json:"satellite"`
	AcquiredAt   time.Time     `bson:"acquiredAt"             json:"acquiredAt"`
	CloudCover   float64       `bson:"cloudCover"             json:"cloudCover"` // 0..100
	SunElevation float64       `bson:"sunElevation"           json:"sunElevation"`
	BBox         BBox          `bson:"bbox"                   json:"bbox"`
	ThumbnailURL string        `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	DownloadURL  string        `bson:"downloadUrl,omitempty"  json:"downloadUrl,omitempty"`
	Provider     string        `bson:"provider"               json:"provider"`
}

// IndexRaster is a single-band vegetation index grid over BBox.
// Values are row-major with row 0 at MaxLat (north) and column 0 at MinLon.
type IndexRaster struct {
	BBox       BBox          `json:"bbox"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Values     []float64     `json:"values"`
	Satellite  SatelliteKind `json:"satellite"`
	AcquiredAt time.Time     `json:"acquiredAt"`
	Provider   string        `json:"provider"`
}

// At returns the value at column x, row y.
func (r *IndexRaster) At(x, y int) float64 {
	return r.Values[y*r.Width+x]
}

// InBounds reports whether (x, y) addresses a pixel.
func (r *IndexRaster) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.Width && y < r.Height
}

// PixelToGeo returns the coordinate of the center of pixel (x, y) in
// fractional pixel units.
func (r *IndexRaster) PixelToGeo(x, y float64) GeoPoint {
	dx := (r.BBox.MaxLon - r.BBox.MinLon) / float64(r.Width)
	dy := (r.BBox.MaxLat - r.BBox.MinLat) / float64(r.Height)
	return GeoPoint{
		Lon: r.BBox.MinLon + (x+0.5)*dx,
		Lat: r.BBox.MaxLat - (y+0.5)*dy,
	}
}

// GeoToPixel is the inverse of PixelToGeo.
func (r *IndexRaster) GeoToPixel(p GeoPoint) (x, y float64) {
	dx := (r.BBox.MaxLon - r.BBox.MinLon) / float64(r.Width)
	dy := (r.BBox.MaxLat - r.BBox.MinLat) / float64(r.Height)
	return (p.Lon-r.BBox.MinLon)/dx - 0.5, (r.BBox.MaxLat-p.Lat)/dy - 0.5
}

// PixelSizeM returns the approximate pixel edge lengths in meters.
func (r *IndexRaster) PixelSizeM() (w, h float64) {
	lat := (r.BBox.MinLat + r.BBox.MaxLat) / 2
	w = (r.BBox.MaxLon - r.BBox.MinLon) / float64(r.Width) * MetersPerDegreeLon(lat)
	h = (r.BBox.MaxLat - r.BBox.MinLat) / float64(r.Height) * MetersPerDegreeLat()
	return w, h
}
