package models

import "math"

// EarthRadiusM is the mean Earth radius used for local metric conversions.
const EarthRadiusM = 6371008.8

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// BBox is an axis-aligned lon/lat rectangle.
type BBox struct {
	MinLon float64 `bson:"minLon" json:"minLon"`
	MinLat float64 `bson:"minLat" json:"minLat"`
	MaxLon float64 `bson:"maxLon" json:"maxLon"`
	MaxLat float64 `bson:"maxLat" json:"maxLat"`
}

// BBoxAround returns the box enclosing a circle of radiusM meters around center.
func BBoxAround(center GeoPoint, radiusM float64) BBox {
	dLat := radiusM / MetersPerDegreeLat()
	dLon := radiusM / MetersPerDegreeLon(center.Lat)
	return BBox{
		MinLon: center.Lon - dLon,
		MinLat: center.Lat - dLat,
		MaxLon: center.Lon + dLon,
		MaxLat: center.Lat + dLat,
	}
}

// BBoxOf returns the bounding box of pts expanded by padM meters on every side.
func BBoxOf(pts []GeoPoint, padM float64) BBox {
	if len(pts) == 0 {
		return BBox{}
	}
	b := BBox{MinLon: pts[0].Lon, MaxLon: pts[0].Lon, MinLat: pts[0].Lat, MaxLat: pts[0].Lat}
	for _, p := range pts[1:] {
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
	}
	midLat := (b.MinLat + b.MaxLat) / 2
	dLat := padM / MetersPerDegreeLat()
	dLon := padM / MetersPerDegreeLon(midLat)
	b.MinLon -= dLon
	b.MaxLon += dLon
	b.MinLat -= dLat
	b.MaxLat += dLat
	return b
}

// Center returns the midpoint of the box.
func (b BBox) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Contains reports whether p lies inside the box (inclusive).
func (b BBox) Contains(p GeoPoint) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// MetersPerDegreeLat is the length of one degree of latitude.
func MetersPerDegreeLat() float64 {
	return EarthRadiusM * math.Pi / 180
}

// MetersPerDegreeLon is the length of one degree of longitude at lat.
func MetersPerDegreeLon(lat float64) float64 {
	return EarthRadiusM * math.Pi / 180 * math.Cos(lat*math.Pi/180)
}
