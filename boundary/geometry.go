package boundary

import (
	"fmt"
	"math"
	"time"

	"cropwatch/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// frame is a local equirectangular projection in meters around an origin.
// It is only used for distances and simplification over field-sized areas.
type frame struct {
	origin models.GeoPoint
	kx, ky float64
}

func newFrame(origin models.GeoPoint) frame {
	return frame{origin: origin, kx: models.MetersPerDegreeLon(origin.Lat), ky: models.MetersPerDegreeLat()}
}

func (f frame) xy(p models.GeoPoint) orb.Point {
	return orb.Point{(p.Lon - f.origin.Lon) * f.kx, (p.Lat - f.origin.Lat) * f.ky}
}

func (f frame) ring(pts []models.GeoPoint) orb.Ring {
	r := make(orb.Ring, len(pts))
	for i, p := range pts {
		r[i] = f.xy(p)
	}
	return r
}

// openRing normalizes a polygon given open or closed: it drops the closing
// point and consecutive duplicates. Fewer than 3 distinct vertices is an
// error.
func openRing(pts []models.GeoPoint) ([]models.GeoPoint, error) {
	out := make([]models.GeoPoint, 0, len(pts))
	for _, p := range pts {
		if err := checkPoint(p); err != nil {
			return nil, err
		}
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}
	if len(out) < 3 {
		return nil, fmt.Errorf("%w: polygon needs at least 3 distinct vertices, got %d", ErrInvalidInput, len(out))
	}
	return out, nil
}

func closeRing(open []models.GeoPoint) []models.GeoPoint {
	out := make([]models.GeoPoint, 0, len(open)+1)
	out = append(out, open...)
	return append(out, open[0])
}

func geoRing(pts []models.GeoPoint) orb.Ring {
	r := make(orb.Ring, len(pts))
	for i, p := range pts {
		r[i] = orb.Point{p.Lon, p.Lat}
	}
	return r
}

// Simplify reduces a closed ring with Douglas-Peucker at toleranceM meters.
// When the result still has more than maxVertices distinct vertices the
// tolerance is raised until it fits. Output vertices are a subset of the
// input, so simplifying the output again at the same tolerance returns it
// unchanged.
func Simplify(closed []models.GeoPoint, toleranceM float64, maxVertices int) []models.GeoPoint {
	if len(closed) < 4 {
		return append([]models.GeoPoint(nil), closed...)
	}
	f := newFrame(closed[0])
	ls := orb.LineString(f.ring(closed))
	index := make(map[orb.Point]models.GeoPoint, len(closed))
	for i, p := range ls {
		index[p] = closed[i]
	}

	tol := toleranceM
	var kept orb.LineString
	for {
		kept = simplify.DouglasPeucker(tol).Simplify(ls.Clone()).(orb.LineString)
		if maxVertices <= 0 || len(kept)-1 <= maxVertices {
			break
		}
		tol *= 1.5
	}
	out := make([]models.GeoPoint, len(kept))
	for i, p := range kept {
		out[i] = index[p]
	}
	return out
}

// measures fills area, perimeter and centroid of a closed ring.
func measures(closed []models.GeoPoint) (areaHa, perimeterM float64, centroid models.GeoPoint) {
	r := geoRing(closed)
	areaHa = math.Abs(geo.Area(orb.Polygon{r})) / 10000
	perimeterM = geo.Length(orb.LineString(r))
	c, _ := planar.CentroidArea(orb.Polygon{r})
	return areaHa, perimeterM, models.GeoPoint{Lat: c.Lat(), Lon: c.Lon()}
}

// distanceToRing is the distance from p to the nearest edge of ring, both
// in the same planar frame.
func distanceToRing(p orb.Point, ring orb.Ring) float64 {
	best := math.Inf(1)
	for i := 0; i+1 < len(ring); i++ {
		best = math.Min(best, planar.DistanceFromSegment(ring[i], ring[i+1], p))
	}
	return best
}

// meanShift is the symmetric mean vertex-to-ring distance between two
// closed rings, in meters.
func meanShift(a, b []models.GeoPoint) float64 {
	f := newFrame(a[0])
	ra, rb := f.ring(a), f.ring(b)
	sum, n := 0.0, 0
	for _, p := range ra[:len(ra)-1] {
		sum += distanceToRing(p, rb)
		n++
	}
	for _, p := range rb[:len(rb)-1] {
		sum += distanceToRing(p, ra)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// movedVertices returns the vertices of cur that lie further than
// thresholdM from the ring prev.
func movedVertices(prev, cur []models.GeoPoint, thresholdM float64) []models.GeoPoint {
	f := newFrame(prev[0])
	rp := f.ring(prev)
	out := []models.GeoPoint{}
	for _, p := range cur[:len(cur)-1] {
		if distanceToRing(f.xy(p), rp) > thresholdM {
			out = append(out, p)
		}
	}
	return out
}

// ToFeatureCollection renders boundaries as GeoJSON polygons.
func ToFeatureCollection(boundaries []models.FieldBoundary) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, b := range boundaries {
		feat := geojson.NewFeature(orb.Polygon{geoRing(b.Coordinates)})
		feat.ID = i + 1
		feat.Properties["areaHa"] = b.AreaHa
		feat.Properties["perimeterM"] = b.PerimeterM
		feat.Properties["centroid"] = []float64{b.Centroid.Lon, b.Centroid.Lat}
		feat.Properties["confidence"] = b.Confidence
		feat.Properties["qualityScore"] = b.QualityScore
		feat.Properties["detectedAt"] = b.DetectedAt.UTC().Format(time.RFC3339)
		if b.Provider != "" {
			feat.Properties["provider"] = b.Provider
		}
		fc.Append(feat)
	}
	return fc
}

// PolygonFromGeoJSON reads the outer ring of a GeoJSON Polygon geometry,
// Feature or single-feature FeatureCollection.
func PolygonFromGeoJSON(data []byte) ([]models.GeoPoint, error) {
	var g orb.Geometry
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		g = fc.Features[0].Geometry
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		g = f.Geometry
	} else if gm, err := geojson.UnmarshalGeometry(data); err == nil {
		g = gm.Geometry()
	}
	poly, ok := g.(orb.Polygon)
	if !ok || len(poly) == 0 {
		return nil, fmt.Errorf("%w: expected a GeoJSON polygon", ErrInvalidInput)
	}
	out := make([]models.GeoPoint, len(poly[0]))
	for i, p := range poly[0] {
		out[i] = models.GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
	}
	return out, nil
}
