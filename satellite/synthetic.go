package satellite

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"cropwatch/models"

	"github.com/google/uuid"
)

// sceneNamespace scopes the deterministic UUIDs of synthetic scenes.
var sceneNamespace = uuid.MustParse("6f1c2a4e-3b7d-4c55-9a0e-5d2f8b9c1e07")

// Synthetic produces seasonally plausible pseudo-random data so the system
// degrades rather than fails when every real backend is unreachable.
// Output is deterministic for a given location, date and satellite kind.
type Synthetic struct {
	revisit  time.Duration
	plotDeg  float64
	rasterPx int
}

func NewSynthetic() *Synthetic {
	return &Synthetic{revisit: 5 * 24 * time.Hour, plotDeg: 0.003, rasterPx: 256}
}

func (s *Synthetic) Name() string                       { return "synthetic" }
func (s *Synthetic) Kind() ProviderKind                 { return KindSynthetic }
func (s *Synthetic) Supports(models.SatelliteKind) bool { return true }
func (s *Synthetic) Close() error                       { return nil }

func seededRand(parts ...any) *rand.Rand {
	h := fnv.New64a()
	_, _ = fmt.Fprint(h, parts...)
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// seasonFactor is 0 in the dormant season and 1 at peak vigor.
func seasonFactor(lat float64, date time.Time) float64 {
	doy := float64(date.YearDay())
	if lat < 0 {
		doy += 182
	}
	return math.Max(0, math.Sin(2*math.Pi*(doy-60)/365))
}

func (s *Synthetic) SearchScenes(_ context.Context, q SceneQuery) ([]models.Scene, error) {
	kind := q.Satellite
	if kind == "" {
		kind = models.SatelliteSentinel2
	}
	from := q.From.UTC().Truncate(24 * time.Hour)
	var out []models.Scene
	for d := from; !d.After(q.To); d = d.Add(s.revisit) {
		key := fmt.Sprintf("%.3f,%.3f,%s,%s", q.Location.Lat, q.Location.Lon, d.Format("2006-01-02"), kind)
		r := seededRand(key)
		cloud := math.Round(r.Float64()*1000) / 10
		if q.MaxCloudCover > 0 && cloud > q.MaxCloudCover {
			continue
		}
		acquired := d.Add(10*time.Hour + time.Duration(r.IntN(3600))*time.Second)
		out = append(out, models.Scene{
			ID:           uuid.NewSHA1(sceneNamespace, []byte(key)).String(),
			Satellite:    kind,
			AcquiredAt:   acquired,
			CloudCover:   cloud,
			SunElevation: sunElevation(q.Location.Lat, acquired),
			BBox:         models.BBoxAround(q.Location, 5000),
			Provider:     s.Name(),
		})
	}
	return out, nil
}

// sunElevation approximates solar noon elevation from latitude and date.
func sunElevation(lat float64, date time.Time) float64 {
	decl := 23.44 * math.Sin(2*math.Pi*float64(284+date.YearDay())/365)
	return math.Round((90-math.Abs(lat-decl))*10) / 10
}

func (s *Synthetic) GetIndices(_ context.Context, loc models.GeoPoint, date time.Time, kind models.SatelliteKind) (*models.VegetationIndices, error) {
	r := seededRand(fmt.Sprintf("%.3f,%.3f", loc.Lat, loc.Lon), date.UTC().Format("2006-01-02"), string(kind))
	noise := func(a float64) float64 { return (r.Float64()*2 - 1) * a }

	ndvi := 0.15 + 0.6*seasonFactor(loc.Lat, date) + noise(0.05)
	evi := ndvi*0.75 + noise(0.03)
	v := models.VegetationIndices{
		NDVI:     ndvi,
		NDWI:     ndvi*0.4 - 0.1 + noise(0.05),
		EVI:      evi,
		SAVI:     ndvi*0.85 + noise(0.02),
		LAI:      laiFromEVI(evi),
		NDMI:     ndvi*0.5 - 0.1 + noise(0.05),
		Provider: s.Name(),
	}.Clamp()
	return &v, nil
}

// GetIndexRaster paints plots on a fixed geographic grid, so overlapping
// requests see the same fields wherever their boxes fall.
func (s *Synthetic) GetIndexRaster(_ context.Context, bbox models.BBox, date time.Time, kind models.SatelliteKind) (*models.IndexRaster, error) {
	w, h := rasterSize(bbox, 10, s.rasterPx)
	r := &models.IndexRaster{
		BBox:       bbox,
		Width:      w,
		Height:     h,
		Values:     make([]float64, w*h),
		Satellite:  kind,
		AcquiredAt: date.UTC(),
		Provider:   s.Name(),
	}
	season := seasonFactor(bbox.Center().Lat, date)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := r.PixelToGeo(float64(x), float64(y))
			r.Values[y*w+x] = s.plotValue(p, season)
		}
	}
	return r, nil
}

// plotValue returns the NDVI at p: a cultivated plot occupying the inner
// part of its grid cell, or bare soil.
func (s *Synthetic) plotValue(p models.GeoPoint, season float64) float64 {
	cx := math.Floor(p.Lon / s.plotDeg)
	cy := math.Floor(p.Lat / s.plotDeg)
	cell := seededRand(cx, ",", cy)
	cultivated := cell.Float64() < 0.7
	margin := 0.12 + cell.Float64()*0.12
	vigor := 0.5 + 0.3*season + cell.Float64()*0.1

	fx := p.Lon/s.plotDeg - cx
	fy := p.Lat/s.plotDeg - cy
	inside := fx > margin && fx < 1-margin && fy > margin && fy < 1-margin

	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], math.Float64bits(p.Lon))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(p.Lat))
	h := fnv.New32a()
	_, _ = h.Write(b[:])
	jitter := (float64(h.Sum32()%1000)/1000 - 0.5) * 0.02

	if cultivated && inside {
		return vigor + jitter
	}
	return 0.12 + jitter
}
