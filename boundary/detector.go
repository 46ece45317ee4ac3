package boundary

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"cropwatch/models"
	"cropwatch/satellite"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// RasterSource supplies index rasters. *satellite.Service implements it.
type RasterSource interface {
	GetIndexRaster(ctx context.Context, bbox models.BBox, date time.Time, kind models.SatelliteKind) (*satellite.RasterResult, error)
}

// Detector runs boundary extraction over rasters from a RasterSource. It
// holds no per-call state.
type Detector struct {
	src    RasterSource
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewDetector(src RasterSource, cfg Config, logger *slog.Logger) (*Detector, error) {
	if src == nil {
		return nil, errors.New("boundary: raster source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{src: src, cfg: cfg, logger: logger, now: time.Now}, nil
}

// Config returns the tunables in use.
func (d *Detector) Config() Config { return d.cfg }

// scan is one fetched raster with its derived layers.
type scan struct {
	g        *grid
	provider string
}

func (d *Detector) fetch(ctx context.Context, bbox models.BBox, date time.Time, kind models.SatelliteKind) (*scan, error) {
	res, err := d.src.GetIndexRaster(ctx, bbox, date, kind)
	if err != nil {
		return nil, err
	}
	r := res.Raster
	if r == nil || r.Width < 3 || r.Height < 3 || len(r.Values) != r.Width*r.Height {
		return nil, fmt.Errorf("%w: unusable raster from %s", ErrNoBoundary, res.Provider)
	}
	return &scan{g: newGrid(r, d.cfg.CultivatedThreshold), provider: res.Provider}, nil
}

// DetectBoundary finds every field within radiusM of center. An empty
// result is not an error.
func (d *Detector) DetectBoundary(ctx context.Context, center models.GeoPoint, radiusM float64, date time.Time, kind models.SatelliteKind) ([]models.FieldBoundary, error) {
	if err := checkPoint(center); err != nil {
		return nil, err
	}
	if radiusM <= 0 || radiusM > d.cfg.MaxRadiusM || math.IsNaN(radiusM) {
		return nil, fmt.Errorf("%w: radius %.1f m outside (0, %.0f]", ErrInvalidInput, radiusM, d.cfg.MaxRadiusM)
	}
	sc, err := d.fetch(ctx, models.BBoxAround(center, radiusM), date, kind)
	if err != nil {
		return nil, err
	}
	out := d.extract(sc)
	d.logger.Debug("boundary_detected", "lat", center.Lat, "lon", center.Lon, "radius_m", radiusM, "fields", len(out), "provider", sc.provider)
	return out, nil
}

func (d *Detector) extract(sc *scan) []models.FieldBoundary {
	r := sc.g.r
	out := []models.FieldBoundary{}
	for _, contour := range sc.g.contours(4) {
		ring := make([]models.GeoPoint, len(contour))
		for i, p := range contour {
			ring[i] = r.PixelToGeo(float64(p.X), float64(p.Y))
		}
		ring = Simplify(ring, d.cfg.SimplifyToleranceM, d.cfg.MaxVertices)
		if distinct(ring) < 3 {
			continue
		}
		area, perimeter, centroid := measures(ring)
		if area < d.cfg.MinAreaHa {
			continue
		}
		quality := sc.g.edgeQuality(ring, d.cfg.EdgeThreshold)
		if quality < d.cfg.MinQuality {
			continue
		}
		out = append(out, models.FieldBoundary{
			Coordinates:  ring,
			AreaHa:       round(area, 4),
			PerimeterM:   round(perimeter, 2),
			Centroid:     centroid,
			Confidence:   round(0.7*quality+0.3*sc.g.fillRatio(ring), 3),
			QualityScore: round(quality, 3),
			DetectedAt:   d.now().UTC(),
			Provider:     sc.provider,
		})
	}
	return out
}

// RefineBoundary snaps every vertex of rough to the nearest edge ridge
// within bufferM. The search disc around a vertex lies inside the polygon's
// buffer band. Vertex order and closure are kept; vertices with no edge in
// reach stay where they are.
func (d *Detector) RefineBoundary(ctx context.Context, rough []models.GeoPoint, bufferM float64, date time.Time, kind models.SatelliteKind) (*models.FieldBoundary, error) {
	open, err := openRing(rough)
	if err != nil {
		return nil, err
	}
	if bufferM <= 0 || math.IsNaN(bufferM) {
		bufferM = d.cfg.DefaultBufferM
	}
	if bufferM > d.cfg.MaxRadiusM {
		return nil, fmt.Errorf("%w: buffer %.1f m exceeds %.0f m", ErrInvalidInput, bufferM, d.cfg.MaxRadiusM)
	}
	sc, err := d.fetch(ctx, models.BBoxOf(open, 2*bufferM), date, kind)
	if err != nil {
		return nil, err
	}

	snapped := make([]models.GeoPoint, len(open))
	moved := 0
	for i, v := range open {
		p, ok := sc.g.snap(v, bufferM, d.cfg.EdgeThreshold)
		if ok && (i == 0 || p != snapped[i-1]) {
			snapped[i] = p
			moved++
			continue
		}
		snapped[i] = v
	}
	if _, err := openRing(snapped); err != nil {
		copy(snapped, open)
		moved = 0
	}

	ring := closeRing(snapped)
	area, perimeter, centroid := measures(ring)
	quality := sc.g.edgeQuality(ring, d.cfg.EdgeThreshold)
	frac := float64(moved) / float64(len(open))
	d.logger.Debug("boundary_refined", "vertices", len(open), "snapped", moved, "buffer_m", bufferM, "provider", sc.provider)
	return &models.FieldBoundary{
		Coordinates:  ring,
		AreaHa:       round(area, 4),
		PerimeterM:   round(perimeter, 2),
		Centroid:     centroid,
		Confidence:   round(0.7*quality+0.3*frac, 3),
		QualityScore: round(quality, 3),
		DetectedAt:   d.now().UTC(),
		Provider:     sc.provider,
	}, nil
}

// DetectBoundaryChange re-detects the field around previous at date and
// compares the two polygons.
func (d *Detector) DetectBoundaryChange(ctx context.Context, fieldID string, previous []models.GeoPoint, date time.Time, kind models.SatelliteKind) (*models.BoundaryChange, error) {
	open, err := openRing(previous)
	if err != nil {
		return nil, err
	}
	prev := closeRing(open)
	prevArea, _, centroid := measures(prev)
	if prevArea < 1e-4 {
		return nil, fmt.Errorf("%w: previous polygon has no area", ErrInvalidInput)
	}

	f := newFrame(centroid)
	reach := 0.0
	for _, p := range open {
		reach = math.Max(reach, planar.Distance(orb.Point{}, f.xy(p)))
	}
	radius := math.Min(math.Max(1.5*reach, 50), d.cfg.MaxRadiusM)

	sc, err := d.fetch(ctx, models.BBoxAround(centroid, radius), date, kind)
	if err != nil {
		return nil, err
	}
	found := d.extract(sc)
	if len(found) == 0 {
		return nil, fmt.Errorf("field %q: %w", fieldID, ErrNoBoundary)
	}
	cur := found[0]
	best := planar.Distance(orb.Point{}, f.xy(cur.Centroid))
	for _, b := range found[1:] {
		if dist := planar.Distance(orb.Point{}, f.xy(b.Centroid)); dist < best {
			cur, best = b, dist
		}
	}

	curArea, _, _ := measures(cur.Coordinates)
	pct := (curArea - prevArea) / prevArea * 100
	change := models.ChangeStable
	switch {
	case math.Abs(pct) <= d.cfg.StableBandPct:
	case pct > 0:
		change = models.ChangeExpansion
	default:
		change = models.ChangeContraction
	}
	prevQuality := sc.g.edgeQuality(prev, d.cfg.EdgeThreshold)

	d.logger.Debug("boundary_change", "field_id", fieldID, "change", change, "percent", pct)
	return &models.BoundaryChange{
		FieldID:             fieldID,
		ChangeType:          change,
		ChangePercent:       round(pct, 2),
		PreviousAreaHa:      round(prevArea, 4),
		CurrentAreaHa:       round(curArea, 4),
		AreaDeltaHa:         round(curArea-prevArea, 4),
		MeanShiftM:          round(meanShift(prev, cur.Coordinates), 2),
		Confidence:          round((prevQuality+cur.QualityScore)/2, 3),
		AffectedCoordinates: movedVertices(prev, cur.Coordinates, d.cfg.ShiftThresholdM),
		DetectedAt:          d.now().UTC(),
		Current:             &cur,
	}, nil
}

// edgeQuality is the share of samples taken every half pixel along the
// closed ring that sit on a gradient of at least threshold.
func (g *grid) edgeQuality(ring []models.GeoPoint, threshold float64) float64 {
	strong, total := 0, 0
	for i := 0; i+1 < len(ring); i++ {
		ax, ay := g.r.GeoToPixel(ring[i])
		bx, by := g.r.GeoToPixel(ring[i+1])
		n := int(math.Ceil(math.Hypot(bx-ax, by-ay) / 0.5))
		if n < 1 {
			n = 1
		}
		for k := 0; k < n; k++ {
			t := float64(k) / float64(n)
			x := int(math.Round(ax + (bx-ax)*t))
			y := int(math.Round(ay + (by-ay)*t))
			total++
			if g.r.InBounds(x, y) && g.gradAround(x, y) >= threshold {
				strong++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(strong) / float64(total)
}

// fillRatio is the share of pixels inside ring that are cultivated.
func (g *grid) fillRatio(ring []models.GeoPoint) float64 {
	px := make(orb.Ring, len(ring))
	for i, p := range ring {
		x, y := g.r.GeoToPixel(p)
		px[i] = orb.Point{x, y}
	}
	b := px.Bound()
	inside, cultivated := 0, 0
	for y := max(int(math.Floor(b.Min.Y())), 0); y <= min(int(math.Ceil(b.Max.Y())), g.r.Height-1); y++ {
		for x := max(int(math.Floor(b.Min.X())), 0); x <= min(int(math.Ceil(b.Max.X())), g.r.Width-1); x++ {
			if !planar.RingContains(px, orb.Point{float64(x), float64(y)}) {
				continue
			}
			inside++
			if g.mask[y*g.r.Width+x] {
				cultivated++
			}
		}
	}
	if inside == 0 {
		return 0
	}
	return float64(cultivated) / float64(inside)
}

// snap returns the center of the nearest edge ridge pixel within radiusM of
// v. A ridge pixel has a gradient of at least threshold and no weaker than
// any of its neighbours.
func (g *grid) snap(v models.GeoPoint, radiusM, threshold float64) (models.GeoPoint, bool) {
	f := newFrame(v)
	pw, ph := g.r.PixelSizeM()
	vx, vy := g.r.GeoToPixel(v)
	rx, ry := int(math.Ceil(radiusM/pw)), int(math.Ceil(radiusM/ph))
	cx, cy := int(math.Round(vx)), int(math.Round(vy))

	best, bestDist, found := models.GeoPoint{}, math.Inf(1), false
	for y := cy - ry; y <= cy+ry; y++ {
		for x := cx - rx; x <= cx+rx; x++ {
			if !g.r.InBounds(x, y) || !g.ridge(image.Point{X: x, Y: y}, threshold) {
				continue
			}
			c := g.r.PixelToGeo(float64(x), float64(y))
			dist := planar.Distance(orb.Point{}, f.xy(c))
			if dist <= radiusM && dist < bestDist {
				best, bestDist, found = c, dist, true
			}
		}
	}
	return best, found
}

func (g *grid) ridge(p image.Point, threshold float64) bool {
	w := g.r.Width
	v := g.grad[p.Y*w+p.X]
	if v < threshold {
		return false
	}
	for _, d := range moore {
		n := p.Add(d)
		if g.r.InBounds(n.X, n.Y) && g.grad[n.Y*w+n.X] > v {
			return false
		}
	}
	return true
}

func checkPoint(p models.GeoPoint) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.Abs(p.Lat) > 90 || math.Abs(p.Lon) > 180 {
		return fmt.Errorf("%w: coordinate out of range (%v, %v)", ErrInvalidInput, p.Lat, p.Lon)
	}
	return nil
}

// distinct counts the distinct vertices of a closed ring.
func distinct(closed []models.GeoPoint) int {
	if len(closed) < 2 {
		return len(closed)
	}
	seen := make(map[models.GeoPoint]struct{}, len(closed))
	for _, p := range closed[:len(closed)-1] {
		seen[p] = struct{}{}
	}
	return len(seen)
}

func round(x float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(x*p) / p
}
