package boundary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"cropwatch/models"
	"cropwatch/satellite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	soil = 0.15
	crop = 0.7
)

var (
	testCenter = models.GeoPoint{Lat: 30.05, Lon: 31.2}
	testDate   = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	testNow    = time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
)

// fakeSource serves the same raster for any request.
type fakeSource struct {
	raster *models.IndexRaster
	err    error
	calls  int
}

func (f *fakeSource) GetIndexRaster(_ context.Context, _ models.BBox, _ time.Time, kind models.SatelliteKind) (*satellite.RasterResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.raster
	r.Satellite = kind
	return &satellite.RasterResult{Raster: &r, Provenance: models.Provenance{Provider: "fake"}}, nil
}

// plot is an inclusive pixel rectangle.
type plot struct{ x0, y0, x1, y1 int }

// fieldRaster is a 60x60 soil raster with 10 m pixels around testCenter and
// the given plots set to crop.
func fieldRaster(plots ...plot) *models.IndexRaster {
	const size = 60
	r := &models.IndexRaster{
		BBox:   models.BBoxAround(testCenter, size*10/2),
		Width:  size,
		Height: size,
		Values: make([]float64, size*size),
	}
	for i := range r.Values {
		r.Values[i] = soil
	}
	for _, p := range plots {
		for y := p.y0; y <= p.y1; y++ {
			for x := p.x0; x <= p.x1; x++ {
				r.Values[y*size+x] = crop
			}
		}
	}
	return r
}

func rect(r *models.IndexRaster, x0, y0, x1, y1 float64) []models.GeoPoint {
	return []models.GeoPoint{
		r.PixelToGeo(x0, y0), r.PixelToGeo(x1, y0), r.PixelToGeo(x1, y1), r.PixelToGeo(x0, y1), r.PixelToGeo(x0, y0),
	}
}

func newTestDetector(t *testing.T, src RasterSource) *Detector {
	t.Helper()
	d, err := NewDetector(src, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	d.now = func() time.Time { return testNow }
	return d
}

func TestNewDetector_Validates(t *testing.T) {
	_, err := NewDetector(nil, DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxVertices = 2
	_, err = NewDetector(&fakeSource{}, cfg, nil)
	assert.Error(t, err)
}

func TestDetectBoundary_Rectangle(t *testing.T) {
	r := fieldRaster(plot{20, 20, 39, 39}, plot{5, 5, 6, 6})
	src := &fakeSource{raster: r}
	d := newTestDetector(t, src)

	got, err := d.DetectBoundary(context.Background(), testCenter, 300, testDate, models.SatelliteSentinel2)
	require.NoError(t, err)
	require.Len(t, got, 1, "the 2x2 speck is filtered out")

	b := got[0]
	assert.Equal(t, rect(r, 20, 20, 39, 39), b.Coordinates)
	assert.Equal(t, b.Coordinates[0], b.Coordinates[len(b.Coordinates)-1])

	pw, ph := r.PixelSizeM()
	assert.InEpsilon(t, 19*pw*19*ph/10000, b.AreaHa, 0.01)
	assert.InEpsilon(t, 2*19*pw+2*19*ph, b.PerimeterM, 0.01)
	mid := r.PixelToGeo(29.5, 29.5)
	assert.InDelta(t, mid.Lat, b.Centroid.Lat, 1e-6)
	assert.InDelta(t, mid.Lon, b.Centroid.Lon, 1e-6)
	assert.Equal(t, 1.0, b.QualityScore)
	assert.Equal(t, 1.0, b.Confidence)
	assert.Equal(t, "fake", b.Provider)
	assert.Equal(t, testNow, b.DetectedAt)
}

func TestDetectBoundary_TwoFields(t *testing.T) {
	d := newTestDetector(t, &fakeSource{raster: fieldRaster(plot{2, 2, 20, 20}, plot{30, 35, 55, 55})})
	got, err := d.DetectBoundary(context.Background(), testCenter, 300, testDate, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Greater(t, got[1].AreaHa, got[0].AreaHa)
	for _, b := range got {
		assert.Len(t, b.Coordinates, 5)
		assert.GreaterOrEqual(t, b.Confidence, 0.0)
		assert.LessOrEqual(t, b.Confidence, 1.0)
	}
}

func TestDetectBoundary_Empty(t *testing.T) {
	d := newTestDetector(t, &fakeSource{raster: fieldRaster()})
	got, err := d.DetectBoundary(context.Background(), testCenter, 300, testDate, "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDetectBoundary_MinAreaFilter(t *testing.T) {
	d := newTestDetector(t, &fakeSource{raster: fieldRaster(plot{20, 20, 39, 39})})
	d.cfg.MinAreaHa = 10
	got, err := d.DetectBoundary(context.Background(), testCenter, 300, testDate, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectBoundary_InvalidInput(t *testing.T) {
	src := &fakeSource{raster: fieldRaster()}
	d := newTestDetector(t, src)
	ctx := context.Background()

	for _, radius := range []float64{0, -5, 6000, math.NaN()} {
		_, err := d.DetectBoundary(ctx, testCenter, radius, testDate, "")
		assert.ErrorIs(t, err, ErrInvalidInput, "radius %v", radius)
	}
	_, err := d.DetectBoundary(ctx, models.GeoPoint{Lat: 95, Lon: 0}, 100, testDate, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, src.calls, "rejected before any raster is fetched")
}

func TestDetectBoundary_SourceErrors(t *testing.T) {
	noData := &satellite.NoDataError{Operation: "raster"}
	d := newTestDetector(t, &fakeSource{err: noData})
	_, err := d.DetectBoundary(context.Background(), testCenter, 300, testDate, "")
	var nd *satellite.NoDataError
	assert.True(t, errors.As(err, &nd))

	d = newTestDetector(t, &fakeSource{raster: &models.IndexRaster{Width: 2, Height: 2, Values: make([]float64, 4)}})
	_, err = d.DetectBoundary(context.Background(), testCenter, 300, testDate, "")
	assert.ErrorIs(t, err, ErrNoBoundary)
}

func TestRefineBoundary_SnapsToEdges(t *testing.T) {
	r := fieldRaster(plot{20, 20, 39, 39})
	d := newTestDetector(t, &fakeSource{raster: r})

	rough := rect(r, 18.5, 18.5, 40.5, 40.5)
	got, err := d.RefineBoundary(context.Background(), rough, 30, testDate, "")
	require.NoError(t, err)

	assert.Equal(t, rect(r, 20, 20, 39, 39), got.Coordinates)
	assert.Equal(t, 1.0, got.QualityScore)
	assert.Equal(t, 1.0, got.Confidence)
	pw, ph := r.PixelSizeM()
	assert.InEpsilon(t, 19*pw*19*ph/10000, got.AreaHa, 0.01)
}

func TestRefineBoundary_OpenInputAndDefaultBuffer(t *testing.T) {
	r := fieldRaster(plot{20, 20, 39, 39})
	d := newTestDetector(t, &fakeSource{raster: r})

	rough := rect(r, 18.5, 18.5, 40.5, 40.5)
	got, err := d.RefineBoundary(context.Background(), rough[:4], 0, testDate, "")
	require.NoError(t, err)
	assert.Equal(t, rect(r, 20, 20, 39, 39), got.Coordinates)
}

func TestRefineBoundary_NoEdgesKeepsVertices(t *testing.T) {
	r := fieldRaster()
	d := newTestDetector(t, &fakeSource{raster: r})

	rough := rect(r, 18, 18, 40, 40)
	got, err := d.RefineBoundary(context.Background(), rough, 30, testDate, "")
	require.NoError(t, err)
	assert.Equal(t, rough, got.Coordinates)
	assert.Zero(t, got.QualityScore)
	assert.Zero(t, got.Confidence)
}

func TestRefineBoundary_RejectsDegenerate(t *testing.T) {
	src := &fakeSource{raster: fieldRaster()}
	d := newTestDetector(t, src)
	a, b := models.GeoPoint{Lat: 30, Lon: 31}, models.GeoPoint{Lat: 30.001, Lon: 31}

	for _, poly := range [][]models.GeoPoint{nil, {a, b}, {a, b, a}, {a, a, b, b, a}} {
		_, err := d.RefineBoundary(context.Background(), poly, 30, testDate, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Zero(t, src.calls)
}

func TestDetectBoundaryChange_IdenticalIsStable(t *testing.T) {
	r := fieldRaster(plot{20, 20, 39, 39})
	d := newTestDetector(t, &fakeSource{raster: r})
	ctx := context.Background()

	found, err := d.DetectBoundary(ctx, testCenter, 300, testDate, "")
	require.NoError(t, err)
	require.Len(t, found, 1)

	got, err := d.DetectBoundaryChange(ctx, "field-1", found[0].Coordinates, testDate, "")
	require.NoError(t, err)
	assert.Equal(t, "field-1", got.FieldID)
	assert.Equal(t, models.ChangeStable, got.ChangeType)
	assert.Zero(t, got.ChangePercent)
	assert.Zero(t, got.AreaDeltaHa)
	assert.Zero(t, got.MeanShiftM)
	assert.NotNil(t, got.AffectedCoordinates)
	assert.Empty(t, got.AffectedCoordinates)
	assert.Equal(t, 1.0, got.Confidence)
	require.NotNil(t, got.Current)
	assert.Equal(t, found[0].Coordinates, got.Current.Coordinates)
}

func TestDetectBoundaryChange_Classifies(t *testing.T) {
	r := fieldRaster(plot{20, 20, 39, 39})
	d := newTestDetector(t, &fakeSource{raster: r})

	tests := []struct {
		name     string
		previous []models.GeoPoint
		want     models.ChangeType
		pct      float64
	}{
		{"expansion", rect(r, 25, 25, 34, 34), models.ChangeExpansion, (361.0 - 81) / 81 * 100},
		{"contraction", rect(r, 15, 15, 44, 44), models.ChangeContraction, (361.0 - 841) / 841 * 100},
		{"small shift", rect(r, 20, 20, 39, 39.5), models.ChangeStable, (361.0 - 19*19.5) / (19 * 19.5) * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.DetectBoundaryChange(context.Background(), "f", tt.previous, testDate, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ChangeType)
			assert.InDelta(t, tt.pct, got.ChangePercent, 0.5)
			assert.InDelta(t, got.CurrentAreaHa-got.PreviousAreaHa, got.AreaDeltaHa, 1e-3)
			if tt.want == models.ChangeStable {
				assert.Empty(t, got.AffectedCoordinates)
				assert.Less(t, got.MeanShiftM, 5.0)
			} else {
				assert.Len(t, got.AffectedCoordinates, 4)
				assert.Greater(t, got.MeanShiftM, 15.0)
			}
		})
	}
}

func TestDetectBoundaryChange_Errors(t *testing.T) {
	r := fieldRaster()
	d := newTestDetector(t, &fakeSource{raster: r})
	ctx := context.Background()

	_, err := d.DetectBoundaryChange(ctx, "f", rect(r, 20, 20, 39, 39), testDate, "")
	assert.ErrorIs(t, err, ErrNoBoundary)

	line := []models.GeoPoint{{Lat: 30, Lon: 31}, {Lat: 30, Lon: 31.001}, {Lat: 30, Lon: 31.002}}
	_, err = d.DetectBoundaryChange(ctx, "f", line, testDate, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = d.DetectBoundaryChange(ctx, "f", line[:2], testDate, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
