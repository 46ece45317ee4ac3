package satellite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"cropwatch/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	kind    ProviderKind
	only    []models.SatelliteKind // nil supports everything
	scenes  []models.Scene
	indices *models.VegetationIndices
	raster  *models.IndexRaster
	err     error

	calls  int
	closed bool
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) Kind() ProviderKind { return f.kind }
func (f *fakeProvider) Close() error       { f.closed = true; return nil }

func (f *fakeProvider) Supports(k models.SatelliteKind) bool {
	if f.only == nil {
		return true
	}
	for _, o := range f.only {
		if o == k {
			return true
		}
	}
	return false
}

func (f *fakeProvider) SearchScenes(context.Context, SceneQuery) ([]models.Scene, error) {
	f.calls++
	return f.scenes, f.err
}

func (f *fakeProvider) GetIndices(context.Context, models.GeoPoint, time.Time, models.SatelliteKind) (*models.VegetationIndices, error) {
	f.calls++
	return f.indices, f.err
}

type fakeRasterProvider struct{ fakeProvider }

func (f *fakeRasterProvider) GetIndexRaster(context.Context, models.BBox, time.Time, models.SatelliteKind) (*models.IndexRaster, error) {
	f.calls++
	return f.raster, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, providers ...Provider) *Service {
	t.Helper()
	svc, err := NewService(providers, WithLogger(quietLogger()))
	require.NoError(t, err)
	return svc
}

var (
	testLoc  = models.GeoPoint{Lat: 30.0444, Lon: 31.2357}
	testDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func healthyIndices() *models.VegetationIndices {
	return &models.VegetationIndices{NDVI: 0.75, NDWI: 0.32, EVI: 0.5, SAVI: 0.5, LAI: 3.2, NDMI: 0.2}
}

func TestNewService_RequiresProviders(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestService_PriorityShortCircuit(t *testing.T) {
	first := &fakeProvider{name: "first", kind: KindSentinelHub, indices: healthyIndices()}
	second := &fakeProvider{name: "second", kind: KindSynthetic, indices: healthyIndices()}
	svc := newTestService(t, first, second)

	res, err := svc.GetIndices(context.Background(), testLoc, testDate, models.SatelliteSentinel2)
	require.NoError(t, err)

	assert.Equal(t, "first", res.Provider)
	assert.Equal(t, "first", res.Indices.Provider)
	assert.Empty(t, res.FailedProviders)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls, "lower-priority provider must not be invoked")
}

func TestService_CacheHitSkipsProviders(t *testing.T) {
	p := &fakeProvider{name: "only", kind: KindSTAC, scenes: []models.Scene{{ID: "S1", Provider: "only"}}}
	svc := newTestService(t, p)
	q := SceneQuery{Location: testLoc, From: testDate, To: testDate.AddDate(0, 0, 10), Satellite: models.SatelliteSentinel2}

	first, err := svc.SearchScenes(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, first.IsCached)

	// A nearby point within the key quantum hits the same entry.
	q.Location.Lat += 0.0001
	second, err := svc.SearchScenes(context.Background(), q)
	require.NoError(t, err)

	assert.True(t, second.IsCached)
	assert.Equal(t, first.Scenes, second.Scenes)
	assert.Equal(t, first.Provider, second.Provider)
	assert.Equal(t, 1, p.calls)
}

func TestService_CachedResultIsACopy(t *testing.T) {
	p := &fakeProvider{name: "only", kind: KindSTAC, scenes: []models.Scene{{ID: "S1"}}}
	svc := newTestService(t, p)
	q := SceneQuery{Location: testLoc, From: testDate, To: testDate}

	first, err := svc.SearchScenes(context.Background(), q)
	require.NoError(t, err)
	first.Scenes[0].ID = "mutated"

	second, err := svc.SearchScenes(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "S1", second.Scenes[0].ID)
}

func TestService_FallbackRecordsFailures(t *testing.T) {
	p1 := &fakeProvider{name: "p1", kind: KindSentinelHub, err: transportErr("p1", errors.New("connection refused"))}
	p2 := &fakeProvider{name: "p2", kind: KindSTAC, err: transportErr("p2", errors.New("timeout"))}
	p3 := &fakeProvider{name: "p3", kind: KindUSGS, indices: healthyIndices()}
	p4 := &fakeProvider{name: "p4", kind: KindSynthetic, indices: healthyIndices()}
	svc := newTestService(t, p1, p2, p3, p4)

	res, err := svc.GetIndices(context.Background(), testLoc, testDate, models.SatelliteLandsat8)
	require.NoError(t, err)

	assert.Equal(t, "p3", res.Provider)
	assert.False(t, res.IsSimulated)
	require.Len(t, res.FailedProviders, 2)
	assert.Equal(t, "p1", res.FailedProviders[0].Provider)
	assert.Equal(t, string(FailureTransport), res.FailedProviders[0].Kind)
	assert.Equal(t, "p2", res.FailedProviders[1].Provider)
	assert.Zero(t, p4.calls)
}

func TestService_AllEmptyIsNoData(t *testing.T) {
	providers := []Provider{
		&fakeProvider{name: "a", kind: KindSentinelHub},
		&fakeProvider{name: "b", kind: KindSTAC},
		&fakeProvider{name: "c", kind: KindUSGS, err: &ProviderError{Provider: "c", Kind: FailureAuth, Err: errors.New("denied")}},
		&fakeProvider{name: "d", kind: KindSynthetic},
	}
	svc := newTestService(t, providers...)

	res, err := svc.GetIndices(context.Background(), testLoc, testDate, models.SatelliteSentinel2)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoData)

	var nd *NoDataError
	require.ErrorAs(t, err, &nd)
	require.Len(t, nd.FailedProviders, len(providers))
	assert.Equal(t, string(FailureNoData), nd.FailedProviders[0].Kind)
	assert.Equal(t, string(FailureAuth), nd.FailedProviders[2].Kind)
}

func TestService_NoDataIsNotCached(t *testing.T) {
	p := &fakeProvider{name: "a", kind: KindSTAC}
	svc := newTestService(t, p)
	q := SceneQuery{Location: testLoc, From: testDate, To: testDate}

	_, err := svc.SearchScenes(context.Background(), q)
	require.ErrorIs(t, err, ErrNoData)

	p.scenes = []models.Scene{{ID: "late"}}
	res, err := svc.SearchScenes(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, res.IsCached)
	assert.Equal(t, 2, p.calls)
}

func TestService_SkipsUnsupportedKinds(t *testing.T) {
	landsatOnly := &fakeProvider{name: "usgs", kind: KindUSGS, only: []models.SatelliteKind{models.SatelliteLandsat8}, indices: healthyIndices()}
	synth := &fakeProvider{name: "synthetic", kind: KindSynthetic, indices: healthyIndices()}
	svc := newTestService(t, landsatOnly, synth)

	res, err := svc.GetIndices(context.Background(), testLoc, testDate, models.SatelliteModis)
	require.NoError(t, err)

	assert.Equal(t, "synthetic", res.Provider)
	assert.True(t, res.IsSimulated)
	assert.Empty(t, res.FailedProviders, "skipped providers are not failures")
	assert.Zero(t, landsatOnly.calls)
}

func TestService_IndicesAreClamped(t *testing.T) {
	p := &fakeProvider{name: "p", kind: KindSentinelHub, indices: &models.VegetationIndices{NDVI: 1.7, LAI: -2, SAVI: 9}}
	svc := newTestService(t, p)

	res, err := svc.GetIndices(context.Background(), testLoc, testDate, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Indices.NDVI)
	assert.Equal(t, 0.0, res.Indices.LAI)
	assert.Equal(t, 1.5, res.Indices.SAVI)
}

func TestService_AnalyzeField(t *testing.T) {
	p := &fakeProvider{name: "sentinel-hub", kind: KindSentinelHub, indices: healthyIndices()}
	fixed := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	svc, err := NewService([]Provider{p}, WithLogger(quietLogger()), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	fa, err := svc.AnalyzeField(context.Background(), "field-1", testLoc, testDate, models.SatelliteSentinel2)
	require.NoError(t, err)

	assert.Equal(t, "field-1", fa.FieldID)
	assert.Equal(t, fixed, fa.AnalyzedAt)
	assert.GreaterOrEqual(t, fa.HealthScore, 80.0)
	assert.Equal(t, models.HealthExcellent, fa.HealthStatus)
	assert.Empty(t, fa.Anomalies)
	assert.Len(t, fa.Recommendations, 1)
	assert.Equal(t, "sentinel-hub", fa.Provider)
	assert.False(t, fa.IsCached)

	again, err := svc.AnalyzeField(context.Background(), "field-1", testLoc, testDate, models.SatelliteSentinel2)
	require.NoError(t, err)
	assert.True(t, again.IsCached)
	assert.Equal(t, fa.Indices, again.Indices)
	assert.Equal(t, 1, p.calls)
}

func TestService_GetIndexRasterOnlyAsksRasterProviders(t *testing.T) {
	plain := &fakeProvider{name: "stac", kind: KindSTAC}
	raster := &models.IndexRaster{Width: 2, Height: 1, Values: []float64{0.1, 0.8}}
	rp := &fakeRasterProvider{fakeProvider{name: "synthetic", kind: KindSynthetic, raster: raster}}
	svc := newTestService(t, plain, rp)

	res, err := svc.GetIndexRaster(context.Background(), models.BBoxAround(testLoc, 500), testDate, models.SatelliteSentinel2)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", res.Provider)
	assert.True(t, res.IsSimulated)
	assert.Empty(t, res.FailedProviders)
	assert.Zero(t, plain.calls)
	assert.Equal(t, []float64{0.1, 0.8}, res.Raster.Values)

	res.Raster.Values[0] = 99
	again, err := svc.GetIndexRaster(context.Background(), models.BBoxAround(testLoc, 500), testDate, models.SatelliteSentinel2)
	require.NoError(t, err)
	assert.True(t, again.IsCached)
	assert.Equal(t, 0.1, again.Raster.Values[0])
}

func TestService_CloseReleasesEveryProvider(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	svc := newTestService(t, a, b)

	require.NoError(t, svc.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestService_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p1 := &fakeProvider{name: "p1", err: &ProviderError{Provider: "p1", Kind: FailureQuota, Err: errors.New("slow down")}}
	p2 := &fakeProvider{name: "p2", indices: healthyIndices()}
	svc, err := NewService([]Provider{p1, p2}, WithLogger(quietLogger()), WithMetrics(m))
	require.NoError(t, err)

	_, err = svc.GetIndices(context.Background(), testLoc, testDate, "")
	require.NoError(t, err)
	_, err = svc.GetIndices(context.Background(), testLoc, testDate, "")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("p1", callIndices, string(FailureQuota))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("p2", callIndices, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(callIndices, "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(callIndices, "miss")))
}

func TestNewProvidersFromConfig_Order(t *testing.T) {
	cfg := ProvidersConfig{
		SentinelHub: SentinelHubConfig{ClientID: "id", ClientSecret: "secret"},
		STAC:        STACConfig{Enabled: true},
		USGS:        USGSConfig{Username: "user", Token: "token"},
	}
	ps := NewProvidersFromConfig(cfg, quietLogger())

	require.Len(t, ps, 4)
	kinds := make([]ProviderKind, len(ps))
	for i, p := range ps {
		kinds[i] = p.Kind()
	}
	assert.Equal(t, []ProviderKind{KindSentinelHub, KindSTAC, KindUSGS, KindSynthetic}, kinds)

	only := NewProvidersFromConfig(ProvidersConfig{}, quietLogger())
	require.Len(t, only, 1)
	assert.Equal(t, KindSynthetic, only[0].Kind())
}
