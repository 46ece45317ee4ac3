package satellite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cropwatch/models"
)

// DefaultCacheTTL is the freshness window of cached provider results.
const DefaultCacheTTL = time.Hour

// SceneSearchResult is the provenance-tagged answer of SearchScenes.
type SceneSearchResult struct {
	Scenes []models.Scene `json:"scenes"`
	models.Provenance
}

// IndicesResult is the provenance-tagged answer of GetIndices.
type IndicesResult struct {
	Indices models.VegetationIndices `json:"indices"`
	models.Provenance
}

// RasterResult is the provenance-tagged answer of GetIndexRaster.
type RasterResult struct {
	Raster *models.IndexRaster `json:"raster"`
	models.Provenance
}

// Service is the acquisition orchestrator. It is built once at startup and
// shared by every caller; providers are asked one at a time in the order
// they were given.
type Service struct {
	providers []Provider
	scenes    Cache[SceneSearchResult]
	indices   Cache[IndicesResult]
	rasters   Cache[RasterResult]
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithScenesCache(c Cache[SceneSearchResult]) Option { return func(s *Service) { s.scenes = c } }
func WithIndicesCache(c Cache[IndicesResult]) Option    { return func(s *Service) { s.indices = c } }
func WithRasterCache(c Cache[RasterResult]) Option      { return func(s *Service) { s.rasters = c } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides the time source used for analysis timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService wires providers in priority order. Caches default to
// in-process maps with DefaultCacheTTL.
func NewService(providers []Provider, opts ...Option) (*Service, error) {
	if len(providers) == 0 {
		return nil, errors.New("satellite: at least one provider is required")
	}
	s := &Service{
		providers: append([]Provider(nil), providers...),
		scenes:    NewMemoryCache[SceneSearchResult](DefaultCacheTTL),
		indices:   NewMemoryCache[IndicesResult](DefaultCacheTTL),
		rasters:   NewMemoryCache[RasterResult](DefaultCacheTTL),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProviderNames lists the configured providers in priority order.
func (s *Service) ProviderNames() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Close releases every provider's network client.
func (s *Service) Close() error {
	var errs []error
	for _, p := range s.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// firstAvailable asks providers in priority order and stops at the first
// non-empty answer; call reports ok=false when a provider had no data.
// Providers that do not support kind are neither asked nor recorded, and
// accept, when non-nil, filters them further.
func firstAvailable[T any](ctx context.Context, s *Service, op string, kind models.SatelliteKind,
	accept func(Provider) bool, call func(context.Context, Provider) (T, bool, error)) (T, models.Provenance, error) {

	var zero T
	var failed []models.ProviderFailure
	for _, p := range s.providers {
		if kind != "" && !p.Supports(kind) {
			continue
		}
		if accept != nil && !accept(p) {
			continue
		}

		start := time.Now()
		val, ok, err := call(ctx, p)
		elapsed := time.Since(start)

		if err == nil && ok {
			s.metrics.observeCall(p.Name(), op, "ok", elapsed)
			if len(failed) > 0 {
				s.logger.Info("provider_fallback_served", "operation", op, "provider", p.Name(), "failed", len(failed))
			}
			return val, models.Provenance{
				Provider:        p.Name(),
				IsSimulated:     p.Kind() == KindSynthetic,
				FailedProviders: failed,
			}, nil
		}

		rec := failureRecord(p.Name(), err)
		failed = append(failed, rec)
		s.metrics.observeCall(p.Name(), op, rec.Kind, elapsed)
		if err != nil {
			s.logger.Warn("provider_failed", "operation", op, "provider", p.Name(), "kind", rec.Kind, "error", err)
		} else {
			s.logger.Debug("provider_no_data", "operation", op, "provider", p.Name())
		}
	}
	return zero, models.Provenance{}, &NoDataError{Operation: op, FailedProviders: failed}
}

// SearchScenes returns the scenes of the first provider that has any.
func (s *Service) SearchScenes(ctx context.Context, q SceneQuery) (*SceneSearchResult, error) {
	key := ScenesKey(q)
	if hit, ok := s.scenes.Get(ctx, key); ok {
		s.metrics.cacheHit(callScenes)
		return cachedScenes(hit), nil
	}
	s.metrics.cacheMiss(callScenes)

	scenes, prov, err := firstAvailable(ctx, s, callScenes, q.Satellite, nil,
		func(ctx context.Context, p Provider) ([]models.Scene, bool, error) {
			out, err := p.SearchScenes(ctx, q)
			return out, len(out) > 0, err
		})
	if err != nil {
		return nil, err
	}

	res := SceneSearchResult{Scenes: scenes, Provenance: prov}
	s.scenes.Set(ctx, key, res)
	res.Scenes = append([]models.Scene(nil), scenes...)
	return &res, nil
}

func cachedScenes(hit SceneSearchResult) *SceneSearchResult {
	return &SceneSearchResult{
		Scenes:     append([]models.Scene(nil), hit.Scenes...),
		Provenance: cachedProvenance(hit.Provenance),
	}
}

// cachedProvenance marks a stored result as served from cache. No provider
// was tried for the current call, so the failure list is not repeated.
func cachedProvenance(p models.Provenance) models.Provenance {
	return models.Provenance{Provider: p.Provider, IsSimulated: p.IsSimulated, IsCached: true}
}

func defaultKind(kind models.SatelliteKind) models.SatelliteKind {
	if kind == "" {
		return models.SatelliteSentinel2
	}
	return kind
}

// GetIndices returns clamped indices from the first provider that has them.
func (s *Service) GetIndices(ctx context.Context, loc models.GeoPoint, date time.Time, kind models.SatelliteKind) (*IndicesResult, error) {
	kind = defaultKind(kind)
	key := IndicesKey(loc, date, kind)
	if hit, ok := s.indices.Get(ctx, key); ok {
		s.metrics.cacheHit(callIndices)
		return &IndicesResult{Indices: hit.Indices, Provenance: cachedProvenance(hit.Provenance)}, nil
	}
	s.metrics.cacheMiss(callIndices)

	v, prov, err := firstAvailable(ctx, s, callIndices, kind, nil,
		func(ctx context.Context, p Provider) (models.VegetationIndices, bool, error) {
			out, err := p.GetIndices(ctx, loc, date, kind)
			if err != nil || out == nil {
				return models.VegetationIndices{}, false, err
			}
			c := out.Clamp()
			c.Provider = p.Name()
			return c, true, nil
		})
	if err != nil {
		return nil, err
	}

	res := IndicesResult{Indices: v, Provenance: prov}
	s.indices.Set(ctx, key, res)
	return &res, nil
}

// AnalyzeField fetches indices for a field and scores its health.
func (s *Service) AnalyzeField(ctx context.Context, fieldID string, loc models.GeoPoint, date time.Time, kind models.SatelliteKind) (*models.FieldAnalysis, error) {
	kind = defaultKind(kind)
	ir, err := s.GetIndices(ctx, loc, date, kind)
	if err != nil {
		return nil, err
	}
	h := AssessHealth(ir.Indices)
	return &models.FieldAnalysis{
		FieldID:         fieldID,
		AnalyzedAt:      s.now().UTC(),
		Location:        loc,
		Satellite:       kind,
		Indices:         ir.Indices,
		HealthScore:     h.Score,
		HealthStatus:    h.Status,
		Anomalies:       h.Anomalies,
		Recommendations: h.Recommendations,
		Provenance:      ir.Provenance,
	}, nil
}

// GetIndexRaster returns an NDVI raster covering bbox. Only providers that
// implement RasterProvider are asked.
func (s *Service) GetIndexRaster(ctx context.Context, bbox models.BBox, date time.Time, kind models.SatelliteKind) (*RasterResult, error) {
	kind = defaultKind(kind)
	key := RasterKey(bbox, date, kind)
	if hit, ok := s.rasters.Get(ctx, key); ok && hit.Raster != nil {
		s.metrics.cacheHit(callRaster)
		return &RasterResult{Raster: cloneRaster(hit.Raster), Provenance: cachedProvenance(hit.Provenance)}, nil
	}
	s.metrics.cacheMiss(callRaster)

	isRaster := func(p Provider) bool {
		_, ok := p.(RasterProvider)
		return ok
	}
	r, prov, err := firstAvailable(ctx, s, callRaster, kind, isRaster,
		func(ctx context.Context, p Provider) (*models.IndexRaster, bool, error) {
			out, err := p.(RasterProvider).GetIndexRaster(ctx, bbox, date, kind)
			if err != nil || out == nil || out.Width == 0 || out.Height == 0 {
				return nil, false, err
			}
			out.Provider = p.Name()
			return out, true, nil
		})
	if err != nil {
		return nil, err
	}

	s.rasters.Set(ctx, key, RasterResult{Raster: r, Provenance: prov})
	return &RasterResult{Raster: cloneRaster(r), Provenance: prov}, nil
}

func cloneRaster(r *models.IndexRaster) *models.IndexRaster {
	c := *r
	c.Values = append([]float64(nil), r.Values...)
	return &c
}

// ProvidersConfig selects the real backends; the synthetic backend is
// always appended last.
type ProvidersConfig struct {
	SentinelHub SentinelHubConfig
	STAC        STACConfig
	USGS        USGSConfig
}

// NewProvidersFromConfig returns the enabled providers in priority order:
// authenticated first, free metadata second, registration-gated third,
// synthetic last.
func NewProvidersFromConfig(cfg ProvidersConfig, logger *slog.Logger) []Provider {
	if logger == nil {
		logger = slog.Default()
	}
	var out []Provider
	if cfg.SentinelHub.Enabled() {
		out = append(out, NewSentinelHub(cfg.SentinelHub))
	}
	if cfg.STAC.Enabled {
		out = append(out, NewSTACCatalog(cfg.STAC))
	}
	if cfg.USGS.Enabled() {
		out = append(out, NewUSGSArchive(cfg.USGS))
	}
	out = append(out, NewSynthetic())

	for i, p := range out {
		logger.Info("provider_configured", "priority", i+1, "provider", p.Name(), "kind", p.Kind())
	}
	return out
}
