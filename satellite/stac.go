package satellite

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cropwatch/models"
)

// STACConfig configures the public metadata catalog backend.
type STACConfig struct {
	Enabled bool
	BaseURL string // default https://earth-search.aws.element84.com/v1
	Timeout time.Duration
}

// STACCatalog searches a public STAC API. It needs no credentials and
// returns scene metadata only: GetIndices is always absent.
type STACCatalog struct {
	cfg    STACConfig
	client *lazyClient
}

func NewSTACCatalog(cfg STACConfig) *STACCatalog {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://earth-search.aws.element84.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &STACCatalog{cfg: cfg, client: newLazyClient(plainClientFactory(cfg.Timeout))}
}

func (s *STACCatalog) Name() string       { return "stac-catalog" }
func (s *STACCatalog) Kind() ProviderKind { return KindSTAC }

func (s *STACCatalog) Supports(kind models.SatelliteKind) bool {
	switch kind {
	case models.SatelliteSentinel2, models.SatelliteLandsat8, models.SatelliteLandsat9:
		return true
	}
	return false
}

func (s *STACCatalog) Close() error {
	s.client.close()
	return nil
}

func stacCollection(kind models.SatelliteKind) string {
	if kind == models.SatelliteLandsat8 || kind == models.SatelliteLandsat9 {
		return "landsat-c2-l2"
	}
	return "sentinel-2-l2a"
}

func (s *STACCatalog) SearchScenes(ctx context.Context, q SceneQuery) ([]models.Scene, error) {
	kind := q.Satellite
	if kind == "" {
		kind = models.SatelliteSentinel2
	}
	body := map[string]any{
		"intersects": map[string]any{
			"type":        "Point",
			"coordinates": []float64{q.Location.Lon, q.Location.Lat},
		},
		"datetime":    q.From.UTC().Format(time.RFC3339) + "/" + q.To.UTC().Format(time.RFC3339),
		"collections": []string{stacCollection(kind)},
		"limit":       50,
	}
	if q.MaxCloudCover > 0 {
		body["query"] = map[string]any{"eo:cloud_cover": map[string]float64{"lt": q.MaxCloudCover}}
	}
	var fc stacFeatureCollection
	if err := doJSON(ctx, s.client.get(), s.Name(), http.MethodPost, s.cfg.BaseURL+"/search", nil, body, &fc); err != nil {
		return nil, err
	}
	return fc.scenes(s.Name(), kind, q.MaxCloudCover), nil
}

// GetIndices is not offered by a metadata catalog.
func (s *STACCatalog) GetIndices(context.Context, models.GeoPoint, time.Time, models.SatelliteKind) (*models.VegetationIndices, error) {
	return nil, nil
}

// STAC item search response, shared by every STAC-speaking backend.
type stacFeatureCollection struct {
	Type     string        `json:"type"`
	Features []stacFeature `json:"features"`
}

type stacFeature struct {
	ID         string    `json:"id"`
	BBox       []float64 `json:"bbox"`
	Properties struct {
		Datetime     time.Time `json:"datetime"`
		CloudCover   *float64  `json:"eo:cloud_cover"`
		SunElevation *float64  `json:"view:sun_elevation"`
		Platform     string    `json:"platform"`
	} `json:"properties"`
	Assets map[string]struct {
		Href string `json:"href"`
	} `json:"assets"`
}

// scenes normalizes features, dropping any above maxCloud (when > 0).
func (fc stacFeatureCollection) scenes(provider string, kind models.SatelliteKind, maxCloud float64) []models.Scene {
	out := make([]models.Scene, 0, len(fc.Features))
	for _, f := range fc.Features {
		sc := models.Scene{
			ID:         f.ID,
			Satellite:  platformKind(f.Properties.Platform, kind),
			AcquiredAt: f.Properties.Datetime.UTC(),
			Provider:   provider,
		}
		if f.Properties.CloudCover != nil {
			sc.CloudCover = *f.Properties.CloudCover
		}
		if maxCloud > 0 && sc.CloudCover > maxCloud {
			continue
		}
		if f.Properties.SunElevation != nil {
			sc.SunElevation = *f.Properties.SunElevation
		}
		if len(f.BBox) >= 4 {
			sc.BBox = models.BBox{MinLon: f.BBox[0], MinLat: f.BBox[1], MaxLon: f.BBox[2], MaxLat: f.BBox[3]}
		}
		if a, ok := f.Assets["thumbnail"]; ok {
			sc.ThumbnailURL = a.Href
		}
		for _, key := range []string{"visual", "data", "red"} {
			if a, ok := f.Assets[key]; ok {
				sc.DownloadURL = a.Href
				break
			}
		}
		out = append(out, sc)
	}
	return out
}

func platformKind(platform string, fallback models.SatelliteKind) models.SatelliteKind {
	p := strings.ToLower(platform)
	switch {
	case strings.HasPrefix(p, "sentinel-2"):
		return models.SatelliteSentinel2
	case p == "landsat-8" || p == "landsat_8":
		return models.SatelliteLandsat8
	case p == "landsat-9" || p == "landsat_9":
		return models.SatelliteLandsat9
	}
	return fallback
}
