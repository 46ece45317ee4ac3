package satellite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"cropwatch/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// SentinelHubConfig configures the authenticated processing API backend.
type SentinelHubConfig struct {
	ClientID          string
	ClientSecret      string
	BaseURL           string // default https://services.sentinel-hub.com
	TokenURL          string // default {BaseURL}/auth/realms/main/protocol/openid-connect/token
	Timeout           time.Duration
	RequestsPerMinute int // 0 = unlimited
}

// Enabled reports whether credentials are configured.
func (c SentinelHubConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// SentinelHub talks to the Catalog, Statistical and Process APIs.
// OAuth2 client-credentials tokens are fetched and refreshed transparently.
type SentinelHub struct {
	cfg     SentinelHubConfig
	client  *lazyClient
	limiter *rate.Limiter
}

// NewSentinelHub builds the provider; no network I/O happens until first use.
func NewSentinelHub(cfg SentinelHubConfig) *SentinelHub {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://services.sentinel-hub.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TokenURL == "" {
		cfg.TokenURL = cfg.BaseURL + "/auth/realms/main/protocol/openid-connect/token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	s := &SentinelHub{cfg: cfg}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	s.client = newLazyClient(func() *http.Client {
		base := &http.Client{Timeout: cfg.Timeout}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c := cc.Client(ctx)
		c.Timeout = cfg.Timeout
		return c
	})
	return s
}

func (s *SentinelHub) Name() string       { return "sentinel-hub" }
func (s *SentinelHub) Kind() ProviderKind { return KindSentinelHub }

func (s *SentinelHub) Supports(kind models.SatelliteKind) bool {
	switch kind {
	case models.SatelliteSentinel2, models.SatelliteLandsat8, models.SatelliteLandsat9:
		return true
	}
	return false
}

func (s *SentinelHub) Close() error {
	s.client.close()
	return nil
}

func (s *SentinelHub) allow() error {
	if s.limiter != nil && !s.limiter.Allow() {
		return &ProviderError{Provider: s.Name(), Kind: FailureQuota, Err: errors.New("request quota exhausted")}
	}
	return nil
}

func collectionFor(kind models.SatelliteKind) string {
	if kind == models.SatelliteLandsat8 || kind == models.SatelliteLandsat9 {
		return "landsat-ot-l2"
	}
	return "sentinel-2-l2a"
}

// SearchScenes queries the Catalog API (STAC item search).
func (s *SentinelHub) SearchScenes(ctx context.Context, q SceneQuery) ([]models.Scene, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}
	kind := q.Satellite
	if kind == "" {
		kind = models.SatelliteSentinel2
	}
	bbox := models.BBoxAround(q.Location, 500)
	body := map[string]any{
		"bbox":        []float64{bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat},
		"datetime":    q.From.UTC().Format(time.RFC3339) + "/" + q.To.UTC().Format(time.RFC3339),
		"collections": []string{collectionFor(kind)},
		"limit":       50,
	}
	if q.MaxCloudCover > 0 {
		body["filter"] = fmt.Sprintf("eo:cloud_cover < %g", q.MaxCloudCover)
		body["filter-lang"] = "cql2-text"
	}
	var fc stacFeatureCollection
	if err := doJSON(ctx, s.client.get(), s.Name(), http.MethodPost, s.cfg.BaseURL+"/api/v1/catalog/1.0.0/search", nil, body, &fc); err != nil {
		return nil, err
	}
	return fc.scenes(s.Name(), kind, q.MaxCloudCover), nil
}

// GetIndices runs the Statistical API over a small box around loc and
// returns the daily interval closest to date.
func (s *SentinelHub) GetIndices(ctx context.Context, loc models.GeoPoint, date time.Time, kind models.SatelliteKind) (*models.VegetationIndices, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}
	bbox := models.BBoxAround(loc, 50)
	body := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"bbox":       []float64{bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat},
				"properties": map[string]string{"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84"},
			},
			"data": []map[string]any{{
				"type":       collectionFor(kind),
				"dataFilter": map[string]string{"mosaickingOrder": "leastCC"},
			}},
		},
		"aggregation": map[string]any{
			"timeRange": map[string]string{
				"from": date.AddDate(0, 0, -5).UTC().Format(time.RFC3339),
				"to":   date.AddDate(0, 0, 5).UTC().Format(time.RFC3339),
			},
			"aggregationInterval": map[string]string{"of": "P1D"},
			"evalscript":          statsEvalscript(kind),
			"resx":                0.0001,
			"resy":                0.0001,
		},
	}
	var resp statsResponse
	if err := doJSON(ctx, s.client.get(), s.Name(), http.MethodPost, s.cfg.BaseURL+"/api/v1/statistics", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.closest(date, s.Name()), nil
}

// GetIndexRaster renders NDVI through the Process API as an 8-bit grayscale
// PNG (0 → -1, 255 → +1).
func (s *SentinelHub) GetIndexRaster(ctx context.Context, bbox models.BBox, date time.Time, kind models.SatelliteKind) (*models.IndexRaster, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}
	w, h := rasterSize(bbox, 10, 512)
	body := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"bbox":       []float64{bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat},
				"properties": map[string]string{"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84"},
			},
			"data": []map[string]any{{
				"type": collectionFor(kind),
				"dataFilter": map[string]any{
					"timeRange": map[string]string{
						"from": date.AddDate(0, 0, -10).UTC().Format(time.RFC3339),
						"to":   date.AddDate(0, 0, 1).UTC().Format(time.RFC3339),
					},
					"mosaickingOrder": "leastCC",
				},
			}},
		},
		"output": map[string]any{
			"width":     w,
			"height":    h,
			"responses": []map[string]any{{"identifier": "default", "format": map[string]string{"type": "image/png"}}},
		},
		"evalscript": ndviRasterEvalscript(kind),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, decodeErr(s.Name(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/api/v1/process", bytes.NewReader(raw))
	if err != nil {
		return nil, transportErr(s.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	resp, err := s.client.get().Do(req)
	if err != nil {
		return nil, classifyDoErr(s.Name(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, statusErr(s.Name(), resp.StatusCode, truncate(string(data), 256))
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, decodeErr(s.Name(), fmt.Errorf("decode png: %w", err))
	}
	r := rasterFromGray(img, bbox, kind, date, s.Name())
	if r == nil {
		return nil, nil
	}
	return r, nil
}

// rasterSize picks a grid at roughly resM meters per pixel, capped at maxPx.
func rasterSize(b models.BBox, resM float64, maxPx int) (int, int) {
	lat := (b.MinLat + b.MaxLat) / 2
	w := int(math.Ceil((b.MaxLon - b.MinLon) * models.MetersPerDegreeLon(lat) / resM))
	h := int(math.Ceil((b.MaxLat - b.MinLat) * models.MetersPerDegreeLat() / resM))
	return min(max(w, 8), maxPx), min(max(h, 8), maxPx)
}

// rasterFromGray unpacks a single-band 8-bit image. An all-zero image
// (no acquisition in range) yields nil.
func rasterFromGray(img image.Image, bbox models.BBox, kind models.SatelliteKind, date time.Time, provider string) *models.IndexRaster {
	b := img.Bounds()
	r := &models.IndexRaster{
		BBox:       bbox,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Values:     make([]float64, b.Dx()*b.Dy()),
		Satellite:  kind,
		AcquiredAt: date,
		Provider:   provider,
	}
	hasData := false
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			g, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			v := float64(g>>8)/127.5 - 1
			if g != 0 {
				hasData = true
			}
			r.Values[y*r.Width+x] = v
		}
	}
	if !hasData {
		return nil
	}
	return r
}

func isTokenErr(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}

func bandsFor(kind models.SatelliteKind) (blue, green, red, nir, swir string) {
	if kind == models.SatelliteLandsat8 || kind == models.SatelliteLandsat9 {
		return "B02", "B03", "B04", "B05", "B06"
	}
	return "B02", "B03", "B04", "B08", "B11"
}

func statsEvalscript(kind models.SatelliteKind) string {
	blue, green, red, nir, swir := bandsFor(kind)
	return fmt.Sprintf(`//VERSION=3
function setup() {
  return {
    input: [{bands: ["%[1]s", "%[2]s", "%[3]s", "%[4]s", "%[5]s", "dataMask"]}],
    output: [
      {id: "indices", bands: ["ndvi", "ndwi", "evi", "savi", "ndmi"], sampleType: "FLOAT32"},
      {id: "dataMask", bands: 1}
    ]
  };
}
function evaluatePixel(s) {
  let ndvi = (s.%[4]s - s.%[3]s) / (s.%[4]s + s.%[3]s);
  let ndwi = (s.%[2]s - s.%[4]s) / (s.%[2]s + s.%[4]s);
  let evi = 2.5 * (s.%[4]s - s.%[3]s) / (s.%[4]s + 6 * s.%[3]s - 7.5 * s.%[1]s + 1);
  let savi = 1.5 * (s.%[4]s - s.%[3]s) / (s.%[4]s + s.%[3]s + 0.5);
  let ndmi = (s.%[4]s - s.%[5]s) / (s.%[4]s + s.%[5]s);
  return {indices: [ndvi, ndwi, evi, savi, ndmi], dataMask: [s.dataMask]};
}`, blue, green, red, nir, swir)
}

func ndviRasterEvalscript(kind models.SatelliteKind) string {
	_, _, red, nir, _ := bandsFor(kind)
	return fmt.Sprintf(`//VERSION=3
function setup() {
  return {input: ["%[1]s", "%[2]s", "dataMask"], output: {bands: 1, sampleType: "UINT8"}};
}
function evaluatePixel(s) {
  if (s.dataMask == 0) { return [0]; }
  let ndvi = (s.%[2]s - s.%[1]s) / (s.%[2]s + s.%[1]s);
  return [Math.max(1, Math.round((ndvi + 1) * 127.5))];
}`, red, nir)
}

type statsBand struct {
	Stats struct {
		Mean        float64 `json:"mean"`
		SampleCount int     `json:"sampleCount"`
		NoDataCount int     `json:"noDataCount"`
	} `json:"stats"`
}

type statsResponse struct {
	Data []struct {
		Interval struct {
			From time.Time `json:"from"`
			To   time.Time `json:"to"`
		} `json:"interval"`
		Outputs struct {
			Indices struct {
				Bands map[string]statsBand `json:"bands"`
			} `json:"indices"`
		} `json:"outputs"`
	} `json:"data"`
}

// closest returns the interval nearest to date that has valid samples.
func (r statsResponse) closest(date time.Time, provider string) *models.VegetationIndices {
	var best *models.VegetationIndices
	bestDist := time.Duration(math.MaxInt64)
	for _, d := range r.Data {
		bands := d.Outputs.Indices.Bands
		ndvi, ok := bands["ndvi"]
		if !ok || ndvi.Stats.SampleCount <= ndvi.Stats.NoDataCount {
			continue
		}
		dist := d.Interval.From.Sub(date)
		if dist < 0 {
			dist = -dist
		}
		if dist >= bestDist {
			continue
		}
		bestDist = dist
		evi := bands["evi"].Stats.Mean
		best = &models.VegetationIndices{
			NDVI:     ndvi.Stats.Mean,
			NDWI:     bands["ndwi"].Stats.Mean,
			EVI:      evi,
			SAVI:     bands["savi"].Stats.Mean,
			LAI:      laiFromEVI(evi),
			NDMI:     bands["ndmi"].Stats.Mean,
			Provider: provider,
		}
	}
	return best
}

// laiFromEVI is the empirical EVI→LAI relation of Boegh et al. (2002).
func laiFromEVI(evi float64) float64 {
	return math.Max(0, 3.618*evi-0.118)
}
