package satellite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cropwatch/models"
)

// USGSConfig configures the registration-gated M2M archive backend.
type USGSConfig struct {
	Username string
	Token    string // application token issued after registration
	BaseURL  string // default https://m2m.cr.usgs.gov/api/api/json/stable
	Timeout  time.Duration
}

// Enabled reports whether registration credentials are configured.
func (c USGSConfig) Enabled() bool {
	return c.Username != "" && c.Token != ""
}

const usgsKeyTTL = 110 * time.Minute

// USGSArchive searches the Landsat archive. It exchanges the application
// token for a session key and re-logs in when the key expires.
type USGSArchive struct {
	cfg    USGSConfig
	client *lazyClient

	mu      sync.Mutex
	apiKey  string
	expires time.Time
}

func NewUSGSArchive(cfg USGSConfig) *USGSArchive {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://m2m.cr.usgs.gov/api/api/json/stable"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &USGSArchive{cfg: cfg, client: newLazyClient(plainClientFactory(cfg.Timeout))}
}

func (u *USGSArchive) Name() string       { return "usgs-m2m" }
func (u *USGSArchive) Kind() ProviderKind { return KindUSGS }

func (u *USGSArchive) Supports(kind models.SatelliteKind) bool {
	return kind == models.SatelliteLandsat8 || kind == models.SatelliteLandsat9
}

func (u *USGSArchive) Close() error {
	u.client.close()
	return nil
}

type m2mEnvelope struct {
	Data         json.RawMessage `json:"data"`
	ErrorCode    *string         `json:"errorCode"`
	ErrorMessage *string         `json:"errorMessage"`
}

// call posts to an M2M endpoint and unwraps the envelope into out.
func (u *USGSArchive) call(ctx context.Context, endpoint, key string, in, out any) error {
	headers := map[string]string{}
	if key != "" {
		headers["X-Auth-Token"] = key
	}
	var env m2mEnvelope
	if err := doJSON(ctx, u.client.get(), u.Name(), http.MethodPost, u.cfg.BaseURL+"/"+endpoint, headers, in, &env); err != nil {
		return err
	}
	if env.ErrorCode != nil && *env.ErrorCode != "" {
		msg := *env.ErrorCode
		if env.ErrorMessage != nil {
			msg += ": " + *env.ErrorMessage
		}
		kind := FailureTransport
		switch code := strings.ToUpper(*env.ErrorCode); {
		case strings.HasPrefix(code, "AUTH"):
			kind = FailureAuth
		case strings.Contains(code, "RATE_LIMIT"):
			kind = FailureQuota
		}
		return &ProviderError{Provider: u.Name(), Kind: kind, Err: errors.New(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return decodeErr(u.Name(), fmt.Errorf("decode %s data: %w", endpoint, err))
	}
	return nil
}

func (u *USGSArchive) sessionKey(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.apiKey != "" && time.Now().Before(u.expires) {
		return u.apiKey, nil
	}
	var key string
	err := u.call(ctx, "login-token", "", map[string]string{
		"username": u.cfg.Username,
		"token":    u.cfg.Token,
	}, &key)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", &ProviderError{Provider: u.Name(), Kind: FailureAuth, Err: errors.New("empty session key")}
	}
	u.apiKey = key
	u.expires = time.Now().Add(usgsKeyTTL)
	return key, nil
}

type m2mScene struct {
	EntityID         string  `json:"entityId"`
	DisplayID        string  `json:"displayId"`
	CloudCover       flexNum `json:"cloudCover"`
	TemporalCoverage struct {
		StartDate string `json:"startDate"`
	} `json:"temporalCoverage"`
	Browse []struct {
		ThumbnailPath string `json:"thumbnailPath"`
		BrowsePath    string `json:"browsePath"`
	} `json:"browse"`
}

// flexNum accepts numbers encoded either as JSON numbers or strings.
type flexNum float64

func (f *flexNum) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexNum(v)
	return nil
}

func (u *USGSArchive) SearchScenes(ctx context.Context, q SceneQuery) ([]models.Scene, error) {
	kind := q.Satellite
	if kind == "" {
		kind = models.SatelliteLandsat8
	}
	key, err := u.sessionKey(ctx)
	if err != nil {
		return nil, err
	}
	bbox := models.BBoxAround(q.Location, 500)
	filter := map[string]any{
		"spatialFilter": map[string]any{
			"filterType": "mbr",
			"lowerLeft":  map[string]float64{"latitude": bbox.MinLat, "longitude": bbox.MinLon},
			"upperRight": map[string]float64{"latitude": bbox.MaxLat, "longitude": bbox.MaxLon},
		},
		"acquisitionFilter": map[string]string{
			"start": q.From.UTC().Format("2006-01-02"),
			"end":   q.To.UTC().Format("2006-01-02"),
		},
	}
	if q.MaxCloudCover > 0 {
		filter["cloudCoverFilter"] = map[string]any{"min": 0, "max": q.MaxCloudCover, "includeUnknown": false}
	}
	var data struct {
		Results []m2mScene `json:"results"`
	}
	err = u.call(ctx, "scene-search", key, map[string]any{
		"datasetName": "landsat_ot_c2_l2",
		"sceneFilter": filter,
		"maxResults":  50,
	}, &data)
	if err != nil {
		return nil, err
	}
	out := make([]models.Scene, 0, len(data.Results))
	for _, r := range data.Results {
		acquired, _ := time.Parse("2006-01-02 15:04:05-07", r.TemporalCoverage.StartDate)
		if acquired.IsZero() {
			acquired, _ = time.Parse("2006-01-02", strings.SplitN(r.TemporalCoverage.StartDate, " ", 2)[0])
		}
		sc := models.Scene{
			ID:         r.DisplayID,
			Satellite:  landsatFromDisplayID(r.DisplayID, kind),
			AcquiredAt: acquired.UTC(),
			CloudCover: float64(r.CloudCover),
			BBox:       bbox,
			Provider:   u.Name(),
		}
		if sc.ID == "" {
			sc.ID = r.EntityID
		}
		if q.MaxCloudCover > 0 && sc.CloudCover > q.MaxCloudCover {
			continue
		}
		if len(r.Browse) > 0 {
			sc.ThumbnailURL = r.Browse[0].ThumbnailPath
			sc.DownloadURL = r.Browse[0].BrowsePath
		}
		out = append(out, sc)
	}
	return out, nil
}

// GetIndices is not served by the archive; it hands out scenes only.
func (u *USGSArchive) GetIndices(context.Context, models.GeoPoint, time.Time, models.SatelliteKind) (*models.VegetationIndices, error) {
	return nil, nil
}

// landsatFromDisplayID reads the mission from e.g. "LC09_L2SP_...".
func landsatFromDisplayID(id string, fallback models.SatelliteKind) models.SatelliteKind {
	switch {
	case strings.HasPrefix(id, "LC08"):
		return models.SatelliteLandsat8
	case strings.HasPrefix(id, "LC09"):
		return models.SatelliteLandsat9
	}
	return fallback
}
