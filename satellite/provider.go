// Package satellite normalizes heterogeneous imagery providers behind one
// interface and orchestrates them with priority fallback and a read-through
// cache.
package satellite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cropwatch/models"
)

// ProviderKind is the closed set of backend implementations.
type ProviderKind string

const (
	KindSentinelHub ProviderKind = "sentinelhub" // authenticated processing API
	KindSTAC        ProviderKind = "stac"        // public metadata catalog
	KindUSGS        ProviderKind = "usgs"        // registration-gated archive
	KindSynthetic   ProviderKind = "synthetic"   // always available
)

// SceneQuery filters a scene search.
type SceneQuery struct {
	Location      models.GeoPoint
	From          time.Time
	To            time.Time
	MaxCloudCover float64              // percent, 0 means no filter
	Satellite     models.SatelliteKind // empty means any supported kind
}

// Provider is the uniform capability every backend implements.
//
// "No data for this query" is an empty slice or nil pointer with a nil error.
// Transport, auth and quota problems are returned as *ProviderError.
type Provider interface {
	Name() string
	Kind() ProviderKind
	Supports(kind models.SatelliteKind) bool
	SearchScenes(ctx context.Context, q SceneQuery) ([]models.Scene, error)
	GetIndices(ctx context.Context, loc models.GeoPoint, date time.Time, kind models.SatelliteKind) (*models.VegetationIndices, error)
	// Close releases the provider's long-lived network client.
	Close() error
}

// RasterProvider is implemented by providers able to return index rasters.
type RasterProvider interface {
	Provider
	GetIndexRaster(ctx context.Context, bbox models.BBox, date time.Time, kind models.SatelliteKind) (*models.IndexRaster, error)
}

// FailureKind classifies why a provider could not be asked.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureAuth      FailureKind = "auth"
	FailureQuota     FailureKind = "quota"
	FailureDecode    FailureKind = "decode"
	FailureNoData    FailureKind = "no_data"
)

// ProviderError is the typed failure returned by providers.
type ProviderError struct {
	Provider   string
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s failure (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func transportErr(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: FailureTransport, Err: err}
}

func decodeErr(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: FailureDecode, Err: err}
}

// statusErr maps a non-2xx HTTP status to a failure kind.
func statusErr(provider string, code int, body string) *ProviderError {
	kind := FailureTransport
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = FailureAuth
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		kind = FailureQuota
	}
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: code, Err: fmt.Errorf("non-2xx response: %s", body)}
}

// ErrNoData is matched by every NoDataError.
var ErrNoData = errors.New("no data available from any provider")

// NoDataError is returned when every configured provider failed or was empty.
type NoDataError struct {
	Operation       string
	FailedProviders []models.ProviderFailure
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("%s: %v (%d providers tried)", e.Operation, ErrNoData, len(e.FailedProviders))
}

func (e *NoDataError) Is(target error) bool { return target == ErrNoData }

// failureRecord converts a provider outcome into the record kept on results.
func failureRecord(name string, err error) models.ProviderFailure {
	if err == nil {
		return models.ProviderFailure{Provider: name, Kind: string(FailureNoData), Reason: "no data for query"}
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return models.ProviderFailure{Provider: name, Kind: string(pe.Kind), Reason: pe.Error()}
	}
	return models.ProviderFailure{Provider: name, Kind: string(FailureTransport), Reason: err.Error()}
}
