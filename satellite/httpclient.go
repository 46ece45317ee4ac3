package satellite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const defaultHTTPTimeout = 25 * time.Second

// lazyClient holds one long-lived outbound client per provider. It is
// created on first use and released by close.
type lazyClient struct {
	once    sync.Once
	mu      sync.Mutex
	client  *http.Client
	factory func() *http.Client
}

func newLazyClient(factory func() *http.Client) *lazyClient {
	return &lazyClient{factory: factory}
}

func (l *lazyClient) get() *http.Client {
	l.once.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.client = l.factory()
	})
	return l.client
}

func (l *lazyClient) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		l.client.CloseIdleConnections()
	}
}

func plainClientFactory(timeout time.Duration) func() *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return func() *http.Client {
		return &http.Client{Timeout: timeout}
	}
}

// doJSON sends in (if non-nil) as JSON and decodes a 2xx response into out.
// Failures are returned as *ProviderError tagged with provider.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return decodeErr(provider, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return transportErr(provider, fmt.Errorf("build request: %w", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyDoErr(provider, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(provider, resp.StatusCode, truncate(string(data), 256))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return decodeErr(provider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// classifyDoErr separates OAuth token failures from plain transport errors.
func classifyDoErr(provider string, err error) *ProviderError {
	if isTokenErr(err) {
		return &ProviderError{Provider: provider, Kind: FailureAuth, Err: err}
	}
	return transportErr(provider, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
