package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultOriginTimeout = 10 * time.Second

// Origin talks to the upstream web app whose pages the gateway caches.
type Origin struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
}

// NewOrigin creates a client for the app served at baseURL. A zero timeout
// uses the default.
func NewOrigin(baseURL string, timeout time.Duration) (*Origin, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing origin %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultOriginTimeout
	}
	return &Origin{
		baseURL:    u,
		httpClient: &http.Client{},
		timeout:    timeout,
	}, nil
}

// URL resolves an absolute path (with optional query) against the origin.
func (o *Origin) URL(path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	u := *o.baseURL
	u.Path = o.baseURL.Path + ref.Path
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	return &u
}

// Do sends req to the origin with the per-request timeout applied. The
// timeout stays in force until the caller closes the response body.
func (o *Origin) Do(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), o.timeout)
	resp, err := o.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("requesting %s: %w", req.URL, err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Get fetches path from the origin.
func (o *Origin) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL(path).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return o.Do(req)
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
