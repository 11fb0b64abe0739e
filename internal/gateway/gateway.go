// Package gateway serves the web app through an offline cache. Precached
// app shell pages and every successful GET are stored in versioned cache
// generations; intercepted requests are answered from the cache when
// possible while a background fetch refreshes the stored copy.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/pulse/internal/storage"
)

const (
	defaultMaxBodyBytes = 10 << 20
	installConcurrency  = 4
	offlineBody         = "Offline"
)

// CacheStorage persists cache generations. storage.Store implements it.
type CacheStorage interface {
	Generations(ctx context.Context) ([]string, error)
	DeleteGeneration(ctx context.Context, name string) (bool, error)
	Match(ctx context.Context, key string) (storage.CacheEntry, bool, error)
	Put(ctx context.Context, generation string, e storage.CacheEntry) error
	PutAll(ctx context.Context, generation string, entries []storage.CacheEntry) error
}

// State is the lifecycle phase of the gateway.
type State int

const (
	StateIdle State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// Options configure a Gateway.
type Options struct {
	Manifest     Manifest
	Origin       *Origin
	Cache        CacheStorage
	Logger       *slog.Logger
	Now          func() time.Time
	MaxBodyBytes int64 // responses larger than this are served but not stored
}

// Status reports the gateway lifecycle for the API and CLI.
type Status struct {
	State       string   `json:"state"`
	Manifest    string   `json:"manifest"`
	Active      string   `json:"active,omitempty"`
	Claimed     bool     `json:"claimed"`
	Generations []string `json:"generations"`
}

// Gateway is the offline cache in front of the origin.
type Gateway struct {
	manifest Manifest
	origin   *Origin
	cache    CacheStorage
	logger   *slog.Logger
	now      func() time.Time
	maxBody  int64

	lifecycle sync.Mutex // serialises Resume, Install and Activate

	mu      sync.Mutex
	state   State
	active  string
	claimed bool

	refreshes sync.WaitGroup
}

func New(opts Options) *Gateway {
	if opts.Manifest.Name == "" {
		opts.Manifest = DefaultManifest()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Gateway{
		manifest: opts.Manifest,
		origin:   opts.Origin,
		cache:    opts.Cache,
		logger:   opts.Logger,
		now:      opts.Now,
		maxBody:  opts.MaxBodyBytes,
	}
}

// Resume activates the most recently created stored generation, if any,
// so a process restart keeps serving from cache before a new install
// completes. Older generations are removed so lookups and refreshes both
// go to the resumed one.
func (g *Gateway) Resume(ctx context.Context) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	names, err := g.cache.Generations(ctx)
	if err != nil {
		return fmt.Errorf("listing cache generations: %w", err)
	}
	if len(names) == 0 {
		return nil
	}
	newest := names[len(names)-1]
	if err := g.dropGenerationsExcept(ctx, names, newest); err != nil {
		return err
	}

	g.mu.Lock()
	g.active = newest
	g.claimed = true
	g.state = StateActive
	active := g.active
	g.mu.Unlock()

	g.logger.Info("resumed cache generation", "generation", active)
	return nil
}

// Install precaches every manifest asset under the manifest name. Any
// failed fetch aborts the install and nothing is stored.
func (g *Gateway) Install(ctx context.Context) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	return g.install(ctx)
}

func (g *Gateway) install(ctx context.Context) error {
	prev := g.setState(StateInstalling)

	entries, err := g.fetchAssets(ctx)
	if err == nil {
		err = g.cache.PutAll(ctx, g.manifest.Name, entries)
	}
	if err != nil {
		g.setState(prev)
		return fmt.Errorf("installing %s: %w", g.manifest.Name, err)
	}

	g.setState(StateInstalled)
	g.logger.Info("cache installed", "generation", g.manifest.Name, "assets", len(entries))
	return nil
}

func (g *Gateway) fetchAssets(ctx context.Context) ([]storage.CacheEntry, error) {
	entries := make([]storage.CacheEntry, len(g.manifest.Assets))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(installConcurrency)
	for i, asset := range g.manifest.Assets {
		eg.Go(func() error {
			resp, err := g.origin.Get(egCtx, asset)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return fmt.Errorf("fetching %s: unexpected status %d", asset, resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading %s: %w", asset, err)
			}
			entries[i] = storage.CacheEntry{
				Key:      g.origin.URL(asset).String(),
				Status:   resp.StatusCode,
				Header:   resp.Header.Clone(),
				Body:     body,
				StoredAt: g.now(),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Activate removes every generation other than the manifest's and starts
// intercepting requests.
func (g *Gateway) Activate(ctx context.Context) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	return g.activate(ctx)
}

func (g *Gateway) activate(ctx context.Context) error {
	prev := g.setState(StateActivating)

	names, err := g.cache.Generations(ctx)
	if err != nil {
		g.setState(prev)
		return fmt.Errorf("listing cache generations: %w", err)
	}
	if err := g.dropGenerationsExcept(ctx, names, g.manifest.Name); err != nil {
		g.setState(prev)
		return err
	}

	g.mu.Lock()
	g.active = g.manifest.Name
	g.claimed = true
	g.state = StateActive
	g.mu.Unlock()
	return nil
}

func (g *Gateway) dropGenerationsExcept(ctx context.Context, names []string, keep string) error {
	for _, name := range names {
		if name == keep {
			continue
		}
		if _, err := g.cache.DeleteGeneration(ctx, name); err != nil {
			return fmt.Errorf("deleting generation %s: %w", name, err)
		}
		g.logger.Info("deleted stale cache generation", "generation", name)
	}
	return nil
}

// Start installs the manifest and activates it straight away.
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if err := g.install(ctx); err != nil {
		return err
	}
	return g.activate(ctx)
}

// State returns the current lifecycle phase.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) Status(ctx context.Context) (Status, error) {
	names, err := g.cache.Generations(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("listing cache generations: %w", err)
	}
	if names == nil {
		names = []string{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		State:       g.state.String(),
		Manifest:    g.manifest.Name,
		Active:      g.active,
		Claimed:     g.claimed,
		Generations: names,
	}, nil
}

func (g *Gateway) setState(s State) (prev State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev, g.state = g.state, s
	return prev
}

// interception returns the generation fresh responses are written to and
// whether req is answered through the cache at all.
func (g *Gateway) interception(req *http.Request) (string, bool) {
	if req.Method != http.MethodGet {
		return "", false
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.claimed
}

// lookup is a cache match shared between the caller and the network leg.
type lookup struct {
	done  chan struct{}
	entry storage.CacheEntry
	hit   bool
}

// Fetch answers req. Intercepted requests are served from the cache when
// a stored copy exists while the network leg refreshes it in the
// background; otherwise the network response is returned, falling back to
// a 503 "Offline" response when the origin is unreachable. Fetch only
// returns an error for requests it does not intercept.
func (g *Gateway) Fetch(req *http.Request) (*http.Response, error) {
	generation, ok := g.interception(req)
	if !ok {
		return g.origin.Do(req)
	}

	// The network leg outlives the caller when a cached copy is served.
	ctx := context.WithoutCancel(req.Context())
	key := req.URL.String()

	lk := &lookup{done: make(chan struct{})}
	go func() {
		defer close(lk.done)
		entry, hit, err := g.cache.Match(ctx, key)
		if err != nil {
			g.logger.Warn("cache lookup failed", "key", key, "error", err)
			return
		}
		lk.entry, lk.hit = entry, hit
	}()

	networked := make(chan *http.Response, 1)
	g.refreshes.Add(1)
	go func() {
		defer g.refreshes.Done()
		resp := g.network(req.Clone(ctx), key, generation, lk)
		<-lk.done
		if lk.hit {
			resp.Body.Close()
			return
		}
		networked <- resp
	}()

	<-lk.done
	if lk.hit {
		return cachedResponse(lk.entry, req), nil
	}
	return <-networked, nil
}

// network fetches req from the origin and stores successful responses
// before returning them.
func (g *Gateway) network(req *http.Request, key, generation string, lk *lookup) *http.Response {
	resp, err := g.origin.Do(req)
	if err != nil {
		g.logger.Debug("origin unreachable", "url", key, "error", err)
		return g.fallback(req, lk)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		resp.Body.Close()
		g.logger.Debug("reading origin response failed", "url", key, "error", err)
		return g.fallback(req, lk)
	}
	if int64(len(body)) > g.maxBody {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return resp
	}
	resp.Body.Close()

	entry := storage.CacheEntry{
		Key:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: g.now(),
	}
	if err := g.cache.Put(req.Context(), generation, entry); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			g.logger.Debug("cache generation removed before refresh was stored", "generation", generation, "url", key)
		} else {
			g.logger.Warn("caching response failed", "url", key, "error", err)
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp
}

func (g *Gateway) fallback(req *http.Request, lk *lookup) *http.Response {
	<-lk.done
	if lk.hit {
		return cachedResponse(lk.entry, req)
	}
	return offlineResponse(req)
}

// Wait blocks until background refreshes have finished.
func (g *Gateway) Wait() {
	g.refreshes.Wait()
}

// ServeHTTP forwards r to the origin through Fetch and writes the result.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	out.URL = g.origin.URL(r.URL.RequestURI())
	out.Host = out.URL.Host
	out.RequestURI = ""

	resp, err := g.Fetch(out)
	if err != nil {
		g.logger.Warn("origin request failed", "url", out.URL.String(), "error", err)
		if errors.Is(err, context.Canceled) {
			return
		}
		resp = offlineResponse(out)
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		g.logger.Debug("writing response failed", "url", out.URL.String(), "error", err)
	}
}

// cachedResponse materialises a stored entry. Every call returns its own
// body reader.
func cachedResponse(e storage.CacheEntry, req *http.Request) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func offlineResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        "503 " + http.StatusText(http.StatusServiceUnavailable),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(bytes.NewReader([]byte(offlineBody))),
		ContentLength: int64(len(offlineBody)),
		Request:       req,
	}
}
