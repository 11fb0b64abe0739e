package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/pulse/internal/storage"
)

// fakeOrigin serves every path with the current version string, except
// paths listed in missing which return 404.
type fakeOrigin struct {
	srv     *httptest.Server
	version atomic.Value // string
	hits    atomic.Int64

	mu      sync.Mutex
	missing map[string]bool
	block   chan struct{} // when non-nil, requests wait for it to close
}

func newFakeOrigin(t *testing.T) *fakeOrigin {
	t.Helper()
	o := &fakeOrigin{missing: make(map[string]bool)}
	o.version.Store("v1")
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		o.mu.Lock()
		missing := o.missing[r.URL.Path]
		block := o.block
		o.mu.Unlock()
		if block != nil {
			<-block
		}
		if missing {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "%s %s %s", o.version.Load(), r.Method, r.URL.Path)
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *fakeOrigin) setMissing(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.missing[path] = true
}

func (o *fakeOrigin) setBlock(ch chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.block = ch
}

func newTestGateway(t *testing.T, o *fakeOrigin) (*Gateway, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	origin, err := NewOrigin(o.srv.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOrigin: %v", err)
	}
	g := New(Options{
		Manifest: DefaultManifest(),
		Origin:   origin,
		Cache:    store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(g.Wait)
	return g, store
}

func get(t *testing.T, g *Gateway, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := g.Fetch(req)
	if err != nil {
		t.Fatalf("Fetch(%s): %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestFetch_PassThroughBeforeClaim(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)

	status, body := get(t, g, o.srv.URL+"/history")
	if status != http.StatusOK || body != "v1 GET /history" {
		t.Fatalf("got %d %q", status, body)
	}
	if g.State() != StateIdle {
		t.Errorf("State = %v, want idle", g.State())
	}
	if _, ok, _ := store.Match(context.Background(), o.srv.URL+"/history"); ok {
		t.Error("response cached before clients were claimed")
	}
}

func TestStart_InstallsAndActivates(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()

	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if g.State() != StateActive {
		t.Errorf("State = %v, want active", g.State())
	}

	for _, asset := range DefaultManifest().Assets {
		e, ok, err := store.Match(ctx, o.srv.URL+asset)
		if err != nil || !ok {
			t.Fatalf("asset %s not cached (err %v)", asset, err)
		}
		if e.Generation != DefaultCacheName {
			t.Errorf("asset %s stored in %q", asset, e.Generation)
		}
	}

	st, err := g.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "active" || st.Active != DefaultCacheName || !st.Claimed {
		t.Errorf("Status = %+v", st)
	}
	if len(st.Generations) != 1 || st.Generations[0] != DefaultCacheName {
		t.Errorf("Generations = %v", st.Generations)
	}
}

func TestInstall_FailureStoresNothing(t *testing.T) {
	o := newFakeOrigin(t)
	o.setMissing("/trends")
	g, store := newTestGateway(t, o)
	ctx := context.Background()

	if err := g.Start(ctx); err == nil {
		t.Fatal("expected install error")
	}
	if g.State() != StateIdle {
		t.Errorf("State = %v, want idle after failed install", g.State())
	}
	names, err := store.Generations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("Generations = %v, want none", names)
	}
	if _, ok, _ := store.Match(ctx, o.srv.URL+"/"); ok {
		t.Error("partial install left entries behind")
	}
}

func TestActivate_DeletesStaleGenerations(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()

	stale := storage.CacheEntry{Key: o.srv.URL + "/old", Status: 200, Body: []byte("old")}
	if err := store.PutAll(ctx, "pulse-v0", []storage.CacheEntry{stale}); err != nil {
		t.Fatal(err)
	}

	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	names, err := store.Generations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != DefaultCacheName {
		t.Errorf("Generations = %v, want [%s]", names, DefaultCacheName)
	}
}

func TestResume_ActivatesNewestGeneration(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()

	if err := g.Resume(ctx); err != nil {
		t.Fatalf("Resume on empty store: %v", err)
	}
	if g.State() != StateIdle {
		t.Fatalf("State = %v, want idle", g.State())
	}

	for _, name := range []string{"pulse-v0", "pulse-v1"} {
		if err := store.PutAll(ctx, name, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	st, _ := g.Status(ctx)
	if st.State != "active" || st.Active != "pulse-v1" {
		t.Errorf("Status = %+v", st)
	}
	names, err := store.Generations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "pulse-v1" {
		t.Errorf("Generations = %v, want [pulse-v1]", names)
	}
}

func TestResume_LookupsMatchRefreshedGeneration(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()

	key := o.srv.URL + "/trends"
	old := storage.CacheEntry{Key: key, Status: 200, Body: []byte("old")}
	if err := store.PutAll(ctx, "pulse-v0", []storage.CacheEntry{old}); err != nil {
		t.Fatal(err)
	}
	newer := storage.CacheEntry{Key: key, Status: 200, Body: []byte("newer")}
	if err := store.PutAll(ctx, "pulse-v1", []storage.CacheEntry{newer}); err != nil {
		t.Fatal(err)
	}
	if err := g.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	o.version.Store("v2")
	if _, body := get(t, g, key); body != "newer" {
		t.Errorf("first body = %q, want the resumed generation's copy", body)
	}
	g.Wait()
	if _, body := get(t, g, key); body != "v2 GET /trends" {
		t.Errorf("second body = %q, want the refreshed copy", body)
	}
}

func TestFetch_RefreshDoesNotRecreateDeletedGeneration(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()

	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	release := make(chan struct{})
	o.setBlock(release)

	get(t, g, o.srv.URL+"/trends")
	if _, err := store.DeleteGeneration(ctx, DefaultCacheName); err != nil {
		t.Fatalf("DeleteGeneration: %v", err)
	}
	close(release)
	g.Wait()

	names, err := store.Generations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("Generations = %v, want none after late refresh", names)
	}
}

func TestFetch_ServesCachedWithoutWaiting(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()

	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	o.version.Store("v2")
	release := make(chan struct{})
	o.setBlock(release)

	done := make(chan string, 1)
	go func() {
		_, body := get(t, g, o.srv.URL+"/trends")
		done <- body
	}()

	select {
	case body := <-done:
		if body != "v1 GET /trends" {
			t.Errorf("body = %q, want cached v1", body)
		}
	case <-time.After(time.Second):
		t.Fatal("Fetch waited for the network despite a cached copy")
	}

	close(release)
	g.Wait()

	e, ok, err := store.Match(ctx, o.srv.URL+"/trends")
	if err != nil || !ok {
		t.Fatalf("Match: ok=%v err=%v", ok, err)
	}
	if string(e.Body) != "v2 GET /trends" {
		t.Errorf("stored body = %q, want refreshed v2", e.Body)
	}
}

func TestFetch_RefreshSurvivesCallerCancel(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.version.Store("v2")

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, o.srv.URL+"/", nil)
	resp, err := g.Fetch(req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	resp.Body.Close()
	cancel()
	g.Wait()

	e, _, _ := store.Match(context.Background(), o.srv.URL+"/")
	if string(e.Body) != "v2 GET /" {
		t.Errorf("stored body = %q, want v2", e.Body)
	}
}

func TestFetch_UncachedStoresBeforeReturning(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := o.srv.URL + "/entries?page=2"
	status, body := get(t, g, url)
	if status != http.StatusOK || body != "v1 GET /entries" {
		t.Fatalf("got %d %q", status, body)
	}
	if _, ok, _ := store.Match(ctx, url); !ok {
		t.Error("network response not stored before Fetch returned")
	}
}

func TestFetch_ErrorStatusNotStored(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.setMissing("/gone")

	status, _ := get(t, g, o.srv.URL+"/gone")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if _, ok, _ := store.Match(ctx, o.srv.URL+"/gone"); ok {
		t.Error("404 response was cached")
	}
}

func TestFetch_OfflineFallback(t *testing.T) {
	o := newFakeOrigin(t)
	g, _ := newTestGateway(t, o)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := o.srv.URL
	o.srv.Close()

	status, body := get(t, g, base+"/settings")
	if status != http.StatusOK || body != "v1 GET /settings" {
		t.Errorf("cached page offline: got %d %q", status, body)
	}

	status, body = get(t, g, base+"/never-seen")
	if status != http.StatusServiceUnavailable || body != "Offline" {
		t.Errorf("uncached page offline: got %d %q", status, body)
	}
}

func TestFetch_NonGetNotIntercepted(t *testing.T) {
	o := newFakeOrigin(t)
	g, store := newTestGateway(t, o)
	ctx := context.Background()
	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, o.srv.URL+"/submit", strings.NewReader("x"))
	resp, err := g.Fetch(req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "v1 POST /submit" {
		t.Errorf("body = %q", body)
	}
	if _, ok, _ := store.Match(ctx, o.srv.URL+"/submit"); ok {
		t.Error("POST response cached")
	}
}

func TestFetch_CachedResponsesAreIndependent(t *testing.T) {
	o := newFakeOrigin(t)
	g, _ := newTestGateway(t, o)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, first := get(t, g, o.srv.URL+"/")
	_, second := get(t, g, o.srv.URL+"/")
	if first == "" || first != second {
		t.Errorf("bodies differ or empty: %q vs %q", first, second)
	}
}

func TestServeHTTP_RewritesOntoOrigin(t *testing.T) {
	o := newFakeOrigin(t)
	g, _ := newTestGateway(t, o)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:4100/history", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "v1 GET /history" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestNewOrigin_RejectsBadScheme(t *testing.T) {
	if _, err := NewOrigin("ftp://example.com", 0); err == nil {
		t.Error("expected error for ftp origin")
	}
}

func TestOriginURL(t *testing.T) {
	o, err := NewOrigin("http://127.0.0.1:5173/", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := o.URL("/trends?range=7").String(); got != "http://127.0.0.1:5173/trends?range=7" {
		t.Errorf("URL = %q", got)
	}
}

func TestStateString(t *testing.T) {
	if StateActivating.String() != "activating" {
		t.Errorf("got %q", StateActivating.String())
	}
}
