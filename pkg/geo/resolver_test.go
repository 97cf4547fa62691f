package geo_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LuG3Zz/Blog/pkg/geo"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func TestHTTPResolverParsesRegion(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/json/41.0.0.1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"region":"Somewhere","country":"Oceania"}`))
	}))
	defer srv.Close()

	r := geo.NewHTTPResolver(newTestLogger(), srv.URL+"/json/%s", time.Second)
	if got := r.Locate(context.Background(), "41.0.0.1:8080"); got != "Somewhere" {
		t.Errorf("Locate = %q, want Somewhere", got)
	}
	if hits.Load() != 1 {
		t.Errorf("endpoint hit %d times, want 1", hits.Load())
	}
}

func TestHTTPResolverFallsBackToCountry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"country":"Oceania"}`))
	}))
	defer srv.Close()

	r := geo.NewHTTPResolver(newTestLogger(), srv.URL+"/json/%s", time.Second)
	if got := r.Locate(context.Background(), "41.0.0.1"); got != "Oceania" {
		t.Errorf("Locate = %q, want Oceania", got)
	}
}

func TestHTTPResolverDegradesToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := geo.NewHTTPResolver(newTestLogger(), srv.URL+"/json/%s", time.Second)
	if got := r.Locate(context.Background(), "41.0.0.1"); got != geo.RegionUnknown {
		t.Errorf("Locate = %q, want %q", got, geo.RegionUnknown)
	}
}

func TestHTTPResolverLocalShortCircuit(t *testing.T) {
	r := geo.NewHTTPResolver(newTestLogger(), "http://never.invalid/json/%s", time.Second)
	for _, addr := range []string{"127.0.0.1:5000", "192.168.1.10", "localhost"} {
		if got := r.Locate(context.Background(), addr); got != geo.RegionLocal {
			t.Errorf("Locate(%q) = %q, want %q", addr, got, geo.RegionLocal)
		}
	}
}

// fakeCache records lookups and writes in memory.
type fakeCache struct {
	entries map[string]string
	readErr error
	puts    int
}

func (c *fakeCache) GetLocation(_ context.Context, address string, _ time.Duration) (string, bool, error) {
	if c.readErr != nil {
		return "", false, c.readErr
	}
	region, ok := c.entries[address]
	return region, ok, nil
}

func (c *fakeCache) PutLocation(_ context.Context, address, region string) error {
	c.puts++
	c.entries[address] = region
	return nil
}

func TestCachingResolverHitSkipsLookup(t *testing.T) {
	cache := &fakeCache{entries: map[string]string{"41.0.0.1": "Cached"}}
	r := geo.NewCachingResolver(newTestLogger(), geo.StaticResolver{Region: "Fresh"}, cache, time.Hour)

	if got := r.Locate(context.Background(), "41.0.0.1:443"); got != "Cached" {
		t.Errorf("Locate = %q, want Cached", got)
	}
	if cache.puts != 0 {
		t.Errorf("cache written %d times on a hit", cache.puts)
	}
}

func TestCachingResolverMissPopulatesCache(t *testing.T) {
	cache := &fakeCache{entries: map[string]string{}}
	r := geo.NewCachingResolver(newTestLogger(), geo.StaticResolver{Region: "Fresh"}, cache, time.Hour)

	if got := r.Locate(context.Background(), "41.0.0.1"); got != "Fresh" {
		t.Errorf("Locate = %q, want Fresh", got)
	}
	if cache.entries["41.0.0.1"] != "Fresh" {
		t.Errorf("cache not populated: %v", cache.entries)
	}
}

func TestCachingResolverDoesNotCacheUnknown(t *testing.T) {
	cache := &fakeCache{entries: map[string]string{}}
	r := geo.NewCachingResolver(newTestLogger(), geo.StaticResolver{}, cache, time.Hour)

	if got := r.Locate(context.Background(), "41.0.0.1"); got != geo.RegionUnknown {
		t.Errorf("Locate = %q, want %q", got, geo.RegionUnknown)
	}
	if cache.puts != 0 {
		t.Error("unknown region should not be cached")
	}
}

func TestCachingResolverSurvivesCacheErrors(t *testing.T) {
	cache := &fakeCache{entries: map[string]string{}, readErr: errors.New("disk gone")}
	r := geo.NewCachingResolver(newTestLogger(), geo.StaticResolver{Region: "Fresh"}, cache, time.Hour)

	if got := r.Locate(context.Background(), "41.0.0.1"); got != "Fresh" {
		t.Errorf("Locate = %q, want Fresh", got)
	}
}
