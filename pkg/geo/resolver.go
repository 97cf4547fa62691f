// Package geo resolves network addresses to human-readable region
// strings for presence payloads. The registry never keys on the
// resolved region, only on the normalized address.
package geo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/LuG3Zz/Blog/pkg/netutil"
)

const (
	// RegionLocal is reported for loopback and private addresses.
	RegionLocal = "local network"
	// RegionUnknown is reported when resolution fails.
	RegionUnknown = "unknown region"
)

// Resolver turns a raw address into a region string. Implementations
// must not fail: unresolvable addresses degrade to RegionUnknown.
type Resolver interface {
	Locate(ctx context.Context, address string) string
}

// HTTPResolver queries an external lookup endpoint. The endpoint is a
// printf template receiving the address, e.g.
// "https://geo.example.com/json/%s"; the response is JSON carrying the
// region under "region" (with "country" as fallback).
type HTTPResolver struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewHTTPResolver(logger *slog.Logger, endpoint string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(slog.String("component", "geo_resolver")),
	}
}

func (r *HTTPResolver) Locate(ctx context.Context, address string) string {
	host := netutil.Normalize(address)
	if netutil.IsLocal(host) {
		return RegionLocal
	}
	if r.endpoint == "" || host == "" {
		return RegionUnknown
	}

	url := fmt.Sprintf(r.endpoint, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RegionUnknown
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("geo lookup failed", slog.String("address", host), slog.Any("error", err))
		return RegionUnknown
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("geo lookup rejected", slog.String("address", host), slog.Int("status", resp.StatusCode))
		return RegionUnknown
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return RegionUnknown
	}

	region := gjson.GetBytes(body, "region").String()
	if region == "" {
		region = gjson.GetBytes(body, "country").String()
	}
	region = strings.TrimSpace(region)
	if region == "" {
		return RegionUnknown
	}
	return region
}

// locationCache is the slice of the storage layer the caching resolver
// needs.
type locationCache interface {
	GetLocation(ctx context.Context, address string, maxAge time.Duration) (string, bool, error)
	PutLocation(ctx context.Context, address, region string) error
}

// CachingResolver wraps another resolver with a persistent cache so
// repeat lookups for the same address skip the network.
type CachingResolver struct {
	next   Resolver
	cache  locationCache
	maxAge time.Duration
	logger *slog.Logger
}

func NewCachingResolver(logger *slog.Logger, next Resolver, cache locationCache, maxAge time.Duration) *CachingResolver {
	return &CachingResolver{
		next:   next,
		cache:  cache,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "geo_cache")),
	}
}

func (r *CachingResolver) Locate(ctx context.Context, address string) string {
	host := netutil.Normalize(address)
	if netutil.IsLocal(host) {
		return RegionLocal
	}

	if region, ok, err := r.cache.GetLocation(ctx, host, r.maxAge); err != nil {
		r.logger.Warn("geo cache read failed", slog.Any("error", err))
	} else if ok {
		return region
	}

	region := r.next.Locate(ctx, host)
	// Unknown results are not cached so a transient lookup failure does
	// not stick for the whole TTL.
	if region != RegionUnknown {
		if err := r.cache.PutLocation(ctx, host, region); err != nil {
			r.logger.Warn("geo cache write failed", slog.Any("error", err))
		}
	}
	return region
}

// StaticResolver answers every lookup with a fixed region (local
// addresses still short-circuit). Useful when no lookup endpoint is
// configured.
type StaticResolver struct {
	Region string
}

func (r StaticResolver) Locate(_ context.Context, address string) string {
	if netutil.IsLocal(address) {
		return RegionLocal
	}
	if r.Region == "" {
		return RegionUnknown
	}
	return r.Region
}
