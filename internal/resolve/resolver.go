// Package resolve turns human-entered route numbers into canonical route
// identifiers and serves cached station lists. Lookups go through the
// two-tier cache; only a miss reaches the upstream gateway.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/koreameme/daegu-bus-realtime/internal/cache"
	"github.com/koreameme/daegu-bus-realtime/internal/model"
	"github.com/koreameme/daegu-bus-realtime/internal/upstream"
)

// ErrRouteNotFound means the queried route number matches nothing in the
// catalog. Callers surface it to the user; it is never swallowed.
var ErrRouteNotFound = errors.New("route not found")

const (
	catalogKey     = "daegu_bus_routes"
	stationKeyBase = "daegu_bus_stations/"
)

// Ranker picks the canonical record among catalog entries sharing one route
// number. It is called with at least one candidate.
type Ranker func(candidates []model.Route) model.Route

// PreferCanonicalSuffix is the default Ranker: the provider's primary
// variant of a route carries an id ending in "000" (a convention observed
// in the live catalog, not documented); absent one, catalog order wins.
func PreferCanonicalSuffix(candidates []model.Route) model.Route {
	for _, r := range candidates {
		if strings.HasSuffix(r.RouteID, "000") {
			return r
		}
	}
	return candidates[0]
}

// Resolver answers route-number and station-list lookups.
type Resolver struct {
	api        upstream.API
	cache      *cache.Cache
	rank       Ranker
	stationTTL time.Duration
}

// New creates a resolver. stationTTL bounds the station-list freshness
// window; the route catalog itself never expires within a deployment.
func New(api upstream.API, c *cache.Cache, stationTTL time.Duration) *Resolver {
	return &Resolver{
		api:        api,
		cache:      c,
		rank:       PreferCanonicalSuffix,
		stationTTL: stationTTL,
	}
}

// SetRanker replaces the candidate ranking rule.
func (r *Resolver) SetRanker(rank Ranker) {
	if rank != nil {
		r.rank = rank
	}
}

// RouteID resolves a route number (exact match, caller trims input) to the
// canonical route identifier. Returns ErrRouteNotFound when the catalog has
// no entry for it.
func (r *Resolver) RouteID(ctx context.Context, routeNo string) (string, error) {
	catalog := r.catalog(ctx)

	var candidates []model.Route
	for _, route := range catalog {
		if route.RouteNo == routeNo {
			candidates = append(candidates, route)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("route %q: %w", routeNo, ErrRouteNotFound)
	}

	best := r.rank(candidates)
	if len(candidates) > 1 {
		log.Printf("Resolve: %d catalog variants for %s, selected %s", len(candidates), routeNo, best.RouteID)
	}
	return best.RouteID, nil
}

// Stations returns the ordered station list for a route id, cached per
// route with the configured freshness window.
func (r *Resolver) Stations(ctx context.Context, routeID string) []model.Station {
	key := stationKeyBase + routeID
	if payload, ok := r.cache.Get(ctx, key, r.stationTTL); ok {
		var stations []model.Station
		if err := json.Unmarshal(payload, &stations); err == nil {
			return stations
		}
		log.Printf("Resolve: corrupt station cache for %s, refetching", routeID)
		r.cache.Invalidate(ctx, key)
	}

	stations := r.api.Stations(ctx, routeID)
	// The gateway may have answered with fallback data; it is cached all
	// the same, accepting a window of placeholder results after an outage.
	if len(stations) > 0 {
		if payload, err := json.Marshal(stations); err == nil {
			r.cache.Put(ctx, key, payload)
		}
	}
	return stations
}

// InvalidateStations drops the cached station list for a route id.
func (r *Resolver) InvalidateStations(ctx context.Context, routeID string) {
	r.cache.Invalidate(ctx, stationKeyBase+routeID)
}

// InvalidateCatalog drops the cached route catalog.
func (r *Resolver) InvalidateCatalog(ctx context.Context) {
	r.cache.Invalidate(ctx, catalogKey)
}

func (r *Resolver) catalog(ctx context.Context) []model.Route {
	if payload, ok := r.cache.Get(ctx, catalogKey, 0); ok {
		var routes []model.Route
		if err := json.Unmarshal(payload, &routes); err == nil {
			return routes
		}
		log.Printf("Resolve: corrupt catalog cache, refetching")
		r.cache.Invalidate(ctx, catalogKey)
	}

	routes := r.api.Routes(ctx)
	if len(routes) > 0 {
		if payload, err := json.Marshal(routes); err == nil {
			r.cache.Put(ctx, catalogKey, payload)
		}
	}
	return routes
}
