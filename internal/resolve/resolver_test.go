package resolve

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/koreameme/daegu-bus-realtime/internal/cache"
	"github.com/koreameme/daegu-bus-realtime/internal/model"
)

// countingAPI serves canned data and counts upstream calls.
type countingAPI struct {
	routes   []model.Route
	stations []model.Station

	routeCalls   int
	stationCalls int
}

func (a *countingAPI) Routes(ctx context.Context) []model.Route {
	a.routeCalls++
	return a.routes
}

func (a *countingAPI) Positions(ctx context.Context, routeID string) []model.VehiclePosition {
	return nil
}

func (a *countingAPI) Stations(ctx context.Context, routeID string) []model.Station {
	a.stationCalls++
	return a.stations
}

func (a *countingAPI) Arrivals(ctx context.Context, stopID string) []model.Arrival {
	return nil
}

func newResolver(api *countingAPI, now func() time.Time) *Resolver {
	c := cache.NewWithClock(cache.NewMemoryStore(), now)
	return New(api, c, 24*time.Hour)
}

func TestRouteIDSuffixTieBreak(t *testing.T) {
	api := &countingAPI{routes: []model.Route{
		{RouteNo: "401", RouteID: "3000401999"},
		{RouteNo: "401", RouteID: "3000401000"},
		{RouteNo: "937", RouteID: "3000937000"},
	}}
	r := newResolver(api, time.Now)

	id, err := r.RouteID(context.Background(), "401")
	if err != nil {
		t.Fatalf("RouteID: %v", err)
	}
	if id != "3000401000" {
		t.Errorf("expected canonical 3000401000, got %s", id)
	}
}

func TestRouteIDFirstMatchWhenNoCanonical(t *testing.T) {
	api := &countingAPI{routes: []model.Route{
		{RouteNo: "649", RouteID: "3000649111"},
		{RouteNo: "649", RouteID: "3000649222"},
	}}
	r := newResolver(api, time.Now)

	id, err := r.RouteID(context.Background(), "649")
	if err != nil {
		t.Fatalf("RouteID: %v", err)
	}
	if id != "3000649111" {
		t.Errorf("expected first catalog match, got %s", id)
	}
}

func TestRouteIDNotFound(t *testing.T) {
	api := &countingAPI{routes: []model.Route{
		{RouteNo: "401", RouteID: "3000401000"},
	}}
	r := newResolver(api, time.Now)

	_, err := r.RouteID(context.Background(), "999")
	if !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
}

func TestRouteIDExactMatchOnly(t *testing.T) {
	api := &countingAPI{routes: []model.Route{
		{RouteNo: "401", RouteID: "3000401000"},
	}}
	r := newResolver(api, time.Now)

	// Whitespace and case are the caller's problem.
	if _, err := r.RouteID(context.Background(), "401 "); !errors.Is(err, ErrRouteNotFound) {
		t.Errorf("expected exact matching, got %v", err)
	}
}

func TestCatalogFetchedOnce(t *testing.T) {
	api := &countingAPI{routes: []model.Route{
		{RouteNo: "401", RouteID: "3000401000"},
	}}
	r := newResolver(api, time.Now)
	ctx := context.Background()

	r.RouteID(ctx, "401")
	r.RouteID(ctx, "401")
	r.RouteID(ctx, "937") // miss in catalog, but catalog itself is cached

	if api.routeCalls != 1 {
		t.Errorf("expected exactly 1 catalog fetch, got %d", api.routeCalls)
	}
}

func TestStationCacheExpiry(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	api := &countingAPI{stations: []model.Station{
		{StationID: "7031011500", Name: "대구역"},
	}}
	r := newResolver(api, func() time.Time { return clock })
	ctx := context.Background()

	r.Stations(ctx, "3000937000")
	r.Stations(ctx, "3000937000")
	if api.stationCalls != 1 {
		t.Fatalf("expected 1 station fetch within the window, got %d", api.stationCalls)
	}

	clock = clock.Add(25 * time.Hour)
	r.Stations(ctx, "3000937000")
	if api.stationCalls != 2 {
		t.Errorf("expected a fresh fetch after expiry, got %d", api.stationCalls)
	}
}

func TestStationCachePerRoute(t *testing.T) {
	api := &countingAPI{stations: []model.Station{{StationID: "A"}}}
	r := newResolver(api, time.Now)
	ctx := context.Background()

	r.Stations(ctx, "3000937000")
	r.Stations(ctx, "3000649000")
	if api.stationCalls != 2 {
		t.Errorf("expected per-route cache keys, got %d fetches", api.stationCalls)
	}
}

func TestInvalidateCatalogForcesRefetch(t *testing.T) {
	api := &countingAPI{routes: []model.Route{
		{RouteNo: "401", RouteID: "3000401000"},
	}}
	r := newResolver(api, time.Now)
	ctx := context.Background()

	r.RouteID(ctx, "401")
	r.InvalidateCatalog(ctx)
	r.RouteID(ctx, "401")
	if api.routeCalls != 2 {
		t.Errorf("expected refetch after invalidate, got %d", api.routeCalls)
	}
}

func TestSetRanker(t *testing.T) {
	api := &countingAPI{routes: []model.Route{
		{RouteNo: "401", RouteID: "3000401000"},
		{RouteNo: "401", RouteID: "3000401999"},
	}}
	r := newResolver(api, time.Now)
	r.SetRanker(func(candidates []model.Route) model.Route {
		return candidates[len(candidates)-1]
	})

	id, err := r.RouteID(context.Background(), "401")
	if err != nil {
		t.Fatalf("RouteID: %v", err)
	}
	if id != "3000401999" {
		t.Errorf("expected custom ranker result, got %s", id)
	}
}

func TestHistoryBoundedAndDeduplicated(t *testing.T) {
	ctx := context.Background()
	h := NewHistory(cache.NewMemoryStore(), 5)

	for _, no := range []string{"401", "937", "649", "급행1", "708", "425"} {
		h.Add(ctx, no)
	}
	got := h.List(ctx)
	want := []string{"425", "708", "급행1", "649", "937"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Re-searching an existing entry moves it to the front.
	h.Add(ctx, "649")
	got = h.List(ctx)
	want = []string{"649", "425", "708", "급행1", "937"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	h.Clear(ctx)
	if entries := h.List(ctx); len(entries) != 0 {
		t.Errorf("expected empty history after clear, got %v", entries)
	}
}
