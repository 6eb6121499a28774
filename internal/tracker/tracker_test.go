package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koreameme/daegu-bus-realtime/internal/cache"
	"github.com/koreameme/daegu-bus-realtime/internal/model"
	"github.com/koreameme/daegu-bus-realtime/internal/resolve"
)

// fakeAPI serves canned data, counts calls, and can block Positions on a
// per-route gate to simulate in-flight requests.
type fakeAPI struct {
	mu sync.Mutex

	routes   []model.Route
	stations []model.Station
	vehicles []model.VehiclePosition
	arrivals []model.Arrival

	positionCalls int
	stationCalls  int
	arrivalCalls  int

	blockPositions map[string]chan struct{} // routeID -> release gate
	positionsBegun chan string              // receives routeID when a blocked fetch starts
}

func (a *fakeAPI) Routes(ctx context.Context) []model.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.routes
}

func (a *fakeAPI) Positions(ctx context.Context, routeID string) []model.VehiclePosition {
	a.mu.Lock()
	gate := a.blockPositions[routeID]
	begun := a.positionsBegun
	a.mu.Unlock()

	if gate != nil {
		if begun != nil {
			begun <- routeID
		}
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.positionCalls++
	out := make([]model.VehiclePosition, len(a.vehicles))
	copy(out, a.vehicles)
	return out
}

func (a *fakeAPI) Stations(ctx context.Context, routeID string) []model.Station {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stationCalls++
	return a.stations
}

func (a *fakeAPI) Arrivals(ctx context.Context, stopID string) []model.Arrival {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.arrivalCalls++
	return a.arrivals
}

func (a *fakeAPI) positions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positionCalls
}

type harness struct {
	api      *fakeAPI
	presence *Presence
	tracker  *Tracker
	clock    time.Time
}

func newHarness(api *fakeAPI) *harness {
	h := &harness{api: api, clock: time.Unix(1700000000, 0)}
	now := func() time.Time { return h.clock }
	c := cache.NewWithClock(cache.NewMemoryStore(), now)
	resolver := resolve.New(api, c, 24*time.Hour)
	h.presence = NewPresence(3*time.Minute, now)
	h.tracker = New(api, resolver, h.presence, 5*time.Second, now)
	return h
}

func defaultAPI() *fakeAPI {
	return &fakeAPI{
		routes: []model.Route{
			{RouteNo: "401", RouteID: "3000401999"},
			{RouteNo: "401", RouteID: "3000401000"},
			{RouteNo: "937", RouteID: "3000937000"},
		},
		stations: []model.Station{
			{StationID: "7031011500", Name: "대구역", Direction: model.DirectionUp, SequenceIndex: 1},
			{StationID: "7031011600", Name: "중앙로역", Direction: model.DirectionDown, SequenceIndex: 2},
		},
		vehicles: []model.VehiclePosition{
			{VehicleNo: "대구70자 1234", AtStationID: "7031011500", Direction: model.DirectionUp},
		},
	}
}

func TestTrackPublishesInitialSnapshot(t *testing.T) {
	h := newHarness(defaultAPI())
	ctx := context.Background()

	if err := h.tracker.Track(ctx, "401"); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if h.tracker.State() != StateTracking {
		t.Fatalf("expected Tracking, got %v", h.tracker.State())
	}

	snap, ok := h.tracker.Snapshot(FilterAll)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.RouteID != "3000401000" {
		t.Errorf("expected canonical route id, got %s", snap.RouteID)
	}
	if len(snap.Stations) != 2 || len(snap.Vehicles) != 1 {
		t.Errorf("unexpected snapshot sizes: %d stations, %d vehicles", len(snap.Stations), len(snap.Vehicles))
	}
	if snap.SnapshotID == "" {
		t.Error("expected a snapshot id")
	}
	if snap.Stale {
		t.Error("fresh snapshot must not be stale")
	}
}

func TestTrackUnknownRouteReturnsToIdle(t *testing.T) {
	h := newHarness(defaultAPI())

	err := h.tracker.Track(context.Background(), "999")
	if !errors.Is(err, resolve.ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
	if h.tracker.State() != StateIdle {
		t.Errorf("expected Idle after failed resolution, got %v", h.tracker.State())
	}
	if h.tracker.Err() == nil {
		t.Error("expected surfaced error")
	}
	if _, ok := h.tracker.Snapshot(FilterAll); ok {
		t.Error("expected no snapshot while Idle")
	}
}

func TestRefreshUpdatesVehiclesOnly(t *testing.T) {
	api := defaultAPI()
	h := newHarness(api)
	ctx := context.Background()

	h.tracker.Track(ctx, "401")

	api.mu.Lock()
	api.vehicles = []model.VehiclePosition{
		{VehicleNo: "대구70자 1234", AtStationID: "7031011600", Direction: model.DirectionUp},
		{VehicleNo: "대구70자 5678", AtStationID: "7031011500", Direction: model.DirectionDown},
	}
	api.mu.Unlock()

	h.clock = h.clock.Add(5 * time.Second)
	h.tracker.Refresh(ctx)

	snap, _ := h.tracker.Snapshot(FilterAll)
	if len(snap.Vehicles) != 2 {
		t.Errorf("expected refreshed vehicles, got %d", len(snap.Vehicles))
	}
	if api.stationCalls != 1 {
		t.Errorf("expected stations fetched once, got %d", api.stationCalls)
	}
}

func TestRefreshWhileIdleDoesNothing(t *testing.T) {
	api := defaultAPI()
	h := newHarness(api)

	h.tracker.Refresh(context.Background())
	if api.positions() != 0 {
		t.Errorf("expected no fetch while Idle, got %d", api.positions())
	}
}

func TestHiddenSurfaceStopsPolling(t *testing.T) {
	api := defaultAPI()
	h := newHarness(api)
	ctx := context.Background()

	h.tracker.Track(ctx, "401")
	before := api.positions()

	h.tracker.SetVisible(ctx, false)
	h.tracker.tick(ctx)
	h.tracker.tick(ctx)
	if api.positions() != before {
		t.Fatalf("expected no fetches while hidden, got %d extra", api.positions()-before)
	}

	// Last snapshot stays displayed, marked stale.
	snap, ok := h.tracker.Snapshot(FilterAll)
	if !ok {
		t.Fatal("expected snapshot to survive hiding")
	}
	if !snap.Stale {
		t.Error("expected snapshot marked stale while hidden")
	}

	// Returning to visible fires exactly one immediate refresh.
	h.tracker.SetVisible(ctx, true)
	if api.positions() != before+1 {
		t.Errorf("expected exactly one immediate refresh, got %d extra", api.positions()-before)
	}

	// And the regular period resumes.
	h.tracker.tick(ctx)
	if api.positions() != before+2 {
		t.Errorf("expected timer to resume, got %d extra", api.positions()-before)
	}
}

func TestInactivityWindowStopsPolling(t *testing.T) {
	api := defaultAPI()
	h := newHarness(api)
	ctx := context.Background()

	h.tracker.Track(ctx, "401")
	before := api.positions()

	h.clock = h.clock.Add(4 * time.Minute) // beyond the 3m window
	h.tracker.tick(ctx)
	if api.positions() != before {
		t.Fatalf("expected no fetch after inactivity, got %d extra", api.positions()-before)
	}

	h.tracker.Touch()
	h.tracker.tick(ctx)
	if api.positions() != before+1 {
		t.Errorf("expected polling to resume after activity, got %d extra", api.positions()-before)
	}
}

func TestResetDiscardsInFlightRefresh(t *testing.T) {
	api := defaultAPI()
	h := newHarness(api)
	ctx := context.Background()

	h.tracker.Track(ctx, "401")

	gate := make(chan struct{})
	begun := make(chan string, 1)
	api.mu.Lock()
	api.blockPositions = map[string]chan struct{}{"3000401000": gate}
	api.positionsBegun = begun
	api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.tracker.Refresh(ctx)
		close(done)
	}()
	<-begun // the poll is in flight

	h.tracker.Reset()
	close(gate) // late response arrives after the reset
	<-done

	if h.tracker.State() != StateIdle {
		t.Errorf("expected Idle after reset, got %v", h.tracker.State())
	}
	if _, ok := h.tracker.Snapshot(FilterAll); ok {
		t.Error("expected stale response discarded, not republished")
	}
}

func TestNewerTrackSupersedesInFlightTrack(t *testing.T) {
	api := defaultAPI()
	h := newHarness(api)
	ctx := context.Background()

	gate := make(chan struct{})
	begun := make(chan string, 1)
	api.mu.Lock()
	api.blockPositions = map[string]chan struct{}{"3000401000": gate}
	api.positionsBegun = begun
	api.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.tracker.Track(ctx, "401")
		close(done)
	}()
	<-begun // first track stuck fetching positions

	if err := h.tracker.Track(ctx, "937"); err != nil {
		t.Fatalf("second Track: %v", err)
	}
	close(gate)
	<-done

	snap, ok := h.tracker.Snapshot(FilterAll)
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.RouteID != "3000937000" {
		t.Errorf("late first-track result overwrote the active route: %s", snap.RouteID)
	}
}

func TestDirectionFilterIsPureProjection(t *testing.T) {
	api := defaultAPI()
	h := newHarness(api)
	ctx := context.Background()

	h.tracker.Track(ctx, "401")
	before := api.positions()

	up, _ := h.tracker.Snapshot(FilterUp)
	down, _ := h.tracker.Snapshot(FilterDown)
	if api.positions() != before {
		t.Fatal("filtering must not trigger network calls")
	}
	if len(up.Stations) != 1 || up.Stations[0].Name != "대구역" {
		t.Errorf("unexpected upbound stations: %+v", up.Stations)
	}
	if len(down.Stations) != 1 || down.Stations[0].Name != "중앙로역" {
		t.Errorf("unexpected downbound stations: %+v", down.Stations)
	}
	if len(up.Vehicles) != 1 || len(down.Vehicles) != 0 {
		t.Errorf("unexpected vehicle split: %d up, %d down", len(up.Vehicles), len(down.Vehicles))
	}
}

func TestBoardPollAndGating(t *testing.T) {
	api := defaultAPI()
	api.arrivals = []model.Arrival{
		{RouteNo: "401", ArrivalSecs: 540, StationsAway: 4},
	}
	h := newHarness(api)
	ctx := context.Background()

	board := NewBoard(api, h.presence, "00192", func() time.Time { return h.clock })
	board.Poll(ctx)

	arrivals, polledAt := board.Arrivals()
	if len(arrivals) != 1 || arrivals[0].RouteNo != "401" {
		t.Errorf("unexpected arrivals: %+v", arrivals)
	}
	if !polledAt.Equal(h.clock) {
		t.Errorf("unexpected poll time %v", polledAt)
	}
	if api.arrivalCalls != 1 {
		t.Errorf("expected 1 arrival fetch, got %d", api.arrivalCalls)
	}
}
