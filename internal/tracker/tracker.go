// Package tracker maintains the live snapshot for a tracked bus route. It
// is an explicit state machine (Idle → Resolving → Tracking) driven by a
// fixed-period timer, gated on display visibility and recent user activity
// so a backgrounded or idle session stops spending API calls.
package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koreameme/daegu-bus-realtime/internal/model"
	"github.com/koreameme/daegu-bus-realtime/internal/resolve"
	"github.com/koreameme/daegu-bus-realtime/internal/upstream"
)

// State is the tracking lifecycle state.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// Tracker owns the polling loop for one tracked route at a time.
//
// Every outbound fetch is tagged with the generation current at issue time;
// a response whose generation no longer matches (route switched, reset) is
// discarded instead of being applied to the wrong route.
type Tracker struct {
	api      upstream.API
	resolver *resolve.Resolver
	presence *Presence
	now      func() time.Time
	interval time.Duration

	mu       sync.Mutex
	state    State
	routeNo  string
	routeID  string
	snapshot Snapshot
	lastErr  error
	gen      uint64
}

// New creates a tracker in the Idle state.
func New(api upstream.API, resolver *resolve.Resolver, presence *Presence, interval time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		api:      api,
		resolver: resolver,
		presence: presence,
		now:      now,
		interval: interval,
		state:    StateIdle,
	}
}

// Track resolves routeNo and starts tracking it: stations and the initial
// vehicle positions are fetched concurrently, then published as the first
// snapshot. A resolution failure surfaces the error and returns to Idle.
// If a newer Track or Reset lands while this one is in flight, the result
// is silently discarded.
func (t *Tracker) Track(ctx context.Context, routeNo string) error {
	t.mu.Lock()
	t.gen++
	g := t.gen
	t.state = StateResolving
	t.routeNo = routeNo
	t.routeID = ""
	t.lastErr = nil
	t.mu.Unlock()

	routeID, err := t.resolver.RouteID(ctx, routeNo)
	if err != nil {
		t.mu.Lock()
		if t.gen == g {
			t.state = StateIdle
			t.routeNo = ""
			t.lastErr = err
		}
		t.mu.Unlock()
		return err
	}

	var (
		stations []model.Station
		vehicles []model.VehiclePosition
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stations = t.resolver.Stations(ctx, routeID)
	}()
	go func() {
		defer wg.Done()
		vehicles = t.api.Positions(ctx, routeID)
	}()
	wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != g {
		log.Printf("Tracker: discarding superseded result for route %s", routeNo)
		return nil
	}
	t.state = StateTracking
	t.routeID = routeID
	t.snapshot = Snapshot{
		SnapshotID: uuid.New().String(),
		RouteNo:    routeNo,
		RouteID:    routeID,
		Gyeongsan:  model.IsGyeongsanRoute(routeID),
		Stations:   stations,
		Vehicles:   vehicles,
		PolledAt:   t.now(),
	}
	log.Printf("Tracker: tracking route %s (%s), %d stations, %d buses", routeNo, routeID, len(stations), len(vehicles))
	return nil
}

// Reset returns to Idle and invalidates any in-flight fetches.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.state = StateIdle
	t.routeNo = ""
	t.routeID = ""
	t.snapshot = Snapshot{}
	t.lastErr = nil
}

// Refresh re-fetches vehicle positions for the tracked route and publishes
// a new snapshot. Stations are deliberately not re-fetched: route topology
// is assumed stable for the tracking session. Late results for an
// abandoned route are dropped.
func (t *Tracker) Refresh(ctx context.Context) {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	g := t.gen
	routeID := t.routeID
	t.mu.Unlock()

	vehicles := t.api.Positions(ctx, routeID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != g || t.state != StateTracking {
		log.Printf("Tracker: discarding stale positions for route %s", routeID)
		return
	}
	t.snapshot.SnapshotID = uuid.New().String()
	t.snapshot.Vehicles = vehicles
	t.snapshot.PolledAt = t.now()
}

// SetVisible applies a visibility change. On return to visible, one
// immediate refresh fires before the regular timer period resumes.
func (t *Tracker) SetVisible(ctx context.Context, visible bool) {
	if t.presence.SetVisible(visible) {
		t.Refresh(ctx)
	}
}

// Touch forwards a user-interaction signal to the gating window.
func (t *Tracker) Touch() {
	t.presence.Touch()
}

// Run drives the repeating refresh until ctx is cancelled. Ticks are
// skipped, not queued, while the presence gate is closed; the poll itself
// runs inline so one tick never overlaps the next fetch.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.tick(ctx)
		case <-ctx.Done():
			log.Println("Tracker: polling loop stopped")
			return
		}
	}
}

// tick is one timer period: a refresh when the gate is open, nothing
// otherwise.
func (t *Tracker) tick(ctx context.Context) {
	if t.presence.Armed() {
		t.Refresh(ctx)
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error surfaced by the last failed Track, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Snapshot returns the last published snapshot projected onto the given
// direction filter. The second return is false while nothing is tracked.
// The Stale flag reflects whether the polling gate is currently closed.
func (t *Tracker) Snapshot(f DirectionFilter) (Snapshot, bool) {
	t.mu.Lock()
	state := t.state
	snap := t.snapshot
	t.mu.Unlock()

	if state != StateTracking {
		return Snapshot{}, false
	}
	out := snap.Filtered(f)
	out.Stale = !t.presence.Armed()
	return out, true
}
