package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/koreameme/daegu-bus-realtime/internal/model"
	"github.com/koreameme/daegu-bus-realtime/internal/upstream"
)

// Board polls arrival predictions for one fixed stop (the dashboard's
// default station) on the same presence gating as the route tracker.
// Arrivals are never cached; each poll replaces the previous list.
type Board struct {
	api      upstream.API
	presence *Presence
	now      func() time.Time
	stopID   string

	mu       sync.Mutex
	arrivals []model.Arrival
	polledAt time.Time
}

// NewBoard creates an arrivals board for stopID.
func NewBoard(api upstream.API, presence *Presence, stopID string, now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{
		api:      api,
		presence: presence,
		now:      now,
		stopID:   stopID,
	}
}

// Poll fetches the current arrivals once.
func (b *Board) Poll(ctx context.Context) {
	arrivals := b.api.Arrivals(ctx, b.stopID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.arrivals = arrivals
	b.polledAt = b.now()
}

// Arrivals returns the last fetched predictions and their poll time.
func (b *Board) Arrivals() ([]model.Arrival, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Arrival, len(b.arrivals))
	copy(out, b.arrivals)
	return out, b.polledAt
}

// StopID returns the stop this board watches.
func (b *Board) StopID() string {
	return b.stopID
}

// Run polls once immediately, then on every interval tick while the
// presence gate is open, until ctx is cancelled.
func (b *Board) Run(ctx context.Context, interval time.Duration) {
	b.Poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if b.presence.Armed() {
				b.Poll(ctx)
			}
		case <-ctx.Done():
			log.Println("Board: polling loop stopped")
			return
		}
	}
}
