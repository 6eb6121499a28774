package resolve

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/koreameme/daegu-bus-realtime/internal/cache"
)

const historyKey = "recent_bus_routes"

// History keeps the most-recently-searched route numbers, newest first,
// deduplicated and capped. It rides on the persistent cache store; losing
// it is cosmetic.
type History struct {
	store cache.Store
	limit int
}

// NewHistory creates a history list capped at limit entries.
func NewHistory(store cache.Store, limit int) *History {
	if limit <= 0 {
		limit = 5
	}
	return &History{store: store, limit: limit}
}

// Add records routeNo as the most recent search.
func (h *History) Add(ctx context.Context, routeNo string) {
	if routeNo == "" {
		return
	}
	entries := h.List(ctx)

	updated := make([]string, 0, h.limit)
	updated = append(updated, routeNo)
	for _, e := range entries {
		if e == routeNo {
			continue
		}
		updated = append(updated, e)
		if len(updated) == h.limit {
			break
		}
	}

	payload, err := json.Marshal(updated)
	if err != nil {
		return
	}
	err = h.store.Put(ctx, historyKey, cache.Envelope{
		StoredAt: time.Now().UnixMilli(),
		Payload:  payload,
	})
	if err != nil {
		log.Printf("History: failed to persist: %v", err)
	}
}

// List returns the recent searches, newest first.
func (h *History) List(ctx context.Context) []string {
	env, err := h.store.Get(ctx, historyKey)
	if err != nil || env == nil {
		return nil
	}
	var entries []string
	if err := json.Unmarshal(env.Payload, &entries); err != nil {
		return nil
	}
	if len(entries) > h.limit {
		entries = entries[:h.limit]
	}
	return entries
}

// Clear removes the whole history.
func (h *History) Clear(ctx context.Context) {
	if err := h.store.Delete(ctx, historyKey); err != nil {
		log.Printf("History: failed to clear: %v", err)
	}
}
