package tracker

import (
	"sync"
	"time"
)

// Presence tracks the two gating signals for live polling: whether the
// display surface is visible and whether the user has interacted within a
// trailing inactivity window. Both start true so the first session polls
// immediately.
type Presence struct {
	mu           sync.Mutex
	now          func() time.Time
	window       time.Duration
	visible      bool
	lastActivity time.Time
}

// NewPresence creates a presence tracker with the given inactivity window.
func NewPresence(window time.Duration, now func() time.Time) *Presence {
	if now == nil {
		now = time.Now
	}
	return &Presence{
		now:          now,
		window:       window,
		visible:      true,
		lastActivity: now(),
	}
}

// SetVisible records a visibility change and reports whether the surface
// just became visible again (the caller owes one immediate refresh).
func (p *Presence) SetVisible(visible bool) (becameVisible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	becameVisible = visible && !p.visible
	p.visible = visible
	if becameVisible {
		// Returning to the tab is an interaction too.
		p.lastActivity = p.now()
	}
	return becameVisible
}

// Touch records a user interaction (pointer, key, scroll, touch).
func (p *Presence) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = p.now()
}

// Armed reports whether the polling timer should fire: visible and active
// within the window.
func (p *Presence) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible && p.now().Sub(p.lastActivity) < p.window
}

// Visible reports the current visibility state.
func (p *Presence) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}
