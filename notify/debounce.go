package notify

import (
	"sync"
	"time"

	"gumboard-api/domain"
)

// DefaultDebounceWindow bounds outbound messages per actor and board.
const DefaultDebounceWindow = time.Second

// Gate lets through the first notification per actor and board within a fixed
// window. Later calls inside the window are rejected and do not extend it.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	first  map[string]time.Time
}

func NewGate(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Gate{window: window, first: make(map[string]time.Time)}
}

func gateKey(actorID, boardID string) string {
	return actorID + "-" + boardID
}

// Allow reports whether a message for actorID on board may be sent at now.
// Test boards and boards with updates disabled are always rejected.
func (g *Gate) Allow(actorID string, board domain.Board, now time.Time) bool {
	if !board.NotificationsEnabled() {
		return false
	}

	key := gateKey(actorID, board.ID)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.gc(now)
	if at, ok := g.first[key]; ok && now.Sub(at) < g.window {
		return false
	}
	g.first[key] = now
	return true
}

// gc drops keys whose window has elapsed. Callers hold g.mu.
func (g *Gate) gc(now time.Time) {
	for k, at := range g.first {
		if now.Sub(at) >= g.window {
			delete(g.first, k)
		}
	}
}

// Len returns the number of tracked keys.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.first)
}
