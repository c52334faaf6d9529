package notify

import (
	"context"
	"sync"
	"time"

	"gumboard-api/domain"
)

// DefaultDedupWindow is how long an identical transition stays suppressed.
const DefaultDedupWindow = 30 * time.Second

// Deduper suppresses repeated reports of the same transition.
type Deduper interface {
	ShouldSend(ctx context.Context, entityID string, action domain.Action, content string, now time.Time) bool
}

func dedupKey(entityID string, action domain.Action, content string) string {
	return entityID + "_" + string(action) + "_" + content
}

// MemoryDeduper is a process-local Deduper. Expired entries are collected on
// every call.
type MemoryDeduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &MemoryDeduper{window: window, seen: make(map[string]time.Time)}
}

// ShouldSend records now under the transition key and returns true, unless the
// key was recorded less than one window ago. A rejected call leaves the stored
// timestamp untouched.
func (d *MemoryDeduper) ShouldSend(_ context.Context, entityID string, action domain.Action, content string, now time.Time) bool {
	key := dedupKey(entityID, action, content)

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, k)
		}
	}
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[key] = now
	return true
}

// Len returns the number of live entries.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
