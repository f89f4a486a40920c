package utils

import (
	"sync"
	"time"
)

// KeyedWindow counts hits per key inside a trailing time window.
type KeyedWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   map[string][]time.Time
}

func NewKeyedWindow(window time.Duration) *KeyedWindow {
	return &KeyedWindow{window: window, hits: make(map[string][]time.Time)}
}

// Allow records a hit for key and reports whether the key stayed within limit.
// A rejected hit is not recorded. limit <= 0 disables the check.
func (w *KeyedWindow) Allow(key string, now time.Time, limit int) bool {
	if limit <= 0 || w.window <= 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	hits := w.pruneLocked(key, now)
	if len(hits) >= limit {
		w.hits[key] = hits
		return false
	}
	w.hits[key] = append(hits, now)
	return true
}

func (w *KeyedWindow) Count(key string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	hits := w.pruneLocked(key, now)
	if len(hits) == 0 {
		delete(w.hits, key)
		return 0
	}
	w.hits[key] = hits
	return len(hits)
}

func (w *KeyedWindow) pruneLocked(key string, now time.Time) []time.Time {
	hits := w.hits[key]
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	return hits[idx:]
}
