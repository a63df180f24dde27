package service

import "sync"

// selectionGuard implements "last request wins" per selection key. Every
// bundle request begins a new generation for its key; a request whose
// generation has been superseded by the time it finishes must not write to
// shared state (the bundle cache). The result is still returned to its own
// caller; only the shared side effect is dropped.
type selectionGuard struct {
	mu          sync.Mutex
	generations map[string]uint64
}

func newSelectionGuard() *selectionGuard {
	return &selectionGuard{generations: make(map[string]uint64)}
}

// Begin starts a new generation for the key and returns it.
func (g *selectionGuard) Begin(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generations[key]++
	return g.generations[key]
}

// IsCurrent reports whether gen is still the latest generation for the key.
func (g *selectionGuard) IsCurrent(key string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generations[key] == gen
}
