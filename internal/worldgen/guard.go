package worldgen

import "sync"

// Guard serializes regenerations for callers that share one Generator.
// It is a token, not a queue: TryAcquire never blocks.
type Guard struct {
	mu   sync.Mutex
	busy bool
}

// TryAcquire takes the token. Returns false if another run holds it.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busy {
		return false
	}
	g.busy = true
	return true
}

// Release returns the token.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.busy = false
}

// Busy reports whether the token is held.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}
