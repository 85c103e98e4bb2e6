package challenge

import "sync"

// inFlight rejects a second operation on a challenge while one is running.
type inFlight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInFlight() *inFlight {
	return &inFlight{
		ids: map[string]struct{}{},
	}
}

func (g *inFlight) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.ids[id]; busy {
		return false
	}

	g.ids[id] = struct{}{}

	return true
}

func (g *inFlight) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.ids, id)
}
