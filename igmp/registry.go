package igmp

import "sync"

// linkRegistry maps link identities to their protocol state. Lookups
// run under the read lock; insertion and removal are check-then-act
// under the write lock so that a lookup never observes a half-removed
// entry.
type linkRegistry struct {
	mu    sync.RWMutex
	links map[LinkID]*linkState
}

func newLinkRegistry() *linkRegistry {
	return &linkRegistry{links: make(map[LinkID]*linkState)}
}

// lookup returns a referenced handle for the link, or nil.
func (r *linkRegistry) lookup(id LinkID) *linkState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[id]
	if !ok {
		return nil
	}
	l.incRef()
	return l
}

// createOrLookup returns a referenced handle for the link, creating the
// state if none exists. The candidate is fully initialized outside any
// lock; a concurrently created winner is preferred and the candidate
// discarded.
func (r *linkRegistry) createOrLookup(env *Env, id LinkID, link Link, cfg LinkConfig) *linkState {
	if l := r.lookup(id); l != nil {
		return l
	}

	candidate := newLinkState(env, r, id, link, cfg)

	r.mu.Lock()
	if winner, ok := r.links[id]; ok {
		winner.incRef()
		r.mu.Unlock()
		// Lost the race. The candidate was never inserted, so dropping
		// its only reference destroys it directly.
		candidate.release()
		return winner
	}
	// One reference for the registry, one for the caller.
	candidate.incRef()
	r.links[id] = candidate
	r.mu.Unlock()
	return candidate
}

// release drops one reference to l. When only the registry's own hold
// remains the entry is removed, under the write lock and with a
// re-check against concurrent lookups, and the state destroyed.
func (r *linkRegistry) release(l *linkState) {
	switch n := l.refs.Add(-1); {
	case n == 0:
		// Final reference of a state that was never inserted (or that
		// was already unlinked below).
		l.destroy()
	case n == 1:
		r.mu.Lock()
		if r.links[l.id] != l || l.refs.Load() != 1 {
			// A lookup revived the state, or this was a lost-race
			// candidate that never made it into the map.
			r.mu.Unlock()
			return
		}
		delete(r.links, l.id)
		r.mu.Unlock()
		r.release(l)
	}
}
