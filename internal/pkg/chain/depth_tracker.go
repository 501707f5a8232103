package chain

import "sync"

// depthTracker remembers the last emitted confirmation depth per watched
// transaction so subscribers only ever see growth. State for transactions
// that leave the watch set is pruned, keeping the map bounded by the number
// of unresolved payments.
type depthTracker struct {
	mu   sync.Mutex
	last map[string]int64
}

func newDepthTracker() *depthTracker {
	return &depthTracker{last: make(map[string]int64)}
}

// observe records depth for hash and reports whether it grew since the last
// observation.
func (t *depthTracker) observe(hash string, depth int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, seen := t.last[hash]
	if seen && depth <= last {
		return false
	}
	t.last[hash] = depth
	return true
}

// prune drops state for every transaction not in the watched set.
func (t *depthTracker) prune(watched map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for hash := range t.last {
		if _, ok := watched[hash]; !ok {
			delete(t.last, hash)
		}
	}
}

// size reports how many transactions carry tracked state.
func (t *depthTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
