package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepthTrackerEmitsOnlyGrowth(t *testing.T) {
	tracker := newDepthTracker()

	assert.True(t, tracker.observe("aa11", 1), "first observation always emits")
	assert.False(t, tracker.observe("aa11", 1), "unchanged depth is silent")
	assert.True(t, tracker.observe("aa11", 3))
	assert.False(t, tracker.observe("aa11", 2), "a reorged-down depth is silent")
	assert.True(t, tracker.observe("bb22", 6), "transactions are tracked independently")
}

func TestDepthTrackerPrunesResolved(t *testing.T) {
	tracker := newDepthTracker()
	tracker.observe("aa11", 6)
	tracker.observe("bb22", 2)
	assert.Equal(t, 2, tracker.size())

	// aa11 was resolved and left the watch set.
	tracker.prune(map[string]struct{}{"bb22": {}})
	assert.Equal(t, 1, tracker.size())

	// A hash reused after pruning starts fresh.
	assert.True(t, tracker.observe("aa11", 1))
}

func TestDepthTrackerPruneAll(t *testing.T) {
	tracker := newDepthTracker()
	for _, h := range []string{"a", "b", "c"} {
		tracker.observe(h, 1)
	}

	tracker.prune(map[string]struct{}{})
	assert.Equal(t, 0, tracker.size())
}
