package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingResolver struct {
	hashes []string
}

func (r *countingResolver) Resolve(txHash string) bool {
	r.hashes = append(r.hashes, txHash)
	return true
}

func TestWatcherThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		depth     int
		resolved  bool
	}{
		{"below threshold", 6, 5, false},
		{"at threshold", 6, 6, true},
		{"above threshold", 6, 12, true},
		{"zero depth", 6, 0, false},
		{"threshold one", 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &countingResolver{}
			watcher := NewWatcher(resolver, tt.threshold)

			watcher.OnConfidenceChanged("abcd", tt.depth)

			if tt.resolved {
				assert.Equal(t, []string{"abcd"}, resolver.hashes)
			} else {
				assert.Empty(t, resolver.hashes)
			}
		})
	}
}

func TestWatcherRepeatedEvents(t *testing.T) {
	resolver := &countingResolver{}
	watcher := NewWatcher(resolver, 3)

	// The same transaction gets deeper over time; every qualifying event is
	// handed to the resolver, which is idempotent.
	for depth := 1; depth <= 5; depth++ {
		watcher.OnConfidenceChanged("ff00", depth)
	}

	assert.Len(t, resolver.hashes, 3)
}
