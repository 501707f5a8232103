package reconcile

import (
	"github.com/gofiber/fiber/v2/log"
)

// Resolver is what the watcher drives; implemented by Engine.
type Resolver interface {
	Resolve(txHash string) bool
}

// Watcher filters confirmation-depth events against the configured threshold
// and hands qualifying transactions to the resolver. It runs on the chain
// client's event-delivery goroutine and holds no state besides the threshold,
// so duplicate or out-of-order events need no handling here: the resolver is
// idempotent.
type Watcher struct {
	resolver  Resolver
	threshold int
}

// NewWatcher creates a confirmation watcher with the given depth threshold.
func NewWatcher(resolver Resolver, threshold int) *Watcher {
	return &Watcher{resolver: resolver, threshold: threshold}
}

// OnConfidenceChanged receives one (transaction, depth) event.
func (w *Watcher) OnConfidenceChanged(txHash string, depth int) {
	if depth < w.threshold {
		return
	}
	if w.resolver.Resolve(txHash) {
		log.Infof("[Watcher] Transaction %s reached depth %d, billing notified", txHash, depth)
	}
}
