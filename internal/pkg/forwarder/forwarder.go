// Package forwarder periodically sweeps wallet balance above a configured
// minimum to an external settlement address.
package forwarder

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gofiber/fiber/v2/log"
)

// Wallet is the slice of the chain client the forwarder needs.
type Wallet interface {
	Balance() (btcutil.Amount, error)
	SweepAll(addr btcutil.Address) (string, error)
}

// Forwarder drains confirmed wallet balance to the settlement address on a
// fixed cadence. One goroutine runs the loop; Start and Stop are re-entrant
// no-ops when already in the target state.
type Forwarder struct {
	wallet     Wallet
	params     *chaincfg.Params
	address    string
	minBalance btcutil.Amount
	interval   time.Duration

	mu           sync.Mutex
	running      bool
	shuttingDown bool
	stopCh       chan struct{}
	done         chan struct{}
}

// New creates a forwarder. An empty settlement address disables the feature:
// Start becomes a no-op.
func New(wallet Wallet, params *chaincfg.Params, address string, minBalance btcutil.Amount, interval time.Duration) *Forwarder {
	return &Forwarder{
		wallet:     wallet,
		params:     params,
		address:    address,
		minBalance: minBalance,
		interval:   interval,
	}
}

// Start launches the forwarding loop once.
func (f *Forwarder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.address == "" {
		log.Info("[Forwarder] No settlement address configured, balance forwarding disabled")
		return
	}
	if f.running {
		return
	}

	f.running = true
	f.shuttingDown = false
	f.stopCh = make(chan struct{})
	f.done = make(chan struct{})
	go f.loop()
}

// Stop signals shutdown, wakes the loop if sleeping and blocks until the loop
// has exited and cleared its running flag. The wait is bounded per iteration
// so a sweep wedged inside the chain client cannot block shutdown forever;
// such a sweep may still complete after Stop returns.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if !f.running || f.shuttingDown {
		f.mu.Unlock()
		return
	}
	f.shuttingDown = true
	close(f.stopCh)
	done := f.done
	f.mu.Unlock()

	for {
		select {
		case <-done:
			return
		case <-time.After(time.Second):
			f.mu.Lock()
			running := f.running
			f.mu.Unlock()
			if !running {
				return
			}
		}
	}
}

func (f *Forwarder) loop() {
	log.Info("[Forwarder] Starting bank forwarder loop")
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	// First sweep happens right away, not one full interval after start.
	f.forwardOnce()

	for {
		select {
		case <-f.stopCh:
			f.mu.Lock()
			f.running = false
			f.mu.Unlock()
			log.Info("[Forwarder] Stopping bank forwarder loop")
			return
		case <-ticker.C:
			f.forwardOnce()
		}
	}
}

// forwardOnce performs one sweep cycle. Failures skip the cycle, never
// terminate the loop.
func (f *Forwarder) forwardOnce() {
	balance, err := f.wallet.Balance()
	if err != nil {
		log.Warnf("[Forwarder] Failed to read wallet balance: %v", err)
		return
	}
	log.Infof("[Forwarder] Current wallet balance = %d satoshis (~%s)", int64(balance), balance.String())

	if balance < f.minBalance {
		return
	}

	addr, err := btcutil.DecodeAddress(f.address, f.params)
	if err != nil {
		log.Warnf("[Forwarder] Failed to empty wallet to target address %s: %v", f.address, err)
		return
	}

	txHash, err := f.wallet.SweepAll(addr)
	if err != nil {
		log.Warnf("[Forwarder] Sweep to %s failed: %v", f.address, err)
		return
	}
	log.Infof("[Forwarder] Emptying wallet, txHash = %s", txHash)
}
