package forwarder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
)

// A valid testnet P2PKH address for decode checks.
const testAddress = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"

type fakeWallet struct {
	mu         sync.Mutex
	balance    btcutil.Amount
	balanceErr error
	sweepErr   error
	sweeps     int
}

func (w *fakeWallet) Balance() (btcutil.Amount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, w.balanceErr
}

func (w *fakeWallet) SweepAll(addr btcutil.Address) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sweepErr != nil {
		return "", w.sweepErr
	}
	w.sweeps++
	w.balance = 0
	return "swept-tx-hash", nil
}

func (w *fakeWallet) sweepCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sweeps
}

func TestForwardOnceBelowMinimum(t *testing.T) {
	wallet := &fakeWallet{balance: 5_000_000}
	f := New(wallet, &chaincfg.TestNet3Params, testAddress, 10_000_000, time.Hour)

	f.forwardOnce()

	assert.Equal(t, 0, wallet.sweepCount())
	assert.Equal(t, btcutil.Amount(5_000_000), wallet.balance)
}

func TestForwardOnceAtMinimum(t *testing.T) {
	wallet := &fakeWallet{balance: 10_000_000}
	f := New(wallet, &chaincfg.TestNet3Params, testAddress, 10_000_000, time.Hour)

	f.forwardOnce()

	assert.Equal(t, 1, wallet.sweepCount())
	assert.Equal(t, btcutil.Amount(0), wallet.balance)
}

func TestForwardOnceBalanceError(t *testing.T) {
	wallet := &fakeWallet{balanceErr: errors.New("node unreachable")}
	f := New(wallet, &chaincfg.TestNet3Params, testAddress, 10_000_000, time.Hour)

	f.forwardOnce()

	assert.Equal(t, 0, wallet.sweepCount())
}

func TestForwardOnceInvalidAddress(t *testing.T) {
	wallet := &fakeWallet{balance: 20_000_000}
	f := New(wallet, &chaincfg.TestNet3Params, "not-an-address", 10_000_000, time.Hour)

	f.forwardOnce()

	assert.Equal(t, 0, wallet.sweepCount(), "invalid address skips the cycle without sweeping")
}

func TestForwardOnceSweepErrorKeepsGoing(t *testing.T) {
	wallet := &fakeWallet{balance: 20_000_000, sweepErr: errors.New("rejected")}
	f := New(wallet, &chaincfg.TestNet3Params, testAddress, 10_000_000, time.Hour)

	f.forwardOnce()
	wallet.mu.Lock()
	wallet.sweepErr = nil
	wallet.mu.Unlock()
	f.forwardOnce()

	assert.Equal(t, 1, wallet.sweepCount())
}

func TestStartWithoutAddressIsDisabled(t *testing.T) {
	wallet := &fakeWallet{balance: 20_000_000}
	f := New(wallet, &chaincfg.TestNet3Params, "", 10_000_000, time.Millisecond)

	f.Start()
	assert.False(t, f.running)
	f.Stop()
}

func TestStartSweepsImmediately(t *testing.T) {
	wallet := &fakeWallet{balance: 20_000_000}
	// A long interval proves the first sweep does not wait for a tick.
	f := New(wallet, &chaincfg.TestNet3Params, testAddress, 10_000_000, time.Hour)

	f.Start()
	defer f.Stop()

	assert.Eventually(t, func() bool {
		return wallet.sweepCount() == 1
	}, time.Second, time.Millisecond)
}

func TestStartStopLifecycle(t *testing.T) {
	wallet := &fakeWallet{balance: 20_000_000}
	f := New(wallet, &chaincfg.TestNet3Params, testAddress, 10_000_000, 5*time.Millisecond)

	f.Start()
	f.Start() // second start is a no-op

	assert.Eventually(t, func() bool {
		return wallet.sweepCount() >= 1
	}, time.Second, time.Millisecond)

	f.Stop()
	f.Stop() // second stop is a no-op

	f.mu.Lock()
	running := f.running
	f.mu.Unlock()
	assert.False(t, running)
}
