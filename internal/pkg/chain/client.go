package chain

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ConfidenceFunc receives (transaction hash, confirmation depth) events. It
// may be invoked concurrently for different transactions and repeatedly for
// the same transaction as its depth grows.
type ConfidenceFunc func(txHash string, depth int)

// ReceiveKey is a freshly allocated wallet key for receiving one payment.
type ReceiveKey struct {
	Address string
	Script  []byte
}

// Client is the wallet/chain collaborator: it owns keys, synchronizes with
// the network, broadcasts transactions and emits confirmation-depth events.
type Client interface {
	// Start begins chain synchronization and event delivery.
	Start(ctx context.Context) error
	Stop()

	// SubscribeConfidence registers fn for confirmation-depth events.
	// Registration must happen before Start.
	SubscribeConfidence(fn ConfidenceFunc)

	// Balance returns the wallet's spendable balance.
	Balance() (btcutil.Amount, error)

	// SweepAll sends the wallet's entire spendable balance to addr and
	// returns the transaction hash.
	SweepAll(addr btcutil.Address) (string, error)

	// NewReceiveKey allocates a fresh receiving key.
	NewReceiveKey() (*ReceiveKey, error)

	// Broadcast submits a signed raw transaction to the network and returns
	// its hash once the network has accepted the broadcast. Acceptance is not
	// confirmation; confirmation arrives through SubscribeConfidence.
	Broadcast(rawTx []byte) (string, error)

	// DumpWallet returns a human-readable wallet summary for diagnostics.
	DumpWallet() (string, error)
}

// NetworkParams maps a configured network name to its chain parameters.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest", "regression":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}
