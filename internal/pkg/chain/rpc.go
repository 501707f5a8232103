package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/gofiber/fiber/v2/log"
)

// RPCConfig carries the connection settings for a bitcoind wallet node.
// TxSource supplies the transaction hashes currently awaiting confirmation;
// the poller queries exactly that set so a transaction stays watched until it
// is resolved, no matter how much unrelated wallet activity happens.
type RPCConfig struct {
	Host         string
	User         string
	Pass         string
	Params       *chaincfg.Params
	PollInterval time.Duration
	TxSource     func() ([]string, error)
}

// RPCClient implements Client over bitcoind's wallet JSON-RPC interface.
// bitcoind has no push channel for confirmation changes, so the client polls
// the watched transactions and re-emits (txid, confirmations) whenever the
// depth of a transaction has grown since the last cycle.
type RPCClient struct {
	cfg    RPCConfig
	rpc    *rpcclient.Client
	depths *depthTracker

	mu      sync.Mutex
	subs    []ConfidenceFunc
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRPCClient creates an RPC-backed chain client. Start must be called
// before any wallet operation.
func NewRPCClient(cfg RPCConfig) *RPCClient {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &RPCClient{
		cfg:    cfg,
		depths: newDepthTracker(),
	}
}

// Start connects to bitcoind and launches the confirmation poller.
func (c *RPCClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         c.cfg.Host,
		User:         c.cfg.User,
		Pass:         c.cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return fmt.Errorf("connect to bitcoind: %w", err)
	}

	// Fail fast when the node is unreachable or still warming up.
	if _, err := rpc.GetBlockCount(); err != nil {
		rpc.Shutdown()
		return fmt.Errorf("bitcoind not ready: %w", err)
	}

	c.rpc = rpc
	c.running = true
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.pollConfirmations()

	log.Infof("[Chain] Connected to bitcoind at %s (%s)", c.cfg.Host, c.cfg.Params.Name)
	return nil
}

// Stop halts the poller and disconnects.
func (c *RPCClient) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.rpc.Shutdown()
}

// SubscribeConfidence registers a confirmation-depth listener.
func (c *RPCClient) SubscribeConfidence(fn ConfidenceFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Balance returns the wallet's spendable balance.
func (c *RPCClient) Balance() (btcutil.Amount, error) {
	return c.rpc.GetBalance("*")
}

// SweepAll empties the wallet to addr using sendtoaddress with
// subtract-fee-from-amount, so the fee comes out of the swept balance.
func (c *RPCClient) SweepAll(addr btcutil.Address) (string, error) {
	balance, err := c.Balance()
	if err != nil {
		return "", err
	}

	params := []json.RawMessage{
		mustJSON(addr.String()),
		mustJSON(balance.ToBTC()),
		mustJSON(""),   // comment
		mustJSON(""),   // comment_to
		mustJSON(true), // subtractfeefromamount
	}
	res, err := c.rpc.RawRequest("sendtoaddress", params)
	if err != nil {
		return "", fmt.Errorf("sweep to %s: %w", addr.String(), err)
	}

	var txid string
	if err := json.Unmarshal(res, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// NewReceiveKey allocates a fresh wallet address and its output script.
func (c *RPCClient) NewReceiveKey() (*ReceiveKey, error) {
	addr, err := c.rpc.GetNewAddress("")
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	return &ReceiveKey{Address: addr.String(), Script: script}, nil
}

// Broadcast deserializes and submits a signed raw transaction.
func (c *RPCClient) Broadcast(rawTx []byte) (string, error) {
	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return "", fmt.Errorf("malformed transaction: %w", err)
	}
	hash, err := c.rpc.SendRawTransaction(&msgTx, false)
	if err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	return hash.String(), nil
}

// DumpWallet returns the node's getwalletinfo response verbatim.
func (c *RPCClient) DumpWallet() (string, error) {
	res, err := c.rpc.RawRequest("getwalletinfo", nil)
	if err != nil {
		return "", err
	}
	return string(res), nil
}

// pollConfirmations re-reads the watched transactions every cycle and
// notifies subscribers of any transaction whose depth grew.
func (c *RPCClient) pollConfirmations() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.emitConfidenceChanges()
		}
	}
}

func (c *RPCClient) emitConfidenceChanges() {
	if c.cfg.TxSource == nil {
		return
	}
	hashes, err := c.cfg.TxSource()
	if err != nil {
		log.Warnf("[Chain] Failed to read watched transactions: %v", err)
		return
	}

	c.mu.Lock()
	subs := make([]ConfidenceFunc, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	watched := make(map[string]struct{}, len(hashes))
	for _, hash := range hashes {
		watched[hash] = struct{}{}

		txHash, err := chainhash.NewHashFromStr(hash)
		if err != nil {
			log.Warnf("[Chain] Ignoring malformed watched hash %s: %v", hash, err)
			continue
		}
		tx, err := c.rpc.GetTransaction(txHash)
		if err != nil {
			log.Warnf("[Chain] gettransaction %s failed: %v", hash, err)
			continue
		}

		if !c.depths.observe(hash, tx.Confirmations) {
			continue
		}
		for _, fn := range subs {
			fn(hash, int(tx.Confirmations))
		}
	}

	// Resolved transactions leave the watch set; drop their state too.
	c.depths.prune(watched)
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
