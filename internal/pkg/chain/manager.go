package chain

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2/log"
)

// Task is a startable background job owned by the manager, such as the bank
// forwarder. Start and Stop must be re-entrant no-ops when already in the
// target state.
type Task interface {
	Start()
	Stop()
}

// Manager ties together the chain client lifecycle: initial synchronization,
// optional key generation on startup, confirmation-event subscription and the
// background tasks that depend on a synchronized wallet.
type Manager struct {
	client       Client
	task         Task
	onConfidence ConfidenceFunc
	generateKey  bool

	mu      sync.Mutex
	started bool
}

// NewManager wires a chain client to its confirmation listener and background
// task. task may be nil when balance forwarding is disabled.
func NewManager(client Client, task Task, onConfidence ConfidenceFunc, generateKey bool) *Manager {
	return &Manager{
		client:       client,
		task:         task,
		onConfidence: onConfidence,
		generateKey:  generateKey,
	}
}

// Start synchronizes the wallet and launches event delivery. The confidence
// subscription is registered before the client starts so no early event is
// missed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	if m.onConfidence != nil {
		m.client.SubscribeConfidence(m.onConfidence)
	}

	if err := m.client.Start(ctx); err != nil {
		return err
	}

	if m.generateKey {
		key, err := m.client.NewReceiveKey()
		if err != nil {
			log.Errorf("[Chain] Failed to generate startup key: %v", err)
		} else {
			log.Infof("[Chain] Generated new wallet key %s", key.Address)
		}
	}

	if m.task != nil {
		m.task.Start()
	}

	m.started = true
	return nil
}

// Stop halts the background task first, then the client.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}

	if m.task != nil {
		m.task.Stop()
	}
	m.client.Stop()
	m.started = false
}

// Client exposes the underlying chain client for the protocol handlers.
func (m *Manager) Client() Client {
	return m.client
}
