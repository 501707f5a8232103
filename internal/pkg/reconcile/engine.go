// Package reconcile matches confirmed on-chain transactions back to the
// billing platform's pending payments.
package reconcile

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/blockbill/blockbill/app/models"
	"github.com/blockbill/blockbill/app/repository"
	"github.com/blockbill/blockbill/internal/pkg/billing"
)

// Engine resolves confirmed transactions against the pending payment store
// and notifies the billing platform at most once per record.
type Engine struct {
	payments        repository.PendingPaymentRepository
	platform        billing.Platform
	confidenceDepth int
	callTimeout     time.Duration
}

// NewEngine creates a reconciliation engine. confidenceDepth is only used for
// the audit comment on the billing call; the watcher enforces the threshold.
func NewEngine(payments repository.PendingPaymentRepository, platform billing.Platform, confidenceDepth int) *Engine {
	return &Engine{
		payments:        payments,
		platform:        platform,
		confidenceDepth: confidenceDepth,
		callTimeout:     time.Minute,
	}
}

// RegisterPendingPayment records a billing payment awaiting on-chain
// settlement. Store failures propagate to the caller.
func (e *Engine) RegisterPendingPayment(payment *models.PendingPayment) error {
	return e.payments.Create(payment)
}

// Resolve looks up the pending payment carrying txHash and, when found,
// notifies the billing platform that the payment settled. The record is
// deleted whether or not the notification succeeded: once a transaction is
// buried deep enough, retrying the notification would most likely end the
// same way, and the store must not grow unbounded. Returns false when no
// record matches, which makes repeated confirmation events for the same hash
// harmless.
func (e *Engine) Resolve(txHash string) bool {
	pending, err := e.payments.GetByTxHash(txHash)
	if err != nil {
		log.Errorf("[Reconcile] Lookup for transaction %s failed: %v", txHash, err)
		return false
	}
	if pending == nil {
		return false
	}

	defer func() {
		if err := e.payments.Delete(pending.ID); err != nil {
			log.Errorf("[Reconcile] Failed to delete pending payment %s: %v", pending.PaymentID, err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
	defer cancel()

	call := billing.SystemCallContext(pending.TenantID, e.confidenceDepth)
	account, err := e.platform.GetAccount(ctx, pending.AccountID, call)
	if err != nil {
		log.Warnf("[Reconcile] Failed to notify billing for payment %s, account %s: %v",
			pending.PaymentID, pending.AccountID, err)
		return true
	}
	if err := e.platform.NotifyPendingPaymentCompleted(ctx, account.ID, pending.PaymentID, true, call); err != nil {
		log.Warnf("[Reconcile] Failed to notify billing for payment %s: %v", pending.PaymentID, err)
	}
	return true
}
