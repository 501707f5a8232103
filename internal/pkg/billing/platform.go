package billing

import (
	"context"

	"github.com/google/uuid"
)

// Platform is the narrow surface of the billing platform this engine consumes.
// All calls block on the platform's HTTP timeout; no call is retried here.
type Platform interface {
	GetAccount(ctx context.Context, accountID uuid.UUID, call CallContext) (*Account, error)
	GetPayment(ctx context.Context, paymentID uuid.UUID, call CallContext) (*Payment, error)
	GetPaymentMethod(ctx context.Context, methodID uuid.UUID, call CallContext) (*PaymentMethod, error)

	// NotifyPendingPaymentCompleted flips a pending payment to its terminal
	// state on the billing side.
	NotifyPendingPaymentCompleted(ctx context.Context, accountID, paymentID uuid.UUID, success bool, call CallContext) error

	// GetSubscription returns a subscription together with its bundle billing
	// timeline, which contract negotiation inspects for plan changes.
	GetSubscription(ctx context.Context, subscriptionID uuid.UUID, call CallContext) (*Subscription, error)
}
