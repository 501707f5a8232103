package billing

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/blockbill/blockbill/app/models"
)

// Event kinds delivered on the billing platform's external bus. The set is
// closed; anything not listed here is ignored by the listener.
const (
	EventPaymentSuccess     = "PAYMENT_SUCCESS"
	EventPaymentFailed      = "PAYMENT_FAILED"
	EventSubscriptionChange = "SUBSCRIPTION_CHANGE"
)

// Event is one external bus notification from the billing platform.
type Event struct {
	Type       string
	ObjectID   uuid.UUID
	ObjectType string
	AccountID  uuid.UUID
	TenantID   *uuid.UUID
}

// Registrar accepts newly observed pending payments. Implemented by the
// reconciliation engine.
type Registrar interface {
	RegisterPendingPayment(payment *models.PendingPayment) error
}

// Listener consumes billing bus events and registers pending payments for the
// plugins this engine settles. It runs on whatever goroutine delivers the
// events and never blocks beyond its own store and platform calls.
type Listener struct {
	platform    Platform
	registrar   Registrar
	pluginNames []string
}

// NewListener creates a bus listener reacting to the given settlement plugin
// names (comma-separated lists are accepted as-is from configuration).
func NewListener(platform Platform, registrar Registrar, pluginNames []string) *Listener {
	names := make([]string, 0, len(pluginNames))
	for _, n := range pluginNames {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	log.Infof("[Billing Listener] Reacting to plugins: %s", strings.Join(names, ","))
	return &Listener{
		platform:    platform,
		registrar:   registrar,
		pluginNames: names,
	}
}

// HandleEvent dispatches one bus event. Unknown kinds are ignored.
func (l *Listener) HandleEvent(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventPaymentSuccess:
		log.Debugf("[Billing Listener] Received %s for %s %s", ev.Type, ev.ObjectType, ev.ObjectID)
		l.handlePaymentNotification(ctx, ev)
	default:
		// ignore
	}
}

func (l *Listener) handlePaymentNotification(ctx context.Context, ev Event) {
	call := CallContext{TenantID: ev.TenantID, CreatedBy: "blockbill"}

	payment, err := l.platform.GetPayment(ctx, ev.ObjectID, call)
	if err != nil {
		log.Warnf("[Billing Listener] Unable to retrieve payment %s: %v", ev.ObjectID, err)
		return
	}

	method, err := l.platform.GetPaymentMethod(ctx, payment.PaymentMethodID, call)
	if err != nil {
		log.Warnf("[Billing Listener] Unable to retrieve payment method %s: %v", payment.PaymentMethodID, err)
		return
	}

	// Only care about payments settled through our registered plugins.
	if !l.watchesPlugin(method.PluginName) {
		log.Infof("[Billing Listener] Filtering out payment %s (plugin %s)", payment.ID, method.PluginName)
		return
	}

	if payment.Status != PaymentStatusPending {
		log.Infof("[Billing Listener] Filtering out payment %s (status %s)", payment.ID, payment.Status)
		return
	}

	contractID, err := uuid.Parse(payment.SecondReferenceID)
	if err != nil {
		log.Warnf("[Billing Listener] Payment %s carries no usable contract id: %v", payment.ID, err)
		return
	}

	pending := &models.PendingPayment{
		PaymentID:     payment.ID,
		AccountID:     payment.AccountID,
		TenantID:      ev.TenantID,
		BtcContractID: contractID,
	}
	if payment.FirstReferenceID != "" {
		tx := payment.FirstReferenceID
		pending.BtcTxHash = &tx
	}

	log.Infof("[Billing Listener] Registering payment %s, txHash=%s, contractId=%s",
		payment.ID, payment.FirstReferenceID, contractID)
	if err := l.registrar.RegisterPendingPayment(pending); err != nil {
		log.Errorf("[Billing Listener] Failed to register pending payment %s: %v", payment.ID, err)
	}
}

func (l *Listener) watchesPlugin(name string) bool {
	for _, n := range l.pluginNames {
		if n == name {
			return true
		}
	}
	return false
}
