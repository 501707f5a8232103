package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment states reported by the billing platform.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// CurrencyBTC is the only settlement currency this engine handles.
const CurrencyBTC = "BTC"

// Billing periods a plan can recur on.
const (
	BillingPeriodMonthly   = "MONTHLY"
	BillingPeriodQuarterly = "QUARTERLY"
	BillingPeriodAnnual    = "ANNUAL"
)

// Subscription timeline event kinds relevant to contract negotiation.
const (
	SubscriptionEventStartBilling = "START_BILLING"
	SubscriptionEventChange       = "CHANGE"
	SubscriptionEventStopBilling  = "STOP_BILLING"
)

// CallContext carries audit metadata attached to every billing platform call.
type CallContext struct {
	TenantID  *uuid.UUID
	CreatedBy string
	Reason    string
	Comment   string
}

// SystemCallContext builds the call context used for engine-originated calls.
// The confidence depth travels in the audit comment so operators can see why
// a payment was flipped to confirmed.
func SystemCallContext(tenantID *uuid.UUID, confidenceDepth int) CallContext {
	return CallContext{
		TenantID:  tenantID,
		CreatedBy: "blockbill",
		Reason:    "Bitcoin payment confirmation",
		Comment:   fmt.Sprintf("Transaction confirmed at depth %d", confidenceDepth),
	}
}

// Account is a billing platform account.
type Account struct {
	ID          uuid.UUID
	ExternalKey string
	Name        string
	Currency    string
}

// Payment is a billing platform payment. FirstReferenceID and
// SecondReferenceID are the plugin reference fields: the bitcoin transaction
// hash (when already known) and the negotiated contract id.
type Payment struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	PaymentMethodID   uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	Status            string
	FirstReferenceID  string
	SecondReferenceID string
}

// PaymentMethod identifies the plugin a payment settles through.
type PaymentMethod struct {
	ID         uuid.UUID
	PluginName string
}

// PlanPhase is one phase of a billing plan with its recurring price in the
// billing currency.
type PlanPhase struct {
	Name           string
	RecurringPrice decimal.Decimal
}

// Plan is a billing plan: a name, a recurrence period and its phases.
type Plan struct {
	Name          string
	BillingPeriod string
	Phases        []PlanPhase
}

// MaxRecurringPrice returns the highest recurring phase price of the plan.
// This bounds how much a single billing period can cost.
func (p *Plan) MaxRecurringPrice() decimal.Decimal {
	max := decimal.Zero
	for _, phase := range p.Phases {
		if phase.RecurringPrice.GreaterThan(max) {
			max = phase.RecurringPrice
		}
	}
	return max
}

// SubscriptionEvent is one entry of a subscription's billing timeline.
// NextPlan is the plan in effect from EffectiveDate on; nil for stop-billing
// events.
type SubscriptionEvent struct {
	EntitlementID uuid.UUID
	EffectiveDate time.Time
	Type          string
	NextPlan      *Plan
}

// Subscription is a billed subscription together with its bundle timeline.
// Events are ordered oldest first and may reference sibling entitlements in
// the same bundle.
type Subscription struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	BundleID       uuid.UUID
	BillingEndDate *time.Time
	LastActivePlan *Plan
	Events         []SubscriptionEvent
}

// SubscriptionRef names a billed entity and the billing alignment the caller
// negotiates under, serialized as "ALIGNMENT:uuid".
type SubscriptionRef struct {
	Alignment string
	EntityID  uuid.UUID
}

func (r SubscriptionRef) String() string {
	return r.Alignment + ":" + r.EntityID.String()
}

// ParseSubscriptionRef parses the "ALIGNMENT:uuid" form.
func ParseSubscriptionRef(s string) (SubscriptionRef, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" {
		return SubscriptionRef{}, errors.New("subscription reference must be ALIGNMENT:uuid")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return SubscriptionRef{}, fmt.Errorf("invalid subscription entity id: %w", err)
	}
	return SubscriptionRef{Alignment: strings.ToUpper(parts[0]), EntityID: id}, nil
}
