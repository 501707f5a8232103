// Package negotiation implements the contract create/poll/submit protocol by
// which a payer learns how much to pay and to which output, then submits a
// signed transaction.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blockbill/blockbill/app/models"
	"github.com/blockbill/blockbill/app/repository"
	"github.com/blockbill/blockbill/internal/pkg/bip70"
	"github.com/blockbill/blockbill/internal/pkg/billing"
	"github.com/blockbill/blockbill/internal/pkg/chain"
)

// DefaultMerchantID identifies this merchant in negotiation messages.
const DefaultMerchantID = "blockbill"

// requestExpiry is how long a negotiation request stays valid.
const requestExpiry = 24 * time.Hour

var btcToSatoshi = decimal.NewFromInt(100_000_000)

// Protocol outcome errors. Controllers map these to HTTP statuses.
var (
	// ErrNoPendingPayment means there is nothing to pay or ack for the
	// contract. A distinguished "nothing to do" outcome, not a failure.
	ErrNoPendingPayment = errors.New("no pending payment for contract")

	// ErrInvalidRequest marks protocol input errors, rejected before any
	// state is mutated.
	ErrInvalidRequest = errors.New("invalid negotiation request")

	// ErrBroadcastFailed means the chain client refused or failed the
	// transaction broadcast.
	ErrBroadcastFailed = errors.New("transaction broadcast failed")
)

// Wallet is the slice of the chain client the protocol needs.
type Wallet interface {
	NewReceiveKey() (*chain.ReceiveKey, error)
	Broadcast(rawTx []byte) (string, error)
}

// Service implements the three protocol operations. It is stateless between
// calls; all shared state lives in the stores.
type Service struct {
	contracts repository.ContractRepository
	payments  repository.PendingPaymentRepository
	logs      repository.TransactionLogRepository
	platform  billing.Platform
	wallet    Wallet

	network    string // network name stamped into payment details
	baseURL    string // externally reachable base URL of the protocol endpoints
	merchantID string
}

// NewService wires the negotiation protocol to its collaborators.
func NewService(repos *repository.Repositories, platform billing.Platform, wallet Wallet, network, baseURL string) *Service {
	return &Service{
		contracts:  repos.Contract,
		payments:   repos.PendingPayment,
		logs:       repos.TransactionLog,
		platform:   platform,
		wallet:     wallet,
		network:    network,
		baseURL:    baseURL,
		merchantID: DefaultMerchantID,
	}
}

// CreateContract negotiates the contract segments for a subscription: the
// current billing-period plan and, when a plan change or cancellation is
// already scheduled, the next one. Store rows and audit entries are written
// only when a new contract is created (existingContractID == nil), and only
// after the negotiation message has been built successfully.
func (s *Service) CreateContract(ctx context.Context, call billing.CallContext, ref billing.SubscriptionRef, existingContractID *uuid.UUID) (*bip70.PaymentRequest, error) {
	if ref.Alignment != models.AlignmentSubscription {
		return nil, fmt.Errorf("%w: unsupported billing alignment %s", ErrInvalidRequest, ref.Alignment)
	}

	sub, err := s.platform.GetSubscription(ctx, ref.EntityID, call)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	currentEvent := latestBillingEvent(sub, now)
	if currentEvent == nil {
		return nil, fmt.Errorf("%w: subscription %s has no active billing period", ErrInvalidRequest, sub.ID)
	}
	futureEvent := nextChangeOrCancelEvent(sub, now)

	cancelled := sub.BillingEndDate != nil && !sub.BillingEndDate.After(now)

	var maxPayment uint64
	var frequency bip70.PaymentFrequencyType
	if !cancelled {
		maxPayment = maxPaymentSatoshis(currentEvent.NextPlan)
		frequency, err = frequencyOf(sub.LastActivePlan)
		if err != nil {
			return nil, err
		}
	}

	contractID := uuid.New()
	if existingContractID != nil {
		contractID = *existingContractID
	}

	current := bip70.RecurringPaymentContract{
		ContractID:           []byte(contractID.String()),
		PollingURL:           s.pollingURL(ref, contractID),
		Starts:               millis(currentEvent.EffectiveDate),
		PaymentFrequencyType: frequency,
		MaxPaymentPerPeriod:  maxPayment,
		MaxPaymentAmount:     maxPayment,
	}

	var segments []bip70.RecurringPaymentContract
	var nextContractID uuid.UUID
	if futureEvent != nil {
		current.Ends = millis(futureEvent.EffectiveDate)

		nextContractID = uuid.New()
		next := bip70.RecurringPaymentContract{
			ContractID: []byte(nextContractID.String()),
			PollingURL: s.pollingURL(ref, nextContractID),
			Starts:     millis(futureEvent.EffectiveDate),
		}
		if sub.BillingEndDate != nil {
			next.Ends = millis(*sub.BillingEndDate)
		}
		if futureEvent.NextPlan != nil {
			next.MaxPaymentPerPeriod = maxPaymentSatoshis(futureEvent.NextPlan)
			next.MaxPaymentAmount = next.MaxPaymentPerPeriod
			nextFreq, err := frequencyOf(futureEvent.NextPlan)
			if err != nil {
				return nil, err
			}
			next.PaymentFrequencyType = nextFreq
		}
		segments = append(segments, next)
	}
	segments = append(segments, current)

	recurring := &bip70.RecurringPaymentDetails{
		MerchantID:     s.merchantID,
		SubscriptionID: []byte(sub.ID.String()),
		Contracts:      segments,
	}

	memo := "Subscription"
	if sub.LastActivePlan != nil {
		memo = "Subscription " + sub.LastActivePlan.Name
	}
	request := s.buildRequest(&bip70.PaymentDetails{
		Network:                           s.network,
		Time:                              millis(now),
		Expires:                           millis(now.Add(requestExpiry)),
		Memo:                              memo,
		PaymentURL:                        s.baseURL + "/payment",
		MerchantData:                      []byte(contractID.String()),
		SerializedRecurringPaymentDetails: recurring.Marshal(),
	})

	// Refreshing an existing contract creates no rows.
	if existingContractID == nil {
		if err := s.persistContract(sub, ref, contractID, currentEvent.EffectiveDate, futureEvent); err != nil {
			return nil, err
		}
		if futureEvent != nil {
			if err := s.persistNextContract(sub, ref, nextContractID, futureEvent.EffectiveDate); err != nil {
				return nil, err
			}
		}
	}

	return request, nil
}

// PollForPayment answers what, if anything, is currently due under a
// contract. The oldest unresolved pending payment wins; when none exists the
// request describes a zero amount due. A fresh receiving key is allocated per
// non-zero poll.
func (s *Service) PollForPayment(ctx context.Context, call billing.CallContext, contractID, accountID uuid.UUID) (*bip70.PaymentRequest, error) {
	pendings, err := s.payments.GetUnsubmittedByContractID(contractID)
	if err != nil {
		return nil, err
	}

	var payment *billing.Payment
	if len(pendings) > 0 {
		if accountID == uuid.Nil {
			accountID = pendings[0].AccountID
		}
		payment, err = s.platform.GetPayment(ctx, pendings[0].PaymentID, call)
		if err != nil {
			return nil, err
		}
		if payment.Currency != billing.CurrencyBTC {
			return nil, fmt.Errorf("%w: pending payment %s is in %s, not %s",
				ErrInvalidRequest, payment.ID, payment.Currency, billing.CurrencyBTC)
		}
	}

	if err := s.logs.Create(&models.TransactionLog{
		AccountID:  accountID,
		ContractID: contractID,
		APICall:    models.APICallPollForPayment,
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	details := &bip70.PaymentDetails{
		Network:      s.network,
		Time:         millis(now),
		Expires:      millis(now.Add(requestExpiry)),
		Memo:         "nothing to pay",
		PaymentURL:   s.baseURL + "/payment",
		MerchantData: []byte(contractID.String()),
	}

	if payment != nil {
		amount := toSatoshis(payment.Amount)
		if amount > 0 {
			key, err := s.wallet.NewReceiveKey()
			if err != nil {
				return nil, err
			}
			details.Memo = "Payment " + payment.ID.String()
			details.Outputs = []bip70.Output{{Amount: amount, Script: key.Script}}
		}
	}

	return s.buildRequest(details), nil
}

// SubmitPayment accepts a payment message carrying exactly one signed
// transaction, broadcasts it, attaches the resulting hash to the oldest
// unresolved pending payment for the contract and acknowledges with the
// billing payment id.
//
// Tracking by transaction hash alone is vulnerable to hash malleability; an
// implementation needing correctness under malleability must additionally
// track input/output identity.
func (s *Service) SubmitPayment(ctx context.Context, call billing.CallContext, raw []byte) (*bip70.PaymentACK, error) {
	var payMsg bip70.Payment
	if err := payMsg.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(payMsg.Transactions) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one transaction, got %d", ErrInvalidRequest, len(payMsg.Transactions))
	}
	contractID, err := uuid.Parse(string(payMsg.MerchantData))
	if err != nil {
		return nil, fmt.Errorf("%w: merchant data is not a contract id: %v", ErrInvalidRequest, err)
	}

	pendings, err := s.payments.GetUnsubmittedByContractID(contractID)
	if err != nil {
		return nil, err
	}
	if len(pendings) == 0 {
		return nil, ErrNoPendingPayment
	}
	pending := pendings[0]

	if err := s.logs.Create(&models.TransactionLog{
		AccountID:  pending.AccountID,
		ContractID: contractID,
		APICall:    models.APICallCreatePayment,
	}); err != nil {
		return nil, err
	}

	txHash, err := s.wallet.Broadcast(payMsg.Transactions[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	if err := s.payments.AttachTxHash(pending.ID, txHash); err != nil {
		return nil, err
	}
	log.Infof("[Negotiation] Broadcast transaction %s for payment %s under contract %s",
		txHash, pending.PaymentID, contractID)

	return &bip70.PaymentACK{
		Payment: &payMsg,
		Memo:    "Billing payment id " + pending.PaymentID.String(),
	}, nil
}

func (s *Service) buildRequest(details *bip70.PaymentDetails) *bip70.PaymentRequest {
	return &bip70.PaymentRequest{
		PaymentDetailsVersion:    1,
		PkiType:                  "none",
		SerializedPaymentDetails: details.Marshal(),
	}
}

func (s *Service) pollingURL(ref billing.SubscriptionRef, contractID uuid.UUID) string {
	q := url.Values{}
	q.Set("merchantId", s.merchantID)
	q.Set("subscriptionId", ref.String())
	q.Set("contractId", contractID.String())
	q.Set("network", s.network)
	return s.baseURL + "/polling?" + q.Encode()
}

func (s *Service) persistContract(sub *billing.Subscription, ref billing.SubscriptionRef, contractID uuid.UUID, start time.Time, futureEvent *billing.SubscriptionEvent) error {
	contract := &models.Contract{
		EntityID:   ref.EntityID,
		ObjectType: ref.Alignment,
		ContractID: contractID,
		StartDate:  start,
	}
	if futureEvent != nil {
		end := futureEvent.EffectiveDate
		contract.EndDate = &end
	}
	if err := s.contracts.Create(contract); err != nil {
		return err
	}
	subscriptionID := sub.ID
	return s.logs.Create(&models.TransactionLog{
		AccountID:      sub.AccountID,
		SubscriptionID: &subscriptionID,
		ContractID:     contractID,
		APICall:        models.APICallCreateContract,
	})
}

func (s *Service) persistNextContract(sub *billing.Subscription, ref billing.SubscriptionRef, contractID uuid.UUID, start time.Time) error {
	contract := &models.Contract{
		EntityID:   ref.EntityID,
		ObjectType: ref.Alignment,
		ContractID: contractID,
		StartDate:  start,
		EndDate:    sub.BillingEndDate,
	}
	if err := s.contracts.Create(contract); err != nil {
		return err
	}
	subscriptionID := sub.ID
	return s.logs.Create(&models.TransactionLog{
		AccountID:      sub.AccountID,
		SubscriptionID: &subscriptionID,
		ContractID:     contractID,
		APICall:        models.APICallCreateContract,
	})
}

// latestBillingEvent finds the most recent start-billing or change event for
// the subscription itself that is already effective.
func latestBillingEvent(sub *billing.Subscription, now time.Time) *billing.SubscriptionEvent {
	for i := len(sub.Events) - 1; i >= 0; i-- {
		ev := sub.Events[i]
		if ev.EntitlementID != sub.ID || ev.EffectiveDate.After(now) {
			continue
		}
		if ev.Type == billing.SubscriptionEventStartBilling || ev.Type == billing.SubscriptionEventChange {
			return &sub.Events[i]
		}
	}
	return nil
}

// nextChangeOrCancelEvent finds the first scheduled plan change or billing
// stop strictly in the future.
func nextChangeOrCancelEvent(sub *billing.Subscription, now time.Time) *billing.SubscriptionEvent {
	for i := range sub.Events {
		ev := sub.Events[i]
		if ev.EntitlementID != sub.ID || !ev.EffectiveDate.After(now) {
			continue
		}
		if ev.Type == billing.SubscriptionEventChange || ev.Type == billing.SubscriptionEventStopBilling {
			return &sub.Events[i]
		}
	}
	return nil
}

// maxPaymentSatoshis bounds one billing period by the plan's highest
// recurring phase price, in satoshis.
func maxPaymentSatoshis(plan *billing.Plan) uint64 {
	if plan == nil {
		return 0
	}
	return toSatoshis(plan.MaxRecurringPrice())
}

func frequencyOf(plan *billing.Plan) (bip70.PaymentFrequencyType, error) {
	if plan == nil {
		return 0, fmt.Errorf("%w: subscription has no active plan", ErrInvalidRequest)
	}
	switch plan.BillingPeriod {
	case billing.BillingPeriodMonthly:
		return bip70.FrequencyMonthly, nil
	case billing.BillingPeriodQuarterly:
		return bip70.FrequencyQuarterly, nil
	case billing.BillingPeriodAnnual:
		return bip70.FrequencyAnnual, nil
	default:
		return 0, fmt.Errorf("%w: unsupported billing period %s", ErrInvalidRequest, plan.BillingPeriod)
	}
}

func toSatoshis(amount decimal.Decimal) uint64 {
	sat := amount.Mul(btcToSatoshi).IntPart()
	if sat < 0 {
		return 0
	}
	return uint64(sat)
}

func millis(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}
