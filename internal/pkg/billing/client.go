package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blockbill/blockbill/internal/pkg/env"
)

// Audit headers forwarded with every billing platform call.
const (
	hdrCreatedBy = "X-Billing-CreatedBy"
	hdrReason    = "X-Billing-Reason"
	hdrComment   = "X-Billing-Comment"
	hdrTenant    = "X-Billing-TenantId"
)

// RESTClient implements Platform against the billing platform's HTTP API.
type RESTClient struct {
	BaseURL   string
	APIKey    string
	APISecret string

	HTTPClient *http.Client
}

// NewRESTClientFromEnv builds a billing platform client from the environment.
func NewRESTClientFromEnv() *RESTClient {
	return &RESTClient{
		BaseURL:   strings.TrimRight(env.GetEnv("BILLING_API_URL", "http://127.0.0.1:8080"), "/"),
		APIKey:    strings.TrimSpace(env.GetEnv("BILLING_API_KEY", "")),
		APISecret: strings.TrimSpace(env.GetEnv("BILLING_API_SECRET", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type accountPayload struct {
	AccountID   string `json:"accountId"`
	ExternalKey string `json:"externalKey"`
	Name        string `json:"name"`
	Currency    string `json:"currency"`
}

type paymentPayload struct {
	PaymentID         string          `json:"paymentId"`
	AccountID         string          `json:"accountId"`
	PaymentMethodID   string          `json:"paymentMethodId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	FirstReferenceID  string          `json:"firstPaymentReferenceId"`
	SecondReferenceID string          `json:"secondPaymentReferenceId"`
}

type paymentMethodPayload struct {
	PaymentMethodID string `json:"paymentMethodId"`
	PluginName      string `json:"pluginName"`
}

type planPhasePayload struct {
	Name           string          `json:"name"`
	RecurringPrice decimal.Decimal `json:"recurringPrice"`
}

type planPayload struct {
	Name          string             `json:"name"`
	BillingPeriod string             `json:"billingPeriod"`
	Phases        []planPhasePayload `json:"phases"`
}

type subscriptionEventPayload struct {
	EntitlementID string       `json:"entitlementId"`
	EffectiveDate string       `json:"effectiveDate"` // yyyy-mm-dd
	EventType     string       `json:"eventType"`
	NextPlan      *planPayload `json:"nextPlan,omitempty"`
}

type subscriptionPayload struct {
	SubscriptionID string                     `json:"subscriptionId"`
	AccountID      string                     `json:"accountId"`
	BundleID       string                     `json:"bundleId"`
	BillingEndDate string                     `json:"billingEndDate,omitempty"` // yyyy-mm-dd
	LastActivePlan *planPayload               `json:"lastActivePlan,omitempty"`
	Events         []subscriptionEventPayload `json:"events"`
}

// GetAccount fetches a billing account by id.
func (c *RESTClient) GetAccount(ctx context.Context, accountID uuid.UUID, call CallContext) (*Account, error) {
	var payload accountPayload
	if err := c.get(ctx, "/1.0/accounts/"+accountID.String(), call, &payload); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(payload.AccountID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed account id: %w", err)
	}
	return &Account{
		ID:          id,
		ExternalKey: payload.ExternalKey,
		Name:        payload.Name,
		Currency:    payload.Currency,
	}, nil
}

// GetPayment fetches a payment by id, including its plugin reference fields.
func (c *RESTClient) GetPayment(ctx context.Context, paymentID uuid.UUID, call CallContext) (*Payment, error) {
	var payload paymentPayload
	if err := c.get(ctx, "/1.0/payments/"+paymentID.String(), call, &payload); err != nil {
		return nil, err
	}
	return payload.toPayment()
}

// GetPaymentMethod fetches a payment method by id.
func (c *RESTClient) GetPaymentMethod(ctx context.Context, methodID uuid.UUID, call CallContext) (*PaymentMethod, error) {
	var payload paymentMethodPayload
	if err := c.get(ctx, "/1.0/paymentMethods/"+methodID.String(), call, &payload); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(payload.PaymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed payment method id: %w", err)
	}
	return &PaymentMethod{ID: id, PluginName: payload.PluginName}, nil
}

// NotifyPendingPaymentCompleted marks a pending payment settled (or failed)
// on the billing platform.
func (c *RESTClient) NotifyPendingPaymentCompleted(ctx context.Context, accountID, paymentID uuid.UUID, success bool, call CallContext) error {
	path := fmt.Sprintf("/1.0/accounts/%s/payments/%s/pending?success=%t", accountID, paymentID, success)
	req, err := c.newRequest(ctx, http.MethodPut, path, call)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.asError(resp)
	}
	return nil
}

// GetSubscription fetches a subscription together with its bundle timeline.
func (c *RESTClient) GetSubscription(ctx context.Context, subscriptionID uuid.UUID, call CallContext) (*Subscription, error) {
	var payload subscriptionPayload
	if err := c.get(ctx, "/1.0/subscriptions/"+subscriptionID.String()+"/timeline", call, &payload); err != nil {
		return nil, err
	}
	return payload.toSubscription()
}

func (c *RESTClient) get(ctx context.Context, path string, call CallContext, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, call)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.asError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RESTClient) newRequest(ctx context.Context, method, path string, call CallContext) (*http.Request, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.SetBasicAuth(c.APIKey, c.APISecret)
	}
	if call.CreatedBy != "" {
		req.Header.Set(hdrCreatedBy, call.CreatedBy)
	}
	if call.Reason != "" {
		req.Header.Set(hdrReason, call.Reason)
	}
	if call.Comment != "" {
		req.Header.Set(hdrComment, call.Comment)
	}
	if call.TenantID != nil {
		req.Header.Set(hdrTenant, call.TenantID.String())
	}
	return req, nil
}

func (c *RESTClient) asError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("billing platform returned %d: %s", resp.StatusCode, msg)
}

func (p *paymentPayload) toPayment() (*Payment, error) {
	id, err := uuid.Parse(p.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed payment id: %w", err)
	}
	accountID, err := uuid.Parse(p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed account id: %w", err)
	}
	methodID, err := uuid.Parse(p.PaymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed payment method id: %w", err)
	}
	return &Payment{
		ID:                id,
		AccountID:         accountID,
		PaymentMethodID:   methodID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            p.Status,
		FirstReferenceID:  p.FirstReferenceID,
		SecondReferenceID: p.SecondReferenceID,
	}, nil
}

func (p *subscriptionPayload) toSubscription() (*Subscription, error) {
	id, err := uuid.Parse(p.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed subscription id: %w", err)
	}
	accountID, err := uuid.Parse(p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed account id: %w", err)
	}
	bundleID, err := uuid.Parse(p.BundleID)
	if err != nil {
		return nil, fmt.Errorf("billing returned malformed bundle id: %w", err)
	}

	sub := &Subscription{
		ID:        id,
		AccountID: accountID,
		BundleID:  bundleID,
	}
	if p.BillingEndDate != "" {
		end, err := parseDate(p.BillingEndDate)
		if err != nil {
			return nil, err
		}
		sub.BillingEndDate = &end
	}
	if p.LastActivePlan != nil {
		sub.LastActivePlan = p.LastActivePlan.toPlan()
	}
	for _, ev := range p.Events {
		entitlementID, err := uuid.Parse(ev.EntitlementID)
		if err != nil {
			return nil, fmt.Errorf("billing returned malformed entitlement id: %w", err)
		}
		effective, err := parseDate(ev.EffectiveDate)
		if err != nil {
			return nil, err
		}
		event := SubscriptionEvent{
			EntitlementID: entitlementID,
			EffectiveDate: effective,
			Type:          ev.EventType,
		}
		if ev.NextPlan != nil {
			event.NextPlan = ev.NextPlan.toPlan()
		}
		sub.Events = append(sub.Events, event)
	}
	return sub, nil
}

func (p *planPayload) toPlan() *Plan {
	plan := &Plan{Name: p.Name, BillingPeriod: p.BillingPeriod}
	for _, ph := range p.Phases {
		plan.Phases = append(plan.Phases, PlanPhase{Name: ph.Name, RecurringPrice: ph.RecurringPrice})
	}
	return plan
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("billing returned malformed date " + s)
	}
	return t, nil
}
