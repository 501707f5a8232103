package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockbill/blockbill/app/models"
	"github.com/blockbill/blockbill/internal/pkg/billing"
)

type fakePaymentStore struct {
	records []models.PendingPayment
	nextID  uint
}

func (s *fakePaymentStore) Create(payment *models.PendingPayment) error {
	s.nextID++
	payment.ID = s.nextID
	s.records = append(s.records, *payment)
	return nil
}

func (s *fakePaymentStore) GetByTxHash(txHash string) (*models.PendingPayment, error) {
	for i := range s.records {
		if s.records[i].BtcTxHash != nil && *s.records[i].BtcTxHash == txHash {
			rec := s.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *fakePaymentStore) GetUnsubmittedByContractID(contractID uuid.UUID) ([]models.PendingPayment, error) {
	var out []models.PendingPayment
	for _, rec := range s.records {
		if rec.BtcContractID == contractID && !rec.Submitted() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakePaymentStore) ListSubmittedTxHashes() ([]string, error) {
	var hashes []string
	for _, rec := range s.records {
		if rec.Submitted() {
			hashes = append(hashes, *rec.BtcTxHash)
		}
	}
	return hashes, nil
}

func (s *fakePaymentStore) AttachTxHash(recordID uint, txHash string) error {
	for i := range s.records {
		if s.records[i].ID == recordID {
			s.records[i].BtcTxHash = &txHash
			return nil
		}
	}
	return errors.New("record not found")
}

func (s *fakePaymentStore) Delete(recordID uint) error {
	for i := range s.records {
		if s.records[i].ID == recordID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakePaymentStore) List() ([]models.PendingPayment, error) {
	return s.records, nil
}

type fakePlatform struct {
	getAccountErr error
	notifyErr     error

	notifyCalls   int
	notifySuccess bool
	notifyPayment uuid.UUID
}

func (p *fakePlatform) GetAccount(ctx context.Context, accountID uuid.UUID, call billing.CallContext) (*billing.Account, error) {
	if p.getAccountErr != nil {
		return nil, p.getAccountErr
	}
	return &billing.Account{ID: accountID, Currency: billing.CurrencyBTC}, nil
}

func (p *fakePlatform) GetPayment(ctx context.Context, paymentID uuid.UUID, call billing.CallContext) (*billing.Payment, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePlatform) GetPaymentMethod(ctx context.Context, methodID uuid.UUID, call billing.CallContext) (*billing.PaymentMethod, error) {
	return nil, errors.New("not implemented")
}

func (p *fakePlatform) NotifyPendingPaymentCompleted(ctx context.Context, accountID, paymentID uuid.UUID, success bool, call billing.CallContext) error {
	p.notifyCalls++
	p.notifySuccess = success
	p.notifyPayment = paymentID
	return p.notifyErr
}

func (p *fakePlatform) GetSubscription(ctx context.Context, subscriptionID uuid.UUID, call billing.CallContext) (*billing.Subscription, error) {
	return nil, errors.New("not implemented")
}

func seedPending(t *testing.T, store *fakePaymentStore, txHash string) *models.PendingPayment {
	t.Helper()
	rec := &models.PendingPayment{
		PaymentID:     uuid.New(),
		AccountID:     uuid.New(),
		BtcContractID: uuid.New(),
	}
	if txHash != "" {
		rec.BtcTxHash = &txHash
	}
	require.NoError(t, store.Create(rec))
	return rec
}

func TestResolveUnknownHash(t *testing.T) {
	store := &fakePaymentStore{}
	platform := &fakePlatform{}
	engine := NewEngine(store, platform, 6)

	assert.False(t, engine.Resolve("deadbeef"))
	assert.Equal(t, 0, platform.notifyCalls)
}

func TestResolveNotifiesAndDeletesOnce(t *testing.T) {
	store := &fakePaymentStore{}
	platform := &fakePlatform{}
	engine := NewEngine(store, platform, 6)

	rec := seedPending(t, store, "aa11")

	assert.True(t, engine.Resolve("aa11"))
	assert.Equal(t, 1, platform.notifyCalls)
	assert.True(t, platform.notifySuccess)
	assert.Equal(t, rec.PaymentID, platform.notifyPayment)
	assert.Empty(t, store.records, "resolved record should be deleted")

	// A second confirmation event for the same hash finds nothing.
	assert.False(t, engine.Resolve("aa11"))
	assert.Equal(t, 1, platform.notifyCalls)
}

func TestResolveDeletesWhenAccountLookupFails(t *testing.T) {
	store := &fakePaymentStore{}
	platform := &fakePlatform{getAccountErr: errors.New("billing down")}
	engine := NewEngine(store, platform, 6)

	seedPending(t, store, "bb22")

	assert.True(t, engine.Resolve("bb22"))
	assert.Equal(t, 0, platform.notifyCalls)
	assert.Empty(t, store.records, "record is deleted even when billing is unreachable")
}

func TestResolveDeletesWhenNotifyFails(t *testing.T) {
	store := &fakePaymentStore{}
	platform := &fakePlatform{notifyErr: errors.New("conflict")}
	engine := NewEngine(store, platform, 6)

	seedPending(t, store, "cc33")

	assert.True(t, engine.Resolve("cc33"))
	assert.Equal(t, 1, platform.notifyCalls)
	assert.Empty(t, store.records)
}

func TestRegisterPendingPayment(t *testing.T) {
	store := &fakePaymentStore{}
	engine := NewEngine(store, &fakePlatform{}, 6)

	rec := &models.PendingPayment{
		PaymentID:     uuid.New(),
		AccountID:     uuid.New(),
		BtcContractID: uuid.New(),
	}
	require.NoError(t, engine.RegisterPendingPayment(rec))
	assert.Len(t, store.records, 1)
	assert.False(t, store.records[0].Submitted())
}
