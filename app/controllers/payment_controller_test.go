package controllers

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockbill/blockbill/app/models"
	"github.com/blockbill/blockbill/app/repository"
	"github.com/blockbill/blockbill/internal/pkg/bip70"
	"github.com/blockbill/blockbill/internal/pkg/chain"
	"github.com/blockbill/blockbill/internal/pkg/negotiation"
)

type emptyPaymentStore struct{}

func (emptyPaymentStore) Create(*models.PendingPayment) error { return nil }
func (emptyPaymentStore) GetByTxHash(string) (*models.PendingPayment, error) {
	return nil, nil
}
func (emptyPaymentStore) GetUnsubmittedByContractID(uuid.UUID) ([]models.PendingPayment, error) {
	return nil, nil
}
func (emptyPaymentStore) ListSubmittedTxHashes() ([]string, error) { return nil, nil }
func (emptyPaymentStore) AttachTxHash(uint, string) error { return nil }
func (emptyPaymentStore) Delete(uint) error { return nil }
func (emptyPaymentStore) List() ([]models.PendingPayment, error) { return nil, nil }

type emptyContractStore struct{}

func (emptyContractStore) Create(*models.Contract) error { return nil }
func (emptyContractStore) GetByContractID(uuid.UUID) (*models.Contract, error) {
	return nil, errors.New("not found")
}
func (emptyContractStore) GetByEntityID(uuid.UUID) ([]models.Contract, error) { return nil, nil }

type emptyLogStore struct{}

func (emptyLogStore) Create(*models.TransactionLog) error { return nil }
func (emptyLogStore) GetByContractID(uuid.UUID) ([]models.TransactionLog, error) {
	return nil, nil
}

type stubWallet struct {
	dump    string
	dumpErr error
}

func (w stubWallet) NewReceiveKey() (*chain.ReceiveKey, error) {
	return &chain.ReceiveKey{Address: "addr", Script: []byte{0xac}}, nil
}
func (w stubWallet) Broadcast([]byte) (string, error) { return "hash", nil }
func (w stubWallet) DumpWallet() (string, error)      { return w.dump, w.dumpErr }

func newTestApp(wallet stubWallet) *fiber.App {
	repos := &repository.Repositories{
		PendingPayment: emptyPaymentStore{},
		Contract:       emptyContractStore{},
		TransactionLog: emptyLogStore{},
	}
	service := negotiation.NewService(repos, nil, wallet, "test", "http://localhost:4000")
	pc := NewPaymentController(service, wallet)

	app := fiber.New()
	app.Post("/contract", pc.HandleCreateContract)
	app.Post("/polling", pc.HandlePollForPayment)
	app.Post("/payment", pc.HandleSubmitPayment)
	app.Get("/wallet", pc.HandleWalletInfo)
	return app
}

func TestCreateContractRequiresSubscriptionRef(t *testing.T) {
	app := newTestApp(stubWallet{})

	req := httptest.NewRequest("POST", "/contract", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPollRequiresContractID(t *testing.T) {
	app := newTestApp(stubWallet{})

	req := httptest.NewRequest("POST", "/polling?contractId=garbage", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPollReturnsPaymentRequest(t *testing.T) {
	app := newTestApp(stubWallet{})

	req := httptest.NewRequest("POST", "/polling?contractId="+uuid.New().String(), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, bip70.MimePaymentRequest, resp.Header.Get(fiber.HeaderContentType))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var request bip70.PaymentRequest
	require.NoError(t, request.Unmarshal(body))
	details, err := request.Details()
	require.NoError(t, err)
	assert.Equal(t, "nothing to pay", details.Memo)
}

func TestSubmitPaymentGarbageBody(t *testing.T) {
	app := newTestApp(stubWallet{})

	req := httptest.NewRequest("POST", "/payment", bytes.NewReader([]byte{0xff, 0xff, 0xff}))
	req.Header.Set(fiber.HeaderContentType, bip70.MimePayment)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmitPaymentNothingPendingIsGone(t *testing.T) {
	app := newTestApp(stubWallet{})

	msg := &bip70.Payment{
		MerchantData: []byte(uuid.New().String()),
		Transactions: [][]byte{{0x01}},
	}
	req := httptest.NewRequest("POST", "/payment", bytes.NewReader(msg.Marshal()))
	req.Header.Set(fiber.HeaderContentType, bip70.MimePayment)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
}

func TestWalletInfo(t *testing.T) {
	app := newTestApp(stubWallet{dump: `{"balance":0.5}`})

	req := httptest.NewRequest("GET", "/wallet", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":0.5}`, string(body))
}

func TestWalletInfoError(t *testing.T) {
	app := newTestApp(stubWallet{dumpErr: errors.New("node down")})

	req := httptest.NewRequest("GET", "/wallet", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestCallContextDefaults(t *testing.T) {
	app := fiber.New()
	tenant := uuid.New()

	app.Get("/probe", func(c *fiber.Ctx) error {
		call := callContext(c)
		assert.Equal(t, "blockbill", call.CreatedBy)
		if assert.NotNil(t, call.TenantID) {
			assert.Equal(t, tenant, *call.TenantID)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("X-Billing-TenantId", tenant.String())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
