package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/blockbill/blockbill/internal/pkg/bip70"
	"github.com/blockbill/blockbill/internal/pkg/billing"
	"github.com/blockbill/blockbill/internal/pkg/negotiation"
)

// WalletInfoProvider exposes the wallet snapshot used by the operator
// endpoint.
type WalletInfoProvider interface {
	DumpWallet() (string, error)
}

// PaymentController serves the payment negotiation endpoints. Request and
// response bodies are the binary protocol messages; errors are JSON.
type PaymentController struct {
	service *negotiation.Service
	wallet  WalletInfoProvider
}

func NewPaymentController(service *negotiation.Service, wallet WalletInfoProvider) *PaymentController {
	return &PaymentController{service: service, wallet: wallet}
}

// HandleCreateContract negotiates contract terms for a subscription.
// POST /contract?subscriptionId=ALIGNMENT:uuid[&contractId=uuid]
func (pc *PaymentController) HandleCreateContract(c *fiber.Ctx) error {
	ref, err := billing.ParseSubscriptionRef(c.Query("subscriptionId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	var existing *uuid.UUID
	if raw := c.Query("contractId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid contractId"})
		}
		existing = &id
	}

	request, err := pc.service.CreateContract(c.Context(), callContext(c), ref, existing)
	if err != nil {
		return protocolError(c, err)
	}

	c.Set(fiber.HeaderContentType, bip70.MimePaymentRequest)
	return c.Send(request.Marshal())
}

// HandlePollForPayment answers what is currently due under a contract.
// POST /polling?contractId=uuid[&accountId=uuid]
func (pc *PaymentController) HandlePollForPayment(c *fiber.Ctx) error {
	contractID, err := uuid.Parse(c.Query("contractId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid contractId"})
	}

	accountID := uuid.Nil
	if raw := c.Query("accountId"); raw != "" {
		accountID, err = uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid accountId"})
		}
	}

	request, err := pc.service.PollForPayment(c.Context(), callContext(c), contractID, accountID)
	if err != nil {
		return protocolError(c, err)
	}

	c.Set(fiber.HeaderContentType, bip70.MimePaymentRequest)
	return c.Send(request.Marshal())
}

// HandleSubmitPayment accepts a payment message, broadcasts its transaction
// and acknowledges.
// POST /payment with an application/bitcoin-payment body
func (pc *PaymentController) HandleSubmitPayment(c *fiber.Ctx) error {
	ack, err := pc.service.SubmitPayment(c.Context(), callContext(c), c.Body())
	if err != nil {
		return protocolError(c, err)
	}

	c.Set(fiber.HeaderContentType, bip70.MimePaymentACK)
	return c.Send(ack.Marshal())
}

// HandleWalletInfo reports the wallet state of the underlying node.
// GET /wallet
func (pc *PaymentController) HandleWalletInfo(c *fiber.Ctx) error {
	info, err := pc.wallet.DumpWallet()
	if err != nil {
		log.Errorf("[PaymentController] Wallet dump failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "wallet unavailable"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(info)
}

// callContext assembles the billing audit context from request headers.
func callContext(c *fiber.Ctx) billing.CallContext {
	call := billing.CallContext{
		CreatedBy: c.Get("X-Billing-CreatedBy"),
		Reason:    c.Get("X-Billing-Reason"),
		Comment:   c.Get("X-Billing-Comment"),
	}
	if call.CreatedBy == "" {
		call.CreatedBy = "blockbill"
	}
	if raw := c.Get("X-Billing-TenantId"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			call.TenantID = &id
		}
	}
	return call
}

// protocolError maps negotiation outcomes to HTTP statuses. Missing pending
// payments are Gone, broadcast failures are server errors, everything else
// is a client error.
func protocolError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadRequest
	slug := "bad_request"
	switch {
	case errors.Is(err, negotiation.ErrNoPendingPayment):
		status = fiber.StatusGone
		slug = "nothing_pending"
	case errors.Is(err, negotiation.ErrBroadcastFailed):
		status = fiber.StatusInternalServerError
		slug = "internal_error"
		log.Errorf("[PaymentController] %v", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": slug, "message": err.Error()})
}
