package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/blockbill/blockbill/app/controllers"
	"github.com/blockbill/blockbill/internal/pkg/env"
	"github.com/blockbill/blockbill/internal/pkg/middleware"
)

// ProtocolRouter wires the payment negotiation endpoints and the operator
// wallet endpoint. The negotiation endpoints are public, payers hit them
// directly; the operator endpoints require the configured API key.
type ProtocolRouter struct {
	payments      *controllers.PaymentController
	notifications *controllers.NotificationController
}

func NewProtocolRouter(pc *controllers.PaymentController, nc *controllers.NotificationController) *ProtocolRouter {
	return &ProtocolRouter{payments: pc, notifications: nc}
}

func (h ProtocolRouter) InstallRouter(app *fiber.App) {
	app.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"service": "blockbill",
		})
	})

	app.Post("/contract", h.payments.HandleCreateContract)
	app.Post("/polling", h.payments.HandlePollForPayment)
	app.Post("/payment", h.payments.HandleSubmitPayment)

	operator := middleware.APIKeyAuthMiddleware(env.GetEnv("APP_API_KEY", ""))
	app.Get("/wallet", operator, h.payments.HandleWalletInfo)
	app.Post("/notification", operator, h.notifications.HandleNotification)
}
