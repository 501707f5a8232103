package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/blockbill/blockbill/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers all HTTP routes on the app.
func InstallRouter(app *fiber.App, pc *controllers.PaymentController, nc *controllers.NotificationController) {
	setup(app, NewProtocolRouter(pc, nc))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
