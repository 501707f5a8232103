package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/blockbill/blockbill/internal/pkg/billing"
)

// NotificationController receives billing bus events pushed over HTTP and
// hands them to the listener.
type NotificationController struct {
	listener *billing.Listener
}

func NewNotificationController(listener *billing.Listener) *NotificationController {
	return &NotificationController{listener: listener}
}

type notificationRequest struct {
	EventType  string `json:"eventType"`
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	AccountID  string `json:"accountId"`
	TenantID   string `json:"tenantId"`
}

// HandleNotification ingests one billing event.
// POST /notification with a JSON body
func (nc *NotificationController) HandleNotification(c *fiber.Ctx) error {
	var req notificationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid notification body"})
	}

	objectID, err := uuid.Parse(req.ObjectID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid objectId"})
	}

	ev := billing.Event{
		Type:       req.EventType,
		ObjectID:   objectID,
		ObjectType: req.ObjectType,
	}
	if req.AccountID != "" {
		if id, err := uuid.Parse(req.AccountID); err == nil {
			ev.AccountID = id
		}
	}
	if req.TenantID != "" {
		if id, err := uuid.Parse(req.TenantID); err == nil {
			ev.TenantID = &id
		}
	}

	nc.listener.HandleEvent(c.Context(), ev)
	return c.SendStatus(fiber.StatusAccepted)
}
