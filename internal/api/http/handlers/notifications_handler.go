package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-sync/internal/api/dto"
	"github.com/spec-kit/incident-sync/internal/service"
)

// NotificationsHandler exposes the notification log.
type NotificationsHandler struct {
	service *service.NotificationService
}

func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	items, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	unread, err := h.service.UnreadCount(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.NotificationListResponse{Data: items, Unread: unread})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.service.MarkRead(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	if err := h.service.MarkAllRead(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
