package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetNotifications handles GET /api/notifications?page=&limit=
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	pq := parsePageQuery(c)
	notifs, meta, err := s.notificationService.ListNotifications(ctx, userID, pq.Page, pq.Limit)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifs,
		"pagination":    meta,
	})
}

// MarkNotificationRead handles PUT /api/notifications/:id/read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	notifID, err := s.parseID(c, "id", "notification ID")
	if err != nil {
		return nil
	}

	if err := s.notificationService.MarkNotificationRead(ctx, notifID, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Notification marked as read"})
}
