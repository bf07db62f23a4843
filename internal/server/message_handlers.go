package server

import (
	"vetcare/internal/models"
	"vetcare/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMessages handles GET /api/messages/:conversationId?page=&limit=.
// Returns one chronological page and marks the caller's unread messages as
// read as a side effect.
func (s *Server) GetMessages(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseID(c, "conversationId", "conversation ID")
	if err != nil {
		return nil
	}

	pq := parsePageQuery(c)
	messages, meta, err := s.messagingService.ListMessages(ctx, convID, userID, pq.Page, pq.Limit)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": meta,
	})
}

// SendMessage handles POST /api/messages
func (s *Server) SendMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	var req struct {
		ConversationID uint                  `json:"conversation_id"`
		Content        string                `json:"content"`
		Attachments    models.AttachmentList `json:"attachments,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.ConversationID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("conversation_id is required"))
	}

	message, err := s.messagingService.SendMessage(ctx, service.SendMessageInput{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

// EditMessage handles PUT /api/messages/:id (sender only)
func (s *Server) EditMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	msgID, err := s.parseID(c, "id", "message ID")
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	message, err := s.messagingService.EditMessage(ctx, msgID, userID, req.Content)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(message)
}

// DeleteMessage handles DELETE /api/messages/:id (sender only)
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	msgID, err := s.parseID(c, "id", "message ID")
	if err != nil {
		return nil
	}

	if err := s.messagingService.DeleteMessage(ctx, msgID, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Message deleted"})
}
