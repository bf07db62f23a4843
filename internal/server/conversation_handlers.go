package server

import (
	"vetcare/internal/models"
	"vetcare/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateConversation handles POST /api/conversations
func (s *Server) CreateConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	var req struct {
		ReceiverID     uint   `json:"receiver_id"`
		InitialMessage string `json:"initial_message,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.ReceiverID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("receiver_id is required"))
	}

	conv, err := s.messagingService.StartConversation(ctx, service.StartConversationInput{
		UserID:         userID,
		ReceiverID:     req.ReceiverID,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conv)
}

// GetConversations handles GET /api/conversations
func (s *Server) GetConversations(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	conversations, err := s.messagingService.ListConversations(ctx, userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(conversations)
}

// GetConversation handles GET /api/conversations/:id. Fetching resets the
// caller's unread counter for the conversation.
func (s *Server) GetConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseID(c, "id", "conversation ID")
	if err != nil {
		return nil
	}

	conv, err := s.messagingService.GetConversation(ctx, convID, userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(conv)
}

// ArchiveConversation handles PUT /api/conversations/:id/archive
func (s *Server) ArchiveConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseID(c, "id", "conversation ID")
	if err != nil {
		return nil
	}

	if err := s.messagingService.ArchiveConversation(ctx, convID, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Conversation archived"})
}
