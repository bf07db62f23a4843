package server

import (
	"context"
	"fmt"

	"vetcare/internal/middleware"
	"vetcare/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// IssueWSTicket handles POST /api/ws/ticket. It exchanges the caller's JWT
// for a short-lived single-use ticket the browser can put in the websocket
// upgrade URL.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("ticket store unavailable")))
	}

	userID := currentUserID(c)
	ticket := uuid.NewString()
	key := fmt.Sprintf("ws_ticket:%s", ticket)

	if err := s.redis.Set(c.Context(), key, fmt.Sprintf("%d", userID), wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// WebsocketHandler upgrades authenticated connections and hands them to the
// hub. The read pump runs in the handler goroutine; the write pump runs in
// its own.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userIDVal := conn.Locals("userID")
		if userIDVal == nil {
			middleware.Logger.Warn("websocket: unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)

		user, err := s.userRepo.GetByID(context.Background(), userID)
		if err != nil {
			middleware.Logger.Warn("websocket: failed to load user", "user_id", userID, "error", err)
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, user.Username, conn)
		if err != nil {
			middleware.Logger.Warn("websocket: registration rejected", "user_id", userID, "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		middleware.Logger.Info("websocket: user connected", "user_id", userID, "username", user.Username)

		go client.WritePump()
		client.ReadPump()
	})
}
