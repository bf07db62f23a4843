package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"vetcare/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startConversation(t *testing.T, app *fiber.App, senderID, receiverID uint, initial string) models.Conversation {
	t.Helper()
	resp := doJSON(t, app, http.MethodPost, "/api/conversations", senderID, fiber.Map{
		"receiver_id":     receiverID,
		"initial_message": initial,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var conv models.Conversation
	decodeBody(t, resp, &conv)
	return conv
}

func TestSendMessage(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)
	conv := startConversation(t, app, owner.ID, vet.ID, "First")

	t.Run("Success", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/messages", owner.ID, fiber.Map{
			"conversation_id": conv.ID,
			"content":         "Bella stopped eating yesterday",
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var msg models.Message
		decodeBody(t, resp, &msg)
		assert.Equal(t, owner.ID, msg.SenderID)
		assert.Equal(t, "Bella stopped eating yesterday", msg.Content)
	})

	t.Run("Attachment only is valid", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/messages", owner.ID, fiber.Map{
			"conversation_id": conv.ID,
			"attachments": []fiber.Map{
				{"url": "https://files.vetcare.example/xray.png", "file_type": "image/png", "file_name": "xray.png"},
			},
		})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("Empty message rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/messages", owner.ID, fiber.Map{
			"conversation_id": conv.ID,
			"content":         "",
		})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Non-participant masked as 404", func(t *testing.T) {
		outsider := &models.User{Username: "intruder", Email: "intruder@example.com", Role: models.RolePetOwner}
		require.NoError(t, s.userRepo.Create(context.Background(), outsider))

		resp := doJSON(t, app, http.MethodPost, "/api/messages", outsider.ID, fiber.Map{
			"conversation_id": conv.ID,
			"content":         "let me in",
		})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetMessages(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)
	conv := startConversation(t, app, owner.ID, vet.ID, "msg 1")

	for i := 2; i <= 45; i++ {
		resp := doJSON(t, app, http.MethodPost, "/api/messages", owner.ID, fiber.Map{
			"conversation_id": conv.ID,
			"content":         fmt.Sprintf("msg %d", i),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	t.Run("Chronological page with metadata", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet,
			fmt.Sprintf("/api/messages/%d?page=1&limit=20", conv.ID), vet.ID, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Messages   []models.Message `json:"messages"`
			Pagination struct {
				Total int64 `json:"total"`
				Page  int   `json:"page"`
				Pages int   `json:"pages"`
				Limit int   `json:"limit"`
			} `json:"pagination"`
		}
		decodeBody(t, resp, &body)

		require.Len(t, body.Messages, 20)
		assert.Equal(t, int64(45), body.Pagination.Total)
		assert.Equal(t, 3, body.Pagination.Pages)
		// Page 1 holds the newest window, in ascending order within the page
		assert.Equal(t, "msg 26", body.Messages[0].Content)
		assert.Equal(t, "msg 45", body.Messages[19].Content)
	})

	t.Run("Listing marks messages read", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet,
			fmt.Sprintf("/api/messages/%d", conv.ID), vet.ID, nil)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		convResp := doJSON(t, app, http.MethodGet,
			fmt.Sprintf("/api/conversations/%d", conv.ID), vet.ID, nil)
		var fetched models.Conversation
		decodeBody(t, convResp, &fetched)
		assert.Zero(t, fetched.UnreadCount)
	})

	t.Run("Non-participant masked as 404", func(t *testing.T) {
		outsider := &models.User{Username: "lurker", Email: "lurker@example.com", Role: models.RolePetOwner}
		require.NoError(t, s.userRepo.Create(context.Background(), outsider))

		resp := doJSON(t, app, http.MethodGet,
			fmt.Sprintf("/api/messages/%d", conv.ID), outsider.ID, nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestEditMessage(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)
	conv := startConversation(t, app, owner.ID, vet.ID, "Hi")

	var sent models.Message
	resp := doJSON(t, app, http.MethodPost, "/api/messages", owner.ID, fiber.Map{
		"conversation_id": conv.ID,
		"content":         "Hi",
	})
	decodeBody(t, resp, &sent)

	t.Run("Sender can edit and preview follows", func(t *testing.T) {
		editResp := doJSON(t, app, http.MethodPut,
			fmt.Sprintf("/api/messages/%d", sent.ID), owner.ID, fiber.Map{"content": "Hi there"})
		assert.Equal(t, http.StatusOK, editResp.StatusCode)

		var edited models.Message
		decodeBody(t, editResp, &edited)
		assert.Equal(t, "Hi there", edited.Content)
		assert.True(t, edited.IsEdited)

		convResp := doJSON(t, app, http.MethodGet,
			fmt.Sprintf("/api/conversations/%d", conv.ID), owner.ID, nil)
		var fetched models.Conversation
		decodeBody(t, convResp, &fetched)
		assert.Equal(t, "Hi there", fetched.LastMessage)
	})

	t.Run("Non-sender gets 403", func(t *testing.T) {
		editResp := doJSON(t, app, http.MethodPut,
			fmt.Sprintf("/api/messages/%d", sent.ID), vet.ID, fiber.Map{"content": "hijacked"})
		defer func() { _ = editResp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, editResp.StatusCode)
	})
}

func TestDeleteMessage(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)
	conv := startConversation(t, app, owner.ID, vet.ID, "one")

	var second models.Message
	resp := doJSON(t, app, http.MethodPost, "/api/messages", owner.ID, fiber.Map{
		"conversation_id": conv.ID,
		"content":         "two",
	})
	decodeBody(t, resp, &second)

	t.Run("Non-sender gets 403", func(t *testing.T) {
		delResp := doJSON(t, app, http.MethodDelete,
			fmt.Sprintf("/api/messages/%d", second.ID), vet.ID, nil)
		defer func() { _ = delResp.Body.Close() }()
		assert.Equal(t, http.StatusForbidden, delResp.StatusCode)
	})

	t.Run("Delete reverts preview", func(t *testing.T) {
		delResp := doJSON(t, app, http.MethodDelete,
			fmt.Sprintf("/api/messages/%d", second.ID), owner.ID, nil)
		_ = delResp.Body.Close()
		require.Equal(t, http.StatusOK, delResp.StatusCode)

		convResp := doJSON(t, app, http.MethodGet,
			fmt.Sprintf("/api/conversations/%d", conv.ID), owner.ID, nil)
		var fetched models.Conversation
		decodeBody(t, convResp, &fetched)
		assert.Equal(t, "one", fetched.LastMessage)
	})
}
