package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"vetcare/internal/config"
	"vetcare/internal/database"
	"vetcare/internal/models"
	"vetcare/internal/notifications"
	"vetcare/internal/repository"
	"vetcare/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestServer assembles the full handler stack on an in-memory database,
// without Redis and without the auth middleware (tests inject identity via
// the X-User-ID header).
func newTestServer(t *testing.T) (*fiber.App, *Server) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	s := &Server{
		config:    &config.Config{JWTSecret: "test-secret"},
		db:        db,
		userRepo:  repository.NewUserRepository(db),
		convRepo:  repository.NewConversationRepository(db),
		msgRepo:   repository.NewMessageRepository(db),
		notifRepo: repository.NewNotificationRepository(db),
	}

	s.hub = notifications.NewHub(hubReadMarker{s}, func(ctx context.Context, conversationID, userID uint) bool {
		return s.messagingService.IsParticipant(ctx, conversationID, userID)
	})
	t.Cleanup(func() { _ = s.hub.Shutdown(context.Background()) })

	s.relay = notifications.NewRelay(s.hub, nil)
	s.notificationService = service.NewNotificationService(s.notifRepo, nil, nil, s.relay)
	s.messagingService = service.NewMessagingService(
		s.convRepo, s.msgRepo, s.userRepo, s.notificationService, s.relay)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-User-ID"); v != "" {
			id, convErr := strconv.Atoi(v)
			require.NoError(t, convErr)
			c.Locals("userID", uint(id))
		}
		return c.Next()
	})

	api := app.Group("/api")
	conversations := api.Group("/conversations")
	conversations.Post("/", s.CreateConversation)
	conversations.Get("/", s.GetConversations)
	conversations.Put("/:id/archive", s.ArchiveConversation)
	conversations.Get("/:id", s.GetConversation)

	messages := api.Group("/messages")
	messages.Post("/", s.SendMessage)
	messages.Get("/:conversationId", s.GetMessages)
	messages.Put("/:id", s.EditMessage)
	messages.Delete("/:id", s.DeleteMessage)

	notifs := api.Group("/notifications")
	notifs.Get("/", s.GetNotifications)
	notifs.Put("/:id/read", s.MarkNotificationRead)

	return app, s
}

func seedUsers(t *testing.T, s *Server) (owner, vet *models.User) {
	t.Helper()
	owner = &models.User{Username: "owner1", Email: "owner1@example.com", Role: models.RolePetOwner}
	vet = &models.User{Username: "drsmith", Email: "drsmith@vetcare.example", Role: models.RoleVeterinarian}
	require.NoError(t, s.userRepo.Create(context.Background(), owner))
	require.NoError(t, s.userRepo.Create(context.Background(), vet))
	return owner, vet
}

func doJSON(t *testing.T, app *fiber.App, method, path string, userID uint, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(userID), 10))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateConversation(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)

	t.Run("Success", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{
			"receiver_id":     vet.ID,
			"initial_message": "Hello doctor",
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var conv models.Conversation
		decodeBody(t, resp, &conv)
		assert.NotZero(t, conv.ID)
		assert.Equal(t, "Hello doctor", conv.LastMessage)
	})

	t.Run("Idempotent for same pair", func(t *testing.T) {
		first := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{
			"receiver_id": vet.ID,
		})
		var a models.Conversation
		decodeBody(t, first, &a)

		second := doJSON(t, app, http.MethodPost, "/api/conversations", vet.ID, fiber.Map{
			"receiver_id": owner.ID,
		})
		var b models.Conversation
		decodeBody(t, second, &b)

		assert.Equal(t, a.ID, b.ID)
	})

	t.Run("Self conversation rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{
			"receiver_id": owner.ID,
		})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Missing receiver rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Unknown receiver is 404", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{
			"receiver_id": 9999,
		})
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetConversation(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)
	outsider := &models.User{Username: "stranger", Email: "stranger@example.com", Role: models.RolePetOwner}
	require.NoError(t, s.userRepo.Create(context.Background(), outsider))

	created := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{
		"receiver_id":     vet.ID,
		"initial_message": "Bella is limping",
	})
	var conv models.Conversation
	decodeBody(t, created, &conv)

	t.Run("Fetch resets unread", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), vet.ID, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var fetched models.Conversation
		decodeBody(t, resp, &fetched)
		assert.Equal(t, conv.ID, fetched.ID)
		assert.Zero(t, fetched.UnreadCount)
	})

	t.Run("Non-participant masked as 404", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), outsider.ID, nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Invalid ID is 400", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/conversations/abc", owner.ID, nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetConversations(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)

	created := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{
		"receiver_id":     vet.ID,
		"initial_message": "Vaccination question",
	})
	var conv models.Conversation
	decodeBody(t, created, &conv)

	resp := doJSON(t, app, http.MethodGet, "/api/conversations", owner.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list []models.Conversation
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)
	assert.Equal(t, "Vaccination question", list[0].LastMessage)
}

func TestArchiveConversation(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)

	created := doJSON(t, app, http.MethodPost, "/api/conversations", owner.ID, fiber.Map{
		"receiver_id": vet.ID,
	})
	var conv models.Conversation
	decodeBody(t, created, &conv)

	resp := doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/conversations/%d/archive", conv.ID), owner.ID, nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	listResp := doJSON(t, app, http.MethodGet, "/api/conversations", owner.ID, nil)
	var list []models.Conversation
	decodeBody(t, listResp, &list)
	assert.Empty(t, list)
}
