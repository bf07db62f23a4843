package server

import (
	"fmt"
	"net/http"
	"testing"

	"vetcare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNotifications(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)

	// The initial message fans out a notification to the receiver.
	startConversation(t, app, owner.ID, vet.ID, "Checkup request")

	resp := doJSON(t, app, http.MethodGet, "/api/notifications", vet.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Notifications []models.Notification `json:"notifications"`
		Pagination    struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeBody(t, resp, &body)

	require.Len(t, body.Notifications, 1)
	assert.Equal(t, vet.ID, body.Notifications[0].RecipientID)
	assert.Equal(t, models.NotificationMessage, body.Notifications[0].Type)
	assert.Equal(t, int64(1), body.Pagination.Total)
}

func TestMarkNotificationRead(t *testing.T) {
	app, s := newTestServer(t)
	owner, vet := seedUsers(t, s)
	startConversation(t, app, owner.ID, vet.ID, "Reminder")

	listResp := doJSON(t, app, http.MethodGet, "/api/notifications", vet.ID, nil)
	var body struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decodeBody(t, listResp, &body)
	require.Len(t, body.Notifications, 1)
	notifID := body.Notifications[0].ID

	t.Run("Recipient can mark read", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPut,
			fmt.Sprintf("/api/notifications/%d/read", notifID), vet.ID, nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Foreign notification is 404", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPut,
			fmt.Sprintf("/api/notifications/%d/read", notifID), owner.ID, nil)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
