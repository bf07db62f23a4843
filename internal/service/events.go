package service

import "vetcare/internal/models"

// Event names shared between the REST layer, the hub, and connected
// clients. Payload shapes below are the wire contract; there is no schema
// negotiation, so both sides must agree exactly.
const (
	EventNewMessage          = "new-message"
	EventMessageNotification = "message-notification"
	EventUserTyping          = "user-typing"
	EventMessagesRead        = "messages-read"
	EventMessageDeleted      = "message-deleted"
	EventMessageUpdated      = "message-updated"
	EventUserStatusChange    = "user-status-change"
)

// Broadcaster delivers best-effort live events. Implementations must never
// block the caller; a nil Broadcaster is treated as a no-op so persistence
// keeps working when the live layer is absent.
type Broadcaster interface {
	// ToConversation sends to every member of a conversation room,
	// skipping excludeUserID when non-zero.
	ToConversation(conversationID uint, event string, payload interface{}, excludeUserID uint)
	// ToUser sends to the user's personal room.
	ToUser(userID uint, event string, payload interface{})
}

// MessagePayload accompanies new-message and message-updated events.
type MessagePayload struct {
	ConversationID uint            `json:"conversation_id"`
	Message        *models.Message `json:"message"`
}

// MessagesReadPayload accompanies messages-read events.
type MessagesReadPayload struct {
	ConversationID uint   `json:"conversation_id"`
	UserID         uint   `json:"user_id"`
	MessageIDs     []uint `json:"message_ids"`
}

// MessageDeletedPayload accompanies message-deleted events.
type MessageDeletedPayload struct {
	ConversationID uint `json:"conversation_id"`
	MessageID      uint `json:"message_id"`
}

// NotificationPayload accompanies message-notification events on the
// recipient's personal room.
type NotificationPayload struct {
	ConversationID uint                 `json:"conversation_id"`
	Notification   *models.Notification `json:"notification"`
	Sender         *models.Summary      `json:"sender"`
}
