// Package chatclient implements the consuming application's messaging
// controller: it reconciles REST-fetched history with live hub events into
// one consistent view, handles optimistic mutations, and re-synchronizes
// after reconnects.
package chatclient

import "encoding/json"

// Server -> client event names. These mirror the hub's wire contract
// exactly; there is no schema negotiation.
const (
	eventNewMessage          = "new-message"
	eventMessageNotification = "message-notification"
	eventUserTyping          = "user-typing"
	eventMessagesRead        = "messages-read"
	eventMessageDeleted      = "message-deleted"
	eventMessageUpdated      = "message-updated"
	eventUserStatusChange    = "user-status-change"
)

// Client -> server command names.
const (
	commandTyping            = "typing"
	commandMarkRead          = "mark-read"
	commandJoinConversation  = "join-conversation"
	commandLeaveConversation = "leave-conversation"
)

// Event is an inbound hub frame. Payload stays raw until the event type
// selects its shape.
type Event struct {
	Type           string          `json:"type"`
	ConversationID uint            `json:"conversation_id,omitempty"`
	UserID         uint            `json:"user_id,omitempty"`
	Username       string          `json:"username,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Command is an outbound client frame.
type Command struct {
	Type           string      `json:"type"`
	ConversationID uint        `json:"conversation_id,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
}
