package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"vetcare/internal/middleware"
	"vetcare/internal/observability"
	"vetcare/internal/service"

	"github.com/gofiber/websocket/v2"
)

// maxConnsPerUser caps simultaneous devices per user.
const maxConnsPerUser = 5

// Client -> server event names. Server -> client names live in the service
// package because the REST layer emits them too.
const (
	inboundTyping            = "typing"
	inboundMarkRead          = "mark-read"
	inboundJoinConversation  = "join-conversation"
	inboundLeaveConversation = "leave-conversation"
)

// Event is the wire envelope for every server -> client frame.
type Event struct {
	Type           string      `json:"type"`
	ConversationID uint        `json:"conversation_id,omitempty"`
	UserID         uint        `json:"user_id,omitempty"`
	Username       string      `json:"username,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
}

type inboundEvent struct {
	Type           string          `json:"type"`
	ConversationID uint            `json:"conversation_id"`
	Payload        json.RawMessage `json:"payload"`
}

// ReadMarker is the slice of the messaging service the hub needs for
// relayed mark-read commands.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID, userID uint) ([]uint, error)
}

// AuthorizeFunc reports whether the user may subscribe to a conversation
// room. A nil func admits everyone (used in tests).
type AuthorizeFunc func(ctx context.Context, conversationID, userID uint) bool

// Hub is the single-process room broker: one implicit room per connected
// user plus one room per open conversation view. It is never a source of
// truth; events to empty rooms are silently dropped.
type Hub struct {
	mu sync.RWMutex

	// conversationID -> set of userIDs viewing it
	conversations map[uint]map[uint]struct{}

	// userID -> set of conversationIDs they're viewing
	userActiveConvs map[uint]map[uint]struct{}

	// userID -> active clients (multi-device)
	userConns map[uint]map[*Client]bool

	typing        *TypingTracker
	readMarker    ReadMarker
	authorize     AuthorizeFunc
	typingLimiter func(userID uint) bool
}

// SetTypingLimiter installs a per-user throttle consulted before typing
// signals are relayed. Call before serving traffic; nil means unlimited.
func (h *Hub) SetTypingLimiter(f func(userID uint) bool) {
	h.typingLimiter = f
}

// NewHub creates a hub with its typing tracker running.
func NewHub(readMarker ReadMarker, authorize AuthorizeFunc) *Hub {
	h := &Hub{
		conversations:   make(map[uint]map[uint]struct{}),
		userActiveConvs: make(map[uint]map[uint]struct{}),
		userConns:       make(map[uint]map[*Client]bool),
		readMarker:      readMarker,
		authorize:       authorize,
	}
	h.typing = NewTypingTracker(func(conversationID, userID uint, username string) {
		// Stop signal on the typist's behalf when their entry times out
		h.broadcastToConversation(conversationID, Event{
			Type:           service.EventUserTyping,
			ConversationID: conversationID,
			UserID:         userID,
			Username:       username,
			Payload:        map[string]interface{}{"is_typing": false},
		}, userID)
	})
	return h
}

// Register admits an authenticated connection, auto-joins the user's
// personal room, and announces presence.
func (h *Hub) Register(userID uint, username string, conn *websocket.Conn) (*Client, error) {
	client := NewClient(h, conn, userID, username)
	if err := h.attach(client); err != nil {
		return nil, err
	}
	return client, nil
}

func (h *Hub) attach(client *Client) error {
	h.mu.Lock()

	if h.userConns[client.UserID] == nil {
		h.userConns[client.UserID] = make(map[*Client]bool)
	}
	if len(h.userConns[client.UserID]) >= maxConnsPerUser {
		h.mu.Unlock()
		return fmt.Errorf("user connection limit reached")
	}

	h.userConns[client.UserID][client] = true
	wasOffline := len(h.userConns[client.UserID]) == 1
	h.mu.Unlock()

	observability.ActiveWebSockets.Inc()
	middleware.Logger.Info("hub: client registered", "user_id", client.UserID, "multi_device", !wasOffline)

	if wasOffline {
		h.broadcastStatus(client.UserID, client.Username, "online")
	}
	return nil
}

// UnregisterClient removes one connection; when it was the user's last,
// cleans up room membership and announces the user offline.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, present := clients[client]; !present {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.Send)
	observability.ActiveWebSockets.Dec()

	if len(clients) > 0 {
		h.mu.Unlock()
		middleware.Logger.Info("hub: client unregistered", "user_id", client.UserID, "remaining", len(clients))
		return
	}

	// Last connection gone: drop room membership
	delete(h.userConns, client.UserID)
	if convs, ok := h.userActiveConvs[client.UserID]; ok {
		for convID := range convs {
			if users, ok := h.conversations[convID]; ok {
				delete(users, client.UserID)
				if len(users) == 0 {
					delete(h.conversations, convID)
				}
			}
		}
		delete(h.userActiveConvs, client.UserID)
	}
	h.mu.Unlock()

	h.typing.Remove(client.UserID)
	middleware.Logger.Info("hub: user offline", "user_id", client.UserID)
	h.broadcastStatus(client.UserID, client.Username, "offline")
}

// JoinConversation subscribes the user to a conversation room.
func (h *Hub) JoinConversation(userID, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, connected := h.userConns[userID]; !connected {
		return
	}

	if h.conversations[conversationID] == nil {
		h.conversations[conversationID] = make(map[uint]struct{})
	}
	h.conversations[conversationID][userID] = struct{}{}

	if h.userActiveConvs[userID] == nil {
		h.userActiveConvs[userID] = make(map[uint]struct{})
	}
	h.userActiveConvs[userID][conversationID] = struct{}{}
}

// LeaveConversation unsubscribes the user from a conversation room.
func (h *Hub) LeaveConversation(userID, conversationID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if users, ok := h.conversations[conversationID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.conversations, conversationID)
		}
	}
	if convs, ok := h.userActiveConvs[userID]; ok {
		delete(convs, conversationID)
	}
}

// IsUserOnline reports whether the user has at least one live connection.
func (h *Hub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// IsUserViewing reports whether the user has the conversation room open.
func (h *Hub) IsUserViewing(userID, conversationID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if convs, ok := h.userActiveConvs[userID]; ok {
		_, viewing := convs[conversationID]
		return viewing
	}
	return false
}

// ToConversation implements service.Broadcaster for the in-process topology.
func (h *Hub) ToConversation(conversationID uint, event string, payload interface{}, excludeUserID uint) {
	h.broadcastToConversation(conversationID, Event{
		Type:           event,
		ConversationID: conversationID,
		Payload:        payload,
	}, excludeUserID)
}

// ToUser implements service.Broadcaster for the in-process topology.
func (h *Hub) ToUser(userID uint, event string, payload interface{}) {
	h.broadcastToUser(userID, Event{
		Type:    event,
		UserID:  userID,
		Payload: payload,
	})
}

func (h *Hub) broadcastToConversation(conversationID uint, event Event, excludeUserID uint) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.conversations[conversationID]
	if !ok {
		// Nobody viewing: not an error, just a no-op
		return
	}

	raw, err := json.Marshal(event)
	if err != nil {
		middleware.Logger.Error("hub: failed to marshal event", "type", event.Type, "error", err)
		return
	}
	observability.WebSocketEventsTotal.WithLabelValues(event.Type).Inc()

	for userID := range users {
		if excludeUserID != 0 && userID == excludeUserID {
			continue
		}
		for client := range h.userConns[userID] {
			client.TrySend(raw)
		}
	}
}

func (h *Hub) broadcastToUser(userID uint, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.userConns[userID]
	if !ok {
		return
	}

	raw, err := json.Marshal(event)
	if err != nil {
		middleware.Logger.Error("hub: failed to marshal event", "type", event.Type, "error", err)
		return
	}
	observability.WebSocketEventsTotal.WithLabelValues(event.Type).Inc()

	for client := range clients {
		client.TrySend(raw)
	}
}

// broadcastStatus announces an online/offline transition to everyone else.
func (h *Hub) broadcastStatus(userID uint, username, status string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	raw, err := json.Marshal(Event{
		Type:     service.EventUserStatusChange,
		UserID:   userID,
		Username: username,
		Payload:  map[string]interface{}{"status": status, "user_id": userID},
	})
	if err != nil {
		return
	}
	observability.WebSocketEventsTotal.WithLabelValues(service.EventUserStatusChange).Inc()

	for id, clients := range h.userConns {
		if id == userID {
			continue
		}
		for client := range clients {
			client.TrySend(raw)
		}
	}
}

// HandleInbound relays a client frame. The hub attaches the originator's
// identity and never trusts identity fields in the frame itself.
func (h *Hub) HandleInbound(c *Client, raw []byte) {
	var ev inboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		middleware.Logger.Warn("hub: bad inbound frame", "user_id", c.UserID, "error", err)
		return
	}

	switch ev.Type {
	case inboundJoinConversation:
		if !h.mayJoin(ev.ConversationID, c.UserID) {
			return
		}
		h.JoinConversation(c.UserID, ev.ConversationID)

	case inboundLeaveConversation:
		h.LeaveConversation(c.UserID, ev.ConversationID)
		h.typing.Signal(ev.ConversationID, c.UserID, c.Username, false)

	case inboundTyping:
		if !h.mayJoin(ev.ConversationID, c.UserID) {
			return
		}
		if h.typingLimiter != nil && !h.typingLimiter(c.UserID) {
			// Silently drop spammy typing indicators
			return
		}
		var p struct {
			IsTyping bool `json:"is_typing"`
		}
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return
			}
		}
		h.typing.Signal(ev.ConversationID, c.UserID, c.Username, p.IsTyping)
		h.broadcastToConversation(ev.ConversationID, Event{
			Type:           service.EventUserTyping,
			ConversationID: ev.ConversationID,
			UserID:         c.UserID,
			Username:       c.Username,
			Payload:        map[string]interface{}{"is_typing": p.IsTyping},
		}, c.UserID)

	case inboundMarkRead:
		if h.readMarker == nil {
			return
		}
		// The service broadcasts the resulting messages-read event itself.
		if _, err := h.readMarker.MarkRead(context.Background(), ev.ConversationID, c.UserID); err != nil {
			middleware.Logger.Warn("hub: mark-read failed",
				"user_id", c.UserID, "conversation_id", ev.ConversationID, "error", err)
		}

	default:
		middleware.Logger.Warn("hub: unknown inbound event", "type", ev.Type, "user_id", c.UserID)
	}
}

// mayJoin gates conversation rooms on membership when an authorizer is wired.
func (h *Hub) mayJoin(conversationID, userID uint) bool {
	if h.authorize == nil {
		return true
	}
	if h.authorize(context.Background(), conversationID, userID) {
		return true
	}
	middleware.Logger.Warn("hub: unauthorized room access",
		"user_id", userID, "conversation_id", conversationID)
	return false
}

// Shutdown closes every connection with a shutdown notice and clears state.
func (h *Hub) Shutdown(_ context.Context) error {
	h.typing.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"type":"server-shutdown","payload":{"message":"Server is shutting down"}}`)); err != nil {
				middleware.Logger.Warn("hub: shutdown notice failed", "user_id", userID, "error", err)
			}
			_ = client.Conn.Close()
		}
	}

	h.conversations = make(map[uint]map[uint]struct{})
	h.userActiveConvs = make(map[uint]map[uint]struct{})
	h.userConns = make(map[uint]map[*Client]bool)
	return nil
}
