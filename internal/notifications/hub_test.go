package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"vetcare/internal/service"

	"github.com/stretchr/testify/assert"
)

func newTestClient(h *Hub, userID uint, username string) *Client {
	return NewClient(h, nil, userID, username)
}

func drain(c *Client) []Event {
	var out []Event
	for {
		select {
		case raw := <-c.Send:
			var ev Event
			if err := json.Unmarshal(raw, &ev); err == nil {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	client := newTestClient(hub, 1, "owner1")
	assert.NoError(t, hub.attach(client))
	assert.True(t, hub.IsUserOnline(1))

	hub.UnregisterClient(client)
	assert.False(t, hub.IsUserOnline(1))
}

func TestHub_ConnectionLimit(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	for i := 0; i < maxConnsPerUser; i++ {
		assert.NoError(t, hub.attach(newTestClient(hub, 1, "owner1")))
	}
	err := hub.attach(newTestClient(hub, 1, "owner1"))
	assert.Error(t, err)
}

func TestHub_BroadcastToConversation(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	vet := newTestClient(hub, 2, "drsmith")
	outsider := newTestClient(hub, 3, "other")
	assert.NoError(t, hub.attach(owner))
	assert.NoError(t, hub.attach(vet))
	assert.NoError(t, hub.attach(outsider))

	hub.JoinConversation(1, 101)
	hub.JoinConversation(2, 101)

	drain(owner)
	drain(vet)
	drain(outsider)

	hub.ToConversation(101, service.EventNewMessage, map[string]interface{}{"content": "hello"}, 0)

	ownerEvents := drain(owner)
	assert.Len(t, ownerEvents, 1)
	assert.Equal(t, service.EventNewMessage, ownerEvents[0].Type)
	assert.Equal(t, uint(101), ownerEvents[0].ConversationID)

	assert.Len(t, drain(vet), 1)
	// Not in the room: nothing delivered
	assert.Empty(t, drain(outsider))
}

func TestHub_BroadcastExcludesOriginator(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	vet := newTestClient(hub, 2, "drsmith")
	assert.NoError(t, hub.attach(owner))
	assert.NoError(t, hub.attach(vet))
	hub.JoinConversation(1, 101)
	hub.JoinConversation(2, 101)
	drain(owner)
	drain(vet)

	hub.ToConversation(101, service.EventMessagesRead, service.MessagesReadPayload{
		ConversationID: 101, UserID: 1, MessageIDs: []uint{7},
	}, 1)

	assert.Empty(t, drain(owner))
	assert.Len(t, drain(vet), 1)
}

func TestHub_MultiDevice(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	phone := newTestClient(hub, 1, "owner1")
	laptop := newTestClient(hub, 1, "owner1")
	assert.NoError(t, hub.attach(phone))
	assert.NoError(t, hub.attach(laptop))
	hub.JoinConversation(1, 101)

	hub.ToConversation(101, service.EventNewMessage, nil, 0)

	assert.Len(t, drain(phone), 1)
	assert.Len(t, drain(laptop), 1)

	// Dropping one device keeps the user online and in the room
	hub.UnregisterClient(phone)
	assert.True(t, hub.IsUserOnline(1))
	hub.ToConversation(101, service.EventNewMessage, nil, 0)
	assert.Len(t, drain(laptop), 1)
}

func TestHub_ToUser(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	vet := newTestClient(hub, 2, "drsmith")
	assert.NoError(t, hub.attach(owner))
	assert.NoError(t, hub.attach(vet))
	drain(owner)
	drain(vet)

	hub.ToUser(1, service.EventMessageNotification, map[string]interface{}{"conversation_id": 101})

	events := drain(owner)
	assert.Len(t, events, 1)
	assert.Equal(t, service.EventMessageNotification, events[0].Type)
	assert.Empty(t, drain(vet))
}

func TestHub_StatusChangeOnConnectDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	assert.NoError(t, hub.attach(owner))

	vet := newTestClient(hub, 2, "drsmith")
	assert.NoError(t, hub.attach(vet))

	events := drain(owner)
	assert.Len(t, events, 1)
	assert.Equal(t, service.EventUserStatusChange, events[0].Type)
	assert.Equal(t, uint(2), events[0].UserID)

	hub.UnregisterClient(vet)
	events = drain(owner)
	assert.Len(t, events, 1)
	assert.Equal(t, service.EventUserStatusChange, events[0].Type)
}

func TestHub_InboundTyping(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	vet := newTestClient(hub, 2, "drsmith")
	assert.NoError(t, hub.attach(owner))
	assert.NoError(t, hub.attach(vet))
	hub.JoinConversation(1, 101)
	hub.JoinConversation(2, 101)
	drain(owner)
	drain(vet)

	hub.HandleInbound(owner, []byte(`{"type":"typing","conversation_id":101,"payload":{"is_typing":true}}`))

	// Originator does not get their own indicator back
	assert.Empty(t, drain(owner))
	events := drain(vet)
	assert.Len(t, events, 1)
	assert.Equal(t, service.EventUserTyping, events[0].Type)
	assert.Equal(t, uint(1), events[0].UserID)
	assert.Equal(t, "owner1", events[0].Username)

	assert.Equal(t, []uint{1}, hub.typing.ActiveTypists(101))

	hub.HandleInbound(owner, []byte(`{"type":"typing","conversation_id":101,"payload":{"is_typing":false}}`))
	assert.Empty(t, hub.typing.ActiveTypists(101))
}

func TestHub_InboundJoinLeave(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	assert.NoError(t, hub.attach(owner))

	hub.HandleInbound(owner, []byte(`{"type":"join-conversation","conversation_id":101}`))
	assert.True(t, hub.IsUserViewing(1, 101))

	hub.HandleInbound(owner, []byte(`{"type":"leave-conversation","conversation_id":101}`))
	assert.False(t, hub.IsUserViewing(1, 101))
}

func TestHub_AuthorizerGatesJoin(t *testing.T) {
	authorize := func(_ context.Context, conversationID, userID uint) bool {
		return conversationID == 101 && userID == 1
	}
	hub := NewHub(nil, authorize)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	stranger := newTestClient(hub, 3, "stranger")
	assert.NoError(t, hub.attach(owner))
	assert.NoError(t, hub.attach(stranger))

	hub.HandleInbound(owner, []byte(`{"type":"join-conversation","conversation_id":101}`))
	hub.HandleInbound(stranger, []byte(`{"type":"join-conversation","conversation_id":101}`))
	assert.True(t, hub.IsUserViewing(1, 101))
	assert.False(t, hub.IsUserViewing(3, 101))

	// Typing from a non-participant never reaches the room either.
	hub.HandleInbound(stranger, []byte(`{"type":"typing","conversation_id":101,"payload":{"is_typing":true}}`))
	for _, ev := range drain(owner) {
		assert.NotEqual(t, service.EventUserTyping, ev.Type)
	}
}

type readMarkerStub struct {
	calls [][2]uint
}

func (s *readMarkerStub) MarkRead(_ context.Context, conversationID, userID uint) ([]uint, error) {
	s.calls = append(s.calls, [2]uint{conversationID, userID})
	return []uint{1}, nil
}

func TestHub_InboundMarkRead(t *testing.T) {
	marker := &readMarkerStub{}
	hub := NewHub(marker, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	owner := newTestClient(hub, 1, "owner1")
	assert.NoError(t, hub.attach(owner))

	hub.HandleInbound(owner, []byte(`{"type":"mark-read","conversation_id":101}`))
	assert.Equal(t, [][2]uint{{101, 1}}, marker.calls)
}

func TestHub_BroadcastToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub(nil, nil)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	// Should not panic or error: events to empty rooms are dropped
	hub.ToConversation(999, service.EventNewMessage, nil, 0)
	hub.ToUser(999, service.EventMessageNotification, nil)
}
