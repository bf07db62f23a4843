package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"

	"vetcare/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes hub events into Redis channels so broadcasts from the
// REST layer reach the hub process. With no Redis client every call is a
// silent no-op and callers fall back to the in-process hub.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis backend is attached.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// relayEnvelope carries the event plus routing metadata across Redis. The
// exclusion is routing-side only and is stripped before client delivery.
type relayEnvelope struct {
	Event   Event `json:"event"`
	Exclude uint  `json:"exclude,omitempty"`
}

// PublishConversation sends an event to a conversation's channel.
func (n *Notifier) PublishConversation(ctx context.Context, conversationID uint, event Event, excludeUserID uint) error {
	if !n.Enabled() {
		return nil
	}
	raw, err := json.Marshal(relayEnvelope{Event: event, Exclude: excludeUserID})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.rdb.Publish(ctx, ConversationChannel(conversationID), raw).Err()
}

// PublishUser sends an event to a user's personal channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, event Event) error {
	if !n.Enabled() {
		return nil
	}
	raw, err := json.Marshal(relayEnvelope{Event: event})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.rdb.Publish(ctx, UserChannel(userID), raw).Err()
}

// StartSubscriber subscribes to the conversation and user patterns and calls
// onMessage for each frame until the context is cancelled.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "chat:conv:*", "notifications:user:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in hub subscriber",
								"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// StartWiring connects the hub to the Redis channels. Called once at server
// startup when Redis is configured.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, func(channel, payload string) {
		var env relayEnvelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			middleware.Logger.Warn("hub: bad relay frame", "channel", channel, "error", err)
			return
		}

		var conversationID, userID uint
		switch {
		case parseChannel(channel, "chat:conv:%d", &conversationID):
			env.Event.ConversationID = conversationID
			h.broadcastToConversation(conversationID, env.Event, env.Exclude)
		case parseChannel(channel, "notifications:user:%d", &userID):
			h.broadcastToUser(userID, env.Event)
		default:
			middleware.Logger.Warn("hub: unknown relay channel", "channel", channel)
		}
	})
}

func parseChannel(channel, format string, id *uint) bool {
	_, err := fmt.Sscanf(channel, format, id)
	return err == nil
}

// Relay implements service.Broadcaster: through Redis when available,
// directly into the in-process hub otherwise.
type Relay struct {
	hub      *Hub
	notifier *Notifier
}

// NewRelay wires the broadcaster the services use. notifier may be nil or
// disabled; hub must not be nil.
func NewRelay(hub *Hub, notifier *Notifier) *Relay {
	return &Relay{hub: hub, notifier: notifier}
}

func (r *Relay) ToConversation(conversationID uint, event string, payload interface{}, excludeUserID uint) {
	ev := Event{Type: event, ConversationID: conversationID, Payload: payload}
	if r.notifier.Enabled() {
		if err := r.notifier.PublishConversation(context.Background(), conversationID, ev, excludeUserID); err != nil {
			middleware.Logger.Warn("relay publish failed, falling back to local hub",
				"conversation_id", conversationID, "error", err)
			r.hub.broadcastToConversation(conversationID, ev, excludeUserID)
		}
		return
	}
	r.hub.broadcastToConversation(conversationID, ev, excludeUserID)
}

func (r *Relay) ToUser(userID uint, event string, payload interface{}) {
	ev := Event{Type: event, UserID: userID, Payload: payload}
	if r.notifier.Enabled() {
		if err := r.notifier.PublishUser(context.Background(), userID, ev); err != nil {
			middleware.Logger.Warn("relay publish failed, falling back to local hub",
				"user_id", userID, "error", err)
			r.hub.broadcastToUser(userID, ev)
		}
		return
	}
	r.hub.broadcastToUser(userID, ev)
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}

// ConversationChannel derives the Redis channel name for a conversation.
func ConversationChannel(conversationID uint) string {
	return "chat:conv:" + strconv.FormatUint(uint64(conversationID), 10)
}
