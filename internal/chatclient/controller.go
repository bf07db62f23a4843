package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"vetcare/internal/middleware"
	"vetcare/internal/models"
)

// LoadState tracks how much of a conversation's history is in memory.
type LoadState int

const (
	LoadUnloaded LoadState = iota
	LoadLoading
	LoadLoaded
)

// LinkState tracks the hub connection, independent of per-conversation
// load state.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
)

const (
	defaultPageSize = 50

	// Outbound: stop-typing fires after this much keyboard idle.
	typingIdleStop = 2 * time.Second
	// Inbound: an indicator not refreshed within this window is dropped
	// even if the stop signal was lost.
	typingIndicatorTTL = 3 * time.Second

	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// conversationView is the in-memory reconciliation target for one
// conversation.
type conversationView struct {
	conv      models.Conversation
	messages  []*models.Message
	loadState LoadState
	pages     int
	unread    int

	// userID -> indicator; entries expire at `expires`
	typists map[uint]typingIndicator
}

type typingIndicator struct {
	username string
	expires  time.Time
}

// Controller reconciles REST state with hub events. All exported methods
// are safe for concurrent use; Run owns the link lifecycle.
type Controller struct {
	api    API
	link   Link
	selfID uint

	mu            sync.Mutex
	views         map[uint]*conversationView
	activeConv    uint
	linkState     LinkState
	typingActive  bool
	lastInputAt   time.Time
	online        map[uint]bool
	notifications []*models.Notification

	// now is the time source; replaced in tests.
	now func() time.Time
}

// NewController creates a controller for the given authenticated user.
func NewController(api API, link Link, selfID uint) *Controller {
	return &Controller{
		api:    api,
		link:   link,
		selfID: selfID,
		views:  make(map[uint]*conversationView),
		online: make(map[uint]bool),
		now:    time.Now,
	}
}

// Refresh replaces the conversation list from the API, keeping already
// loaded message history.
func (c *Controller) Refresh(ctx context.Context) error {
	conversations, err := c.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("refresh conversations: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[uint]struct{}, len(conversations))
	for _, conv := range conversations {
		seen[conv.ID] = struct{}{}
		view, ok := c.views[conv.ID]
		if !ok {
			view = &conversationView{typists: make(map[uint]typingIndicator)}
			c.views[conv.ID] = view
		}
		view.conv = *conv
		view.unread = conv.UnreadCount
	}
	// Drop archived/vanished conversations.
	for id := range c.views {
		if _, ok := seen[id]; !ok {
			delete(c.views, id)
			if c.activeConv == id {
				c.activeConv = 0
			}
		}
	}
	return nil
}

// Open selects a conversation: joins its room, loads page 1 when not yet
// loaded, and clears the local unread badge (mirroring the server-side
// reset the fetch triggers).
func (c *Controller) Open(ctx context.Context, conversationID uint) error {
	c.mu.Lock()
	view, ok := c.views[conversationID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown conversation %d", conversationID)
	}
	previous := c.activeConv
	c.activeConv = conversationID
	needsLoad := view.loadState == LoadUnloaded
	if needsLoad {
		view.loadState = LoadLoading
	}
	view.unread = 0
	c.mu.Unlock()

	if previous != 0 && previous != conversationID {
		c.sendCommand(Command{Type: commandLeaveConversation, ConversationID: previous})
	}
	c.sendCommand(Command{Type: commandJoinConversation, ConversationID: conversationID})
	c.sendCommand(Command{Type: commandMarkRead, ConversationID: conversationID})

	if !needsLoad {
		return nil
	}

	messages, info, err := c.api.ListMessages(ctx, conversationID, 1, defaultPageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		view.loadState = LoadUnloaded
		return fmt.Errorf("load messages: %w", err)
	}
	view.messages = messages
	view.loadState = LoadLoaded
	if info != nil {
		view.pages = info.Pages
	}
	return nil
}

// CloseActive leaves the active conversation's room.
func (c *Controller) CloseActive() {
	c.mu.Lock()
	active := c.activeConv
	c.activeConv = 0
	c.mu.Unlock()

	if active != 0 {
		c.sendCommand(Command{Type: commandLeaveConversation, ConversationID: active})
	}
}

// Send persists a message through the API with an optimistic local echo.
// The pending entry is replaced by the server message on success and
// removed on failure.
func (c *Controller) Send(ctx context.Context, content string, attachments models.AttachmentList) (*models.Message, error) {
	c.mu.Lock()
	conversationID := c.activeConv
	view := c.views[conversationID]
	if conversationID == 0 || view == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("no active conversation")
	}

	pending := &models.Message{
		ConversationID: conversationID,
		SenderID:       c.selfID,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      c.now(),
	}
	view.messages = append(view.messages, pending)
	c.mu.Unlock()

	// Sending always terminates the typing indicator.
	c.stopTyping(conversationID)

	msg, err := c.api.SendMessage(ctx, conversationID, content, attachments)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		view.removeEntry(pending)
		return nil, err
	}
	view.replaceEntry(pending, msg)
	view.conv.LastMessage = previewOf(msg)
	view.conv.LastMessageTime = &msg.CreatedAt
	return msg, nil
}

// Edit mutates the local copy immediately, then confirms through the API.
// On failure the snapshot is restored (revert-on-failure).
func (c *Controller) Edit(ctx context.Context, messageID uint, content string) error {
	c.mu.Lock()
	view, msg := c.findMessage(messageID)
	if msg == nil {
		c.mu.Unlock()
		return fmt.Errorf("unknown message %d", messageID)
	}
	snapshot := *msg
	msg.Content = content
	msg.IsEdited = true
	c.mu.Unlock()

	updated, err := c.api.EditMessage(ctx, messageID, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	// A hub event may have replaced the slice entry while the lock was
	// released; re-locate by ID so the write lands on the live object.
	view, msg = c.findMessage(messageID)
	if msg == nil {
		return err
	}
	if err != nil {
		*msg = snapshot
		return err
	}
	*msg = *updated
	view.refreshPreviewLocal()
	return nil
}

// Delete removes the message locally, then confirms through the API. On
// failure the message is restored at its original position.
func (c *Controller) Delete(ctx context.Context, messageID uint) error {
	c.mu.Lock()
	view, msg := c.findMessage(messageID)
	if msg == nil {
		c.mu.Unlock()
		return fmt.Errorf("unknown message %d", messageID)
	}
	idx := view.indexOf(messageID)
	view.messages = append(view.messages[:idx], view.messages[idx+1:]...)
	c.mu.Unlock()

	err := c.api.DeleteMessage(ctx, messageID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// Events may have shrunk the slice while the lock was released.
		if idx > len(view.messages) {
			idx = len(view.messages)
		}
		view.messages = append(view.messages, nil)
		copy(view.messages[idx+1:], view.messages[idx:])
		view.messages[idx] = msg
		return err
	}
	view.refreshPreviewLocal()
	return nil
}

// InputTyping records a keystroke in the active conversation. The first
// keystroke after idle emits isTyping=true; SweepTyping emits the stop
// signal after the idle window.
func (c *Controller) InputTyping() {
	c.mu.Lock()
	conversationID := c.activeConv
	wasActive := c.typingActive
	c.typingActive = true
	c.lastInputAt = c.now()
	c.mu.Unlock()

	if conversationID == 0 || wasActive {
		return
	}
	c.sendCommand(Command{
		Type:           commandTyping,
		ConversationID: conversationID,
		Payload:        map[string]bool{"is_typing": true},
	})
}

// stopTyping emits isTyping=false when an indicator is outstanding.
func (c *Controller) stopTyping(conversationID uint) {
	c.mu.Lock()
	wasActive := c.typingActive
	c.typingActive = false
	c.mu.Unlock()

	if !wasActive || conversationID == 0 {
		return
	}
	c.sendCommand(Command{
		Type:           commandTyping,
		ConversationID: conversationID,
		Payload:        map[string]bool{"is_typing": false},
	})
}

// SweepTyping advances time-based state: emits the outbound stop signal
// after the idle window and expires stale inbound indicators. Run calls it
// periodically; tests call it directly.
func (c *Controller) SweepTyping(now time.Time) {
	c.mu.Lock()
	var stopConv uint
	if c.typingActive && now.Sub(c.lastInputAt) >= typingIdleStop {
		c.typingActive = false
		stopConv = c.activeConv
	}
	for _, view := range c.views {
		for userID, ind := range view.typists {
			if now.After(ind.expires) {
				delete(view.typists, userID)
			}
		}
	}
	c.mu.Unlock()

	if stopConv != 0 {
		c.sendCommand(Command{
			Type:           commandTyping,
			ConversationID: stopConv,
			Payload:        map[string]bool{"is_typing": false},
		})
	}
}

// Conversations returns the conversation list sorted by last activity,
// newest first.
func (c *Controller) Conversations() []models.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Conversation, 0, len(c.views))
	for _, view := range c.views {
		conv := view.conv
		conv.UnreadCount = view.unread
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageTime, out[j].LastMessageTime
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out
}

// Messages returns a copy of the loaded history for a conversation, in
// chronological order.
func (c *Controller) Messages(conversationID uint) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	view, ok := c.views[conversationID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(view.messages))
	for i, m := range view.messages {
		out[i] = *m
	}
	return out
}

// TypingUsers returns the display names currently typing in a
// conversation, excluding indicators past their expiry.
func (c *Controller) TypingUsers(conversationID uint) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	view, ok := c.views[conversationID]
	if !ok {
		return nil
	}
	now := c.now()
	names := make([]string, 0, len(view.typists))
	for _, ind := range view.typists {
		if now.Before(ind.expires) {
			names = append(names, ind.username)
		}
	}
	sort.Strings(names)
	return names
}

// Unread returns the local unread badge for a conversation.
func (c *Controller) Unread(conversationID uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view, ok := c.views[conversationID]; ok {
		return view.unread
	}
	return 0
}

// IsOnline reports the last observed presence of a user.
func (c *Controller) IsOnline(userID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[userID]
}

// LinkState reports the hub connection state.
func (c *Controller) LinkState() LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linkState
}

// LoadStateOf reports a conversation's history load state.
func (c *Controller) LoadStateOf(conversationID uint) LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view, ok := c.views[conversationID]; ok {
		return view.loadState
	}
	return LoadUnloaded
}

// Run connects the link and consumes events until ctx is cancelled,
// reconnecting with exponential backoff. Each (re)connect re-fetches
// authoritative state, since the hub never replays missed events.
func (c *Controller) Run(ctx context.Context) error {
	delay := reconnectBaseDelay
	sweeper := time.NewTicker(500 * time.Millisecond)
	defer sweeper.Stop()

	for {
		c.setLinkState(LinkConnecting)
		events, err := c.link.Connect(ctx)
		if err != nil {
			c.setLinkState(LinkDisconnected)
			middleware.Logger.Warn("chatclient: connect failed", "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		delay = reconnectBaseDelay
		c.setLinkState(LinkConnected)
		c.resync(ctx)

	consume:
		for {
			select {
			case <-ctx.Done():
				_ = c.link.Close()
				c.setLinkState(LinkDisconnected)
				return ctx.Err()
			case <-sweeper.C:
				c.SweepTyping(c.now())
			case ev, ok := <-events:
				if !ok {
					break consume
				}
				c.HandleEvent(ev)
			}
		}
		c.setLinkState(LinkDisconnected)
	}
}

// resync re-fetches conversations and the active conversation's first page
// after a (re)connect, then re-joins the active room.
func (c *Controller) resync(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		middleware.Logger.Warn("chatclient: resync failed", "error", err)
		return
	}

	c.mu.Lock()
	active := c.activeConv
	if view, ok := c.views[active]; ok {
		view.loadState = LoadUnloaded
		view.messages = nil
	}
	c.mu.Unlock()

	if active != 0 {
		if err := c.Open(ctx, active); err != nil {
			middleware.Logger.Warn("chatclient: reload active conversation failed",
				"conversation_id", active, "error", err)
		}
	}
}

// HandleEvent applies one hub event to the local view.
func (c *Controller) HandleEvent(ev Event) {
	switch ev.Type {
	case eventNewMessage:
		c.applyNewMessage(ev)
	case eventMessageUpdated:
		c.applyMessageUpdated(ev)
	case eventMessageDeleted:
		c.applyMessageDeleted(ev)
	case eventMessagesRead:
		c.applyMessagesRead(ev)
	case eventUserTyping:
		c.applyTyping(ev)
	case eventUserStatusChange:
		c.applyStatusChange(ev)
	case eventMessageNotification:
		c.applyNotification(ev)
	default:
		middleware.Logger.Debug("chatclient: ignoring event", "type", ev.Type)
	}
}

type messageEnvelope struct {
	ConversationID uint            `json:"conversation_id"`
	Message        *models.Message `json:"message"`
}

func (c *Controller) applyNewMessage(ev Event) {
	var p messageEnvelope
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Message == nil {
		return
	}

	c.mu.Lock()
	view, ok := c.views[p.ConversationID]
	if !ok {
		view = &conversationView{typists: make(map[uint]typingIndicator)}
		view.conv.ID = p.ConversationID
		c.views[p.ConversationID] = view
	}

	isActive := c.activeConv == p.ConversationID
	if view.loadState == LoadLoaded && view.indexOf(p.Message.ID) < 0 {
		view.messages = append(view.messages, p.Message)
	}
	view.conv.LastMessage = previewOf(p.Message)
	view.conv.LastMessageTime = &p.Message.CreatedAt
	// The sender stopped typing by definition.
	delete(view.typists, p.Message.SenderID)
	if !isActive && p.Message.SenderID != c.selfID {
		view.unread++
	}
	c.mu.Unlock()

	// Actively viewing: acknowledge immediately so the sender's receipt
	// and the server counter stay in step.
	if isActive && p.Message.SenderID != c.selfID {
		c.sendCommand(Command{Type: commandMarkRead, ConversationID: p.ConversationID})
	}
}

func (c *Controller) applyMessageUpdated(ev Event) {
	var p messageEnvelope
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Message == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[p.ConversationID]
	if !ok {
		return
	}
	if idx := view.indexOf(p.Message.ID); idx >= 0 {
		view.messages[idx] = p.Message
	}
	view.refreshPreviewLocal()
}

func (c *Controller) applyMessageDeleted(ev Event) {
	var p struct {
		ConversationID uint `json:"conversation_id"`
		MessageID      uint `json:"message_id"`
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[p.ConversationID]
	if !ok {
		return
	}
	if idx := view.indexOf(p.MessageID); idx >= 0 {
		view.messages = append(view.messages[:idx], view.messages[idx+1:]...)
	}
	view.refreshPreviewLocal()
}

func (c *Controller) applyMessagesRead(ev Event) {
	var p struct {
		ConversationID uint   `json:"conversation_id"`
		UserID         uint   `json:"user_id"`
		MessageIDs     []uint `json:"message_ids"`
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[p.ConversationID]
	if !ok {
		return
	}
	read := make(map[uint]struct{}, len(p.MessageIDs))
	for _, id := range p.MessageIDs {
		read[id] = struct{}{}
	}
	at := c.now()
	for _, msg := range view.messages {
		if _, ok := read[msg.ID]; !ok {
			continue
		}
		if !msg.ReadByUser(p.UserID) {
			msg.ReadBy = append(msg.ReadBy, models.MessageRead{
				MessageID: msg.ID, UserID: p.UserID, ReadAt: at,
			})
		}
	}
}

func (c *Controller) applyTyping(ev Event) {
	var p struct {
		IsTyping bool `json:"is_typing"`
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return
	}
	if ev.UserID == c.selfID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[ev.ConversationID]
	if !ok {
		return
	}
	if !p.IsTyping {
		delete(view.typists, ev.UserID)
		return
	}
	view.typists[ev.UserID] = typingIndicator{
		username: ev.Username,
		expires:  c.now().Add(typingIndicatorTTL),
	}
}

func (c *Controller) applyStatusChange(ev Event) {
	var p struct {
		Status string `json:"status"`
		UserID uint   `json:"user_id"`
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online[p.UserID] = p.Status == "online"
}

func (c *Controller) applyNotification(ev Event) {
	var p struct {
		Notification *models.Notification `json:"notification"`
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Notification == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append([]*models.Notification{p.Notification}, c.notifications...)
}

// Notifications returns live-received notifications, newest first.
func (c *Controller) Notifications() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Notification, len(c.notifications))
	for i, n := range c.notifications {
		out[i] = *n
	}
	return out
}

func (c *Controller) setLinkState(state LinkState) {
	c.mu.Lock()
	c.linkState = state
	c.mu.Unlock()
}

// sendCommand pushes a frame to the hub; losing it is acceptable because
// every command's effect is recoverable through REST.
func (c *Controller) sendCommand(cmd Command) {
	if err := c.link.Send(context.Background(), cmd); err != nil {
		middleware.Logger.Debug("chatclient: command dropped", "type", cmd.Type, "error", err)
	}
}

// findMessage locates a message across loaded views. Caller holds c.mu.
func (c *Controller) findMessage(messageID uint) (*conversationView, *models.Message) {
	for _, view := range c.views {
		if idx := view.indexOf(messageID); idx >= 0 {
			return view, view.messages[idx]
		}
	}
	return nil, nil
}

func (v *conversationView) indexOf(messageID uint) int {
	for i, m := range v.messages {
		if m.ID == messageID && messageID != 0 {
			return i
		}
	}
	return -1
}

func (v *conversationView) removeEntry(target *models.Message) {
	for i, m := range v.messages {
		if m == target {
			v.messages = append(v.messages[:i], v.messages[i+1:]...)
			return
		}
	}
}

func (v *conversationView) replaceEntry(target *models.Message, with *models.Message) {
	for i, m := range v.messages {
		if m == target {
			v.messages[i] = with
			return
		}
	}
}

// refreshPreviewLocal re-derives the cached preview from the loaded tail,
// mirroring the server's recompute-not-patch strategy.
func (v *conversationView) refreshPreviewLocal() {
	if len(v.messages) == 0 {
		v.conv.LastMessage = ""
		v.conv.LastMessageTime = nil
		return
	}
	last := v.messages[len(v.messages)-1]
	v.conv.LastMessage = previewOf(last)
	v.conv.LastMessageTime = &last.CreatedAt
}

func previewOf(m *models.Message) string {
	if m.Content != "" {
		return m.Content
	}
	if len(m.Attachments) > 0 {
		return "[attachment]"
	}
	return ""
}
