// Package service provides the messaging and notification business logic.
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"vetcare/internal/middleware"
	"vetcare/internal/models"
	"vetcare/internal/observability"
	"vetcare/internal/repository"

	"gorm.io/gorm"
)

const maxMessageContentLen = 10000 // 10K characters

// attachmentPreview is the list preview used when a message carries
// attachments but no text.
const attachmentPreview = "[attachment]"

// MessageNotifier is the fan-out hook invoked after a message is persisted.
// Implementations must be best-effort; the send path never fails on them.
type MessageNotifier interface {
	NotifyNewMessage(ctx context.Context, recipient, sender *models.User, content string, conversationID uint)
}

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Limit int   `json:"limit"`
}

// MessagingService orchestrates the conversation and message stores and
// asks the live layer to broadcast the results.
type MessagingService struct {
	convRepo    repository.ConversationRepository
	msgRepo     repository.MessageRepository
	userRepo    repository.UserRepository
	notifier    MessageNotifier
	broadcaster Broadcaster
}

// NewMessagingService returns a new MessagingService. notifier and
// broadcaster may be nil; persistence works without the live layer.
func NewMessagingService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	notifier MessageNotifier,
	broadcaster Broadcaster,
) *MessagingService {
	return &MessagingService{
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		broadcaster: broadcaster,
	}
}

// StartConversationInput is the input for find-or-create.
type StartConversationInput struct {
	UserID         uint
	ReceiverID     uint
	InitialMessage string
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	UserID         uint
	ConversationID uint
	Content        string
	Attachments    models.AttachmentList
}

// StartConversation finds the existing active conversation for the pair or
// creates one. Idempotent: when an active conversation already exists it is
// returned unchanged and the initial message is NOT re-sent.
func (s *MessagingService) StartConversation(ctx context.Context, in StartConversationInput) (*models.Conversation, error) {
	if in.ReceiverID == in.UserID {
		return nil, models.NewValidationError("Cannot start a conversation with yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, in.ReceiverID); err != nil {
		return nil, err
	}

	existing, err := s.convRepo.FindActivePair(ctx, in.UserID, in.ReceiverID)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Create a new conversation below.
	default:
		return nil, models.NewInternalError(err)
	}

	conv := &models.Conversation{Status: models.ConversationActive}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.convRepo.AddParticipant(ctx, conv.ID, in.UserID); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.convRepo.AddParticipant(ctx, conv.ID, in.ReceiverID); err != nil {
		return nil, models.NewInternalError(err)
	}

	if in.InitialMessage != "" {
		if _, err := s.SendMessage(ctx, SendMessageInput{
			UserID:         in.UserID,
			ConversationID: conv.ID,
			Content:        in.InitialMessage,
		}); err != nil {
			return nil, err
		}
	}

	return s.convRepo.Get(ctx, conv.ID)
}

// ListConversations returns the caller's active conversations, most
// recently active first, with the caller's unread counter on each.
func (s *MessagingService) ListConversations(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return convs, nil
}

// GetConversation returns one conversation and resets the caller's unread
// counter as a side effect. Non-participants get NotFound, the same error
// as a missing conversation, so existence never leaks.
func (s *MessagingService) GetConversation(ctx context.Context, convID, userID uint) (*models.Conversation, error) {
	conv, err := s.authorizedConversation(ctx, convID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.convRepo.ResetUnread(ctx, convID, userID); err != nil {
		middleware.Logger.Warn("failed to reset unread counter",
			"conversation_id", convID, "user_id", userID, "error", err)
	}
	conv.UnreadCount = 0
	return conv, nil
}

// ArchiveConversation soft-closes the conversation. Archived conversations
// drop out of listings and of find-or-create duplicate detection.
func (s *MessagingService) ArchiveConversation(ctx context.Context, convID, userID uint) error {
	if _, err := s.authorizedConversation(ctx, convID, userID); err != nil {
		return err
	}
	if err := s.convRepo.Archive(ctx, convID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// SendMessage appends a message, updates the conversation's denormalized
// preview and unread counters, fans out notifications, and broadcasts to
// the conversation room. Everything after the persist is best-effort.
func (s *MessagingService) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, error) {
	if in.Content == "" && len(in.Attachments) == 0 {
		return nil, models.NewValidationError("Message requires content or attachments")
	}
	if len(in.Content) > maxMessageContentLen {
		return nil, models.NewValidationError("Message content too long (max 10000 characters)")
	}

	conv, err := s.authorizedConversation(ctx, in.ConversationID, in.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	message := &models.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.UserID,
		Content:        in.Content,
		Attachments:    in.Attachments,
		// Sender auto-reads their own message
		ReadBy: []models.MessageRead{{UserID: in.UserID, ReadAt: now}},
	}
	if err := s.msgRepo.Create(ctx, message); err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.MessagesSentTotal.Inc()

	if err := s.convRepo.TouchOnSend(ctx, in.ConversationID, in.UserID, previewFor(message), message.CreatedAt); err != nil {
		middleware.Logger.Warn("failed to update conversation preview",
			"conversation_id", in.ConversationID, "error", err)
	}

	sender, err := s.userRepo.GetByID(ctx, in.UserID)
	if err == nil {
		message.Sender = sender
	}

	if s.notifier != nil && sender != nil {
		if recipient := conv.OtherParticipant(in.UserID); recipient != nil {
			s.notifier.NotifyNewMessage(ctx, recipient, sender, message.Content, conv.ID)
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.ToConversation(conv.ID, EventNewMessage, MessagePayload{
			ConversationID: conv.ID,
			Message:        message,
		}, 0)
	}

	return message, nil
}

// ListMessages returns one chronological page and, as a side effect, marks
// everything visible as read for the caller and resets their unread counter.
func (s *MessagingService) ListMessages(ctx context.Context, convID, userID uint, page, limit int) ([]*models.Message, *PageMeta, error) {
	if _, err := s.authorizedConversation(ctx, convID, userID); err != nil {
		return nil, nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	messages, total, err := s.msgRepo.ListPage(ctx, convID, page, limit)
	if err != nil {
		return nil, nil, models.NewInternalError(err)
	}

	if _, err := s.MarkRead(ctx, convID, userID); err != nil {
		middleware.Logger.Warn("failed to mark messages read",
			"conversation_id", convID, "user_id", userID, "error", err)
	}

	pages := 0
	if total > 0 {
		pages = int(math.Ceil(float64(total) / float64(limit)))
	}
	meta := &PageMeta{Total: total, Page: page, Pages: pages, Limit: limit}
	return messages, meta, nil
}

// MarkRead appends the caller to the read set of every visible message they
// have not read and did not send, resets their unread counter, and
// broadcasts the receipt to the room (excluding the reader). Callers can be
// the REST layer or a relayed hub command, so membership is re-checked here.
func (s *MessagingService) MarkRead(ctx context.Context, convID, userID uint) ([]uint, error) {
	if _, err := s.authorizedConversation(ctx, convID, userID); err != nil {
		return nil, err
	}

	ids, err := s.msgRepo.MarkAllRead(ctx, convID, userID, time.Now())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.convRepo.ResetUnread(ctx, convID, userID); err != nil {
		return nil, models.NewInternalError(err)
	}

	if len(ids) > 0 && s.broadcaster != nil {
		s.broadcaster.ToConversation(convID, EventMessagesRead, MessagesReadPayload{
			ConversationID: convID,
			UserID:         userID,
			MessageIDs:     ids,
		}, userID)
	}
	return ids, nil
}

// IsParticipant reports whether the user belongs to an active conversation.
// The websocket hub uses it to gate room subscriptions.
func (s *MessagingService) IsParticipant(ctx context.Context, convID, userID uint) bool {
	_, err := s.authorizedConversation(ctx, convID, userID)
	return err == nil
}

// EditMessage replaces the content of the caller's own message and
// recomputes the conversation preview.
func (s *MessagingService) EditMessage(ctx context.Context, msgID, requesterID uint, content string) (*models.Message, error) {
	if content == "" {
		return nil, models.NewValidationError("Message content is required")
	}
	if len(content) > maxMessageContentLen {
		return nil, models.NewValidationError("Message content too long (max 10000 characters)")
	}

	msg, err := s.visibleMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, models.NewForbiddenError("Only the sender can edit a message")
	}

	now := time.Now()
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	if err := s.msgRepo.SaveEdit(ctx, msg); err != nil {
		return nil, models.NewInternalError(err)
	}

	s.refreshPreview(ctx, msg.ConversationID)

	if s.broadcaster != nil {
		s.broadcaster.ToConversation(msg.ConversationID, EventMessageUpdated, MessagePayload{
			ConversationID: msg.ConversationID,
			Message:        msg,
		}, 0)
	}
	return msg, nil
}

// DeleteMessage logically deletes the caller's own message and recomputes
// the conversation preview from the remaining messages.
func (s *MessagingService) DeleteMessage(ctx context.Context, msgID, requesterID uint) error {
	msg, err := s.visibleMessage(ctx, msgID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return models.NewForbiddenError("Only the sender can delete a message")
	}

	if err := s.msgRepo.SoftDelete(ctx, msgID, time.Now()); err != nil {
		return models.NewInternalError(err)
	}

	s.refreshPreview(ctx, msg.ConversationID)

	if s.broadcaster != nil {
		s.broadcaster.ToConversation(msg.ConversationID, EventMessageDeleted, MessageDeletedPayload{
			ConversationID: msg.ConversationID,
			MessageID:      msgID,
		}, 0)
	}
	return nil
}

// authorizedConversation loads the conversation and masks both "missing"
// and "not a participant" behind the same NotFound.
func (s *MessagingService) authorizedConversation(ctx context.Context, convID, userID uint) (*models.Conversation, error) {
	conv, err := s.convRepo.Get(ctx, convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Conversation", convID)
		}
		return nil, models.NewInternalError(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, models.NewNotFoundError("Conversation", convID)
	}
	return conv, nil
}

// visibleMessage loads a message, treating deleted rows as missing.
func (s *MessagingService) visibleMessage(ctx context.Context, msgID uint) (*models.Message, error) {
	msg, err := s.msgRepo.Get(ctx, msgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", msgID)
		}
		return nil, models.NewInternalError(err)
	}
	if msg.IsDeleted {
		return nil, models.NewNotFoundError("Message", msgID)
	}
	return msg, nil
}

// refreshPreview re-derives the conversation's cached preview from the
// latest visible message. The cache is non-authoritative, so failures are
// logged and tolerated.
func (s *MessagingService) refreshPreview(ctx context.Context, convID uint) {
	latest, err := s.msgRepo.LatestVisible(ctx, convID)
	switch {
	case err == nil:
		at := latest.CreatedAt
		err = s.convRepo.UpdatePreview(ctx, convID, previewFor(latest), &at)
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.convRepo.UpdatePreview(ctx, convID, "", nil)
	}
	if err != nil {
		middleware.Logger.Warn("failed to refresh conversation preview",
			"conversation_id", convID, "error", err)
	}
}

func previewFor(msg *models.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	if len(msg.Attachments) > 0 {
		return attachmentPreview
	}
	return ""
}
