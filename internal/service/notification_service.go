package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"vetcare/internal/delivery"
	"vetcare/internal/middleware"
	"vetcare/internal/models"
	"vetcare/internal/observability"
	"vetcare/internal/repository"

	"gorm.io/gorm"
)

// notificationPreviewLen bounds how much message text leaks into
// notification content for clinical recipients.
const notificationPreviewLen = 80

// NotificationService creates durable notification rows and attempts
// best-effort external delivery. Nothing here ever fails the send path.
type NotificationService struct {
	notifRepo   repository.NotificationRepository
	email       delivery.EmailSender
	sms         delivery.SMSSender
	broadcaster Broadcaster
}

// NewNotificationService returns a new NotificationService. email, sms and
// broadcaster may be nil; the durable row is still written.
func NewNotificationService(
	notifRepo repository.NotificationRepository,
	email delivery.EmailSender,
	sms delivery.SMSSender,
	broadcaster Broadcaster,
) *NotificationService {
	return &NotificationService{
		notifRepo:   notifRepo,
		email:       email,
		sms:         sms,
		broadcaster: broadcaster,
	}
}

// NotifyNewMessage writes the durable notification row, pushes a live
// message-notification to the recipient's personal room, and attempts
// email/SMS delivery. External failures are logged and swallowed.
func (s *NotificationService) NotifyNewMessage(ctx context.Context, recipient, sender *models.User, content string, conversationID uint) {
	notification := &models.Notification{
		RecipientID: recipient.ID,
		Type:        models.NotificationMessage,
		Content:     s.messageTemplate(recipient, sender, content),
		RelatedID:   &conversationID,
		OnModel:     "Conversation",
	}
	if err := s.notifRepo.Create(ctx, notification); err != nil {
		// The message itself is already persisted; losing the
		// notification row is tolerable.
		middleware.Logger.Error("failed to create notification",
			"recipient_id", recipient.ID, "conversation_id", conversationID, "error", err)
		return
	}

	if s.broadcaster != nil {
		s.broadcaster.ToUser(recipient.ID, EventMessageNotification, NotificationPayload{
			ConversationID: conversationID,
			Notification:   notification,
			Sender:         sender.Summarize(),
		})
	}

	if s.email != nil && recipient.Email != "" {
		subject := fmt.Sprintf("New message from %s", sender.Username)
		if err := s.email.Send(ctx, recipient.Email, subject, notification.Content); err != nil {
			observability.NotificationDeliveries.WithLabelValues("email", "failure").Inc()
			middleware.Logger.Warn("email delivery failed",
				"recipient_id", recipient.ID, "error", err)
		} else {
			observability.NotificationDeliveries.WithLabelValues("email", "success").Inc()
			if err := s.notifRepo.SetEmailSent(ctx, notification.ID); err != nil {
				middleware.Logger.Warn("failed to flag email sent", "notification_id", notification.ID, "error", err)
			}
		}
	}

	if s.sms != nil && recipient.Phone != "" {
		if err := s.sms.Send(ctx, recipient.Phone, notification.Content); err != nil {
			observability.NotificationDeliveries.WithLabelValues("sms", "failure").Inc()
			middleware.Logger.Warn("sms delivery failed",
				"recipient_id", recipient.ID, "error", err)
		} else {
			observability.NotificationDeliveries.WithLabelValues("sms", "success").Inc()
			if err := s.notifRepo.SetSMSSent(ctx, notification.ID); err != nil {
				middleware.Logger.Warn("failed to flag sms sent", "notification_id", notification.ID, "error", err)
			}
		}
	}
}

// messageTemplate picks the notification wording by capability: clinical
// recipients get a content preview, pet owners get a neutral line that
// keeps message text out of external channels.
func (s *NotificationService) messageTemplate(recipient, sender *models.User, content string) string {
	if recipient.Role.Can(models.CapabilityClinicalContext) {
		preview := content
		if preview == "" {
			preview = attachmentPreview
		}
		if len(preview) > notificationPreviewLen {
			// Cut on a rune boundary so a multibyte character at the
			// limit is dropped whole instead of split.
			cut := notificationPreviewLen
			for cut > 0 && !utf8.RuneStart(preview[cut]) {
				cut--
			}
			preview = preview[:cut] + "..."
		}
		return fmt.Sprintf("New message from %s: %s", sender.Username, preview)
	}
	return fmt.Sprintf("You have a new message from %s", sender.Username)
}

// ListNotifications returns one page of the user's notifications, newest
// first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, page, limit int) ([]*models.Notification, *PageMeta, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	notifications, total, err := s.notifRepo.ListForUser(ctx, userID, page, limit)
	if err != nil {
		return nil, nil, models.NewInternalError(err)
	}

	pages := 0
	if total > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return notifications, &PageMeta{Total: total, Page: page, Pages: pages, Limit: limit}, nil
}

// MarkNotificationRead flips the read flag, scoped to the caller.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, id, userID uint) error {
	if err := s.notifRepo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Notification", id)
		}
		return models.NewInternalError(err)
	}
	return nil
}
