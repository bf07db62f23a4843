package models

import "time"

// NotificationType classifies a notification row.
type NotificationType string

const (
	NotificationMessage     NotificationType = "message"
	NotificationAppointment NotificationType = "appointment"
	NotificationSystem      NotificationType = "system"
)

// Notification is the durable record created once per triggering event.
// External email/SMS delivery is best-effort; the sent flags record what
// actually went out and are never a precondition for anything.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;index" json:"recipient_id"`
	Type        NotificationType `gorm:"type:varchar(24);not null" json:"type"`
	Content     string           `gorm:"type:text;not null" json:"content"`
	RelatedID   *uint            `json:"related_id,omitempty"`
	OnModel     string           `gorm:"type:varchar(32)" json:"on_model,omitempty"`
	IsRead      bool             `gorm:"default:false;index" json:"is_read"`
	IsEmailSent bool             `gorm:"default:false" json:"is_email_sent"`
	IsSMSSent   bool             `gorm:"default:false" json:"is_sms_sent"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
