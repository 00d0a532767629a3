package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType tags what caused a notification.
type NotificationType string

const (
	NotificationAppointmentRequested   NotificationType = "APPOINTMENT_REQUESTED"
	NotificationAppointmentConfirmed   NotificationType = "APPOINTMENT_CONFIRMED"
	NotificationAppointmentRejected    NotificationType = "APPOINTMENT_REJECTED"
	NotificationAppointmentCompleted   NotificationType = "APPOINTMENT_COMPLETED"
	NotificationAppointmentCancelled   NotificationType = "APPOINTMENT_CANCELLED"
	NotificationAppointmentRescheduled NotificationType = "APPOINTMENT_RESCHEDULED"
	NotificationPrescriptionIssued     NotificationType = "PRESCRIPTION_ISSUED"
	NotificationAccountStatusChanged   NotificationType = "ACCOUNT_STATUS_CHANGED"
)

// Notification is a user-visible record created as a side effect of another
// entity's state change. Only Read is ever updated.
type Notification struct {
	ID            string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string           `gorm:"size:36;index:idx_notifications_user_read;not null" json:"userId"`
	Type          NotificationType `gorm:"size:50;not null" json:"type"`
	Title         string           `gorm:"size:255;not null" json:"title"`
	Message       string           `gorm:"type:text" json:"message"`
	Read          bool             `gorm:"column:is_read;index:idx_notifications_user_read;not null;default:false" json:"read"`
	AppointmentID string           `gorm:"size:36" json:"appointmentId,omitempty"`
	CreatedAt     time.Time        `gorm:"index" json:"createdAt"`
}

// BeforeCreate assigns a UUID.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
