package services

import (
	"context"
	"encoding/json"
	"time"

	"telemed-server/internal/apperr"
	"telemed-server/internal/models"
	"telemed-server/internal/realtime"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// NotificationInput describes a notification to emit.
type NotificationInput struct {
	UserID        string
	Type          models.NotificationType
	Title         string
	Message       string
	AppointmentID string
}

// NotificationService persists notifications and pushes them best-effort over
// the injected delivery channel.
type NotificationService struct {
	db        *gorm.DB
	publisher realtime.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewNotificationService creates a NotificationService. A nil publisher
// disables push.
func NewNotificationService(db *gorm.DB, publisher realtime.Publisher, logger zerolog.Logger) *NotificationService {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &NotificationService{db: db, publisher: publisher, logger: logger, now: time.Now}
}

// Emit persists a notification with read=false using tx, so it commits or
// rolls back together with the transition that caused it.
func (s *NotificationService) Emit(ctx context.Context, tx *gorm.DB, in NotificationInput) (*models.Notification, error) {
	if in.UserID == "" || in.Type == "" || in.Title == "" {
		return nil, apperr.InvalidInput("notification requires userId, type and title")
	}
	n := &models.Notification{
		UserID:        in.UserID,
		Type:          in.Type,
		Title:         in.Title,
		Message:       in.Message,
		Read:          false,
		AppointmentID: in.AppointmentID,
		CreatedAt:     s.now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		return nil, apperr.FromStore(err, "notification")
	}
	return n, nil
}

// Deliver pushes already persisted notifications. Failures are logged and
// swallowed.
func (s *NotificationService) Deliver(ctx context.Context, notifications ...*models.Notification) {
	for _, n := range notifications {
		if n == nil {
			continue
		}
		data, err := json.Marshal(n)
		if err != nil {
			s.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to encode notification for push")
			continue
		}
		event := realtime.Event{
			Type:      "notification",
			Room:      realtime.UserRoom(n.UserID),
			Timestamp: n.CreatedAt,
			Data:      data,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).
				Str("notification_id", n.ID).
				Str("user_id", n.UserID).
				Msg("notification push failed; record is persisted")
		}
	}
}

// Notify persists and delivers a standalone notification.
func (s *NotificationService) Notify(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	n, err := s.Emit(ctx, s.db, in)
	if err != nil {
		return nil, err
	}
	s.Deliver(ctx, n)
	return n, nil
}

// ListForUser returns the user's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, p Principal, unreadOnly bool, limit int) ([]models.Notification, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", p.ID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	notifications := []models.Notification{}
	if err := query.Order("created_at desc").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, apperr.FromStore(err, "notifications")
	}
	return notifications, nil
}

// UnreadCount counts the user's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, p Principal) (int64, error) {
	if err := requirePrincipal(p); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", p.ID, false).
		Count(&count).Error
	if err != nil {
		return 0, apperr.FromStore(err, "notifications")
	}
	return count, nil
}

// MarkRead flips the read flag on one notification owned by the principal.
// Marking an already read notification succeeds without changes.
func (s *NotificationService) MarkRead(ctx context.Context, p Principal, id string) (*models.Notification, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, apperr.FromStore(err, "notification not found")
	}
	if n.UserID != p.ID {
		return nil, apperr.Concealed("notification not found")
	}
	if n.Read {
		return &n, nil
	}
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, p.ID).
		Update("is_read", true).Error
	if err != nil {
		return nil, apperr.FromStore(err, "notification not found")
	}
	n.Read = true
	return &n, nil
}

// MarkAllRead marks every unread notification of the principal as read and
// returns how many changed. A second call changes nothing and returns 0.
func (s *NotificationService) MarkAllRead(ctx context.Context, p Principal) (int64, error) {
	if err := requirePrincipal(p); err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", p.ID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, apperr.FromStore(result.Error, "notifications")
	}
	return result.RowsAffected, nil
}
