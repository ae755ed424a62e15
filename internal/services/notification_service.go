package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/realtime"
	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/logger"
	"github.com/charlesng35/licensewatch/pkg/metrics"
)

// ErrNotificationNotFound indicates the notification does not exist or is not visible to the caller.
var ErrNotificationNotFound = apperrors.New("NOTIFICATION_NOT_FOUND", "Notification not found", http.StatusNotFound)

// Realtime events published on the notifications stream.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationUpdated = "notification.updated"
	EventNotificationDeleted = "notification.deleted"
	EventNotificationReadAll = "notification.read_all"
)

// EmailSender delivers a templated email. Failures are reported as false, never as an error.
type EmailSender interface {
	Send(ctx context.Context, to []string, subject, templateName string, vars map[string]any) bool
}

// Broadcaster pushes realtime messages to a user's subscribed connections.
type Broadcaster interface {
	BroadcastToUser(stream, userID string, message realtime.Message)
}

// NotificationConfig carries the settings used to build expiration emails.
type NotificationConfig struct {
	ProjectName  string
	FrontendHost string
}

// DashboardURL is the link embedded in expiration emails.
func (c NotificationConfig) DashboardURL() string {
	return strings.TrimRight(strings.TrimSpace(c.FrontendHost), "/") + "/dashboard"
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	LicenseID string
	UserID    *string
	Message   string
	Urgency   models.Urgency
	Read      bool
	Sent      bool
}

// UpdateNotificationInput carries a partial notification update.
type UpdateNotificationInput struct {
	Message *string
	Urgency *models.Urgency
	Read    *bool
	Sent    *bool
}

// NotificationEventPayload represents data sent to realtime consumers.
type NotificationEventPayload struct {
	Notification   *models.Notification `json:"notification,omitempty"`
	NotificationID string               `json:"notification_id,omitempty"`
}

// NotificationService manages notification records and the expiring-license sweep.
type NotificationService struct {
	db     *gorm.DB
	cfg    NotificationConfig
	sender EmailSender
	hub    Broadcaster
	digest *digestConfig
	now    Clock
	log    *zap.Logger
}

// NotificationOption customises a NotificationService.
type NotificationOption func(*NotificationService)

// WithNotificationClock overrides the clock used by the sweep.
func WithNotificationClock(clock Clock) NotificationOption {
	return func(s *NotificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithBroadcaster publishes notification events to realtime subscribers.
func WithBroadcaster(hub Broadcaster) NotificationOption {
	return func(s *NotificationService) {
		s.hub = hub
	}
}

// NewNotificationService constructs a NotificationService. sender may be nil, in which case
// sweep emails are reported as not sent.
func NewNotificationService(db *gorm.DB, cfg NotificationConfig, sender EmailSender, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	svc := &NotificationService{
		db:     db,
		cfg:    cfg,
		sender: sender,
		now:    systemClock,
		log:    logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create persists a notification for a license the actor can see.
func (s *NotificationService) Create(ctx context.Context, actor Actor, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, apperrors.NewBadRequest("message is required")
	}
	if !input.Urgency.Valid() {
		return nil, apperrors.NewBadRequest("urgency must be one of low, medium, high")
	}

	userID := trimmedPtr(input.UserID)
	if !actor.IsSuperuser {
		userID = actor.userIDPtr()
	}

	notification := &models.Notification{
		LicenseID:        strings.TrimSpace(input.LicenseID),
		UserID:           userID,
		Message:          message,
		Urgency:          input.Urgency,
		Read:             input.Read,
		Sent:             input.Sent,
		NotificationDate: s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var license models.License
		if err := findLicense(tx, actor, notification.LicenseID, &license); err != nil {
			return err
		}
		if err := tx.Create(notification).Error; err != nil {
			return fmt.Errorf("notification service: create notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.NotificationsCreated.WithLabelValues(string(notification.Urgency)).Inc()
	s.broadcast(notification.UserID, EventNotificationCreated, &NotificationEventPayload{Notification: notification})
	return notification, nil
}

// Get returns a notification visible to the actor.
func (s *NotificationService) Get(ctx context.Context, actor Actor, id string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := findNotification(s.db.WithContext(ctx), actor, id, &notification); err != nil {
		return nil, err
	}
	return &notification, nil
}

// List returns notifications visible to the actor, newest first.
func (s *NotificationService) List(ctx context.Context, actor Actor, page Page, unreadOnly bool) ([]models.Notification, int64, error) {
	ctx = ensureContext(ctx)
	page = page.normalise()

	query := scopeNotifications(s.db.WithContext(ctx).Model(&models.Notification{}), actor)
	if unreadOnly {
		query = query.Where(readColumnIs(false))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("notifications.notification_date DESC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}
	return rows, total, nil
}

// Update applies a partial update to a notification.
func (s *NotificationService) Update(ctx context.Context, actor Actor, id string, input UpdateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	updates := map[string]any{}
	if input.Message != nil {
		message := strings.TrimSpace(*input.Message)
		if message == "" {
			return nil, apperrors.NewBadRequest("message cannot be empty")
		}
		updates["message"] = message
	}
	if input.Urgency != nil {
		if !input.Urgency.Valid() {
			return nil, apperrors.NewBadRequest("urgency must be one of low, medium, high")
		}
		updates["urgency"] = *input.Urgency
	}
	if input.Read != nil {
		updates["read"] = *input.Read
	}
	if input.Sent != nil {
		updates["sent"] = *input.Sent
	}

	var notification models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findNotification(tx, actor, id, &notification); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&notification).Updates(updates).Error; err != nil {
			return fmt.Errorf("notification service: update notification: %w", err)
		}
		return tx.Take(&notification, "id = ?", notification.ID).Error
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(notification.UserID, EventNotificationUpdated, &NotificationEventPayload{
		Notification:   &notification,
		NotificationID: notification.ID,
	})
	return &notification, nil
}

// Delete removes a notification visible to the actor.
func (s *NotificationService) Delete(ctx context.Context, actor Actor, id string) error {
	ctx = ensureContext(ctx)

	var notification models.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findNotification(tx, actor, id, &notification); err != nil {
			return err
		}
		if err := tx.Delete(&notification).Error; err != nil {
			return fmt.Errorf("notification service: delete notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcast(notification.UserID, EventNotificationDeleted, &NotificationEventPayload{NotificationID: notification.ID})
	return nil
}

// MarkAllRead marks every unread notification addressed to the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.New("notification service: user id is required")
	}

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ?", userID).
		Where(readColumnIs(false)).
		Update("read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	s.broadcast(&userID, EventNotificationReadAll, nil)
	return result.RowsAffected, nil
}

func (s *NotificationService) broadcast(userID *string, event string, payload *NotificationEventPayload) {
	if s.hub == nil || userID == nil || *userID == "" {
		return
	}
	message := realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  event,
	}
	if payload != nil {
		message.Data = payload
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, *userID, message)
}

func findNotification(query *gorm.DB, actor Actor, id string, dest *models.Notification) error {
	err := scopeNotifications(query.Model(&models.Notification{}), actor).
		Where("notifications.id = ?", strings.TrimSpace(id)).
		Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return fmt.Errorf("notification service: load notification: %w", err)
	}
	return nil
}

// readColumnIs quotes "read", which is reserved in MySQL.
func readColumnIs(value bool) clause.Expression {
	return clause.Eq{Column: clause.Column{Table: "notifications", Name: "read"}, Value: value}
}

func formatDays(days int) string {
	return fmt.Sprintf("License expires in %d days", days)
}
