package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/db"
	"go.uber.org/zap"
)

// Notifier records in-app notifications; push delivery happens later in the worker
type Notifier interface {
	Notify(ctx context.Context, userID, title, content, notificationType, eventID string) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n *db.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]db.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error

	// ListPendingPush returns the oldest notifications still waiting for push delivery
	ListPendingPush(ctx context.Context, limit int) ([]db.Notification, error)
	SetPushStatus(ctx context.Context, id string, status db.PushStatus) error

	RegisterDevice(ctx context.Context, d *db.DeviceToken) error
	UnregisterDevice(ctx context.Context, userID, token string) error
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
	// RemoveTokens drops tokens FCM reported as unregistered
	RemoveTokens(ctx context.Context, tokens []string) error
}

// ============================================================================
// SQL repository
// ============================================================================

type SimpleNotificationRepository struct {
	db *sql.DB
}

func NewSimpleNotificationRepository(db *sql.DB) *SimpleNotificationRepository {
	return &SimpleNotificationRepository{db: db}
}

var _ NotificationRepository = (*SimpleNotificationRepository)(nil)

const notificationColumns = `id, user_id, title, content, notification_type, is_read,
	COALESCE(related_event_id::text, ''), push_status, created_at, updated_at`

func (r *SimpleNotificationRepository) Create(ctx context.Context, n *db.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.PushStatus == "" {
		n.PushStatus = db.PushStatusPending
	}
	now := time.Now()
	n.CreatedAt, n.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, content, notification_type, is_read, related_event_id, push_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8, $9)
	`, n.ID, n.UserID, n.Title, n.Content, n.NotificationType, nullString(n.RelatedEventID), n.PushStatus, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "notification")
	}
	return nil
}

func (r *SimpleNotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]db.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *SimpleNotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID,
	).Scan(&n)
	return n, err
}

func (r *SimpleNotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return expectOneRow(result, "notification")
}

func (r *SimpleNotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, updated_at = NOW() WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *SimpleNotificationRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return expectOneRow(result, "notification")
}

func (r *SimpleNotificationRepository) ListPendingPush(ctx context.Context, limit int) ([]db.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE push_status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (r *SimpleNotificationRepository) SetPushStatus(ctx context.Context, id string, status db.PushStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET push_status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *SimpleNotificationRepository) RegisterDevice(ctx context.Context, d *db.DeviceToken) error {
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_tokens (token, user_id, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = EXCLUDED.updated_at
	`, d.Token, d.UserID, d.Platform, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "device token")
	}
	return nil
}

func (r *SimpleNotificationRepository) UnregisterDevice(ctx context.Context, userID, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = $1 AND user_id = $2`, token, userID)
	if err != nil {
		return fmt.Errorf("failed to unregister device: %w", err)
	}
	return expectOneRow(result, "device token")
}

func (r *SimpleNotificationRepository) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT token FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *SimpleNotificationRepository) RemoveTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = ANY($1)`, pq.Array(tokens))
	return err
}

func scanNotifications(rows *sql.Rows) ([]db.Notification, error) {
	out := make([]db.Notification, 0)
	for rows.Next() {
		var n db.Notification
		var status string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.NotificationType, &n.IsRead,
			&n.RelatedEventID, &status, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.PushStatus = db.PushStatus(status)
		out = append(out, n)
	}
	return out, rows.Err()
}

// ============================================================================
// Service
// ============================================================================

// NotificationService exposes a user's own notifications. Every read and
// write is scoped to the caller, so no evaluator check is needed.
type NotificationService struct {
	repo   NotificationRepository
	logger *zap.Logger
}

var _ Notifier = (*NotificationService)(nil)

func NewNotificationService(repo NotificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

func (s *NotificationService) List(ctx context.Context, id authz.Identity, unreadOnly bool, limit, offset int) ([]db.Notification, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthorized
	}
	return s.repo.ListByUser(ctx, id.UserID, unreadOnly, clampLimit(limit, 50, 200), offset)
}

func (s *NotificationService) UnreadCount(ctx context.Context, id authz.Identity) (int, error) {
	if !id.Authenticated() {
		return 0, ErrUnauthorized
	}
	return s.repo.UnreadCount(ctx, id.UserID)
}

// MarkRead returns ErrNotFound for missing notifications and for ones owned by someone else
func (s *NotificationService) MarkRead(ctx context.Context, id authz.Identity, notificationID string) error {
	if !id.Authenticated() {
		return ErrUnauthorized
	}
	return s.repo.MarkRead(ctx, id.UserID, notificationID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, id authz.Identity) (int64, error) {
	if !id.Authenticated() {
		return 0, ErrUnauthorized
	}
	return s.repo.MarkAllRead(ctx, id.UserID)
}

func (s *NotificationService) Delete(ctx context.Context, id authz.Identity, notificationID string) error {
	if !id.Authenticated() {
		return ErrUnauthorized
	}
	return s.repo.Delete(ctx, id.UserID, notificationID)
}

// Notify stores a notification with push_status pending
func (s *NotificationService) Notify(ctx context.Context, userID, title, content, notificationType, eventID string) error {
	n := &db.Notification{
		UserID:           userID,
		Title:            title,
		Content:          content,
		NotificationType: notificationType,
		RelatedEventID:   eventID,
		PushStatus:       db.PushStatusPending,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification for %s: %w", userID, err)
	}
	return nil
}

func (s *NotificationService) RegisterDevice(ctx context.Context, id authz.Identity, req db.RegisterDeviceRequest) (*db.DeviceToken, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthorized
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", authz.ErrInvalidInput)
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform == "" {
		platform = "android"
	}

	d := &db.DeviceToken{UserID: id.UserID, Token: token, Platform: platform}
	if err := s.repo.RegisterDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *NotificationService) UnregisterDevice(ctx context.Context, id authz.Identity, token string) error {
	if !id.Authenticated() {
		return ErrUnauthorized
	}
	return s.repo.UnregisterDevice(ctx, id.UserID, token)
}

// notifyAll sends the same notification to several users. Failures are
// logged and do not fail the caller's operation.
func notifyAll(ctx context.Context, n Notifier, logger *zap.Logger, userIDs []string, title, content, notificationType, eventID string) {
	if n == nil {
		return
	}
	for _, uid := range userIDs {
		if err := n.Notify(ctx, uid, title, content, notificationType, eventID); err != nil {
			logger.Warn("notification not recorded", zap.String("user_id", uid), zap.Error(err))
		}
	}
}
