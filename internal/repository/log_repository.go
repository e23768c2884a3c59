package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"edugb/notifications-engine/internal/models"
)

// LogRepository writes the dispatch audit trail: one notification log per
// dispatched event, one delivery log per recipient, one attempt row per
// channel send, plus the immutable rendered form of each message persisted
// before transport.
type LogRepository interface {
	CreateNotificationLog(ctx context.Context, resolver string, preferenceID uint64, eventTime time.Time) (string, error)
	FlagErrored(ctx context.Context, logID string) error
	CreateDeliveryLog(ctx context.Context, notificationLogID string, recipient models.Recipient) (string, error)
	SaveRenderedMessage(ctx context.Context, deliveryLogID, subject, body, plainBody string) error
	CreateDeliveryAttempt(ctx context.Context, deliveryLogID, channel string, success bool, sendErr string) error
}

type logRepository struct {
	db *sql.DB
}

// NewLogRepository creates a new repository instance.
func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) CreateNotificationLog(ctx context.Context, resolver string, preferenceID uint64, eventTime time.Time) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO notification_logs (id, resolver, preference_id, event_time, errored, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`

	_, err := r.db.ExecContext(ctx, query, id, resolver, preferenceID, eventTime, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create notification log: %w", err)
	}

	return id, nil
}

func (r *logRepository) FlagErrored(ctx context.Context, logID string) error {
	query := `UPDATE notification_logs SET errored = 1 WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, logID)
	if err != nil {
		return fmt.Errorf("failed to flag notification log: %w", err)
	}
	return nil
}

func (r *logRepository) CreateDeliveryLog(ctx context.Context, notificationLogID string, recipient models.Recipient) (string, error) {
	id := uuid.New().String()

	var userID sql.NullInt64
	if !recipient.Virtual {
		userID = sql.NullInt64{Int64: int64(recipient.UserID), Valid: true}
	}

	query := `
		INSERT INTO delivery_logs (id, notification_log_id, user_id, address, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, id, notificationLogID, userID, recipient.Address(), time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create delivery log: %w", err)
	}

	return id, nil
}

// SaveRenderedMessage persists the rendered message so the audit trail
// survives even if transport later fails.
func (r *logRepository) SaveRenderedMessage(ctx context.Context, deliveryLogID, subject, body, plainBody string) error {
	query := `
		INSERT INTO rendered_messages (id, delivery_log_id, subject, body, plain_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), deliveryLogID, subject, body, plainBody, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save rendered message: %w", err)
	}
	return nil
}

func (r *logRepository) CreateDeliveryAttempt(ctx context.Context, deliveryLogID, channel string, success bool, sendErr string) error {
	query := `
		INSERT INTO delivery_attempts (id, delivery_log_id, channel, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), deliveryLogID, channel, success, sendErr, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create delivery attempt: %w", err)
	}
	return nil
}
