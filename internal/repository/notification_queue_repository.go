package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"edugb/notifications-engine/internal/models"
)

// NotificationQueueRepository handles database interactions for the
// notification queue: rows scheduled to fire at a specific due time.
type NotificationQueueRepository interface {
	ListDue(ctx context.Context, now time.Time) ([]models.NotificationQueueEntry, error)
	Insert(ctx context.Context, entry *models.NotificationQueueEntry) error
	Delete(ctx context.Context, q Querier, id string) error
	CountPending(ctx context.Context) (int64, error)
}

type notificationQueueRepository struct {
	db *sql.DB
}

// NewNotificationQueueRepository creates a new repository instance.
func NewNotificationQueueRepository(db *sql.DB) NotificationQueueRepository {
	return &notificationQueueRepository{db: db}
}

// ListDue returns rows whose due time has elapsed, oldest due first.
func (r *notificationQueueRepository) ListDue(ctx context.Context, now time.Time) ([]models.NotificationQueueEntry, error) {
	query := `
		SELECT id, preference_id, payload, due_at, created_at
		FROM notification_queue
		WHERE due_at <= ?
		ORDER BY due_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification queue: %w", err)
	}
	defer rows.Close()

	entries := make([]models.NotificationQueueEntry, 0)
	for rows.Next() {
		var entry models.NotificationQueueEntry
		var payloadJSON string

		err := rows.Scan(
			&entry.ID,
			&entry.PreferenceID,
			&payloadJSON,
			&entry.DueAt,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification queue row: %w", err)
		}

		if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification payload: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification queue: %w", err)
	}

	return entries, nil
}

// Insert persists a new notification queue row.
func (r *notificationQueueRepository) Insert(ctx context.Context, entry *models.NotificationQueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	query := `
		INSERT INTO notification_queue (id, preference_id, payload, due_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.PreferenceID,
		string(payloadJSON),
		entry.DueAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification queue row: %w", err)
	}

	return nil
}

// Delete removes a consumed row inside the caller's transaction. Rows are
// only deleted after a dispatch completed, so a rollback keeps the row
// queued for the next run.
func (r *notificationQueueRepository) Delete(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM notification_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification queue row: %w", err)
	}
	return nil
}

// CountPending returns the current backlog size.
func (r *notificationQueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_queue`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notification queue: %w", err)
	}
	return count, nil
}
