package repository

import (
	"context"
	"database/sql"
	"fmt"

	"edugb/notifications-engine/internal/models"
)

// UserRepository resolves recipient details and per-user delivery channel
// preferences.
type UserRepository interface {
	// GetByID returns the recipient details for a user, or nil when no such
	// user exists.
	GetByID(ctx context.Context, userID uint64) (*models.Recipient, error)
	// EnabledChannels returns the delivery channels the user opted into.
	EnabledChannels(ctx context.Context, userID uint64) ([]string, error)
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, userID uint64) (*models.Recipient, error) {
	query := `
		SELECT id, name,
		       COALESCE(email, '') as email,
		       COALESCE(phone, '') as phone,
		       COALESCE(timezone, 'UTC') as timezone
		FROM users
		WHERE id = ?
	`

	var rec models.Recipient
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.Name,
		&rec.Email,
		&rec.Phone,
		&rec.Timezone,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	return &rec, nil
}

func (r *userRepository) EnabledChannels(ctx context.Context, userID uint64) ([]string, error) {
	query := `
		SELECT channel
		FROM user_channel_preferences
		WHERE user_id = ? AND enabled = 1
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel preferences: %w", err)
	}
	defer rows.Close()

	channels := make([]string, 0)
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("failed to scan channel preference: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel preferences: %w", err)
	}

	return channels, nil
}
