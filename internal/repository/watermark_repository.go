package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SweepWatermarkRepository persists the scheduled sweep's last-run boundary.
// Consecutive sweep windows must never overlap, including across process
// restarts, so the boundary lives in the database rather than in memory.
type SweepWatermarkRepository interface {
	// Get returns the end of the last completed sweep window, or the zero
	// time when no sweep has ever run.
	Get(ctx context.Context) (time.Time, error)
	// Save records the end of a completed sweep window.
	Save(ctx context.Context, sweptAt time.Time) error
}

type sweepWatermarkRepository struct {
	db *sql.DB
}

// NewSweepWatermarkRepository creates a new repository instance.
func NewSweepWatermarkRepository(db *sql.DB) SweepWatermarkRepository {
	return &sweepWatermarkRepository{db: db}
}

func (r *sweepWatermarkRepository) Get(ctx context.Context) (time.Time, error) {
	var sweptAt time.Time
	err := r.db.QueryRowContext(ctx, `SELECT swept_at FROM sweep_watermark WHERE id = 1`).Scan(&sweptAt)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sweep watermark: %w", err)
	}
	return sweptAt, nil
}

func (r *sweepWatermarkRepository) Save(ctx context.Context, sweptAt time.Time) error {
	query := `
		INSERT INTO sweep_watermark (id, swept_at)
		VALUES (1, ?)
		ON DUPLICATE KEY UPDATE swept_at = VALUES(swept_at)
	`

	_, err := r.db.ExecContext(ctx, query, sweptAt)
	if err != nil {
		return fmt.Errorf("failed to save sweep watermark: %w", err)
	}
	return nil
}
