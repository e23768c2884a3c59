package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"edugb/notifications-engine/internal/models"
)

// PreferenceRepository loads notification preferences with context-override
// resolution applied. Preferences are read-only during dispatch; the
// administrative CRUD surface lives outside the engine.
type PreferenceRepository interface {
	// ListForResolver returns the applicable preferences for a resolver in a
	// context, most specific context first, with overridden ancestors removed.
	ListForResolver(ctx context.Context, resolver string, ectx models.ExtendedContext) ([]*models.NotificationPreference, error)
	// GetByID returns a single preference, or nil when it no longer exists.
	GetByID(ctx context.Context, id uint64) (*models.NotificationPreference, error)
	// OffsetBounds returns the minimum and maximum schedule offsets configured
	// for a resolver across enabled, non-on-event preferences. ok is false
	// when the resolver has no preference with an offset at all.
	OffsetBounds(ctx context.Context, resolver string) (min int64, max int64, ok bool, err error)
}

type preferenceRepository struct {
	db       *sql.DB
	validate *validator.Validate
}

// NewPreferenceRepository creates a new repository instance.
func NewPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &preferenceRepository{
		db:       db,
		validate: validator.New(),
	}
}

const preferenceColumns = `id, resolver, context_id, context_path, component, area, item_id, enabled,
	       recipients, subject, body, body_format, offset_seconds, forced_channels,
	       COALESCE(criteria, '') as criteria, ancestor_id, created_at, updated_at`

func (r *preferenceRepository) ListForResolver(ctx context.Context, resolver string, ectx models.ExtendedContext) ([]*models.NotificationPreference, error) {
	contextIDs := ectx.SelfAndAncestors()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(contextIDs)), ",")

	query := fmt.Sprintf(`
		SELECT %s
		FROM notification_preferences
		WHERE resolver = ? AND context_id IN (%s)
		  AND (component = '' OR (component = ? AND area = ? AND item_id = ?))
	`, preferenceColumns, placeholders)

	args := make([]interface{}, 0, len(contextIDs)+4)
	args = append(args, resolver)
	for _, id := range contextIDs {
		args = append(args, id)
	}
	args = append(args, ectx.Component, ectx.Area, ectx.ItemID)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]*models.NotificationPreference, 0)
	for rows.Next() {
		pref, err := r.scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}

	return orderAndFlatten(prefs, contextIDs), nil
}

func (r *preferenceRepository) GetByID(ctx context.Context, id uint64) (*models.NotificationPreference, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM notification_preferences
		WHERE id = ?
		LIMIT 1
	`, preferenceColumns)

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get preference: %w", err)
		}
		return nil, nil // Not found
	}
	return r.scanPreference(rows)
}

func (r *preferenceRepository) OffsetBounds(ctx context.Context, resolver string) (int64, int64, bool, error) {
	query := `
		SELECT MIN(offset_seconds), MAX(offset_seconds)
		FROM notification_preferences
		WHERE resolver = ? AND enabled = 1 AND offset_seconds <> 0
	`

	var min, max sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, resolver).Scan(&min, &max)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to query offset bounds: %w", err)
	}
	if !min.Valid || !max.Valid {
		return 0, 0, false, nil
	}
	return min.Int64, max.Int64, true, nil
}

func (r *preferenceRepository) scanPreference(rows *sql.Rows) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	var recipientsJSON, forcedJSON string
	var ancestorID sql.NullInt64

	err := rows.Scan(
		&pref.ID,
		&pref.ResolverName,
		&pref.Context.ContextID,
		&pref.Context.Path,
		&pref.Context.Component,
		&pref.Context.Area,
		&pref.Context.ItemID,
		&pref.Enabled,
		&recipientsJSON,
		&pref.Subject,
		&pref.Body,
		&pref.BodyFormat,
		&pref.OffsetSeconds,
		&forcedJSON,
		&pref.Criteria,
		&ancestorID,
		&pref.CreatedAt,
		&pref.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan preference: %w", err)
	}

	if err := json.Unmarshal([]byte(recipientsJSON), &pref.Recipients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients for preference %d: %w", pref.ID, err)
	}
	if err := json.Unmarshal([]byte(forcedJSON), &pref.ForcedChannels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal forced channels for preference %d: %w", pref.ID, err)
	}
	if ancestorID.Valid {
		id := uint64(ancestorID.Int64)
		pref.AncestorID = &id
	}

	if err := r.validate.Struct(&pref); err != nil {
		return nil, fmt.Errorf("invalid preference %d: %w", pref.ID, err)
	}

	return &pref, nil
}

// orderAndFlatten resolves the override chain once at load time: any
// preference shadowed by a loaded override is dropped, and the survivors are
// ordered from the most specific context outwards.
func orderAndFlatten(prefs []*models.NotificationPreference, contextIDs []uint64) []*models.NotificationPreference {
	overridden := make(map[uint64]bool)
	for _, pref := range prefs {
		if pref.AncestorID != nil {
			overridden[*pref.AncestorID] = true
		}
	}

	rank := make(map[uint64]int, len(contextIDs))
	for i, id := range contextIDs {
		rank[id] = i
	}

	out := make([]*models.NotificationPreference, 0, len(prefs))
	for _, pref := range prefs {
		if !overridden[pref.ID] {
			out = append(out, pref)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank[out[i].Context.ContextID] < rank[out[j].Context.ContextID]
	})
	return out
}
