package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"edugb/notifications-engine/internal/models"
)

// Recipient strategies understood by the booking resolver.
const (
	BookingStrategyActor    = "actor"
	BookingStrategyTeachers = "teachers"
)

// BookingResolver handles session-booking events: "a booking was confirmed"
// arrives on the event queue, and session reminders are discovered by
// polling upcoming session times. Payload keys: booking_id, user_id,
// course_id, course_name, session_time, context_id, context_path.
type BookingResolver struct {
	db      *sql.DB
	payload map[string]string

	// Outcome holds the last dispatch signal received, consumed by the
	// booking UI to surface a notice to the actor.
	Outcome string
}

// NewBookingFactory returns a factory producing booking resolvers backed by
// the given database.
func NewBookingFactory(db *sql.DB) Factory {
	return func() EventResolver {
		return &BookingResolver{db: db}
	}
}

func (b *BookingResolver) Bind(payload map[string]string) error {
	for _, key := range []string{"booking_id", "user_id", "session_time", "context_id"} {
		if payload[key] == "" {
			return fmt.Errorf("booking payload missing %s", key)
		}
	}
	b.payload = payload
	return nil
}

func (b *BookingResolver) Context() models.ExtendedContext {
	contextID, _ := strconv.ParseUint(b.payload["context_id"], 10, 64)
	itemID, _ := strconv.ParseUint(b.payload["booking_id"], 10, 64)
	return models.ExtendedContext{
		ContextID: contextID,
		Path:      b.payload["context_path"],
		Component: "booking",
		Area:      "session",
		ItemID:    itemID,
	}
}

func (b *BookingResolver) FixedEventTime() int64 {
	t, err := strconv.ParseInt(b.payload["session_time"], 10, 64)
	if err != nil {
		return 0
	}
	return t
}

func (b *BookingResolver) RecipientIDs(strategy string) ([]uint64, error) {
	switch strategy {
	case BookingStrategyActor:
		id, err := strconv.ParseUint(b.payload["user_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user_id in booking payload: %w", err)
		}
		return []uint64{id}, nil
	case BookingStrategyTeachers:
		return b.courseTeachers()
	default:
		return nil, fmt.Errorf("unknown booking recipient strategy: %s", strategy)
	}
}

func (b *BookingResolver) courseTeachers() ([]uint64, error) {
	query := `
		SELECT user_id
		FROM course_teachers
		WHERE course_id = ?
	`

	rows, err := b.db.QueryContext(context.Background(), query, b.payload["course_id"])
	if err != nil {
		return nil, fmt.Errorf("failed to query course teachers: %w", err)
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan teacher id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teachers: %w", err)
	}

	return ids, nil
}

func (b *BookingResolver) Placeholders(recipient models.Recipient, eventTime time.Time) map[string]string {
	sessionTime := time.Unix(b.FixedEventTime(), 0)
	if loc, err := time.LoadLocation(recipient.Timezone); err == nil {
		sessionTime = sessionTime.In(loc)
	}

	return map[string]string{
		"name":        recipient.Name,
		"coursename":  b.payload["course_name"],
		"sessiontime": sessionTime.Format("Mon, 02 Jan 2006 15:04"),
		"eventtime":   eventTime.Format("Mon, 02 Jan 2006 15:04"),
	}
}

func (b *BookingResolver) NotificationSent(pref *models.NotificationPreference) {
	b.Outcome = models.StatusSent
}

func (b *BookingResolver) NotificationNotSent(pref *models.NotificationPreference, reason string) {
	b.Outcome = reason
}

// MeetsCriteria evaluates a "key=value" predicate against the event payload.
func (b *BookingResolver) MeetsCriteria(criteria string, payload map[string]string) (bool, error) {
	key, value, found := cutCriteria(criteria)
	if !found {
		return false, fmt.Errorf("malformed booking criteria: %q", criteria)
	}
	return payload[key] == value, nil
}

func cutCriteria(criteria string) (key, value string, found bool) {
	for i := 0; i < len(criteria); i++ {
		if criteria[i] == '=' {
			return criteria[:i], criteria[i+1:], true
		}
	}
	return "", "", false
}

// DiscoverEvents streams bookings whose session time falls inside the
// window, for reminder preferences scheduled relative to the session.
func (b *BookingResolver) DiscoverEvents(ctx context.Context, window models.TimeWindow, fn func(payload map[string]string) error) error {
	query := `
		SELECT b.id, b.user_id, b.course_id, c.name, b.session_time, b.context_id, b.context_path
		FROM bookings b
		JOIN courses c ON c.id = b.course_id
		WHERE b.session_time >= ? AND b.session_time < ?
		ORDER BY b.session_time ASC
	`

	rows, err := b.db.QueryContext(ctx, query, window.Min.Unix(), window.Max.Unix())
	if err != nil {
		return fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookingID, userID, courseID, contextID uint64
		var courseName, contextPath string
		var sessionTime int64

		err := rows.Scan(&bookingID, &userID, &courseID, &courseName, &sessionTime, &contextID, &contextPath)
		if err != nil {
			return fmt.Errorf("failed to scan booking: %w", err)
		}

		payload := map[string]string{
			"booking_id":   strconv.FormatUint(bookingID, 10),
			"user_id":      strconv.FormatUint(userID, 10),
			"course_id":    strconv.FormatUint(courseID, 10),
			"course_name":  courseName,
			"session_time": strconv.FormatInt(sessionTime, 10),
			"context_id":   strconv.FormatUint(contextID, 10),
			"context_path": contextPath,
		}
		if err := fn(payload); err != nil {
			return err
		}
	}

	return rows.Err()
}
