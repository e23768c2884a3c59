package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"edugb/notifications-engine/internal/models"
	"edugb/notifications-engine/internal/repository"
	"edugb/notifications-engine/internal/resolver"
	"edugb/notifications-engine/pkg/logger"
	"edugb/notifications-engine/pkg/metrics"
)

// Dispatcher is the direct dispatch entry point shared by all three queue
// paths.
type Dispatcher interface {
	DispatchFromPreference(ctx context.Context, pref *models.NotificationPreference, payload map[string]string, nominalTime time.Time) (*models.DispatchOutcome, error)
}

// NotificationQueueManager drains the notification queue of due rows and
// runs the shared dispatch pipeline: recipient resolution, per-user channel
// filtering, placeholder rendering, transport sends and audit logging.
//
// DispatchQueues gives at-least-once delivery for time-based sends: a row is
// deleted only after its dispatch completed, so a failure keeps it queued
// and a retry may duplicate a partially-delivered send. No fencing is taken
// against two overlapping scheduler runs double-processing the same due row;
// callers must not run concurrent batches.
type NotificationQueueManager struct {
	db              *sql.DB
	queue           repository.NotificationQueueRepository
	prefs           repository.PreferenceRepository
	users           repository.UserRepository
	logs            repository.LogRepository
	registry        *resolver.Registry
	processors      ProcessorProvider
	defaultChannels []string
	log             *logger.Logger
	metrics         *metrics.Metrics
}

// NewNotificationQueueManager creates the manager. defaultChannels is the
// platform channel set applied to virtual recipients, who have no per-user
// channel preferences. metrics may be nil.
func NewNotificationQueueManager(
	db *sql.DB,
	queue repository.NotificationQueueRepository,
	prefs repository.PreferenceRepository,
	users repository.UserRepository,
	logs repository.LogRepository,
	registry *resolver.Registry,
	processors ProcessorProvider,
	defaultChannels []string,
	log *logger.Logger,
	m *metrics.Metrics,
) *NotificationQueueManager {
	return &NotificationQueueManager{
		db:              db,
		queue:           queue,
		prefs:           prefs,
		users:           users,
		logs:            logs,
		registry:        registry,
		processors:      processors,
		defaultChannels: defaultChannels,
		log:             log,
		metrics:         m,
	}
}

// DispatchQueues processes all queue rows whose due time has elapsed. A zero
// now defaults to the wall clock. Each row runs in its own transaction; a
// dispatch failure rolls the row back for the next run and processing moves
// on.
func (m *NotificationQueueManager) DispatchQueues(ctx context.Context, now time.Time) error {
	if now.IsZero() {
		now = time.Now()
	}
	start := time.Now()
	defer m.observeBatch("notification_queue", start)

	entries, err := m.queue.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due notifications: %w", err)
	}

	for _, entry := range entries {
		if err := m.dispatchEntry(ctx, entry); err != nil {
			m.log.WithQueueEntry(entry.ID).WithError(err).Error("Notification dispatch failed, row kept for retry")
			m.countRow("notification_queue", "retried")
			continue
		}
		m.countRow("notification_queue", "processed")
	}

	return nil
}

func (m *NotificationQueueManager) dispatchEntry(ctx context.Context, entry models.NotificationQueueEntry) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	pref, err := m.prefs.GetByID(ctx, entry.PreferenceID)
	if err != nil {
		return err
	}
	if pref == nil {
		// The preference was deleted after the row was queued; it can never
		// fire, so the row is dropped rather than retried.
		m.log.WithQueueEntry(entry.ID).WithField("preference_id", entry.PreferenceID).Warn("Preference no longer exists, dropping queue row")
		if err := m.queue.Delete(ctx, tx, entry.ID); err != nil {
			return err
		}
		return tx.Commit()
	}

	// CreatedAt is the nominal "event occurred at" time for rendering.
	if _, err := m.DispatchFromPreference(ctx, pref, entry.Payload, entry.CreatedAt); err != nil {
		return err
	}

	if err := m.queue.Delete(ctx, tx, entry.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// DispatchFromPreference runs the dispatch pipeline for one preference bound
// to one event payload. An error return means no user-visible side effect
// happened yet and the caller may safely retry; failures after audit logging
// began are absorbed into the outcome instead.
func (m *NotificationQueueManager) DispatchFromPreference(ctx context.Context, pref *models.NotificationPreference, payload map[string]string, nominalTime time.Time) (*models.DispatchOutcome, error) {
	res, err := m.registry.New(pref.ResolverName, payload)
	if err != nil {
		return nil, err
	}

	// Disablement is checked identically on every dispatch path; a disabled
	// resolver exits silently with no log noise.
	if m.registry.IsDisabled(pref.ResolverName, res.Context()) {
		return &models.DispatchOutcome{Status: models.StatusResolverDisabled}, nil
	}

	if !pref.Enabled {
		res.NotificationNotSent(pref, models.StatusNotSentDisabled)
		m.countDispatch(models.StatusNotSentDisabled)
		return &models.DispatchOutcome{Status: models.StatusNotSentDisabled}, nil
	}

	recipients, err := m.resolveRecipients(ctx, res, pref)
	if err != nil {
		return nil, err
	}

	processors, err := m.processors.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	if len(processors) == 0 {
		res.NotificationNotSent(pref, models.StatusNotSentNoProcs)
		m.countDispatch(models.StatusNotSentNoProcs)
		return &models.DispatchOutcome{Status: models.StatusNotSentNoProcs}, nil
	}

	outcome := &models.DispatchOutcome{Status: models.StatusSent}

	if len(recipients) > 0 {
		logID, err := m.logs.CreateNotificationLog(ctx, pref.ResolverName, pref.ID, nominalTime)
		if err != nil {
			return nil, err
		}
		outcome.LogID = logID

		for _, rec := range recipients {
			out := m.deliverToRecipient(ctx, res, pref, payload, rec, nominalTime, processors, logID)
			outcome.Recipients = append(outcome.Recipients, out)
		}

		if outcome.Errored() {
			outcome.Status = models.StatusFailed
			if err := m.logs.FlagErrored(ctx, logID); err != nil {
				m.log.WithPreference(pref.ID).WithError(err).Error("Failed to flag notification log")
			}
		}
	}

	if outcome.Status == models.StatusSent {
		res.NotificationSent(pref)
	}
	m.countDispatch(outcome.Status)
	return outcome, nil
}

// resolveRecipients expands the preference's recipient strategies. Virtual
// "email:" strategies synthesize a recipient carrying only an address;
// everything else goes through the resolver and the users table. Users that
// vanished since the preference was written are skipped.
func (m *NotificationQueueManager) resolveRecipients(ctx context.Context, res resolver.EventResolver, pref *models.NotificationPreference) ([]models.Recipient, error) {
	recipients := make([]models.Recipient, 0, len(pref.Recipients))
	seen := make(map[string]bool)

	for _, strategy := range pref.Recipients {
		if strings.HasPrefix(strategy, models.VirtualRecipientPrefix) {
			address := strings.TrimPrefix(strategy, models.VirtualRecipientPrefix)
			if address == "" || seen["v:"+address] {
				continue
			}
			seen["v:"+address] = true
			recipients = append(recipients, models.Recipient{
				Email:    address,
				Timezone: "UTC",
				Virtual:  true,
			})
			continue
		}

		ids, err := res.RecipientIDs(strategy)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recipients for strategy %q: %w", strategy, err)
		}
		for _, id := range ids {
			key := fmt.Sprintf("u:%d", id)
			if seen[key] {
				continue
			}
			seen[key] = true

			rec, err := m.users.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				m.log.WithUserID(id).Debug("Recipient user no longer exists, skipping")
				continue
			}
			recipients = append(recipients, *rec)
		}
	}

	return recipients, nil
}

func (m *NotificationQueueManager) deliverToRecipient(
	ctx context.Context,
	res resolver.EventResolver,
	pref *models.NotificationPreference,
	payload map[string]string,
	rec models.Recipient,
	nominalTime time.Time,
	processors []MessageProcessor,
	logID string,
) models.RecipientOutcome {
	out := models.RecipientOutcome{Recipient: rec}

	allowed, err := m.allowedChannels(ctx, rec, pref)
	if err != nil {
		out.Status = models.StatusFailed
		out.Err = err
		return out
	}

	active := filterProcessors(processors, allowed)
	if len(active) == 0 {
		out.Status = models.StatusSkippedNoChannel
		return out
	}

	deliveryLogID, err := m.logs.CreateDeliveryLog(ctx, logID, rec)
	if err != nil {
		out.Status = models.StatusFailed
		out.Err = err
		return out
	}

	values := res.Placeholders(rec, nominalTime)
	subject := resolver.Render(pref.Subject, values)
	body := resolver.Render(pref.Body, values)
	plain := body
	if pref.BodyFormat == "html" {
		plain = resolver.PlainText(body)
	}

	// The rendered form is persisted before any transport attempt so the
	// audit trail survives a send failure.
	if err := m.logs.SaveRenderedMessage(ctx, deliveryLogID, subject, body, plain); err != nil {
		out.Status = models.StatusFailed
		out.Err = err
		return out
	}

	checker, hasChecker := res.(resolver.CriteriaChecker)
	out.Status = models.StatusSent

	for _, proc := range active {
		chOut := models.ChannelOutcome{Channel: proc.Name()}

		// Re-check the additional-criteria gate per channel; some criteria
		// reference data that was not available earlier in the pipeline.
		if pref.HasCriteria() && hasChecker {
			ok, err := checker.MeetsCriteria(pref.Criteria, payload)
			if err != nil {
				chOut.Err = err
				m.attempt(ctx, deliveryLogID, proc.Name(), false, err)
				out.Channels = append(out.Channels, chOut)
				continue
			}
			if !ok {
				chOut.Skipped = true
				out.Channels = append(out.Channels, chOut)
				continue
			}
		}

		msg := models.Message{
			Subject:   subject,
			Body:      body,
			PlainBody: plain,
			Channel:   proc.Name(),
			Recipient: rec,
		}
		if err := proc.Send(ctx, msg); err != nil {
			// One channel's failure must not block the others.
			chOut.Err = err
			m.log.WithPreference(pref.ID).WithField("channel", proc.Name()).WithError(err).Error("Delivery attempt failed")
			m.attempt(ctx, deliveryLogID, proc.Name(), false, err)
		} else {
			chOut.Sent = true
			m.attempt(ctx, deliveryLogID, proc.Name(), true, nil)
		}
		out.Channels = append(out.Channels, chOut)
	}

	return out
}

// allowedChannels unions the channels the recipient enabled with the
// administrator-forced ones. Virtual recipients fall back to the platform
// default set.
func (m *NotificationQueueManager) allowedChannels(ctx context.Context, rec models.Recipient, pref *models.NotificationPreference) (map[string]bool, error) {
	allowed := make(map[string]bool)

	if rec.Virtual {
		for _, ch := range m.defaultChannels {
			allowed[ch] = true
		}
	} else {
		channels, err := m.users.EnabledChannels(ctx, rec.UserID)
		if err != nil {
			return nil, err
		}
		for _, ch := range channels {
			allowed[ch] = true
		}
	}

	for _, ch := range pref.ForcedChannels {
		allowed[ch] = true
	}
	return allowed, nil
}

func filterProcessors(processors []MessageProcessor, allowed map[string]bool) []MessageProcessor {
	active := make([]MessageProcessor, 0, len(processors))
	for _, p := range processors {
		if allowed[p.Name()] {
			active = append(active, p)
		}
	}
	return active
}

func (m *NotificationQueueManager) attempt(ctx context.Context, deliveryLogID, channel string, success bool, sendErr error) {
	errText := ""
	if sendErr != nil {
		errText = sendErr.Error()
	}
	if err := m.logs.CreateDeliveryAttempt(ctx, deliveryLogID, channel, success, errText); err != nil {
		m.log.WithField("channel", channel).WithError(err).Error("Failed to record delivery attempt")
	}
}

func (m *NotificationQueueManager) countRow(manager, outcome string) {
	if m.metrics != nil {
		m.metrics.RowsProcessed.WithLabelValues(manager, outcome).Inc()
	}
}

func (m *NotificationQueueManager) countDispatch(status string) {
	if m.metrics != nil {
		m.metrics.Dispatches.WithLabelValues(status).Inc()
	}
}

func (m *NotificationQueueManager) observeBatch(manager string, start time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveBatch(manager, start)
	}
}
