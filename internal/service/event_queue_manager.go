package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"edugb/notifications-engine/internal/errs"
	"edugb/notifications-engine/internal/models"
	"edugb/notifications-engine/internal/repository"
	"edugb/notifications-engine/internal/resolver"
	"edugb/notifications-engine/pkg/logger"
	"edugb/notifications-engine/pkg/metrics"
)

// EventQueueManager drains the event queue: each row is one fired domain
// event whose "on event" preferences get one chance to dispatch. The row is
// deleted once every currently-configured preference has had that chance,
// whatever the per-preference outcomes; only failures before the preference
// fan-out (unknown resolver, preference load) keep the row for retry.
type EventQueueManager struct {
	db         *sql.DB
	events     repository.EventQueueRepository
	prefs      repository.PreferenceRepository
	registry   *resolver.Registry
	dispatcher Dispatcher
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewEventQueueManager creates the manager. metrics may be nil.
func NewEventQueueManager(
	db *sql.DB,
	events repository.EventQueueRepository,
	prefs repository.PreferenceRepository,
	registry *resolver.Registry,
	dispatcher Dispatcher,
	log *logger.Logger,
	m *metrics.Metrics,
) *EventQueueManager {
	return &EventQueueManager{
		db:         db,
		events:     events,
		prefs:      prefs,
		registry:   registry,
		dispatcher: dispatcher,
		log:        log,
		metrics:    m,
	}
}

// ProcessQueues streams the event backlog row by row rather than loading it
// whole. Rows are independent: a failed row is logged and left for the next
// run without touching the rest.
func (m *EventQueueManager) ProcessQueues(ctx context.Context) error {
	start := time.Now()
	defer m.observeBatch(start)

	err := m.events.Each(ctx, func(entry models.EventQueueEntry) error {
		if err := m.processEntry(ctx, entry); err != nil {
			m.log.WithQueueEntry(entry.ID).WithField("resolver", entry.ResolverName).WithError(err).Error("Event row failed, kept for retry")
			m.countRow("retried")
			return nil
		}
		m.countRow("processed")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to iterate event queue: %w", err)
	}

	return nil
}

func (m *EventQueueManager) processEntry(ctx context.Context, entry models.EventQueueEntry) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// An unregistered resolver is a programming-error class failure: the
	// row survives and is retried every run until the registration is fixed.
	if !m.registry.IsEventResolver(entry.ResolverName) {
		return fmt.Errorf("%w: %s", errs.ErrUnknownResolver, entry.ResolverName)
	}

	// A disabled resolver should never have produced a notification; the
	// row is dropped outright and not retried even if re-enabled later.
	if m.registry.IsDisabled(entry.ResolverName, entry.Context) {
		if err := m.events.Delete(ctx, tx, entry.ID); err != nil {
			return err
		}
		return tx.Commit()
	}

	prefs, err := m.prefs.ListForResolver(ctx, entry.ResolverName, entry.Context)
	if err != nil {
		return err
	}

	for _, pref := range prefs {
		if !pref.OnEvent() {
			continue
		}
		// One bad preference must not block the others: dispatch failures
		// are absorbed per preference and the row still completes.
		if err := m.dispatchPreference(ctx, entry, pref); err != nil {
			m.log.WithQueueEntry(entry.ID).WithField("preference_id", pref.ID).WithError(err).Error("Preference dispatch failed")
		}
	}

	// All currently-configured preferences had their chance; the event is
	// handled regardless of individual outcomes.
	if err := m.events.Delete(ctx, tx, entry.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *EventQueueManager) dispatchPreference(ctx context.Context, entry models.EventQueueEntry, pref *models.NotificationPreference) error {
	if pref.HasCriteria() {
		res, err := m.registry.New(entry.ResolverName, entry.Payload)
		if err != nil {
			return err
		}
		if checker, ok := res.(resolver.CriteriaChecker); ok {
			match, err := checker.MeetsCriteria(pref.Criteria, entry.Payload)
			if err != nil {
				return err
			}
			if !match {
				return nil
			}
		}
	}

	_, err := m.dispatcher.DispatchFromPreference(ctx, pref, entry.Payload, entry.CreatedAt)
	return err
}

func (m *EventQueueManager) countRow(outcome string) {
	if m.metrics != nil {
		m.metrics.RowsProcessed.WithLabelValues("event_queue", outcome).Inc()
	}
}

func (m *EventQueueManager) observeBatch(start time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveBatch("event_queue", start)
	}
}
