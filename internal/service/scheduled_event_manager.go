package service

import (
	"context"
	"fmt"
	"time"

	"edugb/notifications-engine/internal/errs"
	"edugb/notifications-engine/internal/models"
	"edugb/notifications-engine/internal/repository"
	"edugb/notifications-engine/internal/resolver"
	"edugb/notifications-engine/pkg/logger"
	"edugb/notifications-engine/pkg/metrics"
)

// ScheduledEventManager discovers events for polling resolvers and fires the
// preferences whose offset-adjusted time falls inside the current run
// window. It keeps no queue of its own: each anchor's fire time is
// deterministic, so as long as consecutive run windows never overlap, every
// (event, preference) pair fires exactly once.
type ScheduledEventManager struct {
	prefs      repository.PreferenceRepository
	watermarks repository.SweepWatermarkRepository
	registry   *resolver.Registry
	dispatcher Dispatcher
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewScheduledEventManager creates the manager. metrics may be nil.
func NewScheduledEventManager(
	prefs repository.PreferenceRepository,
	watermarks repository.SweepWatermarkRepository,
	registry *resolver.Registry,
	dispatcher Dispatcher,
	log *logger.Logger,
	m *metrics.Metrics,
) *ScheduledEventManager {
	return &ScheduledEventManager{
		prefs:      prefs,
		watermarks: watermarks,
		registry:   registry,
		dispatcher: dispatcher,
		log:        log,
		metrics:    m,
	}
}

// Execute sweeps every registered scheduled resolver over the window
// [lastRun, now). A zero now defaults to the wall clock; a zero lastRun
// resumes from the persisted watermark, so a restarted process never
// re-covers a window it already swept. A fresh deployment with no watermark
// bounds the first sweep to the previous 24 hours. Isolated bad data never
// aborts the sweep; discovery must make forward progress across ticks.
func (m *ScheduledEventManager) Execute(ctx context.Context, now, lastRun time.Time) error {
	if now.IsZero() {
		now = time.Now()
	}
	if lastRun.IsZero() {
		stored, err := m.watermarks.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to load sweep watermark: %w", err)
		}
		lastRun = stored
	}
	if lastRun.IsZero() {
		lastRun = now.Add(-24 * time.Hour)
	}
	start := time.Now()
	defer m.observeBatch(start)

	window, err := models.NewTimeWindow(lastRun, now)
	if err != nil {
		return err
	}

	for _, name := range m.registry.ScheduledNames() {
		if m.registry.IsDisabledSystem(name) {
			continue
		}
		if err := m.sweepResolver(ctx, name, window); err != nil {
			m.log.WithResolver(name).WithError(err).Error("Scheduled sweep failed")
		}
	}

	// The watermark advances only after the sweep covered the window: a crash
	// before this point re-runs the same window, a success never overlaps it.
	if err := m.watermarks.Save(ctx, now); err != nil {
		return fmt.Errorf("failed to save sweep watermark: %w", err)
	}

	return nil
}

func (m *ScheduledEventManager) sweepResolver(ctx context.Context, name string, window models.TimeWindow) error {
	minOffset, maxOffset, ok, err := m.prefs.OffsetBounds(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		// No preference carries an offset; nothing can ever fire.
		return nil
	}

	// The discovery window is wider than the firing window: an anchor whose
	// offset-adjusted fire time lands in [lastRun, now) may itself sit well
	// before or after the window, so discovery scans every anchor time that
	// could plausibly produce a fire time in range.
	discovery, err := models.NewTimeWindow(
		window.Min.Add(-time.Duration(maxOffset)*time.Second),
		window.Max.Add(-time.Duration(minOffset)*time.Second),
	)
	if err != nil {
		return err
	}

	scheduled, err := m.registry.NewScheduled(name)
	if err != nil {
		return err
	}

	return scheduled.DiscoverEvents(ctx, discovery, func(payload map[string]string) error {
		if err := m.processDiscovered(ctx, name, payload, window); err != nil {
			// Per-event isolation: a malformed event is logged and skipped.
			m.log.WithResolver(name).WithError(err).Error("Discovered event failed")
		}
		return nil
	})
}

func (m *ScheduledEventManager) processDiscovered(ctx context.Context, name string, payload map[string]string, window models.TimeWindow) error {
	res, err := m.registry.New(name, payload)
	if err != nil {
		return err
	}

	if m.registry.IsDisabled(name, res.Context()) {
		return nil
	}

	fixed := res.FixedEventTime()
	if fixed <= 0 {
		return fmt.Errorf("%w: resolver %s returned %d", errs.ErrInvalidEventTime, name, fixed)
	}
	anchor := time.Unix(fixed, 0)

	prefs, err := m.prefs.ListForResolver(ctx, name, res.Context())
	if err != nil {
		return err
	}

	checker, hasChecker := res.(resolver.CriteriaChecker)

	for _, pref := range prefs {
		// Resolvers registered on both paths deliver "on event" preferences
		// through the event queue only; firing them here would double-send.
		if pref.OnEvent() && m.registry.IsEventResolver(name) {
			continue
		}
		if !pref.Enabled {
			continue
		}
		if !window.Contains(pref.FireTime(anchor)) {
			continue
		}
		if pref.HasCriteria() && hasChecker {
			match, err := checker.MeetsCriteria(pref.Criteria, payload)
			if err != nil {
				m.log.WithResolver(name).WithField("preference_id", pref.ID).WithError(err).Error("Criteria evaluation failed")
				continue
			}
			if !match {
				continue
			}
		}

		if _, err := m.dispatcher.DispatchFromPreference(ctx, pref, payload, anchor); err != nil {
			// Per-preference isolation mirrors the event queue path.
			m.log.WithResolver(name).WithField("preference_id", pref.ID).WithError(err).Error("Scheduled dispatch failed")
		}
	}

	return nil
}

func (m *ScheduledEventManager) observeBatch(start time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveBatch("scheduled_events", start)
	}
}
