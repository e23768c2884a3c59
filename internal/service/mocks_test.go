package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"edugb/notifications-engine/internal/models"
	"edugb/notifications-engine/internal/repository"
	"edugb/notifications-engine/internal/resolver"
)

type mockEventQueueRepository struct {
	mock.Mock
}

func (m *mockEventQueueRepository) Each(ctx context.Context, fn func(models.EventQueueEntry) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

// expectBacklog scripts Each to stream the given entries through the
// callback.
func expectBacklog(events *mockEventQueueRepository, entries ...models.EventQueueEntry) {
	events.On("Each", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			fn := args.Get(1).(func(models.EventQueueEntry) error)
			for _, entry := range entries {
				_ = fn(entry)
			}
		}).
		Return(nil)
}

func (m *mockEventQueueRepository) Insert(ctx context.Context, entry *models.EventQueueEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockEventQueueRepository) Delete(ctx context.Context, q repository.Querier, id string) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}

func (m *mockEventQueueRepository) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockNotificationQueueRepository struct {
	mock.Mock
}

func (m *mockNotificationQueueRepository) ListDue(ctx context.Context, now time.Time) ([]models.NotificationQueueEntry, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotificationQueueEntry), args.Error(1)
}

func (m *mockNotificationQueueRepository) Insert(ctx context.Context, entry *models.NotificationQueueEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockNotificationQueueRepository) Delete(ctx context.Context, q repository.Querier, id string) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}

func (m *mockNotificationQueueRepository) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockPreferenceRepository struct {
	mock.Mock
}

func (m *mockPreferenceRepository) ListForResolver(ctx context.Context, resolverName string, ectx models.ExtendedContext) ([]*models.NotificationPreference, error) {
	args := m.Called(ctx, resolverName, ectx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.NotificationPreference), args.Error(1)
}

func (m *mockPreferenceRepository) GetByID(ctx context.Context, id uint64) (*models.NotificationPreference, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationPreference), args.Error(1)
}

func (m *mockPreferenceRepository) OffsetBounds(ctx context.Context, resolverName string) (int64, int64, bool, error) {
	args := m.Called(ctx, resolverName)
	return args.Get(0).(int64), args.Get(1).(int64), args.Bool(2), args.Error(3)
}

type mockSweepWatermarkRepository struct {
	mock.Mock
}

func (m *mockSweepWatermarkRepository) Get(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *mockSweepWatermarkRepository) Save(ctx context.Context, sweptAt time.Time) error {
	args := m.Called(ctx, sweptAt)
	return args.Error(0)
}

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) GetByID(ctx context.Context, userID uint64) (*models.Recipient, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Recipient), args.Error(1)
}

func (m *mockUserRepository) EnabledChannels(ctx context.Context, userID uint64) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockLogRepository struct {
	mock.Mock
}

func (m *mockLogRepository) CreateNotificationLog(ctx context.Context, resolverName string, preferenceID uint64, eventTime time.Time) (string, error) {
	args := m.Called(ctx, resolverName, preferenceID, eventTime)
	return args.String(0), args.Error(1)
}

func (m *mockLogRepository) FlagErrored(ctx context.Context, logID string) error {
	args := m.Called(ctx, logID)
	return args.Error(0)
}

func (m *mockLogRepository) CreateDeliveryLog(ctx context.Context, notificationLogID string, recipient models.Recipient) (string, error) {
	args := m.Called(ctx, notificationLogID, recipient)
	return args.String(0), args.Error(1)
}

func (m *mockLogRepository) SaveRenderedMessage(ctx context.Context, deliveryLogID, subject, body, plainBody string) error {
	args := m.Called(ctx, deliveryLogID, subject, body, plainBody)
	return args.Error(0)
}

func (m *mockLogRepository) CreateDeliveryAttempt(ctx context.Context, deliveryLogID, channel string, success bool, sendErr string) error {
	args := m.Called(ctx, deliveryLogID, channel, success, sendErr)
	return args.Error(0)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) DispatchFromPreference(ctx context.Context, pref *models.NotificationPreference, payload map[string]string, nominalTime time.Time) (*models.DispatchOutcome, error) {
	args := m.Called(ctx, pref, payload, nominalTime)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DispatchOutcome), args.Error(1)
}

type mockProcessor struct {
	mock.Mock
	name string
}

func newMockProcessor(name string) *mockProcessor {
	return &mockProcessor{name: name}
}

func (m *mockProcessor) Name() string { return m.name }

func (m *mockProcessor) Send(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// fakeResolver is a scriptable resolver shared across manager tests. The
// registry factory hands out the same instance so tests can inspect the
// outcome signals afterwards.
type fakeResolver struct {
	payload      map[string]string
	ectx         models.ExtendedContext
	fixedTime    int64
	recipientIDs map[string][]uint64
	recipientErr error
	criteriaFn   func(criteria string, payload map[string]string) (bool, error)

	sentPrefs []uint64
	notSent   map[uint64]string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		ectx:         models.ExtendedContext{ContextID: 301, Path: "/1/25/301"},
		recipientIDs: make(map[string][]uint64),
		notSent:      make(map[uint64]string),
	}
}

func (f *fakeResolver) Bind(payload map[string]string) error {
	f.payload = payload
	return nil
}

func (f *fakeResolver) Context() models.ExtendedContext { return f.ectx }
func (f *fakeResolver) FixedEventTime() int64           { return f.fixedTime }

func (f *fakeResolver) RecipientIDs(strategy string) ([]uint64, error) {
	if f.recipientErr != nil {
		return nil, f.recipientErr
	}
	return f.recipientIDs[strategy], nil
}

func (f *fakeResolver) Placeholders(recipient models.Recipient, eventTime time.Time) map[string]string {
	return map[string]string{
		"name":      recipient.Name,
		"eventtime": eventTime.UTC().Format("Mon, 02 Jan 2006 15:04"),
	}
}

func (f *fakeResolver) NotificationSent(pref *models.NotificationPreference) {
	f.sentPrefs = append(f.sentPrefs, pref.ID)
}

func (f *fakeResolver) NotificationNotSent(pref *models.NotificationPreference, reason string) {
	f.notSent[pref.ID] = reason
}

func (f *fakeResolver) MeetsCriteria(criteria string, payload map[string]string) (bool, error) {
	if f.criteriaFn != nil {
		return f.criteriaFn(criteria, payload)
	}
	return true, nil
}

type fakeScheduledResolver struct {
	*fakeResolver
	events      []map[string]string
	discoverErr error

	discovered []models.TimeWindow
}

func (f *fakeScheduledResolver) DiscoverEvents(ctx context.Context, window models.TimeWindow, fn func(payload map[string]string) error) error {
	f.discovered = append(f.discovered, window)
	if f.discoverErr != nil {
		return f.discoverErr
	}
	for _, payload := range f.events {
		if err := fn(payload); err != nil {
			return err
		}
	}
	return nil
}

func newTestRegistry(name string, res resolver.EventResolver) *resolver.Registry {
	registry := resolver.NewRegistry()
	registry.RegisterEvent(name, func() resolver.EventResolver { return res })
	return registry
}
