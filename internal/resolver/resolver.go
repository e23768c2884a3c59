package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edugb/notifications-engine/internal/errs"
	"edugb/notifications-engine/internal/models"
)

// EventResolver is the domain strategy behind one resolver name: it
// interprets an event payload, computes timing and recipients, and receives
// the dispatch outcome signals.
type EventResolver interface {
	// Bind attaches an event payload to the resolver. All other methods
	// assume Bind succeeded.
	Bind(payload map[string]string) error
	// Context returns where the bound event occurred.
	Context() models.ExtendedContext
	// FixedEventTime returns the anchor timestamp (unix seconds) schedule
	// offsets are applied to. Must be positive for a valid event.
	FixedEventTime() int64
	// RecipientIDs resolves a recipient strategy to concrete user IDs.
	RecipientIDs(strategy string) ([]uint64, error)
	// Placeholders returns the substitution values for rendering a message to
	// one recipient, scoped so per-user values like name and timezone resolve
	// correctly.
	Placeholders(recipient models.Recipient, eventTime time.Time) map[string]string
	// NotificationSent signals that every recipient was handled cleanly.
	NotificationSent(pref *models.NotificationPreference)
	// NotificationNotSent signals a policy exit, with one of the
	// models.StatusNotSent* reasons.
	NotificationNotSent(pref *models.NotificationPreference, reason string)
}

// CriteriaChecker is implemented by resolvers supporting the optional
// additional-criteria gate on preferences.
type CriteriaChecker interface {
	MeetsCriteria(criteria string, payload map[string]string) (bool, error)
}

// ScheduledResolver is implemented by resolvers whose events are discovered
// by polling a data source rather than pushed onto the event queue.
type ScheduledResolver interface {
	EventResolver
	// DiscoverEvents streams the payloads of all events whose anchor time
	// falls inside the window. Called on an unbound instance.
	DiscoverEvents(ctx context.Context, window models.TimeWindow, fn func(payload map[string]string) error) error
}

// Factory produces a fresh, unbound resolver instance.
type Factory func() EventResolver

// Registry maps resolver names to factories and tracks administrative
// disablement at the system and per-context level. It replaces runtime
// class-name lookups with a fixed interface table.
type Registry struct {
	mu              sync.RWMutex
	event           map[string]Factory
	scheduled       map[string]Factory
	disabled        map[string]bool
	contextDisabled map[string]map[uint64]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		event:           make(map[string]Factory),
		scheduled:       make(map[string]Factory),
		disabled:        make(map[string]bool),
		contextDisabled: make(map[string]map[uint64]bool),
	}
}

// RegisterEvent registers a resolver consuming pushed event queue rows.
func (r *Registry) RegisterEvent(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event[name] = f
}

// RegisterScheduled registers a polling resolver. The factory must produce a
// ScheduledResolver.
func (r *Registry) RegisterScheduled(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[name] = f
}

// IsEventResolver reports whether name is a registered event resolver.
func (r *Registry) IsEventResolver(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.event[name]
	return ok
}

// IsScheduledResolver reports whether name is a registered scheduled resolver.
func (r *Registry) IsScheduledResolver(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.scheduled[name]
	return ok
}

// ScheduledNames returns the names of all registered scheduled resolvers.
func (r *Registry) ScheduledNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scheduled))
	for name := range r.scheduled {
		names = append(names, name)
	}
	return names
}

// Disable turns a resolver off at the system level.
func (r *Registry) Disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = true
}

// Enable reverses a system-level Disable.
func (r *Registry) Enable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabled, name)
}

// DisableInContext turns a resolver off inside one context subtree.
func (r *Registry) DisableInContext(name string, contextID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.contextDisabled[name] == nil {
		r.contextDisabled[name] = make(map[uint64]bool)
	}
	r.contextDisabled[name][contextID] = true
}

// IsDisabledSystem reports system-level disablement only.
func (r *Registry) IsDisabledSystem(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[name]
}

// IsDisabled reports whether the resolver is disabled at the system level or
// in the given context or any of its ancestors. The check is identical
// across all dispatch paths so a disabled resolver never leaks a partial
// notification.
func (r *Registry) IsDisabled(name string, ectx models.ExtendedContext) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.disabled[name] {
		return true
	}
	ctxSet := r.contextDisabled[name]
	if ctxSet == nil {
		return false
	}
	for _, id := range ectx.SelfAndAncestors() {
		if ctxSet[id] {
			return true
		}
	}
	return false
}

// New instantiates the named resolver bound to an event payload.
func (r *Registry) New(name string, payload map[string]string) (EventResolver, error) {
	r.mu.RLock()
	f, ok := r.event[name]
	if !ok {
		f, ok = r.scheduled[name]
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownResolver, name)
	}

	res := f()
	if err := res.Bind(payload); err != nil {
		return nil, fmt.Errorf("failed to bind payload for resolver %s: %w", name, err)
	}
	return res, nil
}

// NewScheduled instantiates an unbound scheduled resolver for discovery.
func (r *Registry) NewScheduled(name string) (ScheduledResolver, error) {
	r.mu.RLock()
	f, ok := r.scheduled[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownResolver, name)
	}

	sr, ok := f().(ScheduledResolver)
	if !ok {
		return nil, fmt.Errorf("resolver %s registered as scheduled but does not support discovery", name)
	}
	return sr, nil
}
