package models

import "time"

// Recipient resolution strategies understood by the dispatch pipeline.
// Anything else is passed to the resolver for interpretation.
const (
	// VirtualRecipientPrefix marks a recipient strategy carrying a raw email
	// address for someone who may not have an account yet.
	VirtualRecipientPrefix = "email:"
)

// NotificationPreference configures what to send, to whom, when and through
// which channels for one resolver in one context. Read-only during dispatch.
type NotificationPreference struct {
	ID           uint64          `validate:"required"`
	ResolverName string          `validate:"required"`
	Context      ExtendedContext `validate:"required"`
	Enabled      bool

	// Recipients holds resolution strategies: either names the resolver
	// interprets (e.g. "actor", "teachers") or virtual "email:<address>"
	// entries synthesized from event data.
	Recipients []string `validate:"min=1"`

	Subject    string `validate:"required"`
	Body       string
	BodyFormat string `validate:"oneof=plain html"`

	// OffsetSeconds is the signed schedule offset relative to the resolver's
	// fixed event time. Zero means "on event" delivery; negative fires before
	// the anchor, positive after.
	OffsetSeconds int64

	// ForcedChannels are delivery channels the administrator pins regardless
	// of per-user channel preferences.
	ForcedChannels []string

	// Criteria is an optional conditional gate evaluated against event data
	// by resolvers that support it. Empty means no gate.
	Criteria string

	// AncestorID links an override to the preference it shadows at a broader
	// context. An override's resolver name always matches its ancestor's.
	AncestorID *uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnEvent reports whether the preference fires immediately when its event is
// queued rather than at an offset from the anchor time.
func (p *NotificationPreference) OnEvent() bool {
	return p.OffsetSeconds == 0
}

// Offset returns the schedule offset as a duration.
func (p *NotificationPreference) Offset() time.Duration {
	return time.Duration(p.OffsetSeconds) * time.Second
}

// FireTime applies the schedule offset to an anchor timestamp.
func (p *NotificationPreference) FireTime(anchor time.Time) time.Time {
	return anchor.Add(p.Offset())
}

// HasCriteria reports whether the additional-criteria gate is configured.
func (p *NotificationPreference) HasCriteria() bool {
	return p.Criteria != ""
}
