package models

// Dispatch statuses reported back to resolvers and aggregated into outcomes.
const (
	StatusSent             = "sent"
	StatusNotSentDisabled  = "not_sent_disabled"
	StatusNotSentNoProcs   = "not_sent_no_processors"
	StatusSkippedNoChannel = "skipped_no_channels"
	StatusResolverDisabled = "skipped_resolver_disabled"
	StatusFailed           = "failed"
)

// ChannelOutcome records one delivery attempt over one channel.
type ChannelOutcome struct {
	Channel string
	Sent    bool
	Skipped bool
	Err     error
}

// RecipientOutcome aggregates the channel attempts for one recipient.
type RecipientOutcome struct {
	Recipient Recipient
	Status    string
	Channels  []ChannelOutcome
	Err       error
}

// Failed reports whether anything went wrong for this recipient, either in
// the recipient-level pipeline or in any channel attempt.
func (o RecipientOutcome) Failed() bool {
	if o.Err != nil || o.Status == StatusFailed {
		return true
	}
	for _, ch := range o.Channels {
		if ch.Err != nil {
			return true
		}
	}
	return false
}

// DispatchOutcome aggregates a full run of the dispatch pipeline for one
// preference. Managers use it to decide logging and retry behaviour without
// relying on how far an error propagated.
type DispatchOutcome struct {
	Status     string
	LogID      string
	Recipients []RecipientOutcome
}

// Errored reports whether any recipient in the dispatch failed.
func (o *DispatchOutcome) Errored() bool {
	for _, r := range o.Recipients {
		if r.Failed() {
			return true
		}
	}
	return false
}
