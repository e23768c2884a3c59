package service

import (
	"context"

	"edugb/notifications-engine/internal/models"
)

// MessageProcessor is a pluggable delivery transport identified by a channel
// name. Send either delivers the whole message or fails; partial sends are a
// transport bug.
type MessageProcessor interface {
	Name() string
	Send(ctx context.Context, msg models.Message) error
}

// ProcessorProvider yields the set of globally-enabled message processors.
type ProcessorProvider interface {
	Enabled(ctx context.Context) ([]MessageProcessor, error)
}

type staticProcessorProvider struct {
	processors []MessageProcessor
}

// NewStaticProcessorProvider wraps a fixed processor set built at startup.
func NewStaticProcessorProvider(processors ...MessageProcessor) ProcessorProvider {
	return &staticProcessorProvider{processors: processors}
}

func (p *staticProcessorProvider) Enabled(ctx context.Context) ([]MessageProcessor, error) {
	return p.processors, nil
}
