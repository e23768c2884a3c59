package service

import (
	"context"
	"fmt"

	"github.com/kavenegar/kavenegar-go"

	"edugb/notifications-engine/internal/models"
)

type kavenegarProcessor struct {
	api    *kavenegar.Kavenegar
	sender string
}

// NewKavenegarProcessor creates a Kavenegar-backed SMS message processor.
func NewKavenegarProcessor(apiKey, sender string) MessageProcessor {
	return &kavenegarProcessor{
		api:    kavenegar.New(apiKey),
		sender: sender,
	}
}

func (p *kavenegarProcessor) Name() string {
	return ChannelSMS
}

func (p *kavenegarProcessor) Send(ctx context.Context, msg models.Message) error {
	if msg.Recipient.Phone == "" {
		return fmt.Errorf("recipient has no phone number")
	}

	// SMS is a plain-text channel; subject and body are already rendered and
	// normalized upstream.
	text := msg.Subject
	if msg.PlainBody != "" {
		text = msg.Subject + "\n" + msg.PlainBody
	}

	res, err := p.api.Message.Send(p.sender, []string{msg.Recipient.Phone}, text, nil)
	if err != nil {
		switch err := err.(type) {
		case *kavenegar.APIError:
			return fmt.Errorf("kavenegar API error: %w", err)
		case *kavenegar.HTTPError:
			return fmt.Errorf("kavenegar HTTP error: %w", err)
		default:
			return fmt.Errorf("failed to send SMS: %w", err)
		}
	}

	if len(res) == 0 {
		return fmt.Errorf("no response entries from Kavenegar")
	}

	return nil
}
