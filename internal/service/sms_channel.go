package service

import (
	"context"
	"log"
	"os"

	"edugb/notifications-engine/internal/errs"
	"edugb/notifications-engine/internal/models"
)

// ChannelSMS is the delivery channel name for SMS transports.
const ChannelSMS = "sms"

type noopSMSProcessor struct{}

// NewSMSProcessor returns an SMS message processor based on the SMS_PROVIDER
// environment variable. Supported providers: "kavenegar" (defaults to noop
// if not configured or provider not supported).
func NewSMSProcessor() MessageProcessor {
	provider := os.Getenv("SMS_PROVIDER")
	apiKey := os.Getenv("SMS_API_KEY")
	sender := os.Getenv("SMS_SENDER")

	switch provider {
	case "kavenegar":
		if apiKey == "" {
			log.Println("Warning: SMS_PROVIDER is 'kavenegar' but SMS_API_KEY is not set, using noop processor")
			return &noopSMSProcessor{}
		}
		if sender == "" {
			sender = "10008663"
		}
		return NewKavenegarProcessor(apiKey, sender)
	default:
		if provider == "" {
			log.Println("Warning: SMS_PROVIDER is not set, using noop processor")
		} else {
			log.Printf("Warning: Unknown SMS_PROVIDER '%s', using noop processor", provider)
		}
		return &noopSMSProcessor{}
	}
}

func (p *noopSMSProcessor) Name() string {
	return ChannelSMS
}

func (p *noopSMSProcessor) Send(ctx context.Context, msg models.Message) error {
	return errs.ErrNotConfigured
}
