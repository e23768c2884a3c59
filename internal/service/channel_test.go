package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edugb/notifications-engine/internal/errs"
	"edugb/notifications-engine/internal/models"
)

func TestNewSMSProcessor(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		apiKey     string
		expectNoop bool
	}{
		{name: "no provider falls back to noop", provider: "", expectNoop: true},
		{name: "unknown provider falls back to noop", provider: "twilio", expectNoop: true},
		{name: "kavenegar without key falls back to noop", provider: "kavenegar", expectNoop: true},
		{name: "kavenegar with key", provider: "kavenegar", apiKey: "test-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SMS_PROVIDER", tt.provider)
			t.Setenv("SMS_API_KEY", tt.apiKey)
			t.Setenv("SMS_SENDER", "")

			proc := NewSMSProcessor()
			assert.Equal(t, ChannelSMS, proc.Name())

			if tt.expectNoop {
				err := proc.Send(context.Background(), models.Message{})
				assert.ErrorIs(t, err, errs.ErrNotConfigured)
			} else {
				_, isNoop := proc.(*noopSMSProcessor)
				assert.False(t, isNoop)
			}
		})
	}
}

func TestNewEmailProcessor(t *testing.T) {
	t.Run("no host falls back to noop", func(t *testing.T) {
		t.Setenv("SMTP_HOST", "")

		proc := NewEmailProcessor()
		assert.Equal(t, ChannelEmail, proc.Name())
		assert.ErrorIs(t, proc.Send(context.Background(), models.Message{}), errs.ErrNotConfigured)
	})

	t.Run("send requires a recipient address", func(t *testing.T) {
		proc := &smtpEmailProcessor{host: "mail.example.com", port: "465"}

		// Fails before any network activity.
		err := proc.Send(context.Background(), models.Message{Subject: "hi"})
		assert.Error(t, err)
	})

	t.Run("configured host defaults the port", func(t *testing.T) {
		t.Setenv("SMTP_HOST", "mail.example.com")
		t.Setenv("SMTP_PORT", "")
		t.Setenv("SMTP_USER", "noreply@example.com")
		t.Setenv("SMTP_PASSWORD", "secret")

		proc := NewEmailProcessor()
		smtp, ok := proc.(*smtpEmailProcessor)
		require.True(t, ok)
		assert.Equal(t, "465", smtp.port)
		assert.Equal(t, "noreply@example.com", smtp.username)
	})
}

func TestStaticProcessorProvider(t *testing.T) {
	email := newMockProcessor("email")
	sms := newMockProcessor("sms")

	provider := NewStaticProcessorProvider(email, sms)
	procs, err := provider.Enabled(context.Background())
	require.NoError(t, err)
	assert.Len(t, procs, 2)

	empty := NewStaticProcessorProvider()
	procs, err = empty.Enabled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func TestFilterProcessors(t *testing.T) {
	email := newMockProcessor("email")
	sms := newMockProcessor("sms")

	active := filterProcessors([]MessageProcessor{email, sms}, map[string]bool{"sms": true})
	require.Len(t, active, 1)
	assert.Equal(t, "sms", active[0].Name())

	assert.Empty(t, filterProcessors([]MessageProcessor{email, sms}, map[string]bool{}))
}
