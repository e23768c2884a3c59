package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"os"

	"edugb/notifications-engine/internal/errs"
	"edugb/notifications-engine/internal/models"
)

// ChannelEmail is the delivery channel name for email transports.
const ChannelEmail = "email"

type smtpEmailProcessor struct {
	host     string
	port     string
	username string
	password string
}

type noopEmailProcessor struct{}

// NewEmailProcessor returns an SMTP-backed email message processor
// configured from SMTP_HOST/SMTP_PORT/SMTP_USER/SMTP_PASSWORD, or a noop
// processor when the host is not set.
func NewEmailProcessor() MessageProcessor {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Println("Warning: SMTP_HOST is not set, using noop email processor")
		return &noopEmailProcessor{}
	}

	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "465"
	}

	return &smtpEmailProcessor{
		host:     host,
		port:     port,
		username: os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASSWORD"),
	}
}

func (p *smtpEmailProcessor) Name() string {
	return ChannelEmail
}

func (p *smtpEmailProcessor) Send(ctx context.Context, msg models.Message) error {
	to := msg.Recipient.Email
	if to == "" {
		return fmt.Errorf("recipient has no email address")
	}

	payload := []byte(
		fmt.Sprintf("From: %s\r\n", p.username) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			msg.Body,
	)

	serverAddr := p.host + ":" + p.port

	// Implicit TLS for port 465
	conn, err := tls.Dial("tcp", serverAddr, &tls.Config{ServerName: p.host})
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	// Quit closes the underlying connection; its error does not outrank the
	// send outcome.
	defer func() { _ = client.Quit() }()

	auth := smtp.PlainAuth("", p.username, p.password, p.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}

	if err := client.Mail(p.username); err != nil {
		return fmt.Errorf("SMTP MAIL failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA failed: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return nil
}

func (p *noopEmailProcessor) Name() string {
	return ChannelEmail
}

func (p *noopEmailProcessor) Send(ctx context.Context, msg models.Message) error {
	return errs.ErrNotConfigured
}
