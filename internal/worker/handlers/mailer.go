// Package handlers holds the job handlers the worker runs: insight
// generation and the digest email.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendEndpoint = "/v3/mail/send"

type Message struct {
	To        string
	Subject   string
	PlainText string
	HTML      string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *slog.Logger
}

func NewSendGridMailer(cfg config.Email, logger *slog.Logger) *SendGridMailer {
	req := sendgrid.GetRequest(cfg.APIKey, sendEndpoint, cfg.Host)
	req.Method = "POST"

	return &SendGridMailer{
		client: &sendgrid.Client{Request: req},
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	email := mail.NewSingleEmail(m.from, msg.Subject, mail.NewEmail("", msg.To), msg.PlainText, msg.HTML)

	start := time.Now()
	response, err := m.client.SendWithContext(ctx, email)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d: %s", response.StatusCode, response.Body)
	}
	metrics.RecordUpstreamCall("sendgrid", "mail_send", time.Since(start), err)
	if err != nil {
		return apperr.Transport("sendgrid.send", fmt.Errorf("failed to send email: %w", err))
	}

	m.logger.Info("email sent", "to", msg.To, "status", response.StatusCode)
	return nil
}
