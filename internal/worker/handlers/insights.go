package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/nadmax/nexcoach/internal/queue"
)

// PayloadSendDigest on a generate_insights job mails the new insight once
// it is stored. PayloadRecipient overrides the configured recipient.
const (
	PayloadSendDigest = "send_digest"
	PayloadRecipient  = "recipient"
)

var ErrNoMailer = errors.New("email delivery is not configured")

type Generator interface {
	Generate(ctx context.Context) (*insights.Insight, error)
}

type InsightStore interface {
	SaveInsight(ctx context.Context, in *insights.Insight) error
	LatestInsight(ctx context.Context) (*insights.Insight, error)
}

type InsightHandlers struct {
	generator Generator
	store     InsightStore
	mailer    Mailer
	recipient string
	logger    *slog.Logger
}

// NewInsightHandlers wires the job handlers. store and mailer may be nil:
// insights are then not persisted or digests not delivered.
func NewInsightHandlers(generator Generator, store InsightStore, mailer Mailer, recipient string, logger *slog.Logger) *InsightHandlers {
	return &InsightHandlers{
		generator: generator,
		store:     store,
		mailer:    mailer,
		recipient: recipient,
		logger:    logger,
	}
}

func (h *InsightHandlers) GenerateInsights(ctx context.Context, j *queue.Job) (string, error) {
	in, err := h.generator.Generate(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to generate insights: %w", err)
	}
	metrics.RecordInsightGenerated("worker")

	if h.store != nil {
		if err := h.store.SaveInsight(ctx, in); err != nil {
			return "", fmt.Errorf("failed to save insight %s: %w", in.ID, err)
		}
	}

	if send, _ := j.Payload[PayloadSendDigest].(bool); send {
		if err := h.deliver(ctx, in, h.recipientFor(j)); err != nil {
			return "", err
		}
	}

	h.logger.Info("insight generated", "insight_id", in.ID, "job_id", j.ID)
	return in.ID, nil
}

// SendDigest mails the most recent stored insight.
func (h *InsightHandlers) SendDigest(ctx context.Context, j *queue.Job) (string, error) {
	if h.store == nil {
		return "", apperr.Config("handlers.send_digest", errors.New("insight history is not configured"))
	}

	in, err := h.store.LatestInsight(ctx)
	if err != nil {
		return "", err
	}

	if err := h.deliver(ctx, in, h.recipientFor(j)); err != nil {
		return "", err
	}
	return in.ID, nil
}

func (h *InsightHandlers) deliver(ctx context.Context, in *insights.Insight, recipient string) error {
	if h.mailer == nil {
		return apperr.Config("handlers.deliver", ErrNoMailer)
	}
	if recipient == "" {
		return apperr.Validation("handlers.deliver", errors.New("digest recipient is empty"))
	}

	msg, err := Digest(in, recipient)
	if err != nil {
		return err
	}
	return h.mailer.Send(ctx, msg)
}

func (h *InsightHandlers) recipientFor(j *queue.Job) string {
	if r, ok := j.Payload[PayloadRecipient].(string); ok && r != "" {
		return r
	}
	return h.recipient
}
