package reporting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

var ErrNotSent = errors.New("report was not accepted by the sink")

// Sink delivers a report to its final destination.
type Sink interface {
	Send(ctx context.Context, r Report) error
}

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

type SentrySink struct {
	hub *sentry.Hub
}

func NewSentrySink(cfg SentryConfig) (*SentrySink, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return &SentrySink{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (s *SentrySink) Send(ctx context.Context, r Report) error {
	var id *sentry.EventID
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(r.Tags)
		scope.SetTag("report_id", r.EventID)
		id = s.hub.CaptureException(errors.New(r.Message))
	})
	if id == nil {
		return ErrNotSent
	}
	return nil
}

// Flush waits for buffered events to go out.
func (s *SentrySink) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

type LogSink struct{}

func (LogSink) Send(ctx context.Context, r Report) error {
	log.Printf("[Report: %s] %s %v", r.EventID, r.Message, r.Tags)
	return nil
}
