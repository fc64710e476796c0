// Package reporting forwards error detail that is never shown to payers to an
// external error sink, either directly or through the job queue.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"worldpay-checkout/queue"
)

var ErrMalformedJob = errors.New("malformed report job")

type Report struct {
	EventID    string            `json:"event_id"`
	Message    string            `json:"message"`
	Tags       map[string]string `json:"tags,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

func NewReport(err error, tags map[string]string) Report {
	return Report{
		EventID:    uuid.NewString(),
		Message:    err.Error(),
		Tags:       tags,
		OccurredAt: time.Now().UTC(),
	}
}

func (r Report) jobData() map[string]interface{} {
	tags := make(map[string]interface{}, len(r.Tags))
	for k, v := range r.Tags {
		tags[k] = v
	}
	return map[string]interface{}{
		"event_id":    r.EventID,
		"message":     r.Message,
		"tags":        tags,
		"occurred_at": r.OccurredAt.Format(time.RFC3339Nano),
	}
}

// FromJob rebuilds a report from a queued job's data.
func FromJob(job *queue.Job) (Report, error) {
	if job.Type != queue.JobTypeReportError {
		return Report{}, fmt.Errorf("%w: job type %s", ErrMalformedJob, job.Type)
	}
	eventID, _ := job.Data["event_id"].(string)
	message, _ := job.Data["message"].(string)
	if eventID == "" || message == "" {
		return Report{}, fmt.Errorf("%w: missing event id or message", ErrMalformedJob)
	}

	r := Report{EventID: eventID, Message: message, Tags: map[string]string{}}
	if tags, ok := job.Data["tags"].(map[string]interface{}); ok {
		for k, v := range tags {
			if s, ok := v.(string); ok {
				r.Tags[k] = s
			}
		}
	}
	if at, ok := job.Data["occurred_at"].(string); ok {
		r.OccurredAt, _ = time.Parse(time.RFC3339Nano, at)
	}
	return r, nil
}

// Enqueuer is the part of queue.Queue the reporter needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, data map[string]interface{}) (string, error)
}

// QueueReporter hands reports to the job queue so request paths never wait on the sink.
type QueueReporter struct {
	queue Enqueuer
}

func NewQueueReporter(q Enqueuer) *QueueReporter {
	return &QueueReporter{queue: q}
}

func (r *QueueReporter) Report(ctx context.Context, err error, tags map[string]string) string {
	report := NewReport(err, tags)
	if _, qerr := r.queue.Enqueue(ctx, queue.JobTypeReportError, report.jobData()); qerr != nil {
		log.Printf("Failed to enqueue error report %s (%v): %v", report.EventID, err, qerr)
		return ""
	}
	return report.EventID
}

// LogReporter writes reports to the process log only.
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, err error, tags map[string]string) string {
	report := NewReport(err, tags)
	log.Printf("[Report: %s] %s %v", report.EventID, report.Message, report.Tags)
	return report.EventID
}
