// Package queue is a Redis list backed job queue with delayed retries.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeReportError JobType = "report_error"
)

const (
	MaxRetries       = 5
	baseRetryDelay   = 15 * time.Second
	delayedSuffix    = ":delayed"
	processingSuffix = ":processing"
	failedSuffix     = ":failed"
)

var ErrJobNotFound = errors.New("job not found in failed queue")

type Job struct {
	ID         string                 `json:"id"`
	Type       JobType                `json:"type"`
	Data       map[string]interface{} `json:"data"`
	CreatedAt  time.Time              `json:"created_at"`
	RetryCount int                    `json:"retry_count"`
}

type Queue struct {
	client     *redis.Client
	queueName  string
	processing string
	delayed    string
	failed     string
}

// NewQueueWithClient shares an existing connection pool.
func NewQueueWithClient(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:     client,
		queueName:  queueName,
		processing: queueName + processingSuffix,
		delayed:    queueName + delayedSuffix,
		failed:     queueName + failedSuffix,
	}
}

func newJob(jobType JobType, data map[string]interface{}) Job {
	if data == nil {
		data = make(map[string]interface{})
	}
	return Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// Enqueue pushes a job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, data map[string]interface{}) (string, error) {
	job := newJob(jobType, data)

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}

	log.Printf("Enqueued job %s of type %s", job.ID, job.Type)
	return job.ID, nil
}

// Dequeue blocks up to timeout. It returns nil, nil when nothing arrived.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP result format")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if err := q.client.RPush(ctx, q.processing, result[1]).Err(); err != nil {
		log.Printf("Warning: Failed to move job %s to processing queue: %v", job.ID, err)
	}
	return &job, nil
}

func (q *Queue) CompleteJob(ctx context.Context, job *Job) error {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LRem(ctx, q.processing, 1, jobJSON).Err(); err != nil {
		return fmt.Errorf("failed to remove job from processing queue: %w", err)
	}

	log.Printf("Completed job %s of type %s", job.ID, job.Type)
	return nil
}

// RetryDelay is the backoff before retry n (1-based): 15s, 30s, 60s, ...
func RetryDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	return baseRetryDelay * time.Duration(1<<(retry-1))
}

// FailJob schedules a retry with exponential backoff, or parks the job on the
// failed list once MaxRetries is exceeded. It reports whether a retry was scheduled.
func (q *Queue) FailJob(ctx context.Context, job *Job, cause error) (bool, error) {
	// The processing entry was stored before RetryCount changed.
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LRem(ctx, q.processing, 1, jobJSON).Err(); err != nil {
		log.Printf("Warning: Failed to remove job %s from processing queue: %v", job.ID, err)
	}

	job.RetryCount++
	job.Data["last_error"] = cause.Error()
	job.Data["failed_at"] = time.Now()

	if job.RetryCount <= MaxRetries {
		delay := RetryDelay(job.RetryCount)
		retryAt := time.Now().Add(delay)
		job.Data["next_retry_at"] = retryAt
		job.Data["is_last_attempt"] = job.RetryCount == MaxRetries

		updated, _ := json.Marshal(job)
		if err := q.client.ZAdd(ctx, q.delayed, &redis.Z{
			Score:  float64(retryAt.Unix()),
			Member: updated,
		}).Err(); err != nil {
			log.Printf("Warning: Failed to add job to delayed queue, adding to failed queue: %v", err)
			if err := q.client.RPush(ctx, q.failed, updated).Err(); err != nil {
				return false, fmt.Errorf("failed to push job to failed queue: %w", err)
			}
			return false, nil
		}

		log.Printf("Job %s of type %s scheduled for retry %d/%d in %s",
			job.ID, job.Type, job.RetryCount, MaxRetries, delay)
		return true, nil
	}

	job.Data["all_retries_exhausted"] = true
	job.Data["final_failure_at"] = time.Now()
	final, _ := json.Marshal(job)
	if err := q.client.RPush(ctx, q.failed, final).Err(); err != nil {
		return false, fmt.Errorf("failed to push job to failed queue: %w", err)
	}

	log.Printf("Job %s of type %s moved to failed queue after %d retries", job.ID, job.Type, job.RetryCount)
	return false, nil
}

// ProcessDelayedJobs moves every due delayed job onto the main queue.
func (q *Queue) ProcessDelayedJobs(ctx context.Context) error {
	now := float64(time.Now().Unix())
	jobs, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get delayed jobs: %w", err)
	}

	for _, jobJSON := range jobs {
		if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
			log.Printf("Warning: Failed to move delayed job to main queue: %v", err)
			continue
		}
		if err := q.client.ZRem(ctx, q.delayed, jobJSON).Err(); err != nil {
			log.Printf("Warning: Failed to remove job from delayed queue: %v", err)
		}
	}
	if len(jobs) > 0 {
		log.Printf("Moved %d delayed jobs to %s", len(jobs), q.queueName)
	}
	return nil
}

// RetryJob requeues a parked job with its retry count reset.
func (q *Queue) RetryJob(ctx context.Context, jobID string) error {
	jobs, err := q.client.LRange(ctx, q.failed, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list failed jobs: %w", err)
	}

	for _, jobJSON := range jobs {
		var job Job
		if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
			log.Printf("Warning: Failed to unmarshal job: %v", err)
			continue
		}
		if job.ID != jobID {
			continue
		}

		if err := q.client.LRem(ctx, q.failed, 1, jobJSON).Err(); err != nil {
			return fmt.Errorf("failed to remove job from failed queue: %w", err)
		}
		resetForManualRetry(&job, time.Now())

		updated, _ := json.Marshal(job)
		if err := q.client.RPush(ctx, q.queueName, updated).Err(); err != nil {
			return fmt.Errorf("failed to push job to main queue: %w", err)
		}

		log.Printf("Manually requeued job %s of type %s", job.ID, job.Type)
		return nil
	}

	return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
}

func resetForManualRetry(job *Job, now time.Time) {
	job.RetryCount = 0
	job.Data["manual_retry"] = true
	job.Data["manual_retry_at"] = now
	delete(job.Data, "all_retries_exhausted")
	delete(job.Data, "final_failure_at")
	delete(job.Data, "is_last_attempt")
}

// IsLastAttempt reports whether a failure of this run exhausts the retries.
func IsLastAttempt(job *Job) bool {
	if isLast, ok := job.Data["is_last_attempt"].(bool); ok {
		return isLast
	}
	return job.RetryCount >= MaxRetries
}

func (q *Queue) Close() error {
	return q.client.Close()
}
