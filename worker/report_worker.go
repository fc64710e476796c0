package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"worldpay-checkout/queue"
	"worldpay-checkout/services/reporting"
)

const (
	dequeueTimeout = 5 * time.Second
	delayedPoll    = 5 * time.Second
)

// JobSource is the part of queue.Queue the worker drives.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	CompleteJob(ctx context.Context, job *queue.Job) error
	FailJob(ctx context.Context, job *queue.Job, cause error) (bool, error)
	ProcessDelayedJobs(ctx context.Context) error
}

type JobObserver interface {
	IncReportJobs(status string)
}

// Worker drains error report jobs into a sink.
type Worker struct {
	queue    JobSource
	sink     reporting.Sink
	observer JobObserver
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

func NewWorker(q JobSource, sink reporting.Sink, observer JobObserver) *Worker {
	return &Worker{
		queue:    q,
		sink:     sink,
		observer: observer,
		shutdown: make(chan struct{}),
	}
}

// Start launches concurrency job loops plus the delayed-job pump.
func (w *Worker) Start(concurrency int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return
	}
	w.isRunning = true

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(i)
	}
	w.wg.Add(1)
	go w.pumpDelayed()

	log.Printf("Started %d report worker goroutines", concurrency)
}

// Stop signals every loop to exit and waits for them.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	log.Println("Stopping report worker...")
	close(w.shutdown)
	w.wg.Wait()
}

func (w *Worker) processJobs(workerID int) {
	defer w.wg.Done()
	log.Printf("Worker %d starting", workerID)

	for {
		select {
		case <-w.shutdown:
			log.Printf("Worker %d shutting down", workerID)
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), dequeueTimeout+time.Second)
		job, err := w.queue.Dequeue(ctx, dequeueTimeout)
		cancel()

		if err != nil {
			log.Printf("Worker %d: Error dequeuing job: %v", workerID, err)
			w.sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.handle(workerID, job)
	}
}

func (w *Worker) handle(workerID int, job *queue.Job) {
	log.Printf("Worker %d processing job %s of type %s", workerID, job.ID, job.Type)

	if jobErr := w.processJob(job); jobErr != nil {
		log.Printf("Worker %d: Error processing job %s: %v", workerID, job.ID, jobErr)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		retried, failErr := w.queue.FailJob(ctx, job, jobErr)
		cancel()

		if failErr != nil {
			log.Printf("Worker %d: Error marking job %s as failed: %v", workerID, job.ID, failErr)
		}
		if retried {
			w.observe("retried")
		} else {
			w.observe("dropped")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	completeErr := w.queue.CompleteJob(ctx, job)
	cancel()
	if completeErr != nil {
		log.Printf("Worker %d: Error marking job %s as complete: %v", workerID, job.ID, completeErr)
	}
	w.observe("sent")
}

func (w *Worker) processJob(job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeReportError:
		report, err := reporting.FromJob(job)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return w.sink.Send(ctx, report)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *Worker) pumpDelayed() {
	defer w.wg.Done()
	ticker := time.NewTicker(delayedPoll)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := w.queue.ProcessDelayedJobs(ctx); err != nil {
				log.Printf("Error processing delayed jobs: %v", err)
			}
			cancel()
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.shutdown:
	case <-time.After(d):
	}
}

func (w *Worker) observe(status string) {
	if w.observer != nil {
		w.observer.IncReportJobs(status)
	}
}
