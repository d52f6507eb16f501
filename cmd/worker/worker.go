package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/engagefeed/internal/broker"
	"example.com/engagefeed/internal/logger"
	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
)

var logg = logger.New()

const appendAttempts = 3

// Worker consumes notification events from Kafka and appends them to the
// recipients' notification lists concurrently. An event's offset is
// committed only after it is stored, so failed events are redelivered.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	commits      *committer
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		commits:      newCommitter(reader),
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing. Once ctx ends no
// new messages are fetched, but jobs already queued are still stored.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan *job, w.jobQueueSize)
	drainCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(drainCtx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop fetches Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- *job) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			j := w.commits.track(msg)
			if len(msg.Value) == 0 {
				if err := w.commits.done(ctx, j); err != nil {
					logg.Error("worker", "Failed to commit empty Kafka message", err)
				}
				continue
			}

			// A job fetched but never queued stays uncommitted.
			if !enqueue(ctx, jobs, j) {
				return
			}
		}
	}
}

// enqueue blocks until the job is queued or ctx ends. Notifications are
// never dropped because the queue is full.
func enqueue(ctx context.Context, jobs chan<- *job, j *job) bool {
	select {
	case jobs <- j:
		return true
	default:
	}
	for {
		select {
		case jobs <- j:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
			logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
		}
	}
}

// processLoop drains the job queue until it is closed.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan *job) {
	for j := range jobs {
		if err := w.handle(ctx, j); err != nil {
			// Commits for this partition stop here until a restart or
			// rebalance redelivers the event.
			logg.Error("worker", fmt.Sprintf("Notification event not stored, offset %d left for redelivery (%d jobs waiting on partition %d)",
				j.msg.Offset, w.commits.blocked(j.msg.Partition), j.msg.Partition), err)
		}
	}
}

// handle decodes one event, appends it and commits its offset. Appends are
// idempotent on the notification ID, so a redelivered event is harmless.
func (w *Worker) handle(ctx context.Context, j *job) error {
	n, err := appkafka.DecodeNotification(j.msg)
	if err != nil {
		// A malformed event never becomes valid; commit past it.
		logg.Error("worker", "Skipping malformed notification event", err)
		return w.commits.done(ctx, j)
	}

	if err := w.appendWithRetry(ctx, n); err != nil {
		return err
	}
	return w.commits.done(ctx, j)
}

func (w *Worker) appendWithRetry(ctx context.Context, n models.Notification) error {
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 10 * time.Millisecond
			if !waitWithContext(ctx, backoff) {
				return ctx.Err()
			}
		}
		res, err := w.store.AppendNotification(ctx, n)
		if err == nil {
			if res == store.AlreadyExists {
				logg.Debug("worker", "Duplicate notification event ignored")
			} else {
				logg.Info("worker", "Notification stored for recipient_id="+n.RecipientID)
			}
			return nil
		}
		lastErr = err
	}
	return errors.Join(fmt.Errorf("append notification after %d attempts", appendAttempts), lastErr)
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the store.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing store")
	w.store.Close()
	return nil
}
