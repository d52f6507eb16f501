package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"example.com/engagefeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/segmentio/kafka-go"
)

// Floods the notification topic with synthetic "liked your post" events to
// measure worker throughput. Every event has a fresh TimeUUID, so each one
// must land as exactly one stored notification.
func main() {
	var total, batchSize, numWorkers, recipients int
	var kafkaBroker, topic string

	flag.IntVar(&total, "n", 100000, "total number of messages to send")
	flag.IntVar(&batchSize, "batch", 100, "batch size for sending messages")
	flag.IntVar(&numWorkers, "workers", 4, "number of parallel goroutines")
	flag.IntVar(&recipients, "recipients", 100, "number of distinct recipients")
	flag.StringVar(&kafkaBroker, "broker", "localhost:29092", "Kafka broker address")
	flag.StringVar(&topic, "topic", "notification-topic", "notification topic")
	flag.Parse()

	// Kafka writer with asynchronous sending enabled
	w := &kafka.Writer{
		Addr:     kafka.TCP(kafkaBroker),
		Topic:    topic,
		Balancer: &kafka.Hash{},
		Async:    true,
	}
	defer w.Close()

	// Synthetic actor and recipient IDs for this run
	actorID := gocql.TimeUUID().String()
	recipientIDs := make([]string, recipients)
	for i := range recipientIDs {
		recipientIDs[i] = gocql.TimeUUID().String()
	}
	start := time.Now()

	var successCount, failCount uint64
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	// --- Start worker goroutines ---
	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			flush := func() {
				if len(batch) == 0 {
					return
				}
				if err := w.WriteMessages(context.Background(), batch...); err != nil {
					atomic.AddUint64(&failCount, uint64(len(batch)))
					fmt.Printf("write error: %v\n", err)
				} else {
					atomic.AddUint64(&successCount, uint64(len(batch)))
				}
				batch = batch[:0]
			}

			for i := range jobs {
				n := models.Notification{
					ID:          gocql.TimeUUID().String(),
					RecipientID: recipientIDs[i%len(recipientIDs)],
					ActorID:     actorID,
					Verb:        models.VerbLikedPost,
					TargetType:  models.TargetPost,
					TargetID:    gocql.TimeUUID().String(),
					Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
				}
				v, err := json.Marshal(n)
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					fmt.Printf("marshal error: %v\n", err)
					continue
				}

				batch = append(batch, kafka.Message{Key: []byte("notification"), Value: v})
				if len(batch) >= batchSize {
					flush()
				}
			}
			// Send any remaining messages after finishing loop
			flush()
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total messages: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount)/elapsed.Seconds())
}
