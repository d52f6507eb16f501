package worker

import (
	"context"
	"sync"

	appkafka "example.com/engagefeed/internal/broker"
	"github.com/segmentio/kafka-go"
)

// job is one fetched Kafka message waiting to be stored.
type job struct {
	msg  kafka.Message
	done bool
}

// committer releases offsets per partition in fetch order. Kafka commits
// are positional, so committing a later offset would also skip an earlier
// event that failed; only the leading run of finished jobs is committed.
type committer struct {
	mu      sync.Mutex
	reader  appkafka.KafkaReader
	pending map[int][]*job
}

func newCommitter(reader appkafka.KafkaReader) *committer {
	return &committer{reader: reader, pending: make(map[int][]*job)}
}

// track registers a fetched message. Must be called in fetch order.
func (c *committer) track(msg kafka.Message) *job {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := &job{msg: msg}
	c.pending[msg.Partition] = append(c.pending[msg.Partition], j)
	return j
}

// done marks j finished and commits the newest offset that has no
// unfinished job ahead of it.
func (c *committer) done(ctx context.Context, j *job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j.done = true

	queue := c.pending[j.msg.Partition]
	n := 0
	for n < len(queue) && queue[n].done {
		n++
	}
	if n == 0 {
		return nil
	}
	last := queue[n-1].msg
	c.pending[j.msg.Partition] = queue[n:]
	return c.reader.CommitMessages(ctx, last)
}

// blocked reports how many jobs in the partition wait behind an
// unfinished one.
func (c *committer) blocked(partition int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[partition])
}
