package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appkafka "example.com/engagefeed/internal/broker"
	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationMessage(t *testing.T, n models.Notification) kafka.Message {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("notification"), Value: data}
}

func likeNotification(id string) models.Notification {
	return models.Notification{
		ID:          id,
		RecipientID: "bob",
		ActorID:     "alice",
		Verb:        models.VerbLikedPost,
		TargetType:  models.TargetPost,
		TargetID:    "p-1",
		Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

// runWorkerOnce fetches and handles a single Kafka message.
func runWorkerOnce(ctx context.Context, w *Worker) error {
	msg, err := w.reader.FetchMessage(ctx)
	if err != nil {
		return err
	}
	j := w.commits.track(msg)
	if len(msg.Value) == 0 {
		return w.commits.done(ctx, j)
	}
	return w.handle(ctx, j)
}

func offsets(msgs []kafka.Message) []int64 {
	var res []int64
	for _, m := range msgs {
		res = append(res, m.Offset)
	}
	return res
}

// ---------- Positive tests ----------

func TestWorker_StoresNotification(t *testing.T) {
	st := store.NewMemory()
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{notificationMessage(t, likeNotification("n-1"))},
	}
	w := New(st, mockKafka, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, runWorkerOnce(ctx, w))

	list, err := st.NotificationsFor(ctx, "bob", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "n-1", list[0].ID)
	assert.Equal(t, models.VerbLikedPost, list[0].Verb)
	assert.Len(t, mockKafka.Committed(), 1, "offset committed after the append")
}

func TestWorker_RedeliveryIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	msg := notificationMessage(t, likeNotification("n-1"))
	mockKafka := &appkafka.MockKafka{ReadMessages: []kafka.Message{msg, msg}}
	w := New(st, mockKafka, 1, 1)

	ctx := context.Background()
	require.NoError(t, runWorkerOnce(ctx, w))
	require.NoError(t, runWorkerOnce(ctx, w))

	assert.Equal(t, 1, st.NotificationCount())
}

// ---------- Negative tests ----------

func TestWorker_KafkaReadError(t *testing.T) {
	w := New(store.NewMemory(), &appkafka.MockKafkaFail{}, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, runWorkerOnce(ctx, w))
}

// Malformed events can never be stored, so they are committed and skipped.
func TestWorker_InvalidJSON(t *testing.T) {
	st := store.NewMemory()
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{{Value: []byte("{invalid-json}")}},
	}
	w := New(st, mockKafka, 1, 1)

	assert.NoError(t, runWorkerOnce(context.Background(), w))
	assert.Zero(t, st.NotificationCount())
	assert.Len(t, mockKafka.Committed(), 1)
}

func TestWorker_MissingRecipient(t *testing.T) {
	n := likeNotification("n-1")
	n.RecipientID = ""
	st := store.NewMemory()
	mockKafka := &appkafka.MockKafka{ReadMessages: []kafka.Message{notificationMessage(t, n)}}
	w := New(st, mockKafka, 1, 1)

	assert.NoError(t, runWorkerOnce(context.Background(), w))
	assert.Zero(t, st.NotificationCount())
	assert.Len(t, mockKafka.Committed(), 1)
}

func TestWorker_StoreFailureLeavesOffsetUncommitted(t *testing.T) {
	st := store.NewMemory()
	st.SetFail(true)
	msg := notificationMessage(t, likeNotification("n-1"))
	msg.Offset = 7
	mockKafka := &appkafka.MockKafka{ReadMessages: []kafka.Message{msg}}
	w := New(st, mockKafka, 1, 1)

	err := runWorkerOnce(context.Background(), w)
	assert.ErrorContains(t, err, "append notification after 3 attempts")
	assert.Empty(t, mockKafka.Committed(), "failed append must not be committed")

	// After a restart the uncommitted event comes back and is stored.
	st.SetFail(false)
	restarted := New(st, &appkafka.MockKafka{ReadMessages: []kafka.Message{msg}}, 1, 1)
	require.NoError(t, runWorkerOnce(context.Background(), restarted))
	assert.Equal(t, 1, st.NotificationCount())
	assert.Equal(t, []int64{7}, offsets(restarted.reader.(*appkafka.MockKafka).Committed()))
}

func TestWorker_CommitWaitsForEarlierOffsets(t *testing.T) {
	st := store.NewMemory()
	mockKafka := &appkafka.MockKafka{}
	w := New(st, mockKafka, 2, 2)
	ctx := context.Background()

	first := notificationMessage(t, likeNotification("n-1"))
	first.Offset = 1
	second := notificationMessage(t, likeNotification("n-2"))
	second.Offset = 2
	j1 := w.commits.track(first)
	j2 := w.commits.track(second)

	st.SetFail(true)
	require.Error(t, w.handle(ctx, j1))
	st.SetFail(false)
	require.NoError(t, w.handle(ctx, j2))

	assert.Empty(t, mockKafka.Committed(), "offset 2 must not be committed past a failed offset 1")
	assert.Equal(t, 2, w.commits.blocked(0))

	require.NoError(t, w.handle(ctx, j1))
	assert.Equal(t, []int64{2}, offsets(mockKafka.Committed()))
	assert.Zero(t, w.commits.blocked(0))
	assert.Equal(t, 2, st.NotificationCount())
}

func TestCommitter_PartitionsAreIndependent(t *testing.T) {
	mockKafka := &appkafka.MockKafka{}
	c := newCommitter(mockKafka)
	ctx := context.Background()

	c.track(kafka.Message{Partition: 0, Offset: 10})
	other := c.track(kafka.Message{Partition: 1, Offset: 3})

	require.NoError(t, c.done(ctx, other))
	assert.Equal(t, []int64{3}, offsets(mockKafka.Committed()))
	assert.Equal(t, 1, c.blocked(0))
}

func TestWorker_EmptyKafkaMessage(t *testing.T) {
	mockKafka := &appkafka.MockKafka{ReadMessages: []kafka.Message{{Value: nil}}}
	w := New(store.NewMemory(), mockKafka, 1, 1)

	assert.NoError(t, runWorkerOnce(context.Background(), w))
	assert.Len(t, mockKafka.Committed(), 1)
}

func TestNew_Defaults(t *testing.T) {
	w := New(store.NewMemory(), &appkafka.MockKafka{}, 0, 0)
	assert.Positive(t, w.workerCount)
	assert.Equal(t, w.workerCount*10, w.jobQueueSize)
}
