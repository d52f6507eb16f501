package appkafka

import (
	"context"
	"errors"
	"sync"

	"example.com/engagefeed/internal/store"
	"github.com/segmentio/kafka-go"
)

// MockKafka applies notification events straight to the store on write,
// standing in for the broker plus worker in tests.
type MockKafka struct {
	mu              sync.Mutex
	Store           *store.MemoryStore
	WrittenMessages []kafka.Message // stores messages written via WriteMessages
	ReadMessages    []kafka.Message // queue of messages to be read via FetchMessage
	Commits         []kafka.Message // messages passed to CommitMessages
	ShouldFail      bool            // flag to simulate failures during write or read operations
}

// WriteMessages records each message and, when Store is set, appends the
// decoded notification.
func (m *MockKafka) WriteMessages(messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}

	for _, msg := range messages {
		m.WrittenMessages = append(m.WrittenMessages, msg)
		if m.Store == nil {
			continue
		}
		n, err := DecodeNotification(msg)
		if err != nil {
			return err
		}
		if _, err := m.Store.AppendNotification(context.Background(), n); err != nil {
			return err
		}
	}
	return nil
}

// FetchMessage pops the next queued message without committing it.
func (m *MockKafka) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	// Take the first message from the queue and remove it
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

// CommitMessages records the committed messages.
func (m *MockKafka) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock kafka commit failed")
	}
	m.Commits = append(m.Commits, msgs...)
	return nil
}

// Committed returns a copy of the messages committed so far.
func (m *MockKafka) Committed() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.Commits...)
}

// Written returns a copy of the messages written so far.
func (m *MockKafka) Written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.WrittenMessages...)
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteMessages(messages ...kafka.Message) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) FetchMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return errors.New("mock kafka commit failed")
}

func (m *MockKafkaFail) Close() error { return nil }
