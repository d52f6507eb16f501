// Package appkafka carries notification events between the API server and
// the notification worker.
package appkafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/engagefeed/internal/models"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter defines an interface for writing messages to Kafka.
type KafkaWriter interface {
	WriteMessages(messages ...kafka.Message) error
	Close() error
}

// KafkaReader defines an interface for reading messages from Kafka.
// FetchMessage does not commit; offsets advance only through CommitMessages.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds configuration parameters for Kafka.
type KafkaConfig struct {
	Brokers      []string      // list of Kafka brokers
	Topic        string        // topic name
	Partition    int           // partition number (used for low-level writes)
	WriteTimeout time.Duration // write timeout duration
	ReadTimeout  time.Duration // read timeout duration (used for consumer group)
	GroupID      string        // consumer group ID
}

// RealKafkaWriter implements KafkaWriter using kafka.Conn (low-level writes).
type RealKafkaWriter struct {
	conn   *kafka.Conn
	config KafkaConfig
}

// NewKafkaWriter creates a new Kafka writer connection.
func NewKafkaWriter(cfg KafkaConfig) (*RealKafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	conn, err := kafka.DialLeader(context.Background(), "tcp", cfg.Brokers[0], cfg.Topic, cfg.Partition)
	if err != nil {
		return nil, err
	}

	return &RealKafkaWriter{
		conn:   conn,
		config: cfg,
	}, nil
}

func (w *RealKafkaWriter) WriteMessages(messages ...kafka.Message) error {
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	_, err := w.conn.WriteMessages(messages...)
	return err
}

func (w *RealKafkaWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// RealKafkaReader implements KafkaReader using kafka.Reader (consumer group).
type RealKafkaReader struct {
	reader *kafka.Reader
}

// NewKafkaReader creates a new Kafka consumer group reader.
func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	// Notification events are small; MinBytes of 1 keeps delivery latency low.
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        cfg.ReadTimeout,
		CommitInterval: time.Second,
	})
	return &RealKafkaReader{reader: r}
}

func (r *RealKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.FetchMessage(ctx)
}

func (r *RealKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	return r.reader.CommitMessages(ctx, msgs...)
}

func (r *RealKafkaReader) Close() error {
	return r.reader.Close()
}

// notificationKey is the message key for notification events.
const notificationKey = "notification"

// KafkaNotifier publishes notifications as JSON events for the worker to
// persist. It satisfies engagement.Notifier.
type KafkaNotifier struct {
	Writer KafkaWriter
}

func NewKafkaNotifier(w KafkaWriter) *KafkaNotifier {
	return &KafkaNotifier{Writer: w}
}

func (k *KafkaNotifier) Notify(_ context.Context, n models.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(notificationKey),
		Value: value,
	}
	if err := k.Writer.WriteMessages(msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// DecodeNotification parses a message produced by KafkaNotifier.
func DecodeNotification(msg kafka.Message) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		return models.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" || n.RecipientID == "" {
		return models.Notification{}, fmt.Errorf("decode notification: missing id or recipient")
	}
	return n, nil
}
