package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/entrhq/warden/pkg/logging"
)

// KafkaConfig configures the Kafka notification sink.
type KafkaConfig struct {
	// Brokers is the list of broker addresses (host:port). Required.
	Brokers []string

	// Topic is the topic notifications are written to. Required.
	Topic string

	// MaxAttempts is how many times a write is retried on transient error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt write timeout. Defaults to 10s.
	WriteTimeout time.Duration
}

// messageWriter is the slice of kafka.Writer the notifier uses; tests
// substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications to a Kafka topic, keyed by
// promotion id so one promotion's events stay ordered within a partition.
// Like every Notifier it is fire-and-forget: write failures are logged and
// dropped after the configured retries.
type KafkaNotifier struct {
	writer      messageWriter
	maxAttempts int
	log         *logging.Logger
}

// NewKafkaNotifier creates a Kafka-backed notifier.
func NewKafkaNotifier(cfg KafkaConfig, log *logging.Logger) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errMissing("at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errMissing("a topic")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if log == nil {
		log, _ = logging.NewLogger("notify")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaNotifier{writer: writer, maxAttempts: cfg.MaxAttempts, log: log}, nil
}

// Notify implements Notifier.
func (n *KafkaNotifier) Notify(ctx context.Context, p Payload) {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	value, err := json.Marshal(p)
	if err != nil {
		n.log.Errorf("drop notification %s for %s: marshal: %v", p.Type, p.PromotionID, err)
		return
	}
	msg := kafka.Message{Key: []byte(p.PromotionID), Value: value}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if lastErr = n.writer.WriteMessages(ctx, msg); lastErr == nil {
			return
		}
		n.log.Warnf("notification write attempt %d/%d failed: %v", attempt, n.maxAttempts, lastErr)
	}
	n.log.Errorf("drop notification %s for %s after %d attempts: %v", p.Type, p.PromotionID, n.maxAttempts, lastErr)
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

type errMissing string

func (e errMissing) Error() string {
	return "kafka notifier requires " + string(e)
}
