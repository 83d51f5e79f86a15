package brokers

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka реализует Publisher для Apache Kafka
type Kafka struct {
	config Config
	writer *kafka.Writer
}

// NewKafka создает новый Kafka publisher
func NewKafka(cfg Config) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic name is required for Kafka")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required for Kafka")
	}

	return &Kafka{
		config: cfg,
	}, nil
}

// Connect создает writer и проверяет доступность topic
func (k *Kafka) Connect(ctx context.Context) error {
	k.writer = &kafka.Writer{
		Addr: kafka.TCP(k.config.Brokers...),
		// Записи одного адреса попадают в одну партицию
		Balancer:     &kafka.Hash{},
		Topic:        k.config.Topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Compression:  kafka.Zstd,
		MaxAttempts:  3,
		BatchSize:    500,
		WriteTimeout: 10 * time.Second,
	}

	return k.Ping(ctx)
}

// Close закрывает writer
func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Publish отправляет сообщения одним батчем
func (k *Kafka) Publish(ctx context.Context, msgs ...Message) error {
	if k.writer == nil {
		return fmt.Errorf("not connected to Kafka")
	}
	if len(msgs) == 0 {
		return nil
	}

	now := time.Now()
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km := kafka.Message{
			Key:   m.Key,
			Value: m.Value,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte(ContentTypeJSON)},
			},
		}
		for name, value := range m.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: name, Value: []byte(value)})
		}
		out = append(out, km)
	}

	if err := k.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("failed to write %d messages to Kafka: %w", len(out), err)
	}
	return nil
}

// Ping проверяет доступность Kafka
func (k *Kafka) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial Kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ReadPartitions(k.config.Topic); err != nil {
		return fmt.Errorf("failed to read topic partitions: %w", err)
	}
	return nil
}

// GetBrokerType возвращает тип брокера
func (k *Kafka) GetBrokerType() string {
	return "kafka"
}

// Stats возвращает статистику writer
func (k *Kafka) Stats() kafka.WriterStats {
	if k.writer == nil {
		return kafka.WriterStats{}
	}
	return k.writer.Stats()
}
