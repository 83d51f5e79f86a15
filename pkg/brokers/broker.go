package brokers

import (
	"context"
	"fmt"
)

// ContentTypeJSON - тип содержимого сообщений с каноническими записями
const ContentTypeJSON = "application/json"

// Message - одно сообщение для публикации
type Message struct {
	// Key - ключ партиционирования (адрес записи)
	Key []byte

	// Value - тело сообщения (JSON запись)
	Value []byte

	// Headers - дополнительные заголовки (entity, table, source)
	Headers map[string]string
}

// Publisher - универсальный интерфейс публикации в очередь сообщений.
// Поддерживает RabbitMQ и Apache Kafka.
type Publisher interface {
	// Connect устанавливает соединение с брокером
	Connect(ctx context.Context) error

	// Close закрывает соединение с брокером
	Close() error

	// Publish отправляет сообщения. Либо все сообщения приняты, либо возвращается ошибка.
	Publish(ctx context.Context, msgs ...Message) error

	// Ping проверяет доступность брокера
	Ping(ctx context.Context) error

	// GetBrokerType возвращает тип брокера (rabbitmq, kafka)
	GetBrokerType() string
}

// Config содержит параметры подключения к message broker
type Config struct {
	Type     string `yaml:"type"`               // rabbitmq, kafka
	Host     string `yaml:"host,omitempty"`     // Хост (для RabbitMQ)
	Port     int    `yaml:"port,omitempty"`     // Порт (для RabbitMQ)
	User     string `yaml:"user,omitempty"`     // Пользователь (для RabbitMQ)
	Password string `yaml:"password,omitempty"` // Пароль (для RabbitMQ)
	Queue    string `yaml:"queue,omitempty"`    // Имя очереди (для RabbitMQ)
	VHost    string `yaml:"vhost,omitempty"`    // Virtual host (для RabbitMQ, по умолчанию "/")
	UseTLS   bool   `yaml:"use_tls,omitempty"`  // amqps:// для RabbitMQ
	Exchange string `yaml:"exchange,omitempty"` // RabbitMQ exchange (пустая строка = default exchange)
	Durable  bool   `yaml:"durable,omitempty"`  // Очередь переживает перезапуск RabbitMQ

	// Kafka специфичные параметры
	Brokers []string `yaml:"brokers,omitempty"` // Список Kafka brokers
	Topic   string   `yaml:"topic,omitempty"`   // Имя Kafka topic
}

// IsZero сообщает, что брокер не настроен
func (c Config) IsZero() bool {
	return c.Type == ""
}

// New создает Publisher на основе конфигурации
func New(cfg Config) (Publisher, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s (supported: rabbitmq, kafka)", cfg.Type)
	}
}
