package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Статусы запуска источника
const (
	StatusSuccess   = "success"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// DefaultTTL - время жизни ключа состояния по умолчанию (секунды)
const DefaultTTL = 3600

// Config определяет параметры публикации результатов запусков.
// Позволяет оркестратору отслеживать источники через Redis (GET/SUBSCRIBE).
type Config struct {
	Type     string `yaml:"type"`     // redis (пустое = отключено)
	Address  string `yaml:"address"`  // например "127.0.0.1:6379"
	Prefix   string `yaml:"prefix"`   // префикс ключей, по умолчанию "epibridge"
	Password string `yaml:"password"` // опционально
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"` // TTL ключа в секундах
}

// Enabled сообщает, включена ли публикация
func (c *Config) Enabled() bool {
	return c.Type != "" && c.Type != "none"
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Type != "redis" {
		return fmt.Errorf("unsupported type '%s', must be 'redis'", c.Type)
	}
	if c.Address == "" {
		return fmt.Errorf("address is required when type is 'redis'")
	}
	if c.TTL < 0 {
		return fmt.Errorf("ttl must be positive")
	}
	return nil
}

// SetDefaults заполняет необязательные поля
func (c *Config) SetDefaults() {
	if c.Prefix == "" {
		c.Prefix = "epibridge"
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
}

// RunResult - итог запуска одного источника, публикуемый в Redis
//
// Redis-ключи:
//
//	SET  <prefix>:source:<source>:state  <JSON>  EX <ttl>  - для GET-запросов оркестратора
//	PUB  <prefix>:source:<source>                          - для event-driven маршрутизации
type RunResult struct {
	Source         string    `json:"source"`
	Status         string    `json:"status"`
	Backend        string    `json:"backend"`
	Staging        bool      `json:"staging"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMs     int64     `json:"duration_ms"`
	RecordsWritten int64     `json:"records_written"`
	RecordsSkipped int64     `json:"records_skipped"`
	RecordsFailed  int64     `json:"records_failed"`
	Untranslated   int64     `json:"untranslated"`
	Rejected       int64     `json:"records_rejected"`
	Sent           bool      `json:"sent"`
	Error          *string   `json:"error,omitempty"`
}

// SetError заполняет Error и статус failed
func (r *RunResult) SetError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	r.Error = &msg
	r.Status = StatusFailed
}

// RedisPublisher публикует результаты запусков в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
}

// NewRedisPublisher создает publisher по конфигурации
func NewRedisPublisher(config Config) *RedisPublisher {
	config.SetDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisPublisher{client: client, config: config}
}

// StateKey возвращает ключ последнего состояния источника
func (p *RedisPublisher) StateKey(source string) string {
	return fmt.Sprintf("%s:source:%s:state", p.config.Prefix, source)
}

// Channel возвращает канал событий источника
func (p *RedisPublisher) Channel(source string) string {
	return fmt.Sprintf("%s:source:%s", p.config.Prefix, source)
}

// Publish публикует результат запуска:
//   - SET <prefix>:source:<source>:state <JSON> EX <ttl>  для опроса
//   - PUBLISH <prefix>:source:<source> <JSON>              для подписки
//
// Вызывается независимо от исхода запуска.
func (p *RedisPublisher) Publish(ctx context.Context, result RunResult) error {
	if result.DurationMs == 0 && !result.FinishedAt.IsZero() {
		result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	ttl := time.Duration(p.config.TTL) * time.Second
	if err := p.client.Set(ctx, p.StateKey(result.Source), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(result.Source), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Last читает последний опубликованный результат источника
func (p *RedisPublisher) Last(ctx context.Context, source string) (*RunResult, error) {
	data, err := p.client.Get(ctx, p.StateKey(source)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}
	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
