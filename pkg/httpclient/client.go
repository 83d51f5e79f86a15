// Package httpclient загружает ответы источников по HTTP с повторами
// через pkg/retry.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/resilience"
	"github.com/ruslano69/epibridge/pkg/retry"
)

// DefaultUserAgent отправляется, если в Config не задан свой
const DefaultUserAgent = "epibridge/1.0"

// DefaultMaxBodySize ограничивает размер ответа (64 MiB)
const DefaultMaxBodySize = 64 << 20

// ErrBodyTooLarge - ответ больше MaxBodySize
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError - неуспешный HTTP статус
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retriever загружает ресурс целиком
type Retriever interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Config - параметры HTTP клиента
type Config struct {
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	MaxBodySize int64         `yaml:"max_body_size"`
	Retry       retry.Config  `yaml:"retry"`

	// CircuitBreaker отдельный для каждого хоста, оборачивает все повторы
	CircuitBreaker resilience.Config `yaml:"circuit_breaker"`
}

// DefaultConfig - 60 секунд, 3 попытки с экспоненциальной задержкой
func DefaultConfig() Config {
	rc := retry.EnableRetry(3, time.Second)
	return Config{
		Timeout:     60 * time.Second,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		Retry:       rc,
	}
}

// Client реализует Retriever поверх net/http
type Client struct {
	http     *http.Client
	cfg      Config
	retryer  *retry.Retryer
	breakers *resilience.Group
	log      zerolog.Logger
}

var _ Retriever = (*Client)(nil)

// New создает клиент. Пустые поля cfg заполняются значениями по умолчанию.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}

	rc := cfg.Retry
	if rc.OnRetry == nil {
		rc.OnRetry = func(attempt int, err error, delay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying request")
		}
	}
	retryer, err := retry.NewRetryer(rc)
	if err != nil {
		return nil, err
	}

	breakers, err := resilience.NewGroup(cfg.CircuitBreaker, resilience.OnStateChange(func(host string, from, to resilience.State) {
		log.Warn().Str("host", host).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
	}))
	if err != nil {
		return nil, err
	}

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		retryer:  retryer,
		breakers: breakers,
		log:      log,
	}, nil
}

// WithLimits возвращает клиент с другим размером ответа и таймаутом.
// Нулевые значения оставляют текущие. Повторы и breakers общие с c.
func (c *Client) WithLimits(maxBodySize int64, timeout time.Duration) *Client {
	cp := *c
	if maxBodySize > 0 {
		cp.cfg.MaxBodySize = maxBodySize
	}
	if timeout > 0 {
		cp.cfg.Timeout = timeout
		cp.http = &http.Client{Timeout: timeout}
	}
	return &cp
}

// MaxBodySize возвращает действующий предел размера ответа
func (c *Client) MaxBodySize() int64 {
	return c.cfg.MaxBodySize
}

// Get загружает url. 5xx, 429 и сетевые ошибки повторяются,
// остальные 4xx возвращаются сразу.
// При открытом breaker хоста возвращает ошибку с resilience.ErrCircuitOpen
// без обращения к сети.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	start := time.Now()

	err := c.breakers.Get(hostOf(url)).Execute(ctx, func(ctx context.Context) error {
		return c.retryer.Do(ctx, func(ctx context.Context) error {
			data, err := c.get(ctx, url)
			if err != nil {
				return err
			}
			body = data
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s: %w", url, err)
	}

	c.log.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("retrieved")
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Тело не нужно, но дочитываем для повторного использования соединения
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		serr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if retryableStatus(resp.StatusCode) {
			return nil, serr
		}
		return nil, retry.Permanent(serr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxBodySize {
		return nil, retry.Permanent(fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.cfg.MaxBodySize))
	}
	return data, nil
}

// Breakers возвращает состояния breakers по хостам
func (c *Client) Breakers() map[string]resilience.State {
	return c.breakers.States()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
