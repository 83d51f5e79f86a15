package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/archive"
	"github.com/ruslano69/epibridge/pkg/fetchers"
	"github.com/ruslano69/epibridge/pkg/httpclient"
	"github.com/ruslano69/epibridge/pkg/resultlog"
	"github.com/ruslano69/epibridge/pkg/retry"
)

// Переменные окружения, переопределяющие политику Wrapper
const (
	EnvSlidingWindowDays = "SLIDING_WINDOW_DAYS"
	EnvValidateInputData = "VALIDATE_INPUT_DATA"
)

// Config содержит полную конфигурацию запуска
type Config struct {
	Name          string                 `yaml:"name"`
	Storage       adapters.Config        `yaml:"storage"`
	Wrapper       adapters.WrapperConfig `yaml:"wrapper"`
	Sources       []SourceConfig         `yaml:"sources"`
	Translations  TranslationsConfig     `yaml:"translations"`
	HTTP          httpclient.Config      `yaml:"http"`
	ErrorHandling ErrorHandlingConfig    `yaml:"error_handling"`
	State         StateConfig            `yaml:"state"`
	Archive       archive.Config         `yaml:"archive"`
	ResultLog     resultlog.Config       `yaml:"result_log"`
}

// SourceConfig определяет источник для запуска
type SourceConfig struct {
	Name        string        `yaml:"name"`                    // код источника, например JPN_C1JACD
	URL         string        `yaml:"url,omitempty"`           // заменяет адрес по умолчанию
	MaxBodySize int64         `yaml:"max_body_size,omitempty"` // заменяет http.max_body_size
	Timeout     time.Duration `yaml:"timeout,omitempty"`       // заменяет http.timeout
}

// TranslationsConfig определяет таблицу переводов административных единиц
type TranslationsConfig struct {
	File          string `yaml:"file"`           // CSV таблица переводов
	DivisionsFile string `yaml:"divisions_file"` // CSV справочника, загружается в хранилище
	UseStorage    bool   `yaml:"use_storage"`    // искать промахи в administrative_division хранилища
}

// ErrorHandlingConfig определяет стратегии обработки ошибок
type ErrorHandlingConfig struct {
	OnSourceError  string               `yaml:"on_source_error"`  // fail, continue
	OnStorageError fetchers.ErrorPolicy `yaml:"on_storage_error"` // fail, skip
	DLQ            retry.DLQConfig      `yaml:"dlq"`
}

// StateConfig определяет хранение состояния источников
type StateConfig struct {
	File          string `yaml:"file"`           // пусто = только в памяти
	SkipUnchanged bool   `yaml:"skip_unchanged"` // не обрабатывать payload, совпадающий с предыдущим
}

// LoadConfig загружает конфигурацию из YAML файла, применяет переменные
// окружения и значения по умолчанию
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data, os.LookupEnv)
}

// ParseConfig разбирает YAML. lookupEnv обычно os.LookupEnv.
func ParseConfig(data []byte, lookupEnv func(string) (string, bool)) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if lookupEnv != nil {
		if err := config.ApplyEnv(lookupEnv); err != nil {
			return nil, err
		}
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// ApplyEnv переопределяет окно и staging режим переменными окружения
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv(EnvSlidingWindowDays); ok && strings.TrimSpace(v) != "" {
		days, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", EnvSlidingWindowDays, v)
		}
		c.Wrapper.SlidingWindowDays = days
	}

	if v, ok := lookupEnv(EnvValidateInputData); ok && strings.TrimSpace(v) != "" {
		staging, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", EnvValidateInputData, v)
		}
		c.Wrapper.Staging = staging
	}
	return nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Storage.Type == "" {
		return fmt.Errorf("storage.type is required")
	}
	if !adapters.IsRegistered(c.Storage.Type) {
		return fmt.Errorf("storage.type %q is not supported (available: %v)", c.Storage.Type, adapters.GetRegisteredTypes())
	}

	if c.Wrapper.SlidingWindowDays < 0 {
		return fmt.Errorf("wrapper.sliding_window_days must be >= 0")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source[%d]: name is required", i)
		}
		if !fetchers.IsRegistered(src.Name) {
			return fmt.Errorf("source[%d]: unknown source %q (available: %v)", i, src.Name, fetchers.Sources())
		}
		if src.MaxBodySize < 0 || src.Timeout < 0 {
			return fmt.Errorf("source[%d]: max_body_size and timeout must be >= 0", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("source[%d]: %s is listed twice", i, src.Name)
		}
		seen[src.Name] = true
	}

	if err := c.ErrorHandling.Validate(); err != nil {
		return fmt.Errorf("error_handling: %w", err)
	}
	if err := c.HTTP.Retry.Validate(); err != nil {
		return fmt.Errorf("http.retry: %w", err)
	}
	if err := c.HTTP.CircuitBreaker.Validate(); err != nil {
		return fmt.Errorf("http.circuit_breaker: %w", err)
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	if err := c.ResultLog.Validate(); err != nil {
		return fmt.Errorf("result_log: %w", err)
	}
	return nil
}

// Source возвращает настройки источника из sources или только имя,
// если источник не указан в конфигурации
func (c *Config) Source(name string) SourceConfig {
	for _, src := range c.Sources {
		if src.Name == name {
			return src
		}
	}
	return SourceConfig{Name: name}
}

// MaxBodySize возвращает предел размера ответа для источника: значение
// из sources, иначе большее из http.max_body_size и предела, который
// источник объявил через fetchers.RegisterPayloadLimit
func (c *Config) MaxBodySize(source string) int64 {
	if n := c.Source(source).MaxBodySize; n > 0 {
		return n
	}
	n := c.HTTP.MaxBodySize
	if n <= 0 {
		n = httpclient.DefaultMaxBodySize
	}
	if declared := fetchers.PayloadLimit(source); declared > n {
		n = declared
	}
	return n
}

// Validate проверяет корректность ErrorHandlingConfig
func (e *ErrorHandlingConfig) Validate() error {
	if e.OnSourceError != "" && e.OnSourceError != "fail" && e.OnSourceError != "continue" {
		return fmt.Errorf("on_source_error must be 'fail' or 'continue'")
	}
	if err := e.OnStorageError.Validate(); err != nil {
		return err
	}
	if e.DLQ.Enabled && e.DLQ.FilePath == "" {
		return fmt.Errorf("dlq.file is required when dlq is enabled")
	}
	return nil
}

// SetDefaults устанавливает значения по умолчанию для необязательных полей
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "epibridge"
	}

	if c.ErrorHandling.OnSourceError == "" {
		c.ErrorHandling.OnSourceError = "fail"
	}
	if c.ErrorHandling.OnStorageError == "" {
		c.ErrorHandling.OnStorageError = fetchers.PolicyFail
	}

	if c.ResultLog.Enabled() {
		c.ResultLog.SetDefaults()
	}
}

// Template - пример конфигурации для -create-config
const Template = `# epibridge configuration
name: epibridge

storage:
  type: sqlite            # sqlite, postgres, mysql, mssql, memory, noop, xlsx, broker
  dsn: "file:epibridge.db"

wrapper:
  sliding_window_days: 0  # 0 = без окна (переопределяется SLIDING_WINDOW_DAYS)
  staging: false          # staging_ таблицы (переопределяется VALIDATE_INPUT_DATA)

sources:
  - name: JPN_C1JACD
  - name: GOOGLE_MOBILITY
    max_body_size: 1073741824 # глобальный отчет занимает почти 1 GiB
    timeout: 15m

translations:
  file: configs/adm_translations.csv
  use_storage: true

http:
  timeout: 60s
  max_body_size: 67108864     # 64 MiB, источники могут задать свой
  retry:
    enabled: true
    max_attempts: 3
    initial_delay: 1s
    max_delay: 30s
    backoff: exponential
    multiplier: 2
    jitter: 0.1
  circuit_breaker:            # по хосту источника, полезен с --interval
    enabled: false
    max_failures: 3
    timeout: 30m

error_handling:
  on_source_error: continue   # fail, continue
  on_storage_error: fail      # fail, skip
  dlq:
    enabled: false
    file: ./dlq.json
    max_size: 10000

state:
  file: ./state/sources.json
  skip_unchanged: false

archive:
  enabled: false
  type: local               # local, s3
  dir: ./archive

result_log:
  type: ""                  # redis
  address: "127.0.0.1:6379"
  ttl: 3600
`
