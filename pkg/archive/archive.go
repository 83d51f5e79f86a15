// Package archive сохраняет сжатые zstd копии полученных payload
// в локальный каталог или S3 бакет.
//
// Ключ объекта: <source>/<YYYY-MM-DD>/<fingerprint>.<ext>.zst
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/processors"
)

// Типы хранилищ архива
const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Store - хранилище объектов архива
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Config - конфигурация архива
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // local | s3

	// local
	Dir string `yaml:"dir,omitempty"`

	// s3
	Bucket          string `yaml:"bucket,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"` // S3-совместимые хранилища (MinIO)
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`

	CompressionLevel int `yaml:"compression_level,omitempty"`
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Type {
	case TypeLocal:
		if c.Dir == "" {
			return fmt.Errorf("archive.dir is required for local archive")
		}
	case TypeS3:
		if c.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for s3 archive")
		}
		if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
			return fmt.Errorf("archive access_key_id and secret_access_key must be set together")
		}
	default:
		return fmt.Errorf("unknown archive type: %q (expected local or s3)", c.Type)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("archive.compression_level must be between 1 and 22")
	}
	return nil
}

// Archiver сжимает payload и кладет его в Store
type Archiver struct {
	store Store
	level int
	log   zerolog.Logger
	now   func() time.Time
}

// New создает архив по конфигурации
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Type {
	case TypeLocal:
		store = NewLocalStore(cfg.Dir)
	case TypeS3:
		store, err = NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	return NewWithStore(store, cfg.CompressionLevel, log), nil
}

// NewWithStore создает архив поверх готового хранилища
func NewWithStore(store Store, level int, log zerolog.Logger) *Archiver {
	if level <= 0 {
		level = processors.DefaultCompressionLevel
	}
	return &Archiver{store: store, level: level, log: log, now: time.Now}
}

// Key строит ключ объекта
func Key(source string, day time.Time, fingerprint, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	return path.Join(source, day.UTC().Format("2006-01-02"), fingerprint+"."+ext+".zst")
}

// Archive сжимает payload и сохраняет его, возвращая ключ объекта.
// Имя объекта содержит отпечаток payload, по которому Restore проверяет данные.
func (a *Archiver) Archive(ctx context.Context, source, ext string, payload []byte) (string, error) {
	compressor, err := processors.NewCompressionProcessor(a.level)
	if err != nil {
		return "", err
	}
	defer compressor.Close()

	var fingerprint string
	start := time.Now()
	chain := processors.NewChain(
		processors.NewChecksumProcessor("", func(fp string) { fingerprint = fp }),
		compressor,
	)
	compressed, err := chain.ProcessBlock(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("failed to compress payload: %w", err)
	}
	stats := processors.GetCompressionStats(payload, compressed, time.Since(start))

	key := Key(source, a.now(), fingerprint, ext)
	if err := a.store.Put(ctx, key, compressed); err != nil {
		return "", fmt.Errorf("failed to archive payload %s: %w", key, err)
	}

	a.log.Info().
		Str("source", source).
		Str("key", key).
		Int("size", stats.OriginalSize).
		Int("compressed", stats.CompressedSize).
		Float64("ratio", stats.Ratio).
		Dur("compress_time", stats.Time).
		Msg("payload archived")
	return key, nil
}

// Restore распаковывает объект архива. Непустой fingerprint сверяется
// с отпечатком распакованных данных.
func Restore(ctx context.Context, compressed []byte, fingerprint string) ([]byte, error) {
	decompressor, err := processors.NewDecompressionProcessor()
	if err != nil {
		return nil, err
	}
	defer decompressor.Close()

	chain := processors.NewChain(decompressor)
	if fingerprint != "" {
		chain.Add(processors.NewChecksumProcessor(fingerprint, nil))
	}
	return chain.ProcessBlock(ctx, compressed)
}

// FingerprintOf извлекает отпечаток из ключа объекта
func FingerprintOf(key string) string {
	name := path.Base(key)
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return ""
}
