package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DefaultCompressionLevel - баланс скорости и размера для архива ответов
const DefaultCompressionLevel = 3

// CompressionProcessor сжимает данные в zstd фрейм.
type CompressionProcessor struct {
	encoder *zstd.Encoder
}

// NewCompressionProcessor создает процессор сжатия.
// level: 1 (самый быстрый) - 22 (лучшее сжатие).
func NewCompressionProcessor(level int) (*CompressionProcessor, error) {
	if level <= 0 {
		level = DefaultCompressionLevel
	}
	opts := []zstd.EOption{
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(4),
	}

	encoder, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	return &CompressionProcessor{encoder: encoder}, nil
}

// ProcessBlock сжимает блок данных. Результат - стандартный .zst фрейм.
func (p *CompressionProcessor) ProcessBlock(_ context.Context, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}
	return p.encoder.EncodeAll(input, nil), nil
}

// Close освобождает ресурсы, связанные с энкодером.
func (p *CompressionProcessor) Close() {
	if p.encoder != nil {
		p.encoder.Close()
	}
}

// DecompressionProcessor распаковывает zstd фрейм.
type DecompressionProcessor struct {
	decoder *zstd.Decoder
}

// NewDecompressionProcessor создает процессор распаковки.
func NewDecompressionProcessor() (*DecompressionProcessor, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(4))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &DecompressionProcessor{decoder: decoder}, nil
}

// ProcessBlock распаковывает блок данных.
func (p *DecompressionProcessor) ProcessBlock(_ context.Context, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}
	out, err := p.decoder.DecodeAll(input, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd: %w", err)
	}
	return out, nil
}

// Close освобождает ресурсы, связанные с декодером.
func (p *DecompressionProcessor) Close() {
	if p.decoder != nil {
		p.decoder.Close()
	}
}

// Compress сжимает блок данных одним вызовом.
func Compress(input []byte, level int) ([]byte, error) {
	processor, err := NewCompressionProcessor(level)
	if err != nil {
		return nil, err
	}
	defer processor.Close()

	return processor.ProcessBlock(context.Background(), input)
}

// Decompress распаковывает блок данных одним вызовом.
func Decompress(input []byte) ([]byte, error) {
	processor, err := NewDecompressionProcessor()
	if err != nil {
		return nil, err
	}
	defer processor.Close()

	return processor.ProcessBlock(context.Background(), input)
}

// CompressionStats содержит статистику сжатия.
type CompressionStats struct {
	OriginalSize   int           `json:"original_size"`
	CompressedSize int           `json:"compressed_size"`
	Ratio          float64       `json:"ratio"`
	Time           time.Duration `json:"time"`
}

// GetCompressionStats вычисляет статистику сжатия для данных.
func GetCompressionStats(original, compressed []byte, compressTime time.Duration) CompressionStats {
	stats := CompressionStats{
		OriginalSize:   len(original),
		CompressedSize: len(compressed),
		Time:           compressTime,
	}

	if len(compressed) > 0 {
		stats.Ratio = float64(len(original)) / float64(len(compressed))
	}

	return stats
}
