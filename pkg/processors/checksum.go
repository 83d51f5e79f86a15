package processors

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/xxh3"
)

// ChecksumProcessor вычисляет и проверяет отпечаток ответа источника.
// Использует xxh3 (64-bit).
//
// Режимы работы:
//  1. Генерация (expectedHash == ""): вычисляет хеш и передает через callback
//  2. Валидация (expectedHash != ""): проверяет соответствие вычисленного хеша ожидаемому
//
// Данные проходят без изменений, поэтому процессор можно ставить
// в Chain перед сжатием.
type ChecksumProcessor struct {
	validate bool         // true если нужна валидация
	expected string       // ожидаемый хеш (hex-encoded)
	callback func(string) // callback для передачи вычисленного хеша
}

// NewChecksumProcessor создает новый процессор контрольных сумм.
//
// Параметры:
//
//	expectedHash - ожидаемый хеш для валидации (пустая строка для режима генерации)
//	callback - функция для получения вычисленного хеша (опционально)
func NewChecksumProcessor(expectedHash string, callback func(string)) *ChecksumProcessor {
	return &ChecksumProcessor{
		validate: expectedHash != "",
		expected: expectedHash,
		callback: callback,
	}
}

// ProcessBlock вычисляет xxh3 хеш блока данных.
func (p *ChecksumProcessor) ProcessBlock(ctx context.Context, input []byte) ([]byte, error) {
	actual := ComputeChecksum(input)

	if p.validate && actual != p.expected {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", p.expected, actual)
	}

	if p.callback != nil {
		p.callback(actual)
	}
	return input, nil
}

// uint64ToBytes конвертирует uint64 в байтовый массив (big-endian).
func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// ComputeChecksum вычисляет xxh3 хеш данных и возвращает hex-encoded строку
// из 16 символов. Используется как отпечаток ответа источника.
func ComputeChecksum(data []byte) string {
	return hex.EncodeToString(uint64ToBytes(xxh3.Hash(data)))
}

// ValidateChecksum проверяет соответствие данных ожидаемому хешу.
func ValidateChecksum(data []byte, expectedHash string) error {
	actual := ComputeChecksum(data)
	if actual != expectedHash {
		return fmt.Errorf("checksum validation failed: expected %s, got %s", expectedHash, actual)
	}
	return nil
}
