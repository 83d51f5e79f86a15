package fetchers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ruslano69/epibridge/pkg/core/record"
)

// ErrInvalidValue - значение метрики нельзя разобрать как число
var ErrInvalidValue = errors.New("invalid metric value")

// Sentinels - набор токенов источника, обозначающих отсутствие значения
// (например "不明" или "-"). Отсутствующий ключ, JSON null и пустая строка
// всегда означают неизвестное значение.
type Sentinels map[string]struct{}

// NewSentinels создает набор токенов
func NewSentinels(tokens ...string) Sentinels {
	s := make(Sentinels, len(tokens))
	for _, t := range tokens {
		s[strings.TrimSpace(t)] = struct{}{}
	}
	return s
}

// Has проверяет, является ли строка токеном отсутствия
func (s Sentinels) Has(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	_, ok := s[v]
	return ok
}

// rawNumber возвращает число из значения JSON или CSV.
// ok == false означает неизвестное значение.
func rawNumber(entry map[string]any, key string, sentinels Sentinels) (f float64, ok bool, err error) {
	v, present := entry[key]
	if !present || v == nil {
		return 0, false, nil
	}

	var text string
	switch x := v.(type) {
	case json.Number:
		text = x.String()
	case string:
		if sentinels.Has(x) {
			return 0, false, nil
		}
		text = strings.TrimSpace(x)
	case float64:
		return x, true, nil
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s has type %T", ErrInvalidValue, key, v)
	}

	f, err = strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %s = %q", ErrInvalidValue, key, text)
	}
	return f, true, nil
}

// CountOrUnknown нормализует значение счетчика: отсутствие и токены дают
// неизвестное значение, числа и числовые строки дают значение. Дробное или
// отрицательное значение дает неизвестное значение и ErrInvalidValue.
func CountOrUnknown(entry map[string]any, key string, sentinels Sentinels) (record.Count, error) {
	f, ok, err := rawNumber(entry, key, sentinels)
	if err != nil || !ok {
		return record.Unknown(), err
	}
	if f < 0 || f != math.Trunc(f) || f >= 1<<63 {
		return record.Unknown(), fmt.Errorf("%w: %s = %v is not a non-negative integer", ErrInvalidValue, key, f)
	}
	return record.Known(int64(f)), nil
}

// MeasureOrUnknown как CountOrUnknown для дробных значений (допускаются отрицательные)
func MeasureOrUnknown(entry map[string]any, key string, sentinels Sentinels) (record.Measure, error) {
	f, ok, err := rawNumber(entry, key, sentinels)
	if err != nil || !ok {
		return record.UnknownMeasure(), err
	}
	return record.KnownMeasure(f), nil
}
