package record

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Count - целочисленная метрика (confirmed, dead, tested ...) с явным
// состоянием "неизвестно". Нулевое значение Count{} означает "неизвестно"
// и не равно Known(0).
type Count struct {
	Int64 int64
	Valid bool
}

// Known создает известное значение метрики
func Known(n int64) Count {
	return Count{Int64: n, Valid: true}
}

// Unknown возвращает неизвестное значение
func Unknown() Count {
	return Count{}
}

// IsKnown возвращает true если значение присутствует
func (c Count) IsKnown() bool {
	return c.Valid
}

// String возвращает число или "unknown"
func (c Count) String() string {
	if !c.Valid {
		return "unknown"
	}
	return strconv.FormatInt(c.Int64, 10)
}

// MarshalJSON кодирует неизвестное значение как null
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(c.Int64, 10)), nil
}

// UnmarshalJSON принимает число или null
func (c *Count) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Count{}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("count: %w", err)
	}
	*c = Known(n)
	return nil
}

// Value реализует driver.Valuer: неизвестное значение пишется как NULL
func (c Count) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	return c.Int64, nil
}

// Scan реализует sql.Scanner
func (c *Count) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = Count{}
	case int64:
		*c = Known(v)
	case int32:
		*c = Known(int64(v))
	case float64:
		*c = Known(int64(v))
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		*c = Known(n)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		*c = Known(n)
	default:
		return fmt.Errorf("count: unsupported scan type %T", src)
	}
	return nil
}

// Measure - вещественная метрика (индексы мер, изменение мобильности в %).
// Может быть отрицательной. Нулевое значение означает "неизвестно".
type Measure struct {
	Float64 float64
	Valid   bool
}

// KnownMeasure создает известное вещественное значение
func KnownMeasure(f float64) Measure {
	return Measure{Float64: f, Valid: true}
}

// UnknownMeasure возвращает неизвестное вещественное значение
func UnknownMeasure() Measure {
	return Measure{}
}

// IsKnown возвращает true если значение присутствует
func (m Measure) IsKnown() bool {
	return m.Valid
}

func (m Measure) String() string {
	if !m.Valid {
		return "unknown"
	}
	return strconv.FormatFloat(m.Float64, 'f', -1, 64)
}

// MarshalJSON кодирует неизвестное значение как null
func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Float64)
}

// UnmarshalJSON принимает число или null
func (m *Measure) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Measure{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	*m = KnownMeasure(f)
	return nil
}

// Value реализует driver.Valuer
func (m Measure) Value() (driver.Value, error) {
	if !m.Valid {
		return nil, nil
	}
	return m.Float64, nil
}

// Scan реализует sql.Scanner
func (m *Measure) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Measure{}
	case float64:
		*m = KnownMeasure(v)
	case float32:
		*m = KnownMeasure(float64(v))
	case int64:
		*m = KnownMeasure(float64(v))
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return fmt.Errorf("measure: %w", err)
		}
		*m = KnownMeasure(f)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("measure: %w", err)
		}
		*m = KnownMeasure(f)
	default:
		return fmt.Errorf("measure: unsupported scan type %T", src)
	}
	return nil
}
