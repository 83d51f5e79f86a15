package postgres

import (
	"fmt"
	"strconv"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// Dialect - синтаксис PostgreSQL
type Dialect struct {
	// Schema - схема таблиц, по умолчанию public
	Schema string
}

// Name возвращает имя СУБД
func (Dialect) Name() string {
	return "postgres"
}

// QuoteIdent экранирует идентификатор двойными кавычками
func (Dialect) QuoteIdent(name string) string {
	return base.QuoteWith(name, `"`, `"`)
}

// Table возвращает "schema"."table"
func (d Dialect) Table(name string) string {
	if d.Schema == "" {
		return d.QuoteIdent(name)
	}
	return d.QuoteIdent(d.Schema) + "." + d.QuoteIdent(name)
}

// Placeholder возвращает $n
func (Dialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// ColumnType конвертирует логический тип колонки в PostgreSQL тип
func (Dialect) ColumnType(col base.Column) string {
	switch col.Kind {
	case base.KindKey, base.KindText:
		if col.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Size)
		}
		return "TEXT"
	case base.KindDate:
		return "DATE"
	case base.KindCount:
		return "BIGINT"
	case base.KindMeasure:
		return "DOUBLE PRECISION"
	case base.KindLongText:
		return "JSONB"
	default:
		return "TEXT"
	}
}
