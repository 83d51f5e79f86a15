package sqlite

import (
	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// Dialect - синтаксис SQLite
type Dialect struct{}

// Name возвращает имя СУБД
func (Dialect) Name() string {
	return "sqlite"
}

// QuoteIdent экранирует идентификатор двойными кавычками
func (Dialect) QuoteIdent(name string) string {
	return base.QuoteWith(name, `"`, `"`)
}

// Table возвращает экранированное имя таблицы (SQLite не поддерживает схемы)
func (d Dialect) Table(name string) string {
	return d.QuoteIdent(name)
}

// Placeholder возвращает позиционный параметр
func (Dialect) Placeholder(n int) string {
	return "?"
}

// ColumnType конвертирует логический тип колонки в SQLite тип.
// SQLite игнорирует длину, поэтому Size не используется.
func (Dialect) ColumnType(col base.Column) string {
	switch col.Kind {
	case base.KindDate:
		return "DATE"
	case base.KindCount:
		return "INTEGER"
	case base.KindMeasure:
		return "REAL"
	default:
		return "TEXT"
	}
}
