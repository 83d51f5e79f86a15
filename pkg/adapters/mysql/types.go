package mysql

import (
	"fmt"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// Dialect - синтаксис MySQL
type Dialect struct{}

// Name возвращает имя СУБД
func (Dialect) Name() string {
	return AdapterType
}

// QuoteIdent экранирует идентификатор обратными кавычками
func (Dialect) QuoteIdent(name string) string {
	return base.QuoteWith(name, "`", "`")
}

// Table возвращает экранированное имя таблицы в текущей базе
func (d Dialect) Table(name string) string {
	return d.QuoteIdent(name)
}

// Placeholder возвращает позиционный параметр
func (Dialect) Placeholder(n int) string {
	return "?"
}

// ColumnType конвертирует логический тип колонки в MySQL тип.
// Ключевые колонки ограничены VARCHAR(191), чтобы составной ключ
// укладывался в лимит InnoDB при utf8mb4.
func (Dialect) ColumnType(col base.Column) string {
	switch col.Kind {
	case base.KindKey:
		size := col.Size
		if size <= 0 || size > 191 {
			size = 191
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case base.KindText:
		if col.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Size)
		}
		return "TEXT"
	case base.KindDate:
		return "DATE"
	case base.KindCount:
		return "BIGINT"
	case base.KindMeasure:
		return "DOUBLE"
	case base.KindLongText:
		return "JSON"
	default:
		return "TEXT"
	}
}
