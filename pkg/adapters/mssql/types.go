package mssql

import (
	"fmt"
	"strconv"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// keyColumnLimit держит составной первичный ключ в пределах 900 байт
// кластерного индекса (NVARCHAR занимает два байта на символ)
const keyColumnLimit = 100

// Dialect - синтаксис T-SQL
type Dialect struct {
	// Schema - схема таблиц, по умолчанию dbo
	Schema string
}

// Name возвращает название СУБД
func (Dialect) Name() string {
	return AdapterType
}

// QuoteIdent заключает идентификатор в квадратные скобки
func (Dialect) QuoteIdent(name string) string {
	return base.QuoteWith(name, "[", "]")
}

// Table возвращает [schema].[table]
func (d Dialect) Table(name string) string {
	if d.Schema == "" {
		return d.QuoteIdent(name)
	}
	return d.QuoteIdent(d.Schema) + "." + d.QuoteIdent(name)
}

// Placeholder возвращает @pN
func (Dialect) Placeholder(n int) string {
	return "@p" + strconv.Itoa(n)
}

// ColumnType сопоставляет логический тип колонки с типом MS SQL
func (Dialect) ColumnType(col base.Column) string {
	switch col.Kind {
	case base.KindKey:
		size := col.Size
		if size <= 0 || size > keyColumnLimit {
			size = keyColumnLimit
		}
		return fmt.Sprintf("NVARCHAR(%d)", size)
	case base.KindText:
		if col.Size > 0 && col.Size <= 4000 {
			return fmt.Sprintf("NVARCHAR(%d)", col.Size)
		}
		return "NVARCHAR(MAX)"
	case base.KindDate:
		return "DATE"
	case base.KindCount:
		return "BIGINT"
	case base.KindMeasure:
		return "FLOAT"
	case base.KindLongText:
		return "NVARCHAR(MAX)"
	default:
		return "NVARCHAR(MAX)"
	}
}
