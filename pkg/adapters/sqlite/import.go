package sqlite

import (
	"fmt"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// CreateTableSQL строит CREATE TABLE IF NOT EXISTS
func (d Dialect) CreateTableSQL(table string, cols []base.Column, key []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.Table(table), base.ColumnDefs(d, cols, key))
}

// UpsertSQL строит INSERT OR REPLACE. SQLite заменяет строку целиком
// при конфликте по PRIMARY KEY.
func (d Dialect) UpsertSQL(table string, cols, key []string) string {
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		d.Table(table),
		base.QuoteList(d, cols),
		base.Placeholders(d, 1, len(cols)),
	)
}

// UpsertSelectSQL строит INSERT OR REPLACE ... SELECT
func (d Dialect) UpsertSelectSQL(target string, cols, key []string, selectSQL string) string {
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) %s",
		d.Table(target),
		base.QuoteList(d, cols),
		selectSQL,
	)
}
