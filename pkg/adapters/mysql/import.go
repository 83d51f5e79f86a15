package mysql

import (
	"fmt"
	"strings"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// CreateTableSQL строит CREATE TABLE IF NOT EXISTS с InnoDB и utf8mb4
func (d Dialect) CreateTableSQL(table string, cols []base.Column, key []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		d.Table(table), base.ColumnDefs(d, cols, key))
}

// onDuplicate строит ON DUPLICATE KEY UPDATE c = <src>
func (d Dialect) onDuplicate(cols, key []string, value func(q string) string) string {
	rest := base.NonKey(cols, key)
	if len(rest) == 0 {
		// Нечего обновлять: присваиваем ключевую колонку самой себе
		q := d.QuoteIdent(key[0])
		return " ON DUPLICATE KEY UPDATE " + q + " = " + q
	}

	sets := make([]string, len(rest))
	for i, c := range rest {
		q := d.QuoteIdent(c)
		sets[i] = q + " = " + value(q)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// UpsertSQL строит INSERT ... ON DUPLICATE KEY UPDATE через алиас новой строки
func (d Dialect) UpsertSQL(table string, cols, key []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) AS new_row",
		d.Table(table),
		base.QuoteList(d, cols),
		base.Placeholders(d, 1, len(cols)),
	) + d.onDuplicate(cols, key, func(q string) string { return "new_row." + q })
}

// UpsertSelectSQL строит INSERT ... SELECT из производной таблицы
func (d Dialect) UpsertSelectSQL(target string, cols, key []string, selectSQL string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT * FROM (%s) AS src",
		d.Table(target),
		base.QuoteList(d, cols),
		selectSQL,
	) + d.onDuplicate(cols, key, func(q string) string { return "src." + q })
}
