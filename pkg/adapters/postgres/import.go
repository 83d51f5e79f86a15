package postgres

import (
	"fmt"
	"strings"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// CreateTableSQL строит CREATE TABLE IF NOT EXISTS
func (d Dialect) CreateTableSQL(table string, cols []base.Column, key []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.Table(table), base.ColumnDefs(d, cols, key))
}

// onConflict строит ON CONFLICT (key) DO UPDATE SET c = EXCLUDED.c
func (d Dialect) onConflict(cols, key []string) string {
	rest := base.NonKey(cols, key)
	if len(rest) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", base.QuoteList(d, key))
	}

	sets := make([]string, len(rest))
	for i, c := range rest {
		q := d.QuoteIdent(c)
		sets[i] = q + " = EXCLUDED." + q
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", base.QuoteList(d, key), strings.Join(sets, ", "))
}

// UpsertSQL строит INSERT ... ON CONFLICT DO UPDATE
func (d Dialect) UpsertSQL(table string, cols, key []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Table(table),
		base.QuoteList(d, cols),
		base.Placeholders(d, 1, len(cols)),
	) + d.onConflict(cols, key)
}

// UpsertSelectSQL строит INSERT ... SELECT ... ON CONFLICT DO UPDATE
func (d Dialect) UpsertSelectSQL(target string, cols, key []string, selectSQL string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) %s",
		d.Table(target),
		base.QuoteList(d, cols),
		selectSQL,
	) + d.onConflict(cols, key)
}
