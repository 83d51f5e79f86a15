package mssql

import (
	"fmt"
	"strings"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// escapeLiteral удваивает одинарные кавычки для литералов N'...'
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func createSchemaSQL(schema string) string {
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA %s')",
		escapeLiteral(schema), escapeLiteral(Dialect{}.QuoteIdent(schema)))
}

// CreateTableSQL строит CREATE TABLE с проверкой OBJECT_ID (в T-SQL нет IF NOT EXISTS)
func (d Dialect) CreateTableSQL(table string, cols []base.Column, key []string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n\t%s\n)",
		escapeLiteral(d.Table(table)), d.Table(table), base.ColumnDefs(d, cols, key))
}

// buildMergeSQL строит MERGE для UPSERT
// Синтаксис SQL Server 2012+
func (d Dialect) buildMergeSQL(table string, source string, cols, key []string) string {
	// MERGE target USING source ON условие
	// WHEN MATCHED THEN UPDATE
	// WHEN NOT MATCHED THEN INSERT

	var (
		updateSets   []string
		insertValues []string
	)

	for _, c := range cols {
		insertValues = append(insertValues, "source."+d.QuoteIdent(c))
	}
	for _, c := range base.NonKey(cols, key) {
		q := d.QuoteIdent(c)
		updateSets = append(updateSets, fmt.Sprintf("target.%s = source.%s", q, q))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS target\nUSING (%s) AS source\nON %s\n",
		d.Table(table), source, base.JoinOn(d, "target", "source", key))
	if len(updateSets) > 0 {
		fmt.Fprintf(&b, "WHEN MATCHED THEN\n    UPDATE SET %s\n", strings.Join(updateSets, ", "))
	}
	fmt.Fprintf(&b, "WHEN NOT MATCHED THEN\n    INSERT (%s)\n    VALUES (%s);",
		base.QuoteList(d, cols), strings.Join(insertValues, ", "))
	return b.String()
}

// UpsertSQL строит MERGE с источником из одной строки параметров
func (d Dialect) UpsertSQL(table string, cols, key []string) string {
	sourceColumns := make([]string, len(cols))
	for i, c := range cols {
		sourceColumns[i] = fmt.Sprintf("%s AS %s", d.Placeholder(i+1), d.QuoteIdent(c))
	}
	return d.buildMergeSQL(table, "SELECT "+strings.Join(sourceColumns, ", "), cols, key)
}

// UpsertSelectSQL строит MERGE с selectSQL в качестве источника
func (d Dialect) UpsertSelectSQL(target string, cols, key []string, selectSQL string) string {
	return d.buildMergeSQL(target, selectSQL, cols, key)
}
