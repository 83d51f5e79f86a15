package base

import (
	"fmt"
	"regexp"
	"strings"
)

// ColumnKind - логический тип колонки, каждый Dialect отображает его в свой SQL тип
type ColumnKind int

const (
	// KindKey - часть первичного ключа, NOT NULL DEFAULT ''
	KindKey ColumnKind = iota
	// KindDate - календарная дата
	KindDate
	// KindCount - целочисленная метрика, NULL = неизвестно
	KindCount
	// KindMeasure - вещественная метрика, NULL = неизвестно
	KindMeasure
	// KindText - строка ограниченной длины
	KindText
	// KindLongText - JSON документ
	KindLongText
)

// Column - описание колонки таблицы
type Column struct {
	Name    string
	Kind    ColumnKind
	Size    int
	NotNull bool
}

// Dialect инкапсулирует синтаксис конкретной СУБД
type Dialect interface {
	// Name возвращает имя СУБД ("sqlite", "postgres", ...)
	Name() string

	// QuoteIdent экранирует идентификатор (имя колонки)
	QuoteIdent(name string) string

	// Table возвращает полное экранированное имя таблицы (со схемой, если есть)
	Table(name string) string

	// Placeholder возвращает параметр запроса с номером n (начиная с 1)
	Placeholder(n int) string

	// ColumnType возвращает SQL тип колонки
	ColumnType(col Column) string

	// CreateTableSQL строит CREATE TABLE, который не падает на существующей таблице
	CreateTableSQL(table string, cols []Column, key []string) string

	// UpsertSQL строит вставку одной строки с заменой по ключу.
	// Параметры идут в порядке cols.
	UpsertSQL(table string, cols []string, key []string) string

	// UpsertSelectSQL строит перенос строк selectSQL в таблицу target с заменой по ключу
	UpsertSelectSQL(target string, cols []string, key []string, selectSQL string) string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTableName проверяет, что имя таблицы безопасно подставлять в SQL
func ValidateTableName(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}

// QuoteWith экранирует идентификатор парой символов, удваивая закрывающий
func QuoteWith(name, open, close string) string {
	return open + strings.ReplaceAll(name, close, close+close) + close
}

// QuoteList экранирует список колонок через запятую
func QuoteList(d Dialect, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// Placeholders возвращает n параметров начиная с номера start
func Placeholders(d Dialect, start, n int) string {
	ph := make([]string, n)
	for i := 0; i < n; i++ {
		ph[i] = d.Placeholder(start + i)
	}
	return strings.Join(ph, ", ")
}

// JoinOn возвращает условие равенства ключевых колонок двух алиасов
func JoinOn(d Dialect, left, right string, key []string) string {
	parts := make([]string, len(key))
	for i, k := range key {
		q := d.QuoteIdent(k)
		parts[i] = left + "." + q + " = " + right + "." + q
	}
	return strings.Join(parts, " AND ")
}

// NonKey возвращает колонки, не входящие в ключ
func NonKey(cols, key []string) []string {
	inKey := make(map[string]bool, len(key))
	for _, k := range key {
		inKey[k] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !inKey[c] {
			out = append(out, c)
		}
	}
	return out
}

// ColumnDefs строит список определений колонок и PRIMARY KEY для CREATE TABLE
func ColumnDefs(d Dialect, cols []Column, key []string) string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		def := d.QuoteIdent(c.Name) + " " + d.ColumnType(c)
		switch {
		case c.Kind == KindKey:
			def += " NOT NULL DEFAULT ''"
		case c.NotNull:
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+QuoteList(d, key)+")")
	return strings.Join(defs, ",\n\t")
}
