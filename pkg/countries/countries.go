// Package countries переводит ISO 3166 alpha-2 коды в alpha-3 и название страны.
//
// Встроенная таблица повторяет формат wikipedia-iso-country-codes.csv
// (колонки "English short name lower case", "Alpha-2 code", "Alpha-3 code"),
// поэтому ее можно заменить свежей выгрузкой через Load.
package countries

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Имена колонок CSV
const (
	ColumnName   = "English short name lower case"
	ColumnAlpha2 = "Alpha-2 code"
	ColumnAlpha3 = "Alpha-3 code"
)

// ErrUnknownCountry - код отсутствует в таблице
var ErrUnknownCountry = errors.New("unknown country code")

//go:embed iso3166.csv
var embedded []byte

// Country - строка таблицы
type Country struct {
	Name   string
	Alpha2 string
	Alpha3 string
}

// Table - справочник стран по alpha-2 коду
type Table struct {
	byAlpha2 map[string]Country
}

// Default возвращает встроенную таблицу
func Default() *Table {
	t, err := Load(bytes.NewReader(embedded))
	if err != nil {
		panic(fmt.Sprintf("embedded country table is invalid: %v", err))
	}
	return t
}

// Load читает таблицу из CSV с заголовком. Лишние колонки игнорируются.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range []string{ColumnName, ColumnAlpha2, ColumnAlpha3} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	t := &Table{byAlpha2: make(map[string]Country)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		c := Country{
			Name:   get(ColumnName),
			Alpha2: strings.ToUpper(get(ColumnAlpha2)),
			Alpha3: strings.ToUpper(get(ColumnAlpha3)),
		}
		if c.Alpha2 == "" || c.Alpha3 == "" {
			continue
		}
		t.byAlpha2[c.Alpha2] = c
	}

	if len(t.byAlpha2) == 0 {
		return nil, errors.New("country table is empty")
	}
	return t, nil
}

// Lookup ищет страну по alpha-2 коду (регистр не важен)
func (t *Table) Lookup(alpha2 string) (Country, error) {
	c, ok := t.byAlpha2[strings.ToUpper(strings.TrimSpace(alpha2))]
	if !ok {
		return Country{}, fmt.Errorf("%w: %q", ErrUnknownCountry, alpha2)
	}
	return c, nil
}

// Len возвращает число стран
func (t *Table) Len() int {
	return len(t.byAlpha2)
}
