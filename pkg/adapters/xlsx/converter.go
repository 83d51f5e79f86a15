package xlsx

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/epibridge/pkg/adapters/base"
)

// maxSheetName - ограничение Excel на длину имени листа
const maxSheetName = 31

// Встроенные форматы Excel. Дата хранится строкой ISO 8601.
const (
	numFmtInteger = 1
	numFmtDecimal = 2
	numFmtText    = 49
)

// headerStyle - стиль строки заголовков
var headerStyle = &excelize.Style{
	Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
	Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
	Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
}

// headerFor - заголовок колонки "name", ключевые колонки помечаются " *"
func headerFor(col base.Column, key []string) string {
	for _, k := range key {
		if k == col.Name {
			return col.Name + " *"
		}
	}
	return col.Name
}

// parseHeader разбирает "name" или "name *"
func parseHeader(header string) (name string, isKey bool) {
	if strings.HasSuffix(header, " *") {
		return strings.TrimSuffix(header, " *"), true
	}
	return header, false
}

// numFmtFor - формат ячейки по логическому типу колонки
func numFmtFor(kind base.ColumnKind) int {
	switch kind {
	case base.KindCount:
		return numFmtInteger
	case base.KindMeasure:
		return numFmtDecimal
	default:
		return numFmtText
	}
}

// columnName - convert column index to Excel column name (1 → A, 27 → AA)
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

func cellRef(col, row int) string {
	return fmt.Sprintf("%s%d", columnName(col), row)
}

// ReadSheet читает лист, записанный Flush: первая строка - заголовки,
// остальные - значения. Пустые ячейки возвращаются пустыми строками.
func ReadSheet(path, sheet string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no header", sheet)
	}

	names := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		names[i], _ = parseHeader(h)
	}

	out := make([]map[string]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		m := make(map[string]string, len(names))
		for i, name := range names {
			if i < len(r) {
				m[name] = r[i]
			} else {
				m[name] = ""
			}
		}
		out = append(out, m)
	}
	return out, nil
}
