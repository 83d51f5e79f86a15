// Package xlsx - хранилище, которое накапливает записи и по Flush
// сохраняет их в Excel книгу: один лист на таблицу.
//
// DSN - путь к .xlsx файлу. Повторная запись того же ключа заменяет строку,
// поэтому книга содержит ровно одну строку на адрес записи.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/adapters/base"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

var (
	_ adapters.Adapter = (*Adapter)(nil)
	_ adapters.Flusher = (*Adapter)(nil)
)

func init() {
	adapters.Register("xlsx", func() adapters.Adapter {
		return &Adapter{}
	})
}

// sheet - буфер строк одной таблицы
type sheet struct {
	def  base.TableDef
	rows map[record.Key][]any
}

// Adapter буферизует строки в памяти до Flush
type Adapter struct {
	path string
	log  zerolog.Logger

	mu     sync.Mutex
	sheets map[string]*sheet
	dirty  bool
}

// Connect запоминает путь к файлу. Файл создается при первом Flush.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	if cfg.DSN == "" {
		return fmt.Errorf("xlsx storage requires a file path in dsn")
	}
	if ext := filepath.Ext(cfg.DSN); ext != ".xlsx" {
		return fmt.Errorf("xlsx storage path must end with .xlsx, got %q", cfg.DSN)
	}
	a.path = cfg.DSN
	a.log = cfg.Logger.With().Str("storage", "xlsx").Str("path", cfg.DSN).Logger()
	a.sheets = make(map[string]*sheet)
	return nil
}

// Close сохраняет несброшенные строки
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	dirty := a.dirty
	a.mu.Unlock()
	if dirty {
		return a.Flush(ctx)
	}
	return nil
}

// Ping проверяет, что каталог файла существует
func (a *Adapter) Ping(ctx context.Context) error {
	if a.path == "" {
		return fmt.Errorf("adapter not connected")
	}
	dir := filepath.Dir(a.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("output directory unavailable: %w", err)
	}
	return nil
}

func (a *Adapter) GetDatabaseType() string {
	return "xlsx"
}

func (a *Adapter) buffer(table string, def base.TableDef, rec record.Record, args []any) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := base.ValidateTableName(table); err != nil {
		return err
	}
	if len(table) > maxSheetName {
		return fmt.Errorf("table name %q is longer than %d characters", table, maxSheetName)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sheets == nil {
		return fmt.Errorf("adapter not connected")
	}

	s, ok := a.sheets[table]
	if !ok {
		s = &sheet{def: def, rows: make(map[record.Key][]any)}
		a.sheets[table] = s
	}
	s.rows[rec.Key()] = args
	a.dirty = true
	return nil
}

func (a *Adapter) UpsertGovernmentResponseData(ctx context.Context, table string, rec *record.GovernmentResponse) error {
	return a.buffer(table, base.Tables[record.EntityGovernmentResponse], rec, base.GovernmentResponseArgs(rec))
}

func (a *Adapter) UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) error {
	return a.buffer(table, base.Tables[record.EntityEpidemiology], rec, base.EpidemiologyArgs(rec))
}

func (a *Adapter) UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) error {
	return a.buffer(table, base.Tables[record.EntityMobility], rec, base.MobilityArgs(rec))
}

// GetAdmDivision - книга не хранит справочник
func (a *Adapter) GetAdmDivision(ctx context.Context, countryCode, adm1, adm2, adm3 string) (*record.AdmDivision, error) {
	return nil, adapters.ErrNotFound
}

// Flush записывает все буферизованные листы в файл.
// Файл перезаписывается целиком, буфер сохраняется для следующих Flush.
func (a *Adapter) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sheets == nil {
		return fmt.Errorf("adapter not connected")
	}

	f := excelize.NewFile()
	defer f.Close()

	styleID, err := f.NewStyle(headerStyle)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	names := make([]string, 0, len(a.sheets))
	for name := range a.sheets {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		n, err := writeSheet(f, name, a.sheets[name], styleID)
		if err != nil {
			return err
		}
		total += n
	}

	if len(names) > 0 {
		f.DeleteSheet("Sheet1")
		if idx, err := f.GetSheetIndex(names[0]); err == nil {
			f.SetActiveSheet(idx)
		}
	}

	if err := f.SaveAs(a.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", a.path, err)
	}
	a.dirty = false
	a.log.Info().Int("sheets", len(names)).Int("rows", total).Msg("workbook saved")
	return nil
}

func writeSheet(f *excelize.File, name string, s *sheet, headerStyleID int) (int, error) {
	if _, err := f.NewSheet(name); err != nil {
		return 0, fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	for i, col := range s.def.Columns {
		cell := cellRef(i+1, 1)
		f.SetCellValue(name, cell, headerFor(col, s.def.Key))
		f.SetCellStyle(name, cell, cell, headerStyleID)
		colName := columnName(i + 1)
		f.SetColWidth(name, colName, colName, 15)
	}

	keys := make([]record.Key, 0, len(s.rows))
	for k := range s.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for r, key := range keys {
		args := s.rows[key]
		for c, col := range s.def.Columns {
			if c >= len(args) {
				break
			}
			// Неизвестная метрика остается пустой ячейкой, а не нулем
			if args[c] == nil {
				continue
			}
			cell := cellRef(c+1, r+2)
			if err := f.SetCellValue(name, cell, args[c]); err != nil {
				return 0, fmt.Errorf("failed to set %s!%s of %s: %w", name, cell, col.Name, err)
			}
		}
	}

	for c, col := range s.def.Columns {
		style, err := f.NewStyle(&excelize.Style{NumFmt: numFmtFor(col.Kind)})
		if err != nil {
			return 0, fmt.Errorf("failed to create column style: %w", err)
		}
		if len(keys) > 0 {
			if err := f.SetCellStyle(name, cellRef(c+1, 2), cellRef(c+1, len(keys)+1), style); err != nil {
				return 0, fmt.Errorf("failed to format column %s: %w", col.Name, err)
			}
		}
	}
	return len(keys), nil
}
