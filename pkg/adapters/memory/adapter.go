// Package memory - хранилище канонических записей в памяти процесса.
//
// Реализует все опциональные возможности (compare, send_data,
// truncate_staging, flush) и справочник административного деления.
// Используется в тестах и для пробных прогонов источников.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

var errClosed = errors.New("memory storage is closed")

// Compile-time checks
var (
	_ adapters.Adapter          = (*Adapter)(nil)
	_ adapters.Comparer         = (*Adapter)(nil)
	_ adapters.DataSender       = (*Adapter)(nil)
	_ adapters.StagingTruncater = (*Adapter)(nil)
	_ adapters.Flusher          = (*Adapter)(nil)
	_ adapters.DivisionStore    = (*Adapter)(nil)
)

func init() {
	adapters.Register("memory", func() adapters.Adapter {
		return New()
	})
}

// row - сохраненная запись и xxh3 дайджест ее JSON представления
type row struct {
	rec    record.Record
	digest uint64
}

type divisionKey struct {
	countryCode, adm1, adm2, adm3 string
}

// Stats - счетчики операций хранилища
type Stats struct {
	Inserted  int // новые строки
	Updated   int // строки с измененными значениями
	Unchanged int // повторная запись тех же значений
	Flushes   int
}

// Adapter хранит строки по таблицам, ключ строки - record.Key
type Adapter struct {
	mu        sync.RWMutex
	tables    map[string]map[record.Key]row
	divisions map[divisionKey]record.AdmDivision
	stats     Stats
	closed    bool
	log       zerolog.Logger
}

// New создает пустое хранилище
func New() *Adapter {
	return &Adapter{
		tables:    make(map[string]map[record.Key]row),
		divisions: make(map[divisionKey]record.AdmDivision),
		log:       zerolog.Nop(),
	}
}

// Connect сбрасывает признак закрытия и принимает логгер из конфигурации.
// DSN не используется.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = false
	a.log = cfg.Logger.With().Str("storage", "memory").Logger()
	return nil
}

// Close помечает хранилище закрытым, данные остаются доступны для чтения
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errClosed
	}
	return nil
}

func (a *Adapter) GetDatabaseType() string {
	return "memory"
}

func digestOf(rec record.Record) (uint64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record: %w", err)
	}
	return xxh3.Hash(data), nil
}

func (a *Adapter) upsert(table string, rec record.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if table == "" {
		return fmt.Errorf("empty table name")
	}
	digest, err := digestOf(rec)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}

	rows, ok := a.tables[table]
	if !ok {
		rows = make(map[record.Key]row)
		a.tables[table] = rows
	}

	key := rec.Key()
	prev, exists := rows[key]
	switch {
	case !exists:
		a.stats.Inserted++
	case prev.digest == digest:
		a.stats.Unchanged++
		return nil
	default:
		a.stats.Updated++
	}
	rows[key] = row{rec: rec, digest: digest}
	return nil
}

// UpsertGovernmentResponseData вставляет или заменяет строку по ключу записи
func (a *Adapter) UpsertGovernmentResponseData(ctx context.Context, table string, rec *record.GovernmentResponse) error {
	cp := *rec
	return a.upsert(table, &cp)
}

// UpsertEpidemiologyData вставляет или заменяет строку по ключу записи
func (a *Adapter) UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) error {
	cp := *rec
	return a.upsert(table, &cp)
}

// UpsertMobilityData вставляет или заменяет строку по ключу записи
func (a *Adapter) UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) error {
	cp := *rec
	return a.upsert(table, &cp)
}

// PutAdmDivision добавляет строку справочника
func (a *Adapter) PutAdmDivision(ctx context.Context, div *record.AdmDivision) error {
	if div == nil || div.CountryCode == "" {
		return fmt.Errorf("%w: division without countrycode", record.ErrInvalidRecord)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.divisions[divisionKey{div.CountryCode, div.AdmArea1, div.AdmArea2, div.AdmArea3}] = *div
	return nil
}

// GetAdmDivision ищет строку справочника, при отсутствии возвращает adapters.ErrNotFound
func (a *Adapter) GetAdmDivision(ctx context.Context, countryCode, adm1, adm2, adm3 string) (*record.AdmDivision, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	div, ok := a.divisions[divisionKey{countryCode, adm1, adm2, adm3}]
	if !ok {
		return nil, adapters.ErrNotFound
	}
	return &div, nil
}

// CallDBFunctionCompare возвращает true, если в staging_epidemiology есть
// строки эпидемиологии источника и ни одна не уменьшает confirmed или dead
// относительно production строки с тем же ключом
func (a *Adapter) CallDBFunctionCompare(ctx context.Context, source string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	staging := a.tables[adapters.StagingPrefix+record.TableEpidemiology]
	prod := a.tables[record.TableEpidemiology]

	staged := 0
	for key, r := range staging {
		if key.Source != source {
			continue
		}
		// Строки другого типа, записанные под этим именем таблицы, не сверяются
		s, ok := r.rec.(*record.Epidemiology)
		if !ok {
			continue
		}
		staged++
		p, ok := prod[key]
		if !ok {
			continue
		}
		old, ok := p.rec.(*record.Epidemiology)
		if !ok {
			continue
		}
		if regressed(s.Confirmed, old.Confirmed) || regressed(s.Dead, old.Dead) {
			a.log.Debug().Str("source", source).Str("key", key.String()).Msg("cumulative value regressed")
			return false, nil
		}
	}
	return staged > 0, nil
}

// regressed повторяет семантику SQL сравнения: NULL ни с чем не сравнивается
func regressed(staged, prod record.Count) bool {
	return staged.IsKnown() && prod.IsKnown() && staged.Int64 < prod.Int64
}

// CallDBFunctionSendData переносит staging строки источника в production
func (a *Adapter) CallDBFunctionSendData(ctx context.Context, source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}

	for _, entity := range record.Entities {
		prodName := entity.DefaultTable()
		staging := a.tables[adapters.StagingPrefix+prodName]
		moved := 0
		for key, r := range staging {
			if key.Source != source {
				continue
			}
			prod, ok := a.tables[prodName]
			if !ok {
				prod = make(map[record.Key]row)
				a.tables[prodName] = prod
			}
			prod[key] = r
			delete(staging, key)
			moved++
		}
		if moved > 0 {
			a.log.Debug().Str("source", source).Str("table", prodName).Int("rows", moved).Msg("staging data sent")
		}
	}
	return nil
}

// TruncateStaging удаляет строки всех staging таблиц
func (a *Adapter) TruncateStaging(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name := range a.tables {
		if strings.HasPrefix(name, adapters.StagingPrefix) {
			delete(a.tables, name)
		}
	}
	return nil
}

// Flush только учитывает вызов, данные уже в памяти
func (a *Adapter) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Flushes++
	return nil
}

// Stats возвращает копию счетчиков
func (a *Adapter) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Len возвращает число строк таблицы
func (a *Adapter) Len(table string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tables[table])
}

// Tables возвращает отсортированные имена непустых таблиц
func (a *Adapter) Tables() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.tables))
	for name, rows := range a.tables {
		if len(rows) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Rows возвращает записи таблицы, упорядоченные по ключу
func (a *Adapter) Rows(table string) []record.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows := a.tables[table]
	keys := make([]record.Key, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]record.Record, len(keys))
	for i, k := range keys {
		out[i] = rows[k].rec
	}
	return out
}

// Epidemiology возвращает строку epidemiology таблицы по ключу
func (a *Adapter) Epidemiology(table string, key record.Key) (*record.Epidemiology, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.tables[table][key]
	if !ok {
		return nil, false
	}
	rec, ok := r.rec.(*record.Epidemiology)
	return rec, ok
}
