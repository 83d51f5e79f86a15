// Package admtranslator переводит названия административных единиц,
// как их публикует источник, в каноническую иерархию adm_area_1/2/3
// и список географических идентификаторов (gid).
package admtranslator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

// Translation - результат перевода
type Translation struct {
	Success  bool
	AdmArea1 string
	AdmArea2 string
	AdmArea3 string
	GID      []string
}

// Translator - контракт, которым пользуются источники
type Translator interface {
	Translate(ctx context.Context, countryCode, in1, in2, in3 string, returnOriginalIfFailure bool) Translation
}

// DivisionResolver - справочник административного деления
// (adapters.Wrapper и любой adapters.Storage подходят)
type DivisionResolver interface {
	GetAdmDivision(ctx context.Context, countryCode, adm1, adm2, adm3 string) (*record.AdmDivision, error)
}

// Stats - счетчики переводов
type Stats struct {
	TableHits    int64
	ResolverHits int64
	Misses       int64
}

type entryKey struct {
	countryCode, in1, in2, in3 string
}

type entry struct {
	adm1, adm2, adm3 string
	gid              []string
}

// Table переводит по таблице соответствий, при промахе спрашивает DivisionResolver
type Table struct {
	mu      sync.RWMutex
	entries map[entryKey]entry

	resolver DivisionResolver
	log      zerolog.Logger

	tableHits    atomic.Int64
	resolverHits atomic.Int64
	misses       atomic.Int64
}

var _ Translator = (*Table)(nil)

// Option настраивает Table
type Option func(*Table)

// WithResolver задает справочник для промахов таблицы
func WithResolver(r DivisionResolver) Option {
	return func(t *Table) { t.resolver = r }
}

// WithLogger задает логгер
func WithLogger(log zerolog.Logger) Option {
	return func(t *Table) { t.log = log }
}

// New создает пустую таблицу
func New(opts ...Option) *Table {
	t := &Table{
		entries: make(map[entryKey]entry),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// normalize приводит название к нижнему регистру и схлопывает пробелы
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func keyFor(countryCode, in1, in2, in3 string) entryKey {
	return entryKey{
		countryCode: strings.ToUpper(strings.TrimSpace(countryCode)),
		in1:         normalize(in1),
		in2:         normalize(in2),
		in3:         normalize(in3),
	}
}

// Add добавляет соответствие. Повторное добавление того же входа заменяет его.
func (t *Table) Add(countryCode, in1, in2, in3, adm1, adm2, adm3 string, gid []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[keyFor(countryCode, in1, in2, in3)] = entry{
		adm1: strings.TrimSpace(adm1),
		adm2: strings.TrimSpace(adm2),
		adm3: strings.TrimSpace(adm3),
		gid:  append([]string(nil), gid...),
	}
}

// Len возвращает число соответствий
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Translate ищет вход в таблице, затем в справочнике. При неудаче и
// returnOriginalIfFailure возвращает исходные названия и gid [countryCode],
// иначе пустые названия и nil gid. Неудача никогда не является ошибкой.
func (t *Table) Translate(ctx context.Context, countryCode, in1, in2, in3 string, returnOriginalIfFailure bool) Translation {
	t.mu.RLock()
	e, ok := t.entries[keyFor(countryCode, in1, in2, in3)]
	t.mu.RUnlock()
	if ok {
		t.tableHits.Add(1)
		return Translation{
			Success:  true,
			AdmArea1: e.adm1,
			AdmArea2: e.adm2,
			AdmArea3: e.adm3,
			GID:      append([]string(nil), e.gid...),
		}
	}

	if t.resolver != nil {
		div, err := t.resolver.GetAdmDivision(ctx, countryCode,
			strings.TrimSpace(in1), strings.TrimSpace(in2), strings.TrimSpace(in3))
		switch {
		case err == nil && div != nil && len(div.GID) > 0:
			t.resolverHits.Add(1)
			return Translation{
				Success:  true,
				AdmArea1: div.AdmArea1,
				AdmArea2: div.AdmArea2,
				AdmArea3: div.AdmArea3,
				GID:      div.GID,
			}
		case err != nil && !errors.Is(err, adapters.ErrNotFound):
			t.log.Warn().Err(err).Str("countrycode", countryCode).Msg("division lookup failed")
		}
	}

	t.misses.Add(1)
	t.log.Debug().
		Str("countrycode", countryCode).
		Str("adm_area_1", in1).
		Str("adm_area_2", in2).
		Str("adm_area_3", in3).
		Msg("administrative area not translated")

	if !returnOriginalIfFailure {
		return Translation{}
	}
	return Translation{
		AdmArea1: strings.TrimSpace(in1),
		AdmArea2: strings.TrimSpace(in2),
		AdmArea3: strings.TrimSpace(in3),
		GID:      []string{countryCode},
	}
}

// Stats возвращает счетчики
func (t *Table) Stats() Stats {
	return Stats{
		TableHits:    t.tableHits.Load(),
		ResolverHits: t.resolverHits.Load(),
		Misses:       t.misses.Load(),
	}
}
