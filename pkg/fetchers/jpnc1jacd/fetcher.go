// Package jpnc1jacd - источник JPN_C1JACD, COVID-19 Japan Anti-Coronavirus Dashboard
// (https://github.com/code4sabae/covid19).
//
// Payload - JSON массив записей по датам. Каждая запись содержит показатели
// по стране и вложенный массив area с показателями префектур.
package jpnc1jacd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ruslano69/epibridge/pkg/core/record"
	"github.com/ruslano69/epibridge/pkg/fetchers"
)

const (
	// Source - код источника
	Source = "JPN_C1JACD"

	// DefaultURL - адрес payload по умолчанию
	DefaultURL = "https://raw.githubusercontent.com/code4sabae/covid19/master/data/covid19japan-all.json"

	country     = "Japan"
	countryCode = "JPN"
)

// Поля payload
const (
	fieldDate                 = "lastUpdate"
	fieldArea                 = "area"
	fieldName                 = "name"
	fieldNameJP               = "name_jp"
	fieldPatients             = "npatients"
	fieldExits                = "nexits"
	fieldDeaths               = "ndeaths"
	fieldCurrentPatients      = "ncurrentpatients"
	fieldInspections          = "ninspections"
	fieldHeavyCurrentPatients = "nheavycurrentpatients"
)

// Токены "нет данных" в payload
var sentinels = fetchers.NewSentinels("不明", "-")

func init() {
	fetchers.Register(Source, func(deps fetchers.Deps) (fetchers.Fetcher, error) {
		return New(deps)
	})
}

// Fetcher загружает данные JPN_C1JACD
type Fetcher struct {
	*fetchers.Base
}

var (
	_ fetchers.Fetcher  = (*Fetcher)(nil)
	_ fetchers.Reporter = (*Fetcher)(nil)
)

// New создает источник
func New(deps fetchers.Deps) (*Fetcher, error) {
	base, err := fetchers.NewBase(Source, sentinels, deps)
	if err != nil {
		return nil, err
	}
	return &Fetcher{Base: base}, nil
}

// Run выполняет один полный проход по payload.
// Для каждой даты сначала пишется запись по Японии, затем записи префектур.
func (f *Fetcher) Run(ctx context.Context) error {
	f.Reset()

	payload, err := f.Retrieve(ctx, f.URL(DefaultURL), "json")
	if err != nil {
		return err
	}

	entries, err := decode(payload)
	if err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", Source, err)
	}

	for i, entry := range entries {
		f.CountEntry()

		date, err := entryDate(entry)
		if err != nil {
			return fmt.Errorf("%s entry %d: %w", Source, i, err)
		}

		national := f.epidemiology(entry, date, record.Location{
			Country:     country,
			CountryCode: countryCode,
			GID:         []string{countryCode},
		})
		if err := f.UpsertEpidemiology(ctx, national); err != nil {
			return err
		}

		for _, area := range entryAreas(entry) {
			name := areaName(area)
			if name == "" {
				f.Log().Warn().Str("date", date.String()).Msg("area without name skipped")
				continue
			}

			tr := f.TranslateArea(ctx, countryCode, name, "", "")
			rec := f.epidemiology(area, date, record.Location{
				Country:     country,
				CountryCode: countryCode,
				AdmArea1:    tr.AdmArea1,
				AdmArea2:    tr.AdmArea2,
				AdmArea3:    tr.AdmArea3,
				GID:         tr.GID,
			})
			if !f.AcceptLocation(date, rec.Location) {
				continue
			}
			if err := f.UpsertEpidemiology(ctx, rec); err != nil {
				return err
			}
		}
	}

	stats := f.Stats()
	f.Log().Info().
		Int64("entries", stats.Entries).
		Int64("written", stats.Written).
		Int64("skipped_window", stats.SkippedWindow).
		Int64("failed", stats.Failed).
		Int64("untranslated", stats.Untranslated).
		Int64("rejected", stats.Rejected).
		Msg("run finished")
	return nil
}

func (f *Fetcher) epidemiology(entry map[string]any, date record.Date, loc record.Location) *record.Epidemiology {
	return &record.Epidemiology{
		Source:          Source,
		Date:            date,
		Location:        loc,
		Tested:          f.Count(entry, fieldInspections),
		Confirmed:       f.Count(entry, fieldPatients),
		Recovered:       f.Count(entry, fieldExits),
		Dead:            f.Count(entry, fieldDeaths),
		Hospitalised:    f.Count(entry, fieldCurrentPatients),
		HospitalisedICU: f.Count(entry, fieldHeavyCurrentPatients),
	}
}

func decode(payload []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var entries []map[string]any
	if err := dec.Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func entryDate(entry map[string]any) (record.Date, error) {
	raw, _ := entry[fieldDate].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return record.Date{}, fetchers.ErrMissingDate
	}
	date, err := record.ParseDate(raw)
	if err != nil {
		return record.Date{}, fmt.Errorf("invalid %s %q: %w", fieldDate, raw, err)
	}
	return date, nil
}

func entryAreas(entry map[string]any) []map[string]any {
	list, _ := entry[fieldArea].([]any)
	areas := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if area, ok := item.(map[string]any); ok {
			areas = append(areas, area)
		}
	}
	return areas
}

func areaName(area map[string]any) string {
	for _, key := range []string{fieldName, fieldNameJP} {
		if name, ok := area[key].(string); ok && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	}
	return ""
}
