// Package googlemobility - источник GOOGLE_MOBILITY, Google COVID-19 Community
// Mobility Reports (CSV).
package googlemobility

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ruslano69/epibridge/pkg/core/record"
	"github.com/ruslano69/epibridge/pkg/countries"
	"github.com/ruslano69/epibridge/pkg/fetchers"
)

const (
	// Source - код источника
	Source = "GOOGLE_MOBILITY"

	// DefaultURL - глобальный отчет
	DefaultURL = "https://www.gstatic.com/covid19/mobility/Global_Mobility_Report.csv"

	// MaxPayloadSize - глобальный отчет занимает почти 1 GiB
	MaxPayloadSize = 1 << 30
)

// Колонки отчета
const (
	colCountryCode = "country_region_code"
	colSubRegion1  = "sub_region_1"
	colSubRegion2  = "sub_region_2"
	colMetroArea   = "metro_area"
	colDate        = "date"

	colRetail    = "retail_and_recreation_percent_change_from_baseline"
	colGrocery   = "grocery_and_pharmacy_percent_change_from_baseline"
	colParks     = "parks_percent_change_from_baseline"
	colTransit   = "transit_stations_percent_change_from_baseline"
	colWorkplace = "workplaces_percent_change_from_baseline"
	colResident  = "residential_percent_change_from_baseline"
)

var requiredColumns = []string{colCountryCode, colSubRegion1, colSubRegion2, colDate}

func init() {
	fetchers.RegisterPayloadLimit(Source, MaxPayloadSize)
	fetchers.Register(Source, func(deps fetchers.Deps) (fetchers.Fetcher, error) {
		return New(deps, countries.Default())
	})
}

// Fetcher загружает отчет мобильности
type Fetcher struct {
	*fetchers.Base
	countries *countries.Table
}

var (
	_ fetchers.Fetcher  = (*Fetcher)(nil)
	_ fetchers.Reporter = (*Fetcher)(nil)
)

// New создает источник. countries переводит alpha-2 коды отчета в ISO-3.
func New(deps fetchers.Deps, table *countries.Table) (*Fetcher, error) {
	base, err := fetchers.NewBase(Source, fetchers.NewSentinels(), deps)
	if err != nil {
		return nil, err
	}
	if table == nil {
		table = countries.Default()
	}
	return &Fetcher{Base: base, countries: table}, nil
}

// Run загружает отчет и пишет записи mobility. Отчет читается в два прохода:
// сначала строки уровня страны, затем строки регионов, так что запись страны
// за дату всегда предшествует записям ее регионов.
// Строки агломераций (metro_area) пропускаются, строки с некорректным
// адресом пропускаются с предупреждением.
func (f *Fetcher) Run(ctx context.Context) error {
	f.Reset()

	payload, err := f.Retrieve(ctx, f.URL(DefaultURL), "csv")
	if err != nil {
		return err
	}

	unknown := make(map[string]bool)
	for _, countryLevel := range []bool{true, false} {
		err := eachRow(payload, func(line int, row map[string]any) error {
			sub1, sub2 := text(row, colSubRegion1), text(row, colSubRegion2)
			if text(row, colMetroArea) != "" || (sub1 == "" && sub2 == "") != countryLevel {
				return nil
			}
			if countryLevel {
				f.CountEntry()
			}

			date, err := rowDate(row)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}

			alpha2 := text(row, colCountryCode)
			c, err := f.countries.Lookup(alpha2)
			if err != nil {
				if !unknown[alpha2] {
					unknown[alpha2] = true
					f.Log().Warn().Str("country_region_code", alpha2).Msg("unknown country, rows skipped")
				}
				return nil
			}

			loc := record.Location{
				Country:     c.Name,
				CountryCode: c.Alpha3,
				GID:         []string{c.Alpha3},
			}
			if !countryLevel {
				tr := f.TranslateArea(ctx, c.Alpha3, sub1, sub2, "")
				loc.AdmArea1, loc.AdmArea2, loc.AdmArea3, loc.GID = tr.AdmArea1, tr.AdmArea2, tr.AdmArea3, tr.GID
			}
			if !f.AcceptLocation(date, loc) {
				return nil
			}

			return f.UpsertMobility(ctx, f.mobility(row, date, loc))
		})
		if err != nil {
			return err
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

func (f *Fetcher) mobility(row map[string]any, date record.Date, loc record.Location) *record.Mobility {
	return &record.Mobility{
		Source:           Source,
		Date:             date,
		Location:         loc,
		TransitStations:  f.Measure(row, colTransit),
		Residential:      f.Measure(row, colResident),
		Workplace:        f.Measure(row, colWorkplace),
		Parks:            f.Measure(row, colParks),
		RetailRecreation: f.Measure(row, colRetail),
		GroceryPharmacy:  f.Measure(row, colGrocery),
	}
}

func text(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}

func rowDate(row map[string]any) (record.Date, error) {
	raw := text(row, colDate)
	if raw == "" {
		return record.Date{}, fetchers.ErrMissingDate
	}
	date, err := record.ParseDate(raw)
	if err != nil {
		return record.Date{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return date, nil
}

// eachRow разбирает CSV и вызывает fn для каждой строки с trimmed значениями
func eachRow(payload []byte, fn func(line int, row map[string]any) error) error {
	cr := csv.NewReader(bytes.NewReader(payload))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("failed to read %s header: %w", Source, err)
	}
	header = append([]string(nil), header...)
	present := make(map[string]bool, len(header))
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
		present[header[i]] = true
	}
	for _, col := range requiredColumns {
		if !present[col] {
			return fmt.Errorf("%s payload is missing column %q", Source, col)
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse %s payload: %w", Source, err)
		}

		row := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		if err := fn(line, row); err != nil {
			return err
		}
	}
}
