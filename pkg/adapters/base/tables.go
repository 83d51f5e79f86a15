package base

import (
	"github.com/ruslano69/epibridge/pkg/core/record"
)

// TableDef - схема таблицы одного вида записей
type TableDef struct {
	Columns []Column
	Key     []string
}

// ColumnNames возвращает имена колонок в порядке определения
func (t TableDef) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Колонки адреса записи, общие для трех видов
var headerColumns = []Column{
	{Name: "source", Kind: KindKey, Size: 64},
	{Name: "date", Kind: KindDate, NotNull: true},
	{Name: "country", Kind: KindText, Size: 128},
	{Name: "countrycode", Kind: KindKey, Size: 8},
	{Name: "adm_area_1", Kind: KindKey, Size: 191},
	{Name: "adm_area_2", Kind: KindKey, Size: 191},
	{Name: "adm_area_3", Kind: KindKey, Size: 191},
	{Name: "gid", Kind: KindText, Size: 1024},
}

var recordKey = []string{"source", "date", "countrycode", "adm_area_1", "adm_area_2", "adm_area_3"}

func withHeader(cols ...Column) []Column {
	out := make([]Column, 0, len(headerColumns)+len(cols))
	out = append(out, headerColumns...)
	return append(out, cols...)
}

// Tables - схемы таблиц по видам записей
var Tables = map[record.Entity]TableDef{
	record.EntityEpidemiology: {
		Columns: withHeader(
			Column{Name: "tested", Kind: KindCount},
			Column{Name: "confirmed", Kind: KindCount},
			Column{Name: "recovered", Kind: KindCount},
			Column{Name: "dead", Kind: KindCount},
			Column{Name: "hospitalised", Kind: KindCount},
			Column{Name: "hospitalised_icu", Kind: KindCount},
			Column{Name: "quarantined", Kind: KindCount},
		),
		Key: recordKey,
	},
	record.EntityGovernmentResponse: {
		Columns: withHeader(
			Column{Name: "stringency_index", Kind: KindMeasure},
			Column{Name: "stringency_legacy_index", Kind: KindMeasure},
			Column{Name: "government_response_index", Kind: KindMeasure},
			Column{Name: "containment_health_index", Kind: KindMeasure},
			Column{Name: "economic_support_index", Kind: KindMeasure},
			Column{Name: "actions", Kind: KindLongText},
		),
		Key: recordKey,
	},
	record.EntityMobility: {
		Columns: withHeader(
			Column{Name: "transit_stations", Kind: KindMeasure},
			Column{Name: "residential", Kind: KindMeasure},
			Column{Name: "workplace", Kind: KindMeasure},
			Column{Name: "parks", Kind: KindMeasure},
			Column{Name: "retail_recreation", Kind: KindMeasure},
			Column{Name: "grocery_pharmacy", Kind: KindMeasure},
		),
		Key: recordKey,
	},
}

// DivisionTable - схема справочника administrative_division
var DivisionTable = TableDef{
	Columns: []Column{
		{Name: "countrycode", Kind: KindKey, Size: 8},
		{Name: "country", Kind: KindText, Size: 128, NotNull: true},
		{Name: "adm_area_1", Kind: KindKey, Size: 191},
		{Name: "adm_area_2", Kind: KindKey, Size: 191},
		{Name: "adm_area_3", Kind: KindKey, Size: 191},
		{Name: "gid", Kind: KindText, Size: 1024, NotNull: true},
		{Name: "latitude", Kind: KindMeasure},
		{Name: "longitude", Kind: KindMeasure},
	},
	Key: []string{"countrycode", "adm_area_1", "adm_area_2", "adm_area_3"},
}

func count(c record.Count) any {
	if !c.Valid {
		return nil
	}
	return c.Int64
}

func measure(m record.Measure) any {
	if !m.Valid {
		return nil
	}
	return m.Float64
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func headerArgs(source string, date record.Date, l record.Location) []any {
	return []any{
		source,
		date.String(),
		nullString(l.Country),
		l.CountryCode,
		l.AdmArea1,
		l.AdmArea2,
		l.AdmArea3,
		record.EncodeGID(l.GID),
	}
}

// EpidemiologyArgs возвращает значения колонок в порядке Tables[EntityEpidemiology]
func EpidemiologyArgs(r *record.Epidemiology) []any {
	return append(headerArgs(r.Source, r.Date, r.Location),
		count(r.Tested),
		count(r.Confirmed),
		count(r.Recovered),
		count(r.Dead),
		count(r.Hospitalised),
		count(r.HospitalisedICU),
		count(r.Quarantined),
	)
}

// GovernmentResponseArgs возвращает значения колонок government_response
func GovernmentResponseArgs(r *record.GovernmentResponse) []any {
	return append(headerArgs(r.Source, r.Date, r.Location),
		measure(r.StringencyIndex),
		measure(r.StringencyLegacyIndex),
		measure(r.GovernmentResponseIndex),
		measure(r.ContainmentHealthIndex),
		measure(r.EconomicSupportIndex),
		r.ActionsText(),
	)
}

// MobilityArgs возвращает значения колонок mobility
func MobilityArgs(r *record.Mobility) []any {
	return append(headerArgs(r.Source, r.Date, r.Location),
		measure(r.TransitStations),
		measure(r.Residential),
		measure(r.Workplace),
		measure(r.Parks),
		measure(r.RetailRecreation),
		measure(r.GroceryPharmacy),
	)
}

// DivisionArgs возвращает значения колонок administrative_division
func DivisionArgs(d *record.AdmDivision) []any {
	return []any{
		d.CountryCode,
		d.Country,
		d.AdmArea1,
		d.AdmArea2,
		d.AdmArea3,
		record.EncodeGID(d.GID),
		measure(d.Latitude),
		measure(d.Longitude),
	}
}
