package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Имена таблиц по умолчанию
const (
	TableGovernmentResponse     = "government_response"
	TableEpidemiology           = "epidemiology"
	TableMobility               = "mobility"
	TableAdministrativeDivision = "administrative_division"
)

// ErrInvalidRecord возвращается для записей, нарушающих инварианты модели
var ErrInvalidRecord = errors.New("invalid record")

// Entity - вид записи
type Entity string

const (
	EntityGovernmentResponse Entity = "government_response"
	EntityEpidemiology       Entity = "epidemiology"
	EntityMobility           Entity = "mobility"
)

// Entities перечисляет все виды записей в порядке создания таблиц
var Entities = []Entity{EntityGovernmentResponse, EntityEpidemiology, EntityMobility}

// DefaultTable возвращает имя production таблицы для вида записи
func (e Entity) DefaultTable() string {
	switch e {
	case EntityGovernmentResponse:
		return TableGovernmentResponse
	case EntityEpidemiology:
		return TableEpidemiology
	case EntityMobility:
		return TableMobility
	}
	return string(e)
}

// Location - адрес записи: страна и до трех уровней административного деления.
// Пустая строка в AdmArea означает "уровень отсутствует".
type Location struct {
	Country     string   `json:"country,omitempty"`
	CountryCode string   `json:"countrycode,omitempty"`
	AdmArea1    string   `json:"adm_area_1,omitempty"`
	AdmArea2    string   `json:"adm_area_2,omitempty"`
	AdmArea3    string   `json:"adm_area_3,omitempty"`
	GID         []string `json:"gid,omitempty"`
}

// Level возвращает глубину адреса: 0 для страны, 1-3 для подразделений
func (l Location) Level() int {
	switch {
	case l.AdmArea3 != "":
		return 3
	case l.AdmArea2 != "":
		return 2
	case l.AdmArea1 != "":
		return 1
	}
	return 0
}

// Validate проверяет иерархию адреса: уровень деления не задается без
// предыдущего, у страны есть gid
func (l Location) Validate() error {
	if l.CountryCode == "" && l.AdmArea1 == "" {
		return fmt.Errorf("%w: neither country nor administrative level set", ErrInvalidRecord)
	}
	if l.AdmArea2 != "" && l.AdmArea1 == "" {
		return fmt.Errorf("%w: adm_area_2 %q without adm_area_1", ErrInvalidRecord, l.AdmArea2)
	}
	if l.AdmArea3 != "" && l.AdmArea2 == "" {
		return fmt.Errorf("%w: adm_area_3 %q without adm_area_2", ErrInvalidRecord, l.AdmArea3)
	}
	if (l.Country != "" || l.CountryCode != "") && len(l.GID) == 0 {
		return fmt.Errorf("%w: gid is empty for %s", ErrInvalidRecord, l.CountryCode)
	}
	return nil
}

// Key - адрес строки в таблице. Upsert заменяет строку с тем же ключом.
type Key struct {
	Source      string
	Date        Date
	CountryCode string
	AdmArea1    string
	AdmArea2    string
	AdmArea3    string
}

func (k Key) String() string {
	return strings.Join([]string{k.Source, k.Date.String(), k.CountryCode, k.AdmArea1, k.AdmArea2, k.AdmArea3}, "|")
}

// Less упорядочивает ключи по полям: источник, дата, страна, уровни деления.
// Строка страны (пустые уровни) идет перед строками ее деления.
func (k Key) Less(o Key) bool {
	a := [...]string{k.Source, k.Date.String(), k.CountryCode, k.AdmArea1, k.AdmArea2, k.AdmArea3}
	b := [...]string{o.Source, o.Date.String(), o.CountryCode, o.AdmArea1, o.AdmArea2, o.AdmArea3}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func keyOf(source string, date Date, l Location) Key {
	return Key{
		Source:      source,
		Date:        date,
		CountryCode: l.CountryCode,
		AdmArea1:    l.AdmArea1,
		AdmArea2:    l.AdmArea2,
		AdmArea3:    l.AdmArea3,
	}
}

func validateHeader(source string, date Date, l Location) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidRecord)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidRecord)
	}
	return l.Validate()
}

func validateCounts(named map[string]Count) error {
	for name, c := range named {
		if c.Valid && c.Int64 < 0 {
			return fmt.Errorf("%w: %s is negative (%d)", ErrInvalidRecord, name, c.Int64)
		}
	}
	return nil
}

// Record - общий интерфейс канонических записей
type Record interface {
	Entity() Entity
	Key() Key
	Validate() error
}

// Epidemiology - эпидемиологические показатели на дату
type Epidemiology struct {
	Source string `json:"source"`
	Date   Date   `json:"date"`
	Location

	Tested          Count `json:"tested"`
	Confirmed       Count `json:"confirmed"`
	Recovered       Count `json:"recovered"`
	Dead            Count `json:"dead"`
	Hospitalised    Count `json:"hospitalised"`
	HospitalisedICU Count `json:"hospitalised_icu"`
	Quarantined     Count `json:"quarantined"`
}

func (r *Epidemiology) Entity() Entity { return EntityEpidemiology }

func (r *Epidemiology) Key() Key { return keyOf(r.Source, r.Date, r.Location) }

// Validate проверяет инварианты записи
func (r *Epidemiology) Validate() error {
	if err := validateHeader(r.Source, r.Date, r.Location); err != nil {
		return err
	}
	return validateCounts(map[string]Count{
		"tested":           r.Tested,
		"confirmed":        r.Confirmed,
		"recovered":        r.Recovered,
		"dead":             r.Dead,
		"hospitalised":     r.Hospitalised,
		"hospitalised_icu": r.HospitalisedICU,
		"quarantined":      r.Quarantined,
	})
}

// GovernmentResponse - индексы государственных мер и описание действий
type GovernmentResponse struct {
	Source string `json:"source"`
	Date   Date   `json:"date"`
	Location

	StringencyIndex         Measure `json:"stringency_index"`
	StringencyLegacyIndex   Measure `json:"stringency_legacy_index"`
	GovernmentResponseIndex Measure `json:"government_response_index"`
	ContainmentHealthIndex  Measure `json:"containment_health_index"`
	EconomicSupportIndex    Measure `json:"economic_support_index"`

	// Actions - JSON объект с описанием действующих мер
	Actions json.RawMessage `json:"actions,omitempty"`
}

func (r *GovernmentResponse) Entity() Entity { return EntityGovernmentResponse }

func (r *GovernmentResponse) Key() Key { return keyOf(r.Source, r.Date, r.Location) }

// Validate проверяет инварианты записи
func (r *GovernmentResponse) Validate() error {
	if err := validateHeader(r.Source, r.Date, r.Location); err != nil {
		return err
	}
	if len(r.Actions) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(r.Actions, &obj); err != nil {
			return fmt.Errorf("%w: actions is not a JSON object: %v", ErrInvalidRecord, err)
		}
	}
	return nil
}

// ActionsText возвращает actions для хранения в текстовой колонке
func (r *GovernmentResponse) ActionsText() any {
	if len(r.Actions) == 0 {
		return nil
	}
	return string(r.Actions)
}

// Mobility - изменение мобильности по категориям мест, в процентах к базовому уровню
type Mobility struct {
	Source string `json:"source"`
	Date   Date   `json:"date"`
	Location

	TransitStations  Measure `json:"transit_stations"`
	Residential      Measure `json:"residential"`
	Workplace        Measure `json:"workplace"`
	Parks            Measure `json:"parks"`
	RetailRecreation Measure `json:"retail_recreation"`
	GroceryPharmacy  Measure `json:"grocery_pharmacy"`
}

func (r *Mobility) Entity() Entity { return EntityMobility }

func (r *Mobility) Key() Key { return keyOf(r.Source, r.Date, r.Location) }

// Validate проверяет инварианты записи
func (r *Mobility) Validate() error {
	return validateHeader(r.Source, r.Date, r.Location)
}

// AdmDivision - строка справочника административного деления
type AdmDivision struct {
	CountryCode string   `json:"countrycode"`
	Country     string   `json:"country"`
	AdmArea1    string   `json:"adm_area_1,omitempty"`
	AdmArea2    string   `json:"adm_area_2,omitempty"`
	AdmArea3    string   `json:"adm_area_3,omitempty"`
	GID         []string `json:"gid"`
	Latitude    Measure  `json:"latitude"`
	Longitude   Measure  `json:"longitude"`
}

// EncodeGID сериализует gid в JSON массив для текстовой колонки
func EncodeGID(gid []string) string {
	if len(gid) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(gid)
	return string(data)
}

// DecodeGID разбирает gid из текстовой колонки
func DecodeGID(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var gid []string
	if err := json.Unmarshal([]byte(s), &gid); err != nil {
		return nil, fmt.Errorf("failed to decode gid %q: %w", s, err)
	}
	return gid, nil
}

var (
	_ Record = (*Epidemiology)(nil)
	_ Record = (*GovernmentResponse)(nil)
	_ Record = (*Mobility)(nil)
)
