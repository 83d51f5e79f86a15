package admtranslator

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ruslano69/epibridge/pkg/core/record"
)

// Колонки CSV таблицы переводов
var translationColumns = []string{
	"countrycode",
	"input_adm_area_1", "input_adm_area_2", "input_adm_area_3",
	"adm_area_1", "adm_area_2", "adm_area_3",
	"gid",
}

// Колонки CSV справочника административного деления
var divisionColumns = []string{
	"countrycode", "country",
	"adm_area_1", "adm_area_2", "adm_area_3",
	"gid", "latitude", "longitude",
}

// GIDSeparator разделяет идентификаторы в колонке gid
const GIDSeparator = "|"

// DivisionWriter - хранилище справочника (adapters.DivisionStore)
type DivisionWriter interface {
	PutAdmDivision(ctx context.Context, div *record.AdmDivision) error
}

// csvRows читает CSV с заголовком и вызывает fn для каждой строки
// как map колонка -> значение. Обязательные колонки проверяются по заголовку.
func csvRows(r io.Reader, required []string, fn func(line int, row map[string]string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}

	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, col := range required {
		if !present[col] {
			return fmt.Errorf("missing column %q", col)
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		if err := fn(line, row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func splitGID(s string) []string {
	var gid []string
	for _, part := range strings.Split(s, GIDSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			gid = append(gid, p)
		}
	}
	return gid
}

// Load добавляет в таблицу соответствия из CSV
// (countrycode,input_adm_area_1..3,adm_area_1..3,gid)
func (t *Table) Load(r io.Reader) (int, error) {
	n := 0
	err := csvRows(r, translationColumns, func(line int, row map[string]string) error {
		if row["countrycode"] == "" {
			return errors.New("countrycode is empty")
		}
		gid := splitGID(row["gid"])
		if len(gid) == 0 {
			return errors.New("gid is empty")
		}
		if row["adm_area_2"] != "" && row["adm_area_1"] == "" {
			return errors.New("adm_area_2 is set without adm_area_1")
		}
		if row["adm_area_3"] != "" && row["adm_area_2"] == "" {
			return errors.New("adm_area_3 is set without adm_area_2")
		}
		t.Add(row["countrycode"],
			row["input_adm_area_1"], row["input_adm_area_2"], row["input_adm_area_3"],
			row["adm_area_1"], row["adm_area_2"], row["adm_area_3"],
			gid)
		n++
		return nil
	})
	return n, err
}

// LoadFile загружает таблицу из файла
func (t *Table) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open translations: %w", err)
	}
	defer f.Close()

	n, err := t.Load(f)
	if err != nil {
		return n, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return n, nil
}

func parseCoordinate(s string) (record.Measure, error) {
	if s == "" {
		return record.UnknownMeasure(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return record.UnknownMeasure(), fmt.Errorf("invalid coordinate %q", s)
	}
	return record.KnownMeasure(f), nil
}

// LoadDivisions записывает строки справочника из CSV в хранилище
func LoadDivisions(ctx context.Context, r io.Reader, w DivisionWriter) (int, error) {
	n := 0
	err := csvRows(r, divisionColumns[:6], func(line int, row map[string]string) error {
		lat, err := parseCoordinate(row["latitude"])
		if err != nil {
			return err
		}
		lon, err := parseCoordinate(row["longitude"])
		if err != nil {
			return err
		}

		div := &record.AdmDivision{
			CountryCode: row["countrycode"],
			Country:     row["country"],
			AdmArea1:    row["adm_area_1"],
			AdmArea2:    row["adm_area_2"],
			AdmArea3:    row["adm_area_3"],
			GID:         splitGID(row["gid"]),
			Latitude:    lat,
			Longitude:   lon,
		}
		if err := w.PutAdmDivision(ctx, div); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
