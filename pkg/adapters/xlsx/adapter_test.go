package xlsx

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

func newTestAdapter(t *testing.T) (*Adapter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epi.xlsx")
	a := &Adapter{}
	if err := a.Connect(context.Background(), adapters.Config{Type: "xlsx", DSN: path}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return a, path
}

func tokyo(confirmed int64) *record.Epidemiology {
	return &record.Epidemiology{
		Source: "JPN_C1JACD",
		Date:   record.MustParseDate("2020-04-01"),
		Location: record.Location{
			Country:     "Japan",
			CountryCode: "JPN",
			AdmArea1:    "Tokyo",
			GID:         []string{"JPN.40_1"},
		},
		Confirmed: record.Known(confirmed),
	}
}

func TestConnect_RequiresXLSXPath(t *testing.T) {
	a := &Adapter{}
	if err := a.Connect(context.Background(), adapters.Config{DSN: ""}); err == nil {
		t.Error("expected error for empty dsn")
	}
	if err := a.Connect(context.Background(), adapters.Config{DSN: "out.csv"}); err == nil {
		t.Error("expected error for non-xlsx path")
	}
}

func TestFlush_WritesOneRowPerKey(t *testing.T) {
	ctx := context.Background()
	a, path := newTestAdapter(t)
	w := adapters.NewWrapper(a, adapters.WrapperConfig{})

	if !w.Capabilities().Flush {
		t.Fatal("xlsx must support flush")
	}

	for _, n := range []int64{10, 10, 12} {
		if _, err := w.UpsertEpidemiologyData(ctx, "", tokyo(n)); err != nil {
			t.Fatal(err)
		}
	}
	country := tokyo(20)
	country.AdmArea1 = ""
	country.GID = []string{"JPN"}
	if _, err := w.UpsertEpidemiologyData(ctx, "", country); err != nil {
		t.Fatal(err)
	}

	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	rows, err := ReadSheet(path, "epidemiology")
	if err != nil {
		t.Fatalf("ReadSheet failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	// Строки отсортированы по ключу: страна ('' в adm_area_1) первой
	if rows[0]["adm_area_1"] != "" || rows[0]["confirmed"] != "20" {
		t.Errorf("country row = %v", rows[0])
	}
	if rows[1]["adm_area_1"] != "Tokyo" || rows[1]["confirmed"] != "12" {
		t.Errorf("tokyo row = %v", rows[1])
	}
	if rows[1]["dead"] != "" {
		t.Errorf("unknown dead must be an empty cell, got %q", rows[1]["dead"])
	}
	if rows[1]["date"] != "2020-04-01" {
		t.Errorf("date = %q", rows[1]["date"])
	}
	if !strings.Contains(rows[1]["gid"], "JPN.40_1") {
		t.Errorf("gid = %q", rows[1]["gid"])
	}
}

func TestFlush_StagingSheet(t *testing.T) {
	ctx := context.Background()
	a, path := newTestAdapter(t)
	w := adapters.NewWrapper(a, adapters.WrapperConfig{Staging: true})

	mob := &record.Mobility{
		Source:   "GOOGLE_MOBILITY",
		Date:     record.MustParseDate("2020-04-01"),
		Location: record.Location{Country: "Japan", CountryCode: "JPN", GID: []string{"JPN"}},
		Parks:    record.KnownMeasure(-30.5),
	}
	if _, err := w.UpsertMobilityData(ctx, "", mob); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close must flush pending rows: %v", err)
	}

	rows, err := ReadSheet(path, "staging_mobility")
	if err != nil {
		t.Fatalf("ReadSheet failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["parks"] != "-30.5" {
		t.Errorf("rows = %v", rows)
	}
}

func TestUpsert_RejectsLongTableName(t *testing.T) {
	a, _ := newTestAdapter(t)
	err := a.UpsertEpidemiologyData(context.Background(), "epidemiology_with_a_very_long_name", tokyo(1))
	if err == nil {
		t.Error("expected error for sheet name over 31 characters")
	}
}

func TestParseHeader(t *testing.T) {
	if name, key := parseHeader("source *"); name != "source" || !key {
		t.Errorf("parseHeader key = %s, %v", name, key)
	}
	if name, key := parseHeader("confirmed"); name != "confirmed" || key {
		t.Errorf("parseHeader = %s, %v", name, key)
	}
}

func TestColumnName(t *testing.T) {
	tests := map[int]string{1: "A", 26: "Z", 27: "AA", 52: "AZ"}
	for in, want := range tests {
		if got := columnName(in); got != want {
			t.Errorf("columnName(%d) = %s, want %s", in, got, want)
		}
	}
}
