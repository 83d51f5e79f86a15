package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	ctx := context.Background()

	a := &Adapter{}
	if err := a.Connect(ctx, adapters.Config{Type: "sqlite", DSN: ":memory:"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { a.Close(ctx) })
	return a
}

func countRows(t *testing.T, a *Adapter, table string) int {
	t.Helper()
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}

func tokyo(confirmed, dead int64) *record.Epidemiology {
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
		Dead:      record.Known(dead),
	}
}

func TestAdapter_SchemaCreated(t *testing.T) {
	a := newTestAdapter(t)

	for _, table := range []string{
		"epidemiology", "staging_epidemiology",
		"mobility", "staging_mobility",
		"government_response", "staging_government_response",
		"administrative_division",
	} {
		var n int
		err := a.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}

func TestAdapter_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	for i := 0; i < 3; i++ {
		if err := a.UpsertEpidemiologyData(ctx, "epidemiology", tokyo(10, 1)); err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
	}
	if n := countRows(t, a, "epidemiology"); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}

	// Повтор с новыми значениями заменяет строку
	if err := a.UpsertEpidemiologyData(ctx, "epidemiology", tokyo(12, 2)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	var confirmed int64
	var tested *int64
	err := a.db.QueryRow(`SELECT confirmed, tested FROM epidemiology WHERE adm_area_1 = 'Tokyo'`).Scan(&confirmed, &tested)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if confirmed != 12 {
		t.Errorf("confirmed = %d, want 12", confirmed)
	}
	if tested != nil {
		t.Errorf("unknown tested must be NULL, got %d", *tested)
	}
}

func TestAdapter_CountryAndSubdivisionAreDistinct(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	country := tokyo(10, 0)
	country.AdmArea1 = ""
	country.GID = []string{"JPN"}

	if err := a.UpsertEpidemiologyData(ctx, "epidemiology", country); err != nil {
		t.Fatal(err)
	}
	if err := a.UpsertEpidemiologyData(ctx, "epidemiology", tokyo(5, 0)); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, a, "epidemiology"); n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}
}

func TestAdapter_RejectsInvalidRecord(t *testing.T) {
	a := newTestAdapter(t)

	bad := tokyo(1, 0)
	bad.Dead = record.Known(-5)
	err := a.UpsertEpidemiologyData(context.Background(), "epidemiology", bad)
	if !errors.Is(err, adapters.ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestAdapter_RejectsInvalidTableName(t *testing.T) {
	a := newTestAdapter(t)
	err := a.UpsertEpidemiologyData(context.Background(), "epi; DROP TABLE epidemiology", tokyo(1, 0))
	if err == nil {
		t.Fatal("expected error for invalid table name")
	}
}

func TestAdapter_CustomTableCreatedOnDemand(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	mob := &record.Mobility{
		Source:      "GOOGLE_MOBILITY",
		Date:        record.MustParseDate("2020-04-01"),
		Location:    record.Location{Country: "Japan", CountryCode: "JPN", GID: []string{"JPN"}},
		Residential: record.KnownMeasure(12.5),
		Parks:       record.KnownMeasure(-30),
	}
	if err := a.UpsertMobilityData(ctx, "mobility_archive", mob); err != nil {
		t.Fatalf("UpsertMobilityData failed: %v", err)
	}
	if n := countRows(t, a, "mobility_archive"); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestAdapter_GovernmentResponse(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	gov := &record.GovernmentResponse{
		Source:          "GOVTRACK",
		Date:            record.MustParseDate("2020-04-01"),
		Location:        record.Location{Country: "Japan", CountryCode: "JPN", GID: []string{"JPN"}},
		StringencyIndex: record.KnownMeasure(47.22),
		Actions:         []byte(`{"C1":"recommend closing"}`),
	}
	if err := a.UpsertGovernmentResponseData(ctx, "government_response", gov); err != nil {
		t.Fatalf("UpsertGovernmentResponseData failed: %v", err)
	}

	var actions string
	if err := a.db.QueryRow(`SELECT actions FROM government_response`).Scan(&actions); err != nil {
		t.Fatal(err)
	}
	if actions != `{"C1":"recommend closing"}` {
		t.Errorf("actions = %s", actions)
	}
}

func TestAdapter_AdmDivision(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	if _, err := a.GetAdmDivision(ctx, "JPN", "Tokyo", "", ""); !errors.Is(err, adapters.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	div := &record.AdmDivision{
		CountryCode: "JPN",
		Country:     "Japan",
		AdmArea1:    "Tokyo",
		GID:         []string{"JPN.40_1"},
		Latitude:    record.KnownMeasure(35.68),
	}
	if err := a.PutAdmDivision(ctx, div); err != nil {
		t.Fatalf("PutAdmDivision failed: %v", err)
	}

	got, err := a.GetAdmDivision(ctx, "JPN", "Tokyo", "", "")
	if err != nil {
		t.Fatalf("GetAdmDivision failed: %v", err)
	}
	if got.Country != "Japan" || len(got.GID) != 1 || got.GID[0] != "JPN.40_1" {
		t.Errorf("unexpected division: %+v", got)
	}
	if !got.Latitude.IsKnown() || got.Longitude.IsKnown() {
		t.Errorf("coordinates = %v, %v", got.Latitude, got.Longitude)
	}
}

func TestAdapter_StagingLifecycle(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	w := adapters.NewWrapper(a, adapters.WrapperConfig{Staging: true})

	// Пустой staging не проходит сверку
	ok, err := w.CallDBFunctionCompare(ctx, "JPN_C1JACD")
	if err != nil || ok {
		t.Fatalf("compare on empty staging = %v, %v", ok, err)
	}

	if _, err := w.UpsertEpidemiologyData(ctx, "", tokyo(10, 1)); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, a, "staging_epidemiology"); n != 1 {
		t.Fatalf("staging rows = %d, want 1", n)
	}

	ok, err = w.CallDBFunctionCompare(ctx, "JPN_C1JACD")
	if err != nil || !ok {
		t.Fatalf("compare = %v, %v; want true", ok, err)
	}

	if err := w.CallDBFunctionSendData(ctx, "JPN_C1JACD"); err != nil {
		t.Fatalf("send data failed: %v", err)
	}
	if n := countRows(t, a, "epidemiology"); n != 1 {
		t.Errorf("production rows = %d, want 1", n)
	}
	if n := countRows(t, a, "staging_epidemiology"); n != 0 {
		t.Errorf("staging rows after send = %d, want 0", n)
	}

	// Уменьшение накопленного значения не проходит сверку
	if _, err := w.UpsertEpidemiologyData(ctx, "", tokyo(8, 1)); err != nil {
		t.Fatal(err)
	}
	ok, err = w.CallDBFunctionCompare(ctx, "JPN_C1JACD")
	if err != nil || ok {
		t.Errorf("compare with regression = %v, %v; want false", ok, err)
	}

	if err := w.TruncateStaging(ctx); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	if n := countRows(t, a, "staging_epidemiology"); n != 0 {
		t.Errorf("staging rows after truncate = %d", n)
	}
}

func TestAdapter_SendDataOnlyMovesSource(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	w := adapters.NewWrapper(a, adapters.WrapperConfig{Staging: true})

	other := tokyo(3, 0)
	other.Source = "OTHER"
	for _, rec := range []*record.Epidemiology{tokyo(10, 1), other} {
		if _, err := w.UpsertEpidemiologyData(ctx, "", rec); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.CallDBFunctionSendData(ctx, "JPN_C1JACD"); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, a, "staging_epidemiology"); n != 1 {
		t.Errorf("staging rows = %d, want 1 (other source)", n)
	}
	if n := countRows(t, a, "epidemiology"); n != 1 {
		t.Errorf("production rows = %d, want 1", n)
	}
}
