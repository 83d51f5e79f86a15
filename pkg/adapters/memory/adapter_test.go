package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/core/record"
)

func tokyo(source string, confirmed int64) *record.Epidemiology {
	return &record.Epidemiology{
		Source: source,
		Date:   record.MustParseDate("2020-04-01"),
		Location: record.Location{
			Country:     "Japan",
			CountryCode: "JPN",
			AdmArea1:    "Tokyo",
			GID:         []string{"JPN.40_1"},
		},
		Confirmed: record.Known(confirmed),
		Dead:      record.Unknown(),
	}
}

func TestAdapter_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	a := New()

	for i := 0; i < 3; i++ {
		if err := a.UpsertEpidemiologyData(ctx, "epidemiology", tokyo("JPN_C1JACD", 10)); err != nil {
			t.Fatalf("upsert %d failed: %v", i, err)
		}
	}
	if n := a.Len("epidemiology"); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}

	if err := a.UpsertEpidemiologyData(ctx, "epidemiology", tokyo("JPN_C1JACD", 11)); err != nil {
		t.Fatal(err)
	}

	stats := a.Stats()
	if stats.Inserted != 1 || stats.Unchanged != 2 || stats.Updated != 1 {
		t.Errorf("stats = %+v", stats)
	}

	got, ok := a.Epidemiology("epidemiology", tokyo("JPN_C1JACD", 0).Key())
	if !ok || got.Confirmed.Int64 != 11 {
		t.Errorf("stored row = %+v", got)
	}
	if got.Dead.IsKnown() {
		t.Error("unknown dead must stay unknown")
	}
}

func TestAdapter_StoresCopy(t *testing.T) {
	ctx := context.Background()
	a := New()

	rec := tokyo("JPN_C1JACD", 10)
	if err := a.UpsertEpidemiologyData(ctx, "epidemiology", rec); err != nil {
		t.Fatal(err)
	}
	rec.Confirmed = record.Known(999)

	got, _ := a.Epidemiology("epidemiology", rec.Key())
	if got.Confirmed.Int64 != 10 {
		t.Errorf("caller mutation leaked into storage: %d", got.Confirmed.Int64)
	}
}

func TestAdapter_RejectsInvalidRecord(t *testing.T) {
	a := New()
	bad := tokyo("", 1)
	err := a.UpsertEpidemiologyData(context.Background(), "epidemiology", bad)
	if !errors.Is(err, adapters.ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestAdapter_CompareAndSend(t *testing.T) {
	ctx := context.Background()
	a := New()
	w := adapters.NewWrapper(a, adapters.WrapperConfig{Staging: true})

	if ok, _ := w.CallDBFunctionCompare(ctx, "JPN_C1JACD"); ok {
		t.Fatal("compare on empty staging must be false")
	}

	if _, err := w.UpsertEpidemiologyData(ctx, "", tokyo("JPN_C1JACD", 10)); err != nil {
		t.Fatal(err)
	}
	if _, err := w.UpsertEpidemiologyData(ctx, "", tokyo("OTHER", 3)); err != nil {
		t.Fatal(err)
	}

	ok, err := w.CallDBFunctionCompare(ctx, "JPN_C1JACD")
	if err != nil || !ok {
		t.Fatalf("compare = %v, %v", ok, err)
	}
	if err := w.CallDBFunctionSendData(ctx, "JPN_C1JACD"); err != nil {
		t.Fatal(err)
	}
	if a.Len("epidemiology") != 1 || a.Len("staging_epidemiology") != 1 {
		t.Errorf("tables after send: %v prod=%d staging=%d", a.Tables(), a.Len("epidemiology"), a.Len("staging_epidemiology"))
	}

	// Уменьшение confirmed
	if _, err := w.UpsertEpidemiologyData(ctx, "", tokyo("JPN_C1JACD", 9)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := w.CallDBFunctionCompare(ctx, "JPN_C1JACD"); ok {
		t.Error("regressed confirmed must fail compare")
	}

	if err := w.TruncateStaging(ctx); err != nil {
		t.Fatal(err)
	}
	if a.Len("staging_epidemiology") != 0 {
		t.Error("staging not truncated")
	}
	if a.Len("epidemiology") != 1 {
		t.Error("truncate must not touch production")
	}
}

func TestAdapter_CompareIgnoresUnknown(t *testing.T) {
	ctx := context.Background()
	a := New()

	prod := tokyo("JPN_C1JACD", 10)
	prod.Dead = record.Known(5)
	if err := a.UpsertEpidemiologyData(ctx, "epidemiology", prod); err != nil {
		t.Fatal(err)
	}
	// dead неизвестен в staging: это не уменьшение
	if err := a.UpsertEpidemiologyData(ctx, "staging_epidemiology", tokyo("JPN_C1JACD", 10)); err != nil {
		t.Fatal(err)
	}
	ok, err := a.CallDBFunctionCompare(ctx, "JPN_C1JACD")
	if err != nil || !ok {
		t.Errorf("compare = %v, %v; want true", ok, err)
	}
}

func TestAdapter_CompareSkipsForeignRows(t *testing.T) {
	ctx := context.Background()
	a := New()

	epi := tokyo("JPN_C1JACD", 5)
	mob := &record.Mobility{Source: epi.Source, Date: epi.Date, Location: epi.Location}

	// В staging только строка мобильности под именем таблицы эпидемиологии
	if err := a.UpsertMobilityData(ctx, "staging_epidemiology", mob); err != nil {
		t.Fatal(err)
	}
	if err := a.UpsertEpidemiologyData(ctx, "epidemiology", tokyo("JPN_C1JACD", 10)); err != nil {
		t.Fatal(err)
	}
	ok, err := a.CallDBFunctionCompare(ctx, "JPN_C1JACD")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if ok {
		t.Error("foreign rows alone must not pass comparison")
	}

	// Production строка другого типа не участвует в сверке
	b := New()
	if err := b.UpsertEpidemiologyData(ctx, "staging_epidemiology", epi); err != nil {
		t.Fatal(err)
	}
	if err := b.UpsertMobilityData(ctx, "epidemiology", mob); err != nil {
		t.Fatal(err)
	}
	ok, err = b.CallDBFunctionCompare(ctx, "JPN_C1JACD")
	if err != nil || !ok {
		t.Errorf("Compare = %v, %v, want true", ok, err)
	}
}

func TestAdapter_AdmDivision(t *testing.T) {
	ctx := context.Background()
	a := New()

	if _, err := a.GetAdmDivision(ctx, "JPN", "Tokyo", "", ""); !errors.Is(err, adapters.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := a.PutAdmDivision(ctx, &record.AdmDivision{}); !errors.Is(err, record.ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}

	div := &record.AdmDivision{CountryCode: "JPN", Country: "Japan", AdmArea1: "Tokyo", GID: []string{"JPN.40_1"}}
	if err := a.PutAdmDivision(ctx, div); err != nil {
		t.Fatal(err)
	}
	got, err := a.GetAdmDivision(ctx, "JPN", "Tokyo", "", "")
	if err != nil || got.GID[0] != "JPN.40_1" {
		t.Errorf("GetAdmDivision = %+v, %v", got, err)
	}
}

func TestAdapter_FactoryAndCapabilities(t *testing.T) {
	ctx := context.Background()
	adapter, err := adapters.New(ctx, adapters.Config{Type: "memory"})
	if err != nil {
		t.Fatalf("adapters.New failed: %v", err)
	}

	caps := adapters.NewWrapper(adapter, adapters.WrapperConfig{}).Capabilities()
	if !caps.Compare || !caps.SendData || !caps.TruncateStaging || !caps.Flush {
		t.Errorf("memory must support all capabilities, got %s", caps)
	}

	if err := adapter.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := adapter.Ping(ctx); err == nil {
		t.Error("Ping after Close must fail")
	}
	err = adapter.UpsertEpidemiologyData(ctx, "epidemiology", tokyo("JPN_C1JACD", 1))
	if err == nil {
		t.Error("upsert after Close must fail")
	}
}
