package googlemobility

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/adapters/memory"
	"github.com/ruslano69/epibridge/pkg/admtranslator"
	"github.com/ruslano69/epibridge/pkg/core/record"
	"github.com/ruslano69/epibridge/pkg/fetchers"
)

const header = "country_region_code,country_region,sub_region_1,sub_region_2,metro_area,iso_3166_2_code,census_fips_code,date," +
	"retail_and_recreation_percent_change_from_baseline,grocery_and_pharmacy_percent_change_from_baseline," +
	"parks_percent_change_from_baseline,transit_stations_percent_change_from_baseline," +
	"workplaces_percent_change_from_baseline,residential_percent_change_from_baseline\n"

type staticRetriever string

func (r staticRetriever) Get(ctx context.Context, url string) ([]byte, error) {
	return []byte(r), nil
}

type orderSink struct {
	keys []string
}

func (s *orderSink) CorrectTableName(name string) string { return name }

func (s *orderSink) UpsertEpidemiologyData(ctx context.Context, table string, rec *record.Epidemiology) (adapters.Outcome, error) {
	return adapters.OutcomeWritten, nil
}

func (s *orderSink) UpsertMobilityData(ctx context.Context, table string, rec *record.Mobility) (adapters.Outcome, error) {
	s.keys = append(s.keys, rec.CountryCode+"/"+rec.AdmArea1)
	return adapters.OutcomeWritten, nil
}

func TestRun_Mobility(t *testing.T) {
	payload := header +
		"JP,Japan,,,,,,2020-04-01,-10,2,-30.5,-20,-5,7\n" +
		"JP,Japan,Tokyo,,,JP-13,,2020-04-01,-40,,,-50,-30,15\n" +
		"JP,Japan,,,Tokyo Metropolitan Area,,,2020-04-01,-1,-1,-1,-1,-1,-1\n"

	tr := admtranslator.New()
	tr.Add("JPN", "Tokyo", "", "", "Tokyo", "", "", []string{"JPN.41_1"})

	store := memory.New()
	f, err := New(fetchers.Deps{
		Sink:       adapters.NewWrapper(store, adapters.WrapperConfig{}),
		Retriever:  staticRetriever(payload),
		Translator: tr,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rows := store.Rows(record.TableMobility)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (metro area skipped)", len(rows))
	}

	national := rows[0].(*record.Mobility)
	if national.Country != "Japan" || national.CountryCode != "JPN" || national.GID[0] != "JPN" {
		t.Errorf("unexpected national location: %+v", national.Location)
	}
	if !national.Parks.IsKnown() || national.Parks.Float64 != -30.5 {
		t.Errorf("parks = %v", national.Parks)
	}

	tokyo := rows[1].(*record.Mobility)
	if tokyo.AdmArea1 != "Tokyo" || tokyo.GID[0] != "JPN.41_1" {
		t.Errorf("unexpected Tokyo location: %+v", tokyo.Location)
	}
	if tokyo.GroceryPharmacy.IsKnown() || tokyo.Parks.IsKnown() {
		t.Error("empty cells must be unknown")
	}
	if tokyo.Residential.Float64 != 15 {
		t.Errorf("residential = %v", tokyo.Residential)
	}
}

func TestRun_CountryRowsFirst(t *testing.T) {
	// регион идет в отчете раньше строки страны
	payload := header +
		"JP,Japan,Osaka,,,,,2020-04-01,1,1,1,1,1,1\n" +
		"JP,Japan,,,,,,2020-04-01,1,1,1,1,1,1\n"

	sink := &orderSink{}
	f, err := New(fetchers.Deps{Sink: sink, Retriever: staticRetriever(payload)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if strings.Join(sink.keys, ",") != "JPN/,JPN/Osaka" {
		t.Errorf("order = %v", sink.keys)
	}
}

func TestRun_UnknownCountrySkipped(t *testing.T) {
	payload := header +
		"ZZ,Nowhere,,,,,,2020-04-01,1,1,1,1,1,1\n" +
		"JP,Japan,,,,,,2020-04-01,1,1,1,1,1,1\n"

	sink := &orderSink{}
	f, err := New(fetchers.Deps{Sink: sink, Retriever: staticRetriever(payload)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.keys) != 1 || sink.keys[0] != "JPN/" {
		t.Errorf("keys = %v", sink.keys)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := map[string]struct {
		payload string
		is      error
	}{
		"missing date":   {header + "JP,Japan,,,,,,,1,1,1,1,1,1\n", fetchers.ErrMissingDate},
		"missing column": {"country_region_code,date\nJP,2020-04-01\n", nil},
	}
	for name, tt := range tests {
		f, err := New(fetchers.Deps{Sink: &orderSink{}, Retriever: staticRetriever(tt.payload)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		err = f.Run(context.Background())
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if tt.is != nil && !errors.Is(err, tt.is) {
			t.Errorf("%s: expected %v, got %v", name, tt.is, err)
		}
	}
}

func TestRun_SubRegion2WithoutSubRegion1Skipped(t *testing.T) {
	payload := header +
		"JP,Japan,,,,,,2020-04-01,1,1,1,1,1,1\n" +
		"JP,Japan,,Chiyoda,,,,2020-04-01,2,2,2,2,2,2\n" +
		"JP,Japan,Tokyo,,,JP-13,,2020-04-01,3,3,3,3,3,3\n"

	store := memory.New()
	f, err := New(fetchers.Deps{
		Sink:      adapters.NewWrapper(store, adapters.WrapperConfig{}),
		Retriever: staticRetriever(payload),
		Policy:    fetchers.PolicyFail,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("row with invalid location must not abort the run: %v", err)
	}

	rows := store.Rows(record.TableMobility)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 (country and Tokyo)", len(rows))
	}
	for _, r := range rows {
		if m := r.(*record.Mobility); m.AdmArea2 != "" {
			t.Errorf("invalid row written: %+v", m.Location)
		}
	}

	stats := f.Stats()
	if stats.Rejected != 1 || stats.Failed != 0 || stats.Written != 2 {
		t.Errorf("stats = %+v, want 1 rejected, 2 written", stats)
	}
}
