package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/adapters/memory"
	"github.com/ruslano69/epibridge/pkg/core/record"
	"github.com/ruslano69/epibridge/pkg/httpclient"
	"github.com/ruslano69/epibridge/pkg/resultlog"
)

const (
	jpnURL      = "http://jpn.test/data.json"
	mobilityURL = "http://mobility.test/Global_Mobility_Report.csv"
)

const jpnPayload = `[
  {
    "lastUpdate": "2020-04-01",
    "npatients": 10,
    "ndeaths": 1,
    "area": [
      {"name": "Tokyo", "name_jp": "東京都", "npatients": 5, "ndeaths": 0}
    ]
  }
]`

const mobilityPayload = "country_region_code,country_region,sub_region_1,sub_region_2,metro_area,iso_3166_2_code,census_fips_code,date," +
	"retail_and_recreation_percent_change_from_baseline,grocery_and_pharmacy_percent_change_from_baseline," +
	"parks_percent_change_from_baseline,transit_stations_percent_change_from_baseline," +
	"workplaces_percent_change_from_baseline,residential_percent_change_from_baseline\n" +
	"JP,Japan,,,,,,2020-04-01,-10,2,-30,-20,-5,7\n" +
	"JP,Japan,Tokyo,,,JP-13,,2020-04-01,-40,,,-50,-30,15\n"

// routeRetriever отдает payload по URL
type routeRetriever struct {
	bodies map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newRouteRetriever() *routeRetriever {
	return &routeRetriever{
		bodies: map[string]string{jpnURL: jpnPayload, mobilityURL: mobilityPayload},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (r *routeRetriever) Get(ctx context.Context, url string) ([]byte, error) {
	r.calls[url]++
	if err := r.errs[url]; err != nil {
		return nil, err
	}
	body, ok := r.bodies[url]
	if !ok {
		return nil, errors.New("unexpected url " + url)
	}
	return []byte(body), nil
}

type recordingPublisher struct {
	results []resultlog.RunResult
	closed  bool
}

func (p *recordingPublisher) Publish(ctx context.Context, result resultlog.RunResult) error {
	p.results = append(p.results, result)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func testConfig() *Config {
	cfg := &Config{
		Storage: adapters.Config{Type: "memory"},
		Sources: []SourceConfig{
			{Name: "JPN_C1JACD", URL: jpnURL},
			{Name: "GOOGLE_MOBILITY", URL: mobilityURL},
		},
		Translations: TranslationsConfig{File: filepath.Join("..", "..", "configs", "adm_translations.csv")},
	}
	cfg.SetDefaults()
	return cfg
}

type fixture struct {
	store     *memory.Adapter
	retriever *routeRetriever
	publisher *recordingPublisher
	runner    *Runner
}

func openRunner(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	fx := &fixture{
		store:     memory.New(),
		retriever: newRouteRetriever(),
		publisher: &recordingPublisher{},
	}
	now := time.Date(2020, 4, 5, 12, 0, 0, 0, time.UTC)
	fx.runner = NewRunner(cfg, zerolog.Nop(),
		WithStorage(fx.store),
		WithRetriever(fx.retriever),
		WithPublisher(fx.publisher),
		WithClock(func() time.Time { return now }),
	)
	if err := fx.runner.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { fx.runner.Close(context.Background()) })
	return fx
}

func TestRunner_RunAll(t *testing.T) {
	fx := openRunner(t, testConfig())

	results, err := fx.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Status != resultlog.StatusSuccess || r.Backend != "memory" {
			t.Errorf("%s: status=%s backend=%s", r.Source, r.Status, r.Backend)
		}
		if r.RecordsWritten != 2 {
			t.Errorf("%s: written = %d, want 2", r.Source, r.RecordsWritten)
		}
		if r.Untranslated != 0 {
			t.Errorf("%s: untranslated = %d", r.Source, r.Untranslated)
		}
	}

	rows := fx.store.Rows(record.TableEpidemiology)
	if len(rows) != 2 {
		t.Fatalf("epidemiology rows = %d, want 2", len(rows))
	}
	tokyo := rows[1].(*record.Epidemiology)
	if tokyo.AdmArea1 != "Tokyo" || len(tokyo.GID) != 1 || tokyo.GID[0] != "JPN.41_1" {
		t.Errorf("tokyo row = %+v", tokyo.Location)
	}
	if n := fx.store.Len(record.TableMobility); n != 2 {
		t.Errorf("mobility rows = %d, want 2", n)
	}

	if len(fx.publisher.results) != 2 {
		t.Errorf("published = %d, want 2", len(fx.publisher.results))
	}
	for _, source := range []string{"JPN_C1JACD", "GOOGLE_MOBILITY"} {
		st := fx.runner.State().Get(source)
		if st.Fingerprint == "" || st.RecordsWritten != 2 || st.LastError != "" {
			t.Errorf("%s state = %+v", source, st)
		}
	}
	if fx.store.Stats().Flushes != 1 {
		t.Errorf("flushes = %d, want 1", fx.store.Stats().Flushes)
	}
}

func TestRunner_SelectedSource(t *testing.T) {
	fx := openRunner(t, testConfig())

	results, err := fx.runner.Run(context.Background(), "GOOGLE_MOBILITY")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Source != "GOOGLE_MOBILITY" {
		t.Fatalf("results = %+v", results)
	}
	if fx.retriever.calls[jpnURL] != 0 {
		t.Error("JPN_C1JACD must not be fetched")
	}

	if _, err := fx.runner.Run(context.Background(), "ATLANTIS"); err == nil || !strings.Contains(err.Error(), "unknown source") {
		t.Errorf("expected unknown source error, got %v", err)
	}
}

func TestRunner_StagingPromotes(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = cfg.Sources[:1]
	cfg.Wrapper.Staging = true
	fx := openRunner(t, cfg)

	results, err := fx.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !results[0].Sent || !results[0].Staging {
		t.Errorf("result = %+v, want sent from staging", results[0])
	}
	if n := fx.store.Len(record.TableEpidemiology); n != 2 {
		t.Errorf("production rows = %d, want 2", n)
	}
	if n := fx.store.Len(adapters.StagingPrefix + record.TableEpidemiology); n != 0 {
		t.Errorf("staging rows = %d, want 0", n)
	}
}

func TestRunner_StagingRejectsRegression(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = cfg.Sources[:1]
	cfg.Wrapper.Staging = true
	fx := openRunner(t, cfg)

	if _, err := fx.runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Накопленное число заболевших уменьшилось: сверка не проходит
	fx.retriever.bodies[jpnURL] = strings.Replace(jpnPayload, `"npatients": 10`, `"npatients": 8`, 1)
	results, err := fx.runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Sent {
		t.Error("regressed data must not be sent")
	}
	if results[0].Status != resultlog.StatusSuccess {
		t.Errorf("status = %s", results[0].Status)
	}

	country := fx.store.Rows(record.TableEpidemiology)[0].(*record.Epidemiology)
	if country.Confirmed != record.Known(10) {
		t.Errorf("production confirmed = %v, want 10", country.Confirmed)
	}
}

func TestRunner_SkipUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = cfg.Sources[:1]
	cfg.State = StateConfig{
		File:          filepath.Join(t.TempDir(), "state", "sources.json"),
		SkipUnchanged: true,
	}
	fx := openRunner(t, cfg)
	ctx := context.Background()

	if _, err := fx.runner.Run(ctx); err != nil {
		t.Fatal(err)
	}
	results, err := fx.runner.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != resultlog.StatusUnchanged {
		t.Errorf("status = %s, want unchanged", results[0].Status)
	}
	if n := fx.store.Stats().Inserted; n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}
	if _, err := os.Stat(cfg.State.File); err != nil {
		t.Errorf("state file not written: %v", err)
	}
}

func TestRunner_SourceErrorPolicy(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("fail", func(t *testing.T) {
		fx := openRunner(t, testConfig())
		fx.retriever.errs[jpnURL] = boom

		results, err := fx.runner.Run(context.Background())
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped error, got %v", err)
		}
		if len(results) != 1 || results[0].Status != resultlog.StatusFailed || results[0].Error == nil {
			t.Fatalf("results = %+v", results)
		}
		if fx.retriever.calls[mobilityURL] != 0 {
			t.Error("run must stop after the first failure")
		}
		if st := fx.runner.State().Get("JPN_C1JACD"); st.LastError == "" {
			t.Error("failure must be recorded in state")
		}
	})

	t.Run("continue", func(t *testing.T) {
		cfg := testConfig()
		cfg.ErrorHandling.OnSourceError = "continue"
		fx := openRunner(t, cfg)
		fx.retriever.errs[jpnURL] = boom

		results, err := fx.runner.Run(context.Background())
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped error, got %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		if results[1].Status != resultlog.StatusSuccess {
			t.Errorf("GOOGLE_MOBILITY status = %s", results[1].Status)
		}
		if len(fx.publisher.results) != 2 {
			t.Errorf("published = %d, want 2", len(fx.publisher.results))
		}
	})
}

func TestRunner_DivisionsFromStorage(t *testing.T) {
	dir := t.TempDir()
	divisions := filepath.Join(dir, "divisions.csv")
	csv := "countrycode,country,adm_area_1,adm_area_2,adm_area_3,gid,latitude,longitude\n" +
		"JPN,Japan,Okinawa,,,JPN.32_1,26.21,127.68\n"
	if err := os.WriteFile(divisions, []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Sources = cfg.Sources[:1]
	cfg.Translations = TranslationsConfig{DivisionsFile: divisions, UseStorage: true}
	fx := openRunner(t, cfg)
	fx.retriever.bodies[jpnURL] = strings.Replace(jpnPayload, `"name": "Tokyo"`, `"name": "Okinawa"`, 1)

	results, err := fx.runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Untranslated != 0 {
		t.Errorf("untranslated = %d, want 0", results[0].Untranslated)
	}

	okinawa := fx.store.Rows(record.TableEpidemiology)[1].(*record.Epidemiology)
	if okinawa.GID[0] != "JPN.32_1" {
		t.Errorf("gid = %v, want JPN.32_1", okinawa.GID)
	}
}

func TestRunner_NotOpen(t *testing.T) {
	r := NewRunner(testConfig(), zerolog.Nop())
	if _, err := r.Run(context.Background()); !errors.Is(err, errNotOpen) {
		t.Errorf("Run before Open: %v", err)
	}
	if err := r.Ping(context.Background()); !errors.Is(err, errNotOpen) {
		t.Errorf("Ping before Open: %v", err)
	}
}

func TestRunner_OpensConfiguredStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Translations = TranslationsConfig{}
	r := NewRunner(cfg, zerolog.Nop(), WithRetriever(newRouteRetriever()))

	ctx := context.Background()
	if err := r.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := r.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.Ping(ctx); err == nil {
		t.Error("Ping after Close must fail")
	}
}

func TestRunner_SourceBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(jpnPayload))
	}))
	defer srv.Close()

	run := func(sourceLimit int64) error {
		cfg := testConfig()
		cfg.HTTP.MaxBodySize = 16
		cfg.Sources = []SourceConfig{{Name: "JPN_C1JACD", URL: srv.URL, MaxBodySize: sourceLimit}}

		runner := NewRunner(cfg, zerolog.Nop(), WithStorage(memory.New()))
		if err := runner.Open(context.Background()); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer runner.Close(context.Background())
		_, err := runner.Run(context.Background())
		return err
	}

	if err := run(0); !errors.Is(err, httpclient.ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge with the global limit, got %v", err)
	}
	if err := run(1 << 20); err != nil {
		t.Fatalf("source limit not applied: %v", err)
	}
}

// closeTracker считает закрытия хранилища
type closeTracker struct {
	*memory.Adapter
	closes *int
}

func (c closeTracker) Close(ctx context.Context) error {
	*c.closes++
	return c.Adapter.Close(ctx)
}

func TestRunner_OpenFailureClosesStorage(t *testing.T) {
	var closes int
	adapters.Register("closetrack", func() adapters.Adapter {
		return closeTracker{Adapter: memory.New(), closes: &closes}
	})

	cfg := testConfig()
	cfg.Storage = adapters.Config{Type: "closetrack"}
	cfg.Translations = TranslationsConfig{File: filepath.Join(t.TempDir(), "missing.csv")}

	r := NewRunner(cfg, zerolog.Nop(), WithRetriever(newRouteRetriever()))
	ctx := context.Background()
	if err := r.Open(ctx); err == nil || !strings.Contains(err.Error(), "translations") {
		t.Fatalf("expected translations error, got %v", err)
	}
	if closes != 1 {
		t.Fatalf("storage closed %d times, want 1", closes)
	}
	if _, err := r.Run(ctx); !errors.Is(err, errNotOpen) {
		t.Errorf("Run after failed Open: %v", err)
	}

	// Повторный Close не закрывает хранилище второй раз
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closes != 1 {
		t.Errorf("storage closed %d times after second Close", closes)
	}
}
