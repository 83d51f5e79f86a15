package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/ruslano69/epibridge/pkg/adapters/memory" // Register memory
	_ "github.com/ruslano69/epibridge/pkg/adapters/sqlite" // Register sqlite
	"github.com/ruslano69/epibridge/pkg/fetchers"
	_ "github.com/ruslano69/epibridge/pkg/fetchers/googlemobility" // Register GOOGLE_MOBILITY
	_ "github.com/ruslano69/epibridge/pkg/fetchers/jpnc1jacd"      // Register JPN_C1JACD
	"github.com/ruslano69/epibridge/pkg/httpclient"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

const minimalYAML = `
storage:
  type: memory
sources:
  - name: JPN_C1JACD
`

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "Valid minimal config",
			yaml: minimalYAML,
		},
		{
			name: "Valid full config",
			yaml: `
name: nightly
storage:
  type: memory
wrapper:
  sliding_window_days: 7
  staging: true
sources:
  - name: JPN_C1JACD
    url: http://127.0.0.1/data.json
  - name: GOOGLE_MOBILITY
http:
  timeout: 30s
  retry:
    enabled: true
    max_attempts: 3
    initial_delay: 1s
    max_delay: 10s
    backoff: exponential
error_handling:
  on_source_error: continue
  on_storage_error: skip
  dlq:
    enabled: true
    file: ./dlq.json
state:
  file: ./state.json
  skip_unchanged: true
archive:
  enabled: true
  type: local
  dir: ./archive
result_log:
  type: redis
  address: 127.0.0.1:6379
`,
		},
		{
			name:    "Missing storage type",
			yaml:    "sources:\n  - name: JPN_C1JACD\n",
			wantErr: true,
			errMsg:  "storage.type is required",
		},
		{
			name:    "Unknown storage type",
			yaml:    "storage:\n  type: oracle\nsources:\n  - name: JPN_C1JACD\n",
			wantErr: true,
			errMsg:  "not supported",
		},
		{
			name:    "No sources",
			yaml:    "storage:\n  type: memory\n",
			wantErr: true,
			errMsg:  "at least one source",
		},
		{
			name:    "Unknown source",
			yaml:    "storage:\n  type: memory\nsources:\n  - name: ATLANTIS\n",
			wantErr: true,
			errMsg:  "unknown source",
		},
		{
			name:    "Duplicate source",
			yaml:    "storage:\n  type: memory\nsources:\n  - name: JPN_C1JACD\n  - name: JPN_C1JACD\n",
			wantErr: true,
			errMsg:  "listed twice",
		},
		{
			name:    "Negative window",
			yaml:    minimalYAML + "wrapper:\n  sliding_window_days: -1\n",
			wantErr: true,
			errMsg:  "sliding_window_days",
		},
		{
			name:    "Invalid storage policy",
			yaml:    minimalYAML + "error_handling:\n  on_storage_error: ignore\n",
			wantErr: true,
			errMsg:  "storage error policy",
		},
		{
			name:    "Invalid source policy",
			yaml:    minimalYAML + "error_handling:\n  on_source_error: retry\n",
			wantErr: true,
			errMsg:  "on_source_error",
		},
		{
			name:    "DLQ without file",
			yaml:    minimalYAML + "error_handling:\n  dlq:\n    enabled: true\n",
			wantErr: true,
			errMsg:  "dlq.file",
		},
		{
			name:    "Invalid YAML",
			yaml:    "storage: [",
			wantErr: true,
			errMsg:  "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml), noEnv)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(minimalYAML), noEnv)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Name != "epibridge" {
		t.Errorf("Name = %s", cfg.Name)
	}
	if cfg.ErrorHandling.OnSourceError != "fail" {
		t.Errorf("OnSourceError = %s", cfg.ErrorHandling.OnSourceError)
	}
	if cfg.ErrorHandling.OnStorageError != fetchers.PolicyFail {
		t.Errorf("OnStorageError = %s", cfg.ErrorHandling.OnStorageError)
	}
	if cfg.Wrapper.SlidingWindowDays != 0 || cfg.Wrapper.Staging {
		t.Errorf("wrapper defaults = %+v", cfg.Wrapper)
	}
	if cfg.ResultLog.Enabled() {
		t.Error("result log must be disabled by default")
	}
}

func TestParseConfig_Env(t *testing.T) {
	yaml := minimalYAML + "wrapper:\n  sliding_window_days: 3\n"

	cfg, err := ParseConfig([]byte(yaml), envOf(map[string]string{
		EnvSlidingWindowDays: "14",
		EnvValidateInputData: "true",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wrapper.SlidingWindowDays != 14 {
		t.Errorf("SlidingWindowDays = %d, want 14", cfg.Wrapper.SlidingWindowDays)
	}
	if !cfg.Wrapper.Staging {
		t.Error("Staging must be enabled by VALIDATE_INPUT_DATA")
	}

	// Пустые переменные не переопределяют файл
	cfg, err = ParseConfig([]byte(yaml), envOf(map[string]string{EnvSlidingWindowDays: " "}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wrapper.SlidingWindowDays != 3 {
		t.Errorf("SlidingWindowDays = %d, want 3", cfg.Wrapper.SlidingWindowDays)
	}
}

func TestParseConfig_InvalidEnv(t *testing.T) {
	for key, value := range map[string]string{
		EnvSlidingWindowDays: "week",
		EnvValidateInputData: "maybe",
	} {
		_, err := ParseConfig([]byte(minimalYAML), envOf(map[string]string{key: value}))
		if err == nil || !strings.Contains(err.Error(), key) {
			t.Errorf("%s=%s: expected error naming the variable, got %v", key, value, err)
		}
	}

	// Отрицательное окно из окружения ловит Validate
	_, err := ParseConfig([]byte(minimalYAML), envOf(map[string]string{EnvSlidingWindowDays: "-2"}))
	if err == nil {
		t.Error("expected validation error for negative window")
	}
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "epibridge.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvSlidingWindowDays, "5")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Wrapper.SlidingWindowDays != 5 {
		t.Errorf("SlidingWindowDays = %d, want 5", cfg.Wrapper.SlidingWindowDays)
	}

	if _, err := LoadConfig(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTemplateIsValid(t *testing.T) {
	cfg, err := ParseConfig([]byte(Template), noEnv)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Errorf("template sources = %d", len(cfg.Sources))
	}
}

func TestConfig_MaxBodySize(t *testing.T) {
	const mobility = "GOOGLE_MOBILITY"

	cfg, err := ParseConfig([]byte(minimalYAML), noEnv)
	if err != nil {
		t.Fatal(err)
	}
	// Без настроек: общий предел для JPN, объявленный источником для mobility
	if got := cfg.MaxBodySize("JPN_C1JACD"); got != httpclient.DefaultMaxBodySize {
		t.Errorf("JPN_C1JACD limit = %d, want %d", got, httpclient.DefaultMaxBodySize)
	}
	if got := cfg.MaxBodySize(mobility); got != fetchers.PayloadLimit(mobility) || got < 1<<30 {
		t.Errorf("%s limit = %d, want the declared 1 GiB", mobility, got)
	}

	cfg, err = ParseConfig([]byte(`
storage:
  type: memory
http:
  max_body_size: 1000
sources:
  - name: JPN_C1JACD
  - name: GOOGLE_MOBILITY
    max_body_size: 5000
    timeout: 10m
`), noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.MaxBodySize("JPN_C1JACD"); got != 1000 {
		t.Errorf("JPN_C1JACD limit = %d, want 1000", got)
	}
	if got := cfg.MaxBodySize(mobility); got != 5000 {
		t.Errorf("%s limit = %d, want 5000", mobility, got)
	}
	if got := cfg.Source(mobility).Timeout; got != 10*time.Minute {
		t.Errorf("%s timeout = %v", mobility, got)
	}
}

func TestShippedConfig_MobilityLimit(t *testing.T) {
	for name, data := range map[string][]byte{
		"template": []byte(Template),
		"shipped":  mustRead(t, "../../configs/epibridge.yaml"),
	} {
		cfg, err := ParseConfig(data, noEnv)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got := cfg.MaxBodySize("GOOGLE_MOBILITY"); got < 1<<30 {
			t.Errorf("%s: GOOGLE_MOBILITY limit = %d, want >= 1 GiB", name, got)
		}
		if got := cfg.Source("GOOGLE_MOBILITY").Timeout; got < 10*time.Minute {
			t.Errorf("%s: GOOGLE_MOBILITY timeout = %v", name, got)
		}
	}
}

func TestParseConfig_NegativeSourceLimit(t *testing.T) {
	_, err := ParseConfig([]byte(`
storage:
  type: memory
sources:
  - name: JPN_C1JACD
    max_body_size: -1
`), noEnv)
	if err == nil || !strings.Contains(err.Error(), "max_body_size") {
		t.Errorf("expected max_body_size error, got %v", err)
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}
