// epibridge fetches epidemiology and mobility sources and writes them
// through the storage wrapper.
//
// Usage:
//
//	epibridge [--config path] [--source JPN_C1JACD] [--interval 6h] [--metrics-addr :9090]
//
// Environment:
//
//	SLIDING_WINDOW_DAYS  sliding window in days
//	VALIDATE_INPUT_DATA  true = write into staging_ tables
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/ruslano69/epibridge/pkg/adapters/broker"
	_ "github.com/ruslano69/epibridge/pkg/adapters/memory"
	_ "github.com/ruslano69/epibridge/pkg/adapters/mssql"
	_ "github.com/ruslano69/epibridge/pkg/adapters/mysql"
	_ "github.com/ruslano69/epibridge/pkg/adapters/postgres"
	_ "github.com/ruslano69/epibridge/pkg/adapters/sqlite"
	_ "github.com/ruslano69/epibridge/pkg/adapters/xlsx"
	_ "github.com/ruslano69/epibridge/pkg/fetchers/googlemobility"
	_ "github.com/ruslano69/epibridge/pkg/fetchers/jpnc1jacd"
	"github.com/ruslano69/epibridge/pkg/metrics"
	"github.com/ruslano69/epibridge/pkg/pipeline"
	"github.com/ruslano69/epibridge/pkg/retry"
	"github.com/ruslano69/epibridge/pkg/state"
)

func main() {
	flags := ParseFlags()

	if *flags.Version {
		PrintVersion()
		return
	}
	if *flags.Help {
		PrintHelp()
		return
	}
	if *flags.List {
		PrintRegistry()
		return
	}
	if *flags.CreateConfig != "" {
		if err := createConfig(*flags.CreateConfig); err != nil {
			fatal("Failed to create config: %v", err)
		}
		fmt.Printf("✓ Created sample config: %s\n", *flags.CreateConfig)
		fmt.Printf("  epibridge --config %s\n", *flags.CreateConfig)
		return
	}

	log, err := newLogger(os.Stderr, *flags.LogFormat, *flags.LogLevel)
	if err != nil {
		fatal("%v", err)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Fatal().Err(err).Str("config", *flags.Config).Msg("config load failed")
	}

	if *flags.Status {
		if err := printStatus(os.Stdout, cfg.State.File); err != nil {
			log.Fatal().Err(err).Msg("failed to read state")
		}
		return
	}
	if *flags.DLQ {
		if err := printDLQ(os.Stdout, cfg.ErrorHandling.DLQ); err != nil {
			log.Fatal().Err(err).Msg("failed to read DLQ")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags, log); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// run opens the pipeline, optionally serves metrics and runs sources
// once or on every interval tick until ctx is cancelled
func run(ctx context.Context, cfg *pipeline.Config, flags *Flags, log zerolog.Logger) error {
	runner := pipeline.NewRunner(cfg, log)
	if err := runner.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	if addr := *flags.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metrics.NewRouter(log, runner.Ping),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", addr).Msg("metrics server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	sources := splitSources(*flags.Sources)
	interval := *flags.Interval
	if interval <= 0 {
		_, err := runner.Run(ctx, sources...)
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := runner.Run(ctx, sources...); err != nil {
			log.Error().Err(err).Dur("next_in", interval).Msg("run failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig(flags *Flags) (*pipeline.Config, error) {
	cfg, err := pipeline.LoadConfig(*flags.Config)
	if err != nil {
		return nil, err
	}
	if *flags.Window >= 0 {
		cfg.Wrapper.SlidingWindowDays = *flags.Window
	}
	if *flags.Staging {
		cfg.Wrapper.Staging = true
	}
	return cfg, nil
}

// newLogger builds the process logger
func newLogger(w io.Writer, format, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}

	switch format {
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (expected console or json)", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// createConfig writes the sample configuration, never overwriting a file
func createConfig(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(pipeline.Template); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printStatus prints the saved state of every source
func printStatus(w io.Writer, path string) error {
	if path == "" {
		return errors.New("state.file is not configured")
	}
	m, err := state.NewManager(path, false)
	if err != nil {
		return err
	}

	sources := m.Sources()
	if len(sources) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	for _, source := range sources {
		st := m.Get(source)
		fmt.Fprintf(w, "%-16s last run %s  last success %s  written=%d skipped=%d failed=%d\n",
			source, formatTime(st.LastRunTime), formatTime(st.LastSuccessTime),
			st.RecordsWritten, st.RecordsSkipped, st.RecordsFailed)
		if st.LastError != "" {
			fmt.Fprintf(w, "%-16s error: %s\n", "", st.LastError)
		}
	}
	return nil
}

// printDLQ prints a summary of the dead letter queue followed by its entries
func printDLQ(w io.Writer, cfg retry.DLQConfig) error {
	if cfg.FilePath == "" {
		return errors.New("error_handling.dlq.file is not configured")
	}
	dlq, err := retry.NewDLQ(cfg)
	if err != nil {
		return err
	}

	stats := dlq.GetStats()
	if stats.TotalEntries == 0 {
		fmt.Fprintln(w, "dead letter queue is empty")
		return nil
	}
	fmt.Fprintf(w, "%d entries, oldest %s, newest %s\n",
		stats.TotalEntries, formatTime(stats.OldestEntry), formatTime(stats.NewestEntry))
	for _, source := range sortedKeys(stats.Sources) {
		fmt.Fprintf(w, "  %-16s %d\n", source, stats.Sources[source])
	}
	for _, e := range dlq.Get() {
		fmt.Fprintf(w, "%s  %s  %s/%s  %s\n", e.ID, formatTime(e.Timestamp), e.Source, e.Table, e.LastError)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// splitSources parses the comma-separated --source value
func splitSources(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
