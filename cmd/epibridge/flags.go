package main

import (
	"flag"
	"os"
	"time"
)

// Flags holds all command-line flags
type Flags struct {
	// Commands
	List         *bool
	Status       *bool
	DLQ          *bool
	CreateConfig *string

	// Run options
	Config   *string
	Sources  *string // Comma-separated source codes, empty = all configured
	Interval *time.Duration

	// Wrapper overrides (take precedence over config and environment)
	Window  *int
	Staging *bool

	// Observability
	MetricsAddr *string
	LogFormat   *string
	LogLevel    *string

	// Misc
	Version *bool
	Help    *bool
}

// ParseFlags defines and parses all command-line flags
func ParseFlags() *Flags {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) *Flags {
	f := &Flags{}

	// Commands
	f.List = fs.Bool("list", false, "List registered sources and storage types")
	f.Status = fs.Bool("status", false, "Print the saved state of every source")
	f.DLQ = fs.Bool("dlq", false, "Print dead letter queue entries")
	f.CreateConfig = fs.String("create-config", "", "Write a sample configuration to the given path")

	// Run options
	f.Config = fs.String("config", "configs/epibridge.yaml", "Configuration file")
	f.Sources = fs.String("source", "", "Comma-separated sources to run (default: all configured)")
	f.Interval = fs.Duration("interval", 0, "Repeat the run with this interval (0 = run once)")

	// Wrapper overrides
	f.Window = fs.Int("window", -1, "Sliding window in days (-1 = from config)")
	f.Staging = fs.Bool("staging", false, "Write into staging_ tables and promote after comparison")

	// Observability
	f.MetricsAddr = fs.String("metrics-addr", "", "Serve /metrics, /healthz and /readyz on this address")
	f.LogFormat = fs.String("log-format", "console", "Log format: console or json")
	f.LogLevel = fs.String("log-level", "info", "Log level: debug, info, warn, error")

	// Misc
	f.Version = fs.Bool("version", false, "Show version")
	f.Help = fs.Bool("help", false, "Show help")

	fs.Parse(args)
	return f
}
