package main

import (
	"fmt"
	"strings"

	"github.com/ruslano69/epibridge/pkg/adapters"
	"github.com/ruslano69/epibridge/pkg/fetchers"
)

const version = "1.0.0"

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("epibridge version %s\n", version)
	fmt.Println("Epidemiology source fetchers over a swappable storage backend")
}

// PrintHelp prints help information
func PrintHelp() {
	fmt.Println("epibridge - fetch epidemiology and mobility sources into storage")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Println("USAGE:")
	fmt.Println("  epibridge [options]")
	fmt.Println()

	fmt.Println("COMMANDS:")
	fmt.Println("    (default)                  Run configured sources once")
	fmt.Println("    --list                     List registered sources and storage types")
	fmt.Println("    --status                   Print saved source state")
	fmt.Println("    --dlq                      Print dead letter queue entries")
	fmt.Println("    --create-config <path>     Write a sample configuration")
	fmt.Println()

	fmt.Println("OPTIONS:")
	fmt.Println("    --config <file>            Configuration file (default: configs/epibridge.yaml)")
	fmt.Println("    --source <codes>           Comma-separated sources, e.g. JPN_C1JACD")
	fmt.Println("    --interval <duration>      Repeat runs, e.g. 6h")
	fmt.Println("    --window <days>            Sliding window override")
	fmt.Println("    --staging                  Validate input data through staging_ tables")
	fmt.Println("    --metrics-addr <addr>      Serve Prometheus metrics, e.g. :9090")
	fmt.Println("    --log-format <fmt>         console or json")
	fmt.Println("    --log-level <level>        debug, info, warn, error")
	fmt.Println()

	fmt.Println("ENVIRONMENT:")
	fmt.Println("    SLIDING_WINDOW_DAYS        Sliding window in days")
	fmt.Println("    VALIDATE_INPUT_DATA        true = staging mode")
	fmt.Println()

	PrintRegistry()
}

// PrintRegistry prints registered sources and storage types
func PrintRegistry() {
	fmt.Printf("SOURCES:  %s\n", strings.Join(fetchers.Sources(), ", "))
	fmt.Printf("STORAGE:  %s\n", strings.Join(adapters.GetRegisteredTypes(), ", "))
}
