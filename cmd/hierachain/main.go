package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version information
const (
	Version = "0.2.0"
	Name    = "HieraChain-BlockSTM"
)

var cmdMain = &cobra.Command{
	Use:   "hierachain",
	Short: "Parallel block executor",
	Run:   printUsageAndExit1,
}

var flagMain struct {
	Config   string
	LogJSON  bool
	LogLevel string
}

func init() {
	cmdMain.PersistentFlags().StringVarP(&flagMain.Config, "config", "c", "", "Configuration file (yaml, toml or json)")
	cmdMain.PersistentFlags().BoolVar(&flagMain.LogJSON, "log-json", false, "Log JSON instead of console output")
	cmdMain.PersistentFlags().StringVar(&flagMain.LogLevel, "log-level", "info", "Log level")
}

func main() {
	if err := cmdMain.Execute(); err != nil {
		os.Exit(1)
	}
}

func printUsageAndExit1(cmd *cobra.Command, args []string) {
	_ = cmd.Usage()
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(flagMain.LogLevel)
	if err != nil {
		fatalf("invalid log level %q", flagMain.LogLevel)
	}

	var logger zerolog.Logger
	if flagMain.LogJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
