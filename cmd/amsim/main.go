// Command amsim runs scheduling scenarios against the host build of the
// ametal core and helps pick NVIC priority encodings.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ametal-go/ametal/internal/xlog"
)

var (
	verbose string

	rootCmd = &cobra.Command{
		Use:           "amsim",
		Short:         "Simulate ametal timers, deferred jobs and interrupt lines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&verbose, "verbose", "v", "", "log level: error, warn, info, debug or trace")
	rootCmd.AddCommand(runCmd, prioCmd)
}

func logger() *slog.Logger {
	if verbose == "" {
		return nil
	}
	var lvl slog.Level
	switch verbose {
	case "trace":
		lvl = xlog.LevelTrace
	default:
		if err := lvl.UnmarshalText([]byte(verbose)); err != nil {
			lvl = slog.LevelInfo
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: xlog.ReplaceLevel,
	}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("amsim", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
