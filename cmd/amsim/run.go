package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ametal-go/ametal/internal/sim"
)

var (
	runOpts = struct {
		json  bool
		trace bool
	}{}

	runCmd = &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print when every timer, interrupt and job ran",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := os.Open(args[0])
			if err != nil {
				return err
			}
			sc, err := sim.Load(fp)
			fp.Close()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runScenario(ctx, sc, cmd.OutOrStdout())
		},
	}
)

func init() {
	runCmd.Flags().BoolVar(&runOpts.json, "json", false, "write the report as JSON")
	runCmd.Flags().BoolVarP(&runOpts.trace, "trace", "t", false, "include every callback in the report")
}

func runScenario(ctx context.Context, sc sim.Scenario, w io.Writer) error {
	r, err := sim.Run(ctx, sc, sim.Options{Trace: runOpts.trace, Logger: logger()})
	if err != nil {
		return err
	}
	if runOpts.json {
		return r.WriteJSON(w)
	}
	return r.WriteText(w)
}
