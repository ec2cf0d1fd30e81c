package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ametal-go/ametal/internal/sim"
	"github.com/ametal-go/ametal/nvic"
)

var (
	prioOpts = struct {
		group   uint32
		bits    uint8
		preempt uint32
		sub     uint32
		core    string
	}{}

	prioCmd = &cobra.Command{
		Use:   "prio",
		Short: "Encode a preemption and sub priority pair for the NVIC",
		Long: "Encode a preemption and sub priority pair the way the interrupt multiplexer does " +
			"and show the value written to the priority register and AIRCR.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := sim.ParseCore(prioOpts.core)
			if err != nil {
				return err
			}
			if prioOpts.bits == 0 || prioOpts.bits > 8 || prioOpts.group > 7 {
				return fmt.Errorf("bits must be 1..8 and group 0..7")
			}
			return writePriority(cmd.OutOrStdout(), core, prioOpts.group, prioOpts.bits, prioOpts.preempt, prioOpts.sub)
		},
	}
)

func init() {
	prioCmd.Flags().Uint32VarP(&prioOpts.group, "group", "g", 0, "AIRCR.PRIGROUP value")
	prioCmd.Flags().Uint8VarP(&prioOpts.bits, "bits", "b", 3, "implemented priority bits")
	prioCmd.Flags().Uint32VarP(&prioOpts.preempt, "preempt", "p", 0, "preemption priority")
	prioCmd.Flags().Uint32VarP(&prioOpts.sub, "sub", "s", 0, "sub priority")
	prioCmd.Flags().StringVar(&prioOpts.core, "core", "m4", "core: m0, m0+, m3 or m4")
}

func writePriority(w io.Writer, core nvic.Core, group uint32, bits uint8, preempt, sub uint32) error {
	var ctrl nvic.SimController
	ctrl.Core = core
	ctrl.SetPriorityGrouping(group)
	prio := nvic.EncodePriority(group, bits, preempt, sub)
	reg := nvic.RegisterValue(prio, bits)
	ctrl.SetPriority(0, reg)
	gotPreempt, gotSub := nvic.DecodePriority(prio, group, bits)
	fmt.Fprintf(w, "core:      %s\n", core)
	fmt.Fprintf(w, "encoded:   %d (preempt %d, sub %d)\n", prio, gotPreempt, gotSub)
	fmt.Fprintf(w, "register:  %#02x\n", ctrl.Priority(0))
	if gotPreempt != preempt || gotSub != sub {
		fmt.Fprintf(w, "warning: requested preempt %d sub %d do not fit, fields were truncated\n", preempt, sub)
	}
	_, err := fmt.Fprintf(w, "aircr:     %#08x\n", ctrl.AIRCR)
	return err
}
