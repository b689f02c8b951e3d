package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newFlipCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "flip COUNT",
		Short: "Flip COUNT coins and report the number of heads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseCount(args[0])
			if err != nil {
				return err
			}
			d, err := a.dispatcher()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			run := d.Count
			switch mode {
			case "auto":
			case "cpu":
				run = d.CountCPU
			case "gpu":
				run = d.CountDevice
			default:
				return fmt.Errorf("unknown mode %q (want auto, cpu or gpu)", mode)
			}

			start := time.Now()
			heads, err := run(ctx, count)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flips:      %d\n", count)
			fmt.Fprintf(out, "heads:      %d\n", heads)
			if count > 0 {
				fmt.Fprintf(out, "ratio:      %.9f\n", float64(heads)/float64(count))
			}
			fmt.Fprintf(out, "elapsed:    %s\n", elapsed.Round(time.Microsecond))
			if s := elapsed.Seconds(); s > 0 {
				fmt.Fprintf(out, "throughput: %.3f Gflips/s\n", float64(count)/s/1e9)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "auto", "execution path: auto, cpu or gpu")
	return cmd
}
