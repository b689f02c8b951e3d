package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
)

func newProfileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile COUNT",
		Short: "Flip COUNT coins on the CPU and report heads per bit position",
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

			p, err := d.Profile(ctx, count)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flips: %d  heads: %d\n", p.Bits, p.Heads)

			// Bits per position: every generated word contributes one bit to
			// each position, the final partial word only to the low ones.
			words := p.Bits / 64
			tail := p.Bits % 64
			worst := 0.0
			fmt.Fprintln(out, "bit  heads            z")
			for i, c := range p.Positions {
				n := words
				if uint64(i) < tail {
					n++
				}
				z := 0.0
				if n > 0 {
					z = (float64(c) - float64(n)/2) / (math.Sqrt(float64(n)) / 2)
				}
				worst = max(worst, math.Abs(z))
				fmt.Fprintf(out, "%3d  %-15d %+.2f\n", i, c, z)
			}
			fmt.Fprintf(out, "max |z|: %.2f\n", worst)
			return nil
		},
	}
}
