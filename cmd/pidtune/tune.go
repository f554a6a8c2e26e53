package main

import (
	"github.com/aretw0/pidtune"
	"github.com/aretw0/pidtune/internal/cli"
	"github.com/spf13/cobra"
)

func newTuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Run the interactive trial loop",
		Long: `Opens the controller, pins the motion profile and waits for operator commands:
Enter runs a trial, P/I/D edit a gain, M changes the move distance and Q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			debug, _ := cmd.Flags().GetBool("debug")
			return cli.RunSession(cmd.Context(), cli.Options{
				Config:  cfg,
				Debug:   debug,
				Version: pidtune.Version,
				In:      cmd.InOrStdin(),
				Out:     cmd.OutOrStdout(),
			})
		},
	}

	f := cmd.Flags()
	f.String("driver", "", "Controller driver (sim, gcs)")
	f.String("address", "", "Serial device or tcp://host:port of the controller")
	f.Int("baud", 0, "Serial baud rate")
	f.Duration("timeout", 0, "Controller answer timeout")
	f.String("axis", "", "Axis identifier")
	f.Float64("unit-factor", 0, "Meters per native controller unit")
	f.Float64("distance", 0, "Initial move distance, in display units")
	f.Float64("max-travel", 0, "Refuse moves longer than this, in display units")
	f.Float64("confirm-above", 0, "Ask before moves longer than this, in display units")
	f.Duration("margin", 0, "Safety margin added to the recording window")
	f.Bool("json", false, "NDJSON input and output")
	f.Bool("samples", false, "Print every recorded sample")
	f.String("plot-dir", "", "Write a PNG plot of every trial into this directory")
	f.String("http", "", "Serve the latest trial and metrics on this address")
	f.Bool("lock", false, "Hold an exclusive lock on the controller")
	f.Bool("no-banner", false, "Do not print the banner")
	return cmd
}
