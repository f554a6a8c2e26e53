package main

import (
	"github.com/aretw0/pidtune/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// applyFlags overrides cfg with every flag set on the command line. File values win over
// defaults, flags win over both.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	var firstErr error
	flags := cmd.Flags()
	visit := func(name string, apply func(*pflag.FlagSet) error) {
		if firstErr != nil || flags.Lookup(name) == nil || !flags.Changed(name) {
			return
		}
		firstErr = apply(flags)
	}
	str := func(name string, dst *string) {
		visit(name, func(f *pflag.FlagSet) (err error) {
			*dst, err = f.GetString(name)
			return err
		})
	}
	num := func(name string, dst *float64) {
		visit(name, func(f *pflag.FlagSet) (err error) {
			*dst, err = f.GetFloat64(name)
			return err
		})
	}
	boolean := func(name string, dst *bool) {
		visit(name, func(f *pflag.FlagSet) (err error) {
			*dst, err = f.GetBool(name)
			return err
		})
	}

	str("log-level", &cfg.Log.Level)
	str("journal", &cfg.Journal.Backend)
	str("redis", &cfg.Journal.Address)
	str("unit", &cfg.Display.Unit)

	str("driver", &cfg.Controller.Driver)
	str("address", &cfg.Controller.Address)
	visit("baud", func(f *pflag.FlagSet) (err error) {
		cfg.Controller.Baud, err = f.GetInt("baud")
		return err
	})
	visit("timeout", func(f *pflag.FlagSet) (err error) {
		cfg.Controller.Timeout, err = f.GetDuration("timeout")
		return err
	})
	str("axis", &cfg.Axis.ID)
	num("unit-factor", &cfg.Axis.UnitFactor)
	num("distance", &cfg.Display.Distance)
	num("max-travel", &cfg.Display.MaxTravel)
	num("confirm-above", &cfg.Display.ConfirmAbove)
	visit("margin", func(f *pflag.FlagSet) (err error) {
		cfg.Session.Margin, err = f.GetDuration("margin")
		return err
	})
	boolean("json", &cfg.Output.JSON)
	boolean("samples", &cfg.Output.Samples)
	str("plot-dir", &cfg.Output.PlotDir)
	str("http", &cfg.Output.HTTPAddr)
	boolean("lock", &cfg.Lock.Enabled)
	visit("no-banner", func(f *pflag.FlagSet) error {
		off, err := f.GetBool("no-banner")
		if off {
			cfg.Display.Banner = false
		}
		return err
	})
	return firstErr
}
