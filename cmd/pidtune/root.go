package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/pidtune/internal/cli"
	"github.com/aretw0/pidtune/internal/config"
	"github.com/spf13/cobra"
)

// Execute builds the command tree, runs it and exits with the code matching the outcome.
func Execute() {
	err := execute(context.Background(), os.Args[1:])
	if err != nil && cli.ExitCode(err) != cli.ExitOK {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}

func execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)

	started := false
	root.PersistentPreRun = func(*cobra.Command, []string) { started = true }

	err := root.ExecuteContext(ctx)
	if err != nil && !started {
		// Cobra rejected the invocation before any command ran.
		var usage *cli.UsageError
		if !errors.As(err, &usage) {
			err = &cli.UsageError{Err: err}
		}
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pidtune",
		Short: "pidtune tunes the PID gains of a motion-controller axis",
		Long: `pidtune runs recorded trial moves on one closed-loop axis and shows how the axis
followed its set-point, so the operator can revise the P, I and D gains between trials.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &cli.UsageError{Err: err}
	})

	// Persistent flags (available to all commands)
	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "YAML configuration file")
	flags.Bool("debug", false, "Log every trial state transition")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("journal", "", "Trial journal backend (memory, redis)")
	flags.String("redis", "", "Redis address of the trial journal")
	flags.String("unit", "", "Display unit (nm, um, mm, m)")

	tune := newTuneCmd()
	root.AddCommand(tune, newJournalCmd(), newVersionCmd())

	// 'tune' is the default command.
	root.Flags().AddFlagSet(tune.Flags())
	root.RunE = tune.RunE
	return root
}

// loadConfig reads --config and applies the flags the operator set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return cfg, &cli.UsageError{Err: err}
	}
	return cfg, nil
}
