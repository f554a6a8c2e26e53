package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/pidtune"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pidtune",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pidtune version %s\n", strings.TrimSpace(pidtune.Version))
		},
	}
}
