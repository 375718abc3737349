package main

import (
	"fmt"

	"github.com/oukeidos/splitfill/internal/version"
	"github.com/spf13/cobra"
)

func newAboutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "about",
		Short: "Show a short description and the version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.Short())
			fmt.Fprintln(out, "Splits each image into two halves and expands every half to 16:9 with Gemini.")
			fmt.Fprintln(out, "Outputs are written as <name>_a.<ext> and <name>_b.<ext>.")
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}
