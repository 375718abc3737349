package main

import (
	"fmt"

	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/metadata"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known image models and their pricing",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rows := make([][]string, 0, len(metadata.ImageModels))
			for _, m := range metadata.ImageModels {
				id := m.ID
				if id == gemini.DefaultModel {
					id += " (default)"
				}
				rows = append(rows, []string{
					id,
					m.Label,
					fmt.Sprintf("$%.2f", m.InputPerMillion),
					fmt.Sprintf("$%.2f", m.OutputPerMillion),
					fmt.Sprint(m.TokensPerImage),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Model", "Name", "Input /1M", "Output /1M", "Tokens/Image"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}
