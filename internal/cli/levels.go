package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/progression/internal/scoring"
)

type levelRow struct {
	Level   int `json:"level"`
	TotalXP int `json:"total_xp"`
}

func newLevelsCommand(opts *RootOptions) *cobra.Command {
	var maxLevel int
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Print the cumulative XP needed for each level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxLevel < 1 {
				return fmt.Errorf("--max must be at least 1, got %d", maxLevel)
			}
			rows := make([]levelRow, 0, maxLevel)
			for level := 1; level <= maxLevel; level++ {
				rows = append(rows, levelRow{Level: level, TotalXP: scoring.XPForLevel(level)})
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-6s %s\n", "LEVEL", "TOTAL_XP")
			for _, row := range rows {
				fmt.Fprintf(out, "%-6d %d\n", row.Level, row.TotalXP)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxLevel, "max", 10, "highest level to print")
	return cmd
}
