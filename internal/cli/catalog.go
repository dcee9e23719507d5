package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type catalogSummary struct {
	Valid        bool     `json:"valid"`
	Exercises    int      `json:"exercises"`
	Achievements int      `json:"achievements"`
	Slugs        []string `json:"slugs"`
}

func newCatalogCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Validate the exercise and achievement catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := opts.loadCatalog()
			if err != nil {
				return err
			}

			exercises := cat.Exercises()
			if opts.Format == "json" {
				summary := catalogSummary{Valid: true, Exercises: len(exercises), Achievements: len(cat.Achievements())}
				for _, ex := range exercises {
					summary.Slugs = append(summary.Slugs, ex.Slug)
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLUG\tBASE_XP\tDIFFICULTY\tTIMED\tHARDER")
			for _, ex := range exercises {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n", ex.Slug, ex.BaseXP, ex.Difficulty, ex.IsTimed, ex.HarderVariant)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "catalog valid: %d exercises, %d achievements\n", len(exercises), len(cat.Achievements()))
			return err
		},
	}
}
