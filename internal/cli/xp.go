package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/progression/internal/scoring"
)

type xpPreview struct {
	Exercise string `json:"exercise"`
	Timed    bool   `json:"timed"`
	Sets     []int  `json:"sets"`
	SetXP    []int  `json:"set_xp"`
	Total    int    `json:"total"`
}

func newXPCommand(opts *RootOptions) *cobra.Command {
	var (
		sets       []int
		streakDays int
		firstToday bool
	)
	cmd := &cobra.Command{
		Use:   "xp <exercise>",
		Short: "Preview the XP a list of sets would earn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.loadCatalog()
			if err != nil {
				return err
			}
			def, ok := cat.Exercise(args[0])
			if !ok {
				return fmt.Errorf("unknown exercise %q", args[0])
			}
			if len(sets) == 0 {
				return fmt.Errorf("--sets is required")
			}

			preview := xpPreview{Exercise: def.Slug, Timed: def.IsTimed, Sets: sets}
			for _, magnitude := range sets {
				if magnitude < 0 {
					return fmt.Errorf("set magnitude must not be negative: %d", magnitude)
				}
				xp := scoring.SetXP(def.BaseXP, def.Difficulty, magnitude, def.IsTimed, streakDays, firstToday)
				preview.SetXP = append(preview.SetXP, xp)
				preview.Total += xp
			}

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), preview)
			}
			out := cmd.OutOrStdout()
			for i, xp := range preview.SetXP {
				fmt.Fprintf(out, "set %d (%d): %d xp\n", i+1, sets[i], xp)
			}
			_, err = fmt.Fprintf(out, "total: %d xp\n", preview.Total)
			return err
		},
	}
	cmd.Flags().IntSliceVar(&sets, "sets", nil, "set magnitudes, reps or seconds (e.g. 10,12,8)")
	cmd.Flags().IntVar(&streakDays, "streak", 0, "streak days before the workout")
	cmd.Flags().BoolVar(&firstToday, "first-today", false, "apply the first-workout-of-the-day bonus")
	return cmd
}
