// Package cli implements progressionctl, the operator tool for inspecting
// catalogs and the scoring curve.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"example.com/progression/internal/catalog"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format     string // "text" | "json"
	CatalogDir string
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the progressionctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "progressionctl",
		Short:         "Inspect progression catalogs and scoring",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.CatalogDir, "catalog-dir", "", "catalog directory (default: embedded catalog)")

	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newLevelsCommand(opts))
	cmd.AddCommand(newXPCommand(opts))
	return cmd
}

func (o *RootOptions) loadCatalog() (*catalog.Catalog, error) {
	return catalog.Load(o.CatalogDir)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
