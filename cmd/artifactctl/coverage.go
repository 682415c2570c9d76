package main

import (
	"fmt"
	"io"

	"media-worker/internal/coverage"
	"media-worker/internal/engine"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCoverageCommand(ctx *commandContext) *cobra.Command {
	var (
		base        string
		kinds       string
		showMissing bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Count present artifacts per kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseKindFlag(kinds)
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				missing, counts, err := eng.Coverage(cmd.Context(), base, selected)
				if err != nil {
					return err
				}
				if asJSON {
					out := struct {
						Counts  []coverage.Count    `json:"counts"`
						Missing map[string][]string `json:"missing,omitempty"`
					}{Counts: counts}
					if showMissing {
						out.Missing = missing
					}
					return writeJSON(cmd.OutOrStdout(), out)
				}
				printCoverage(cmd.OutOrStdout(), counts)
				if showMissing {
					for _, c := range counts {
						for _, rel := range missing[c.Kind] {
							fmt.Fprintf(cmd.OutOrStdout(), "missing %s: %s\n", c.Kind, rel)
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "Library subdirectory to scan")
	cmd.Flags().StringVarP(&kinds, "kinds", "k", "all", "Comma-separated artifact kinds, or \"all\"")
	cmd.Flags().BoolVar(&showMissing, "missing", false, "List the paths missing each kind")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func printCoverage(w io.Writer, counts []coverage.Count) {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		pct := "-"
		if c.Total > 0 {
			pct = fmt.Sprintf("%.1f%%", float64(c.Present)*100/float64(c.Total))
		}
		rows = append(rows, []string{
			c.Kind,
			humanize.Comma(int64(c.Present)),
			humanize.Comma(int64(c.Total - c.Present)),
			humanize.Comma(int64(c.Total)),
			pct,
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"Kind", "Present", "Missing", "Total", "Coverage"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
}
