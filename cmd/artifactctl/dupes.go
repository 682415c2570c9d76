package main

import (
	"fmt"
	"io"
	"strings"

	"media-worker/internal/dupes"
	"media-worker/internal/engine"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDupesCommand(ctx *commandContext) *cobra.Command {
	var (
		scope         string
		recursive     bool
		minSimilarity float64
		threshold     int
		page, size    int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Report clusters of visually similar videos",
		Long: `Cluster the indexed perceptual hashes under --scope. Only videos with a
phash artifact take part; run "generate --kinds phash" first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := dupes.Options{MinSimilarity: minSimilarity, Threshold: threshold}
			if err := opts.Validate(); err != nil {
				return err
			}
			return ctx.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				report, err := eng.Duplicates(cmd.Context(), scope, recursive, opts)
				if err != nil {
					return err
				}
				p := dupes.Paginate(report.Clusters, page, size)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), struct {
						dupes.Page
						Files int          `json:"files"`
						Pairs []dupes.Pair `json:"pairs"`
					}{p, report.Files, report.Pairs})
				}
				printClusters(cmd.OutOrStdout(), p, report.Files)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Library subdirectory to search")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "Include subdirectories of --scope")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0, "Minimum similarity in (0, 1]; default from DUPLICATE_MIN_SIMILARITY")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Maximum Hamming distance, used when --min-similarity is unset")
	cmd.Flags().IntVar(&page, "page", 1, "Cluster page")
	cmd.Flags().IntVar(&size, "size", 50, "Clusters per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func printClusters(w io.Writer, p dupes.Page, files int) {
	fmt.Fprintf(w, "%s fingerprinted files, %s clusters\n", humanize.Comma(int64(files)), humanize.Comma(int64(p.Total)))
	if len(p.Clusters) == 0 {
		return
	}
	rows := make([][]string, 0, len(p.Clusters))
	for i, c := range p.Clusters {
		rows = append(rows, []string{
			fmt.Sprintf("%d", (p.Page-1)*p.PageSize+i+1),
			fmt.Sprintf("%.1f%%", c.MinSimilarity*100),
			strings.Join(c.Members, "\n"),
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"#", "Similarity", "Members"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft},
	))
	if p.TotalPages > 1 {
		fmt.Fprintf(w, "page %d of %d\n", p.Page, p.TotalPages)
	}
}
