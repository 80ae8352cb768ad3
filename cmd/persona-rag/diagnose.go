package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/ZanzyTHEbar/persona-rag/persona/generation"
	"github.com/spf13/cobra"
)

func newDiagnoseCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Show chunk counts per document and database capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := generation.NewStack(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			d, err := stack.Memory.Diagnostics(cmd.Context())
			if err != nil {
				return err
			}
			caps := stack.DB.GetCapabilities()

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(map[string]any{
					"diagnostics":  d,
					"capabilities": caps,
				})
			}

			if len(d.Sources) == 0 {
				fmt.Fprintln(out, "No documents indexed.")
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SOURCE\tCHUNKS")
				for _, s := range d.Sources {
					fmt.Fprintf(tw, "%s\t%d\n", s.Source, s.Chunks)
				}
				tw.Flush()
			}
			fmt.Fprintf(out, "\ntotal chunks: %d, dimension: %d, distance: %s\n", d.TotalChunks, d.Dimension, d.Distance)
			fmt.Fprintf(out, "vector: %t, cosine: %t, l2: %t, fts5: %t, json1: %t\n",
				caps.Vector, caps.CosineDistance, caps.L2Distance, caps.FTS5, caps.JSON1)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
