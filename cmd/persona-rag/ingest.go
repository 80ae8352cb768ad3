package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/generation"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
	"github.com/spf13/cobra"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		dataDir string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed the documents of the data directory",
		Long: `Scans the data directory for .pdf, .txt and .md files, splits them into
chunks and stores their embeddings. Documents that are already indexed are
skipped; run "reset" first to rebuild them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir != "" {
				a.cfg.Ingest.DataDir = dataDir
			}

			stack, err := generation.NewStack(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			report, err := stack.Memory.Ingester().IngestDir(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
			}
			printReport(cmd.OutOrStdout(), report)
			if report.Failed > 0 {
				return fmt.Errorf("%d document(s) failed to ingest", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override ingest.data_dir")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, r *service.IngestReport) {
	for _, f := range r.Files {
		switch {
		case f.Error != "":
			fmt.Fprintf(w, "FAIL  %s: %s\n", f.Source, f.Error)
		case f.Skipped:
			fmt.Fprintf(w, "SKIP  %s (already indexed)\n", f.Source)
		default:
			fmt.Fprintf(w, "OK    %s (%d chunks)\n", f.Source, f.Chunks)
		}
	}
	fmt.Fprintf(w, "\n%d ingested, %d skipped, %d failed, %d chunks in %s\n",
		r.Ingested, r.Skipped, r.Failed, r.Chunks, r.Duration.Round(time.Millisecond))
}
