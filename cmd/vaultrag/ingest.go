package main

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/vaultrag"
	"github.com/siherrmann/vaultrag/model"
	"github.com/spf13/cobra"
)

var ingestCourse string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest files into the vault",
	Long: `Extracts text from each file (plain text, markdown, HTML, PDF, DOCX, XLSX),
chunks and embeds it and stores the chunks for the owner.
A failing file is reported and the remaining files are still ingested.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCourse, "course", "", "course stored in the document metadata")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ownerID, err := parseOwner()
	if err != nil {
		return err
	}

	return withVault(cmd, func(ctx context.Context, cfg *Config, v *vaultrag.VaultRAG) error {
		var metadata model.Metadata
		if ingestCourse != "" {
			metadata = model.Metadata{"course": ingestCourse}
		}

		failed := 0
		for _, path := range args {
			doc, report, err := v.IngestFile(ctx, path, ownerID, metadata)
			if err != nil {
				failed++
				cmd.PrintErrf("  %s: %v\n", path, err)
				continue
			}
			cmd.Printf("  %s -> %s (%s, %d/%d chunks, %s)\n",
				path, doc.RID, report.Status, report.ChunksSucceeded, report.ChunksTotal, report.Duration.Round(time.Millisecond))
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	})
}
