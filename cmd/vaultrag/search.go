package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag"
	"github.com/siherrmann/vaultrag/model"
	"github.com/spf13/cobra"
)

var (
	searchTopK      int
	searchThreshold float64
	searchDocuments []string
	searchJSON      bool
	searchPrompt    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the owner's documents",
	Long: `Embeds the query and returns the owner's most similar chunks,
ranked by cosine similarity. With --prompt the study assistant system
prompt with the numbered context block is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "maximum number of results (config default if 0)")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", 0, "minimum similarity, -1 keeps every result (config default if 0)")
	searchCmd.Flags().StringSliceVarP(&searchDocuments, "document", "d", nil, "restrict the search to these document ids")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchPrompt, "prompt", false, "print the assistant prompt with context")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ownerID, err := parseOwner()
	if err != nil {
		return err
	}

	return withVault(cmd, func(ctx context.Context, cfg *Config, v *vaultrag.VaultRAG) error {
		query := cfg.Query
		if searchTopK != 0 {
			query.TopK = searchTopK
		}
		if searchThreshold != 0 {
			query.SimilarityThreshold = searchThreshold
		}
		for _, d := range searchDocuments {
			rid, err := uuid.Parse(d)
			if err != nil {
				return fmt.Errorf("invalid document id %q: %w", d, err)
			}
			query.DocumentRIDs = append(query.DocumentRIDs, rid)
		}

		if searchPrompt {
			prompt, _, err := v.BuildPrompt(ctx, args[0], ownerID, &query)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			cmd.Println(prompt)
			return nil
		}

		results, err := v.Search(ctx, args[0], ownerID, &query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if searchJSON {
			return outputJSON(cmd, results)
		}
		return outputSearchTable(cmd, results)
	})
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []*model.RetrievalResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for _, r := range results {
		// Format: [N] document (score) then the chunk text
		cmd.Printf("  [%d] %s #%d (%.2f)\n", r.Rank, r.Chunk.DocumentRID, r.Chunk.ChunkIndex, r.Score)
		cmd.Printf("      %s\n", snippet(r.Chunk.Content, 160))
		cmd.Println()
	}
	return nil
}

func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
