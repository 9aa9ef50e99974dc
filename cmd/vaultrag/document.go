package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag"
	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's documents",
	Long:  `Lists the owner's documents with their ingestion status.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var resetCmd = &cobra.Command{
	Use:   "reset [doc-id]",
	Short: "Mark a document stuck in processing as failed",
	Long: `Marks a document that stayed in processing, for example because the
ingesting process was killed, as failed so it can be ingested again.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output documents as JSON")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(resetCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ownerID, err := parseOwner()
	if err != nil {
		return err
	}

	return withVault(cmd, func(ctx context.Context, cfg *Config, v *vaultrag.VaultRAG) error {
		docs, err := v.ListDocuments(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("list failed: %w", err)
		}

		if listJSON {
			return outputJSON(cmd, docs)
		}
		if len(docs) == 0 {
			cmd.Println("No documents found.")
			return nil
		}
		for _, d := range docs {
			cmd.Printf("  %s  %-10s  %s\n", d.RID, d.Status, d.Title)
		}
		return nil
	})
}

func parseDocumentArgs(args []string) (uuid.UUID, uuid.UUID, error) {
	ownerID, err := parseOwner()
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	rid, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid document id %q: %w", args[0], err)
	}
	return ownerID, rid, nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ownerID, rid, err := parseDocumentArgs(args)
	if err != nil {
		return err
	}

	return withVault(cmd, func(ctx context.Context, cfg *Config, v *vaultrag.VaultRAG) error {
		err := v.DeleteDocument(ctx, ownerID, rid)
		if err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		cmd.Printf("Deleted %s\n", rid)
		return nil
	})
}

func runReset(cmd *cobra.Command, args []string) error {
	ownerID, rid, err := parseDocumentArgs(args)
	if err != nil {
		return err
	}

	return withVault(cmd, func(ctx context.Context, cfg *Config, v *vaultrag.VaultRAG) error {
		doc, err := v.ResetDocument(ctx, ownerID, rid)
		if err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		cmd.Printf("Reset %s to %s\n", doc.RID, doc.Status)
		return nil
	})
}
