package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/siherrmann/vaultrag"
	"github.com/spf13/cobra"
)

var (
	configPath string
	ownerFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "vaultrag",
	Short: "Ingest and search a student vault",
	Long: `vaultrag chunks and embeds documents per owner and retrieves the
owner's most similar chunks as context for a study assistant.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "vaultrag.yaml", "path to the YAML config")
	rootCmd.PersistentFlags().StringVarP(&ownerFlag, "owner", "o", "", "owner id (uuid) of the documents")
}

// withVault loads the config, opens the vault and closes it after fn returns
func withVault(cmd *cobra.Command, fn func(ctx context.Context, cfg *Config, v *vaultrag.VaultRAG) error) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v, err := openVault(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open vault: %w", err)
	}
	defer v.Close()

	return fn(ctx, cfg, v)
}

func parseOwner() (uuid.UUID, error) {
	if ownerFlag == "" {
		return uuid.Nil, fmt.Errorf("--owner is required")
	}
	ownerID, err := uuid.Parse(ownerFlag)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid owner id %q: %w", ownerFlag, err)
	}
	return ownerID, nil
}
