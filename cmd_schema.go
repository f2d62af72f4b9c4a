package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"batchpurge/internal/db"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the Spring Batch history tables",
	Long: "Creates any missing Spring Batch history table under APP_TABLE_PREFIX, " +
		"along with the run ledger. Meant for development databases.",
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.EnsureBatchSchema(cmd.Context(), gdb, cfg.TablePrefix); err != nil {
		return err
	}
	logger.WithField("prefix", cfg.TablePrefix).Info("batch schema ready")
	return nil
}
