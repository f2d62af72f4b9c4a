package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"batchpurge/internal/config"
	"batchpurge/internal/db"
	"batchpurge/internal/logging"
	"batchpurge/internal/purge"
	"batchpurge/internal/worker"
)

var logger = logrus.StandardLogger().WithField("module", "main")

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "batchpurge",
	Short: "Purge old Spring Batch job history",
	Long: "Deletes Spring Batch execution history older than a retention window, " +
		"in chunked transactions and in dependency order, on a schedule or on demand.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load before reading configuration")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return err
	}

	var err error
	if cfg, err = config.Load(); err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	return cfg.Validate()
}

// newRunner assembles the Spring Batch pipeline around gdb. The run ledger
// hands out run ids and records every outcome; extra observers see the same
// events.
func newRunner(gdb *gorm.DB, extra ...purge.Observer) (*worker.Runner, *db.RunLedger, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	ledger := db.NewRunLedger(gdb)
	observers := append([]purge.Observer{ledger}, extra...)
	pipeline, err := purge.NewSpringBatchPipeline(gdb, cfg.PurgeOptions(),
		purge.WithLocation(loc),
		purge.WithRunIDs(ledger),
		purge.WithObserver(purge.Observers(observers...)),
	)
	if err != nil {
		return nil, nil, err
	}

	lock := db.NewRunLock(gdb, cfg.DatabaseEngine, "batchpurge:"+cfg.TablePrefix)
	return worker.NewRunner(pipeline, lock), ledger, nil
}

func exitCode(err error) int {
	var cfgErr *purge.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return 2
	case errors.Is(err, worker.ErrAlreadyRunning):
		return 3
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
