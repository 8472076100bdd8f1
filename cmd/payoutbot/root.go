package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flor3z/payout-bot/internal/config"
	"github.com/flor3z/payout-bot/internal/logging"
	"github.com/flor3z/payout-bot/internal/storage"
	"github.com/flor3z/payout-bot/internal/storage/postgres"
	"github.com/flor3z/payout-bot/internal/storage/sqlite"
)

// Set with -ldflags "-X main.version=..."
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// app carries what PersistentPreRunE prepared for the subcommands
type app struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "payoutbot",
		Short:         "Discord bot that dispenses accounts from a per-server stock",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.Setup(os.Stderr, cfg.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file to use (yaml, json or toml)")

	root.AddCommand(
		newRunCmd(a),
		newImportCmd(a),
		newStockCmd(a),
		newVersionCmd(),
	)
	return root
}

// openLedger opens the configured backend. Failure to open is fatal; there is
// no fallback store.
func openLedger(cfg *config.Config) (storage.Ledger, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg.Database.URL)
	case config.DriverPostgres:
		return postgres.New(cfg.Database.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of the application",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "version=%s commit=%s built=%s\n", version, commit, buildTime)
		},
	}
}
