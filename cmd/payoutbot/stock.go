package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flor3z/payout-bot/internal/catalog"
	"github.com/flor3z/payout-bot/internal/config"
	"github.com/flor3z/payout-bot/internal/importer"
	"github.com/flor3z/payout-bot/internal/storage"
)

func newImportCmd(a *app) *cobra.Command {
	var guildID, service string

	cmd := &cobra.Command{
		Use:   "import --guild GUILD --service SERVICE FILE",
		Short: "Add accounts from an email:password file without going through Discord",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer ledger.Close()

			return importFile(cmd.Context(), cmd.OutOrStdout(), a.cfg, ledger, guildID, service, args[0])
		},
	}

	cmd.Flags().StringVar(&guildID, "guild", "", "Guild (server) ID")
	cmd.Flags().StringVar(&service, "service", "", "Service type (nfa, fa, xboxgp)")
	_ = cmd.MarkFlagRequired("guild")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func importFile(ctx context.Context, w io.Writer, cfg *config.Config, ledger storage.Ledger, guildID, service, path string) error {
	if _, ok := catalog.Default(cfg.GuideURL).Lookup(service); !ok {
		return fmt.Errorf("unknown service %q", service)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	batch, err := importer.ParseLimited(f, cfg.Import.MaxBytes)
	if err != nil {
		return err
	}
	if len(batch.Credentials) == 0 {
		return fmt.Errorf("no valid email:password lines in %s", path)
	}

	res, err := ledger.BulkAdd(ctx, guildID, service, batch.Credentials)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "lines=%d added=%d skipped=%d invalid=%d\n", batch.Lines, res.Succeeded, res.Skipped, batch.Invalid)
	return nil
}

func newStockCmd(a *app) *cobra.Command {
	var guildID string

	cmd := &cobra.Command{
		Use:   "stock --guild GUILD",
		Short: "Print the remaining stock per service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := openLedger(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer ledger.Close()

			return printStock(cmd.Context(), cmd.OutOrStdout(), ledger, guildID)
		},
	}

	cmd.Flags().StringVar(&guildID, "guild", "", "Guild (server) ID")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}

func printStock(ctx context.Context, w io.Writer, ledger storage.Ledger, guildID string) error {
	counts, err := ledger.Count(ctx, guildID)
	if err != nil {
		return err
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	slices.Sort(types)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tACCOUNTS")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%d\n", t, counts[t])
	}
	return tw.Flush()
}
