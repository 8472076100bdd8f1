package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flor3z/payout-bot/internal/bot"
	"github.com/flor3z/payout-bot/internal/config"
	"github.com/flor3z/payout-bot/internal/events"
	"github.com/flor3z/payout-bot/internal/httpapi"
	"github.com/flor3z/payout-bot/internal/logging"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve commands until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), a.cfg, a.logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireDiscord(); err != nil {
		return err
	}

	logging.BridgeDiscordgo(ctx, os.Stderr, cfg.Discord.LogLevel)

	logger.Info("Starting payout bot", "version", version, "driver", cfg.Database.Driver)

	ledger, err := openLedger(cfg)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger", logging.Err(err))
		}
	}()

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	b, err := bot.New(cfg, ledger, publisher, logger)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		_ = b.Stop()
		return fmt.Errorf("failed to start bot: %w", err)
	}

	logger.Info("Bot is running. Press Ctrl+C to stop.")

	g, gctx := errgroup.WithContext(ctx)

	var srv *httpapi.Server
	if cfg.HTTP.Addr != "" {
		srv = httpapi.NewServer(cfg.HTTP.Addr, cfg.HTTP.ReadTimeout, ledger, httpapi.Options{
			Token:             cfg.HTTP.Token,
			TransactionsLimit: config.DefaultTransactionsLimit,
			Logger:            logger,
		})
		g.Go(func() error { return srv.Serve(gctx) })
	}

	// Shut down in reverse start order once interrupted or a component fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if srv != nil {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		errs = append(errs, b.Stop())
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Bot stopped")
	return nil
}

// openPublisher connects to NATS when configured and falls back to a no-op
// publisher otherwise
func openPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.NATS.URL == "" {
		return &events.NoopPublisher{}, nil
	}

	natsLogger := logging.Named(logger, "nats")
	p, err := events.NewNATSPublisher(cfg.NATS.URL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				natsLogger.Warn("Disconnected from NATS", logging.Err(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			natsLogger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	natsLogger.Info("Publishing events to NATS", "url", cfg.NATS.URL)
	return p, nil
}
