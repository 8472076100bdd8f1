package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/payout-bot/internal/cooldown"
	"github.com/flor3z/payout-bot/internal/events"
	"github.com/flor3z/payout-bot/internal/logging"
	"github.com/flor3z/payout-bot/internal/storage"
)

// checkAccess runs the payout-role check and answers the interaction when it
// fails. It reports whether the handler may continue.
func (b *Bot) checkAccess(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate) bool {
	cfg, err := b.authorize(ctx, i.GuildID, i.Member)
	if err == nil {
		return true
	}
	if embed := denialEmbed(cfg, err); embed != nil {
		logger.Info("Access denied", "reason", err.Error())
		b.reply(ctx, logger, i, embed)
		return false
	}
	logger.Error("Failed to authorize", logging.Err(err))
	b.reply(ctx, logger, i, failureEmbed())
	return false
}

func (b *Bot) checkAdmin(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate) bool {
	if err := requireAdmin(i.Member); err != nil {
		logger.Info("Access denied", "reason", err.Error())
		b.reply(ctx, logger, i, denialEmbed(nil, err))
		return false
	}
	return true
}

// handleSetup handles the /setup command by presenting the role select. The
// optional log channel rides along in the select's custom id.
func (b *Bot) handleSetup(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, r setupRequest) {
	if !b.checkAdmin(ctx, logger, i) {
		return
	}
	b.reply(ctx, logger, i, setupPromptEmbed(r.LogChannelID), setupComponents(r.LogChannelID)...)
}

// handleRoleSelect persists the role and log channel chosen during /setup
func (b *Bot) handleRoleSelect(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, r roleSelectRequest) {
	if !b.checkAdmin(ctx, logger, i) {
		return
	}

	err := b.out.Respond(ctx, i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		logger.Error("Failed to defer update", logging.Err(err))
		return
	}

	if err := b.ledger.Configure(ctx, i.GuildID, r.RoleID, r.LogChannelID); err != nil {
		logger.Error("Failed to configure guild", logging.Err(err))
		b.editReply(ctx, logger, i, failureEmbed())
		return
	}

	cfg, err := b.ledger.GuildConfig(ctx, i.GuildID)
	if err != nil {
		logger.Warn("Failed to reload guild config", logging.Err(err))
		cfg = &storage.GuildConfig{GuildID: i.GuildID, PayoutRoleID: r.RoleID, LogChannelID: r.LogChannelID}
	}

	logger.Info("Guild configured", "role_id", cfg.PayoutRoleID, "log_channel_id", cfg.LogChannelID)
	b.editReply(ctx, logger, i, setupDoneEmbed(cfg))

	userID := i.Member.User.ID
	now := b.now()
	b.audit(ctx, logger, i.GuildID, auditConfiguredEmbed(userID, cfg, now))
	b.publish(ctx, logger, events.TopicGuildConfigured, events.GuildConfigured{
		GuildID:      i.GuildID,
		PayoutRoleID: cfg.PayoutRoleID,
		LogChannelID: cfg.LogChannelID,
		ConfiguredBy: userID,
		At:           now,
	})
}

// handleAddStock handles the /addstock-bulk command
func (b *Bot) handleAddStock(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, r addStockRequest) {
	if !b.checkAccess(ctx, logger, i) {
		return
	}
	if !b.deferReply(ctx, logger, i) {
		return
	}

	batch, err := b.fetcher.Fetch(ctx, r.URL, r.Filename)
	if err != nil {
		logger.Warn("Failed to fetch import file", "filename", r.Filename, logging.Err(err))
		b.editReply(ctx, logger, i, importRejectedEmbed(err))
		return
	}
	if len(batch.Credentials) == 0 {
		b.editReply(ctx, logger, i, importEmptyEmbed())
		return
	}

	res, err := b.ledger.BulkAdd(ctx, i.GuildID, string(r.Service.Type), batch.Credentials)
	if err != nil {
		logger.Error("Failed to add stock", "service", r.Service.Type, logging.Err(err))
		b.editReply(ctx, logger, i, failureEmbed())
		return
	}

	logger.Info("Stock added",
		"service", r.Service.Type,
		"lines", batch.Lines,
		"succeeded", res.Succeeded,
		"skipped", res.Skipped,
		"invalid", batch.Invalid,
	)
	b.editReply(ctx, logger, i, importResultEmbed(batch, res))

	userID := i.Member.User.ID
	now := b.now()
	b.audit(ctx, logger, i.GuildID, auditStockAddedEmbed(userID, r.Service, res, now))
	b.publish(ctx, logger, events.TopicStockAdded, events.StockAdded{
		GuildID:     i.GuildID,
		ServiceType: string(r.Service.Type),
		Succeeded:   res.Succeeded,
		Skipped:     res.Skipped,
		AddedBy:     userID,
		At:          now,
	})
}

// handleGen handles the /gen command: take one account and DM it
func (b *Bot) handleGen(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, r genRequest) {
	if !b.checkAccess(ctx, logger, i) {
		return
	}

	userID := i.Member.User.ID
	key := cooldown.Key(commandGen, userID)
	if left, ok := b.cooldowns.Reserve(key); !ok {
		b.reply(ctx, logger, i, cooldownEmbed(left))
		return
	}

	if !b.deferReply(ctx, logger, i) {
		b.cooldowns.Release(key)
		return
	}

	acct, err := b.ledger.TakeRandom(ctx, i.GuildID, string(r.Service.Type))
	switch {
	case errors.Is(err, storage.ErrOutOfStock):
		b.cooldowns.Release(key)
		b.editReply(ctx, logger, i, outOfStockEmbed(r.Service))
		return
	case err != nil:
		b.cooldowns.Release(key)
		logger.Error("Failed to take account", "service", r.Service.Type, logging.Err(err))
		b.editReply(ctx, logger, i, failureEmbed())
		return
	}

	// From here on the account is consumed whatever happens.
	if err := b.ledger.RecordTransaction(ctx, i.GuildID, userID, acct.ServiceType, acct.Email); err != nil {
		logger.Error("Failed to record transaction", "account_id", acct.ID, logging.Err(err))
	}

	now := b.now()
	delivered := true
	dm := deliveryEmbed(r.Service, acct, b.out.GuildName(i.GuildID), now)
	if err := b.out.DirectMessage(ctx, userID, dm); err != nil {
		delivered = false
		logger.Warn("Account consumed but not delivered",
			"account_id", acct.ID,
			logging.Err(errors.Join(ErrDeliveryFailed, err)),
		)
		b.editReply(ctx, logger, i, deliveryFailedEmbed())
	} else {
		logger.Info("Account dispensed", "service", r.Service.Type, "account_id", acct.ID)
		b.editReply(ctx, logger, i, deliveredEmbed(r.Service))
	}

	b.audit(ctx, logger, i.GuildID, auditDispensedEmbed(userID, r.Service, acct.Email, delivered, now))
	b.publish(ctx, logger, events.TopicAccountDispensed, events.AccountDispensed{
		GuildID:      i.GuildID,
		ServiceType:  acct.ServiceType,
		UserID:       userID,
		AccountEmail: acct.Email,
		Delivered:    delivered,
		At:           now,
	})
}

// handleStock handles the /stock command
func (b *Bot) handleStock(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate) {
	if !b.checkAccess(ctx, logger, i) {
		return
	}
	if !b.deferReply(ctx, logger, i) {
		return
	}

	counts, err := b.ledger.Count(ctx, i.GuildID)
	if err != nil {
		logger.Error("Failed to count stock", logging.Err(err))
		b.editReply(ctx, logger, i, failureEmbed())
		return
	}
	b.editReply(ctx, logger, i, stockEmbed(b.services, counts, b.now()))
}

// handleStats handles the /stats command
func (b *Bot) handleStats(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate) {
	if !b.checkAccess(ctx, logger, i) {
		return
	}
	if !b.deferReply(ctx, logger, i) {
		return
	}

	stats, err := b.ledger.Stats(ctx, i.GuildID)
	if err != nil {
		logger.Error("Failed to load stats", logging.Err(err))
		b.editReply(ctx, logger, i, failureEmbed())
		return
	}
	now := b.now()
	b.editReply(ctx, logger, i, statsEmbed(b.out.GuildName(i.GuildID), stats, now.Sub(b.startedAt), now))
}

// handleClearStock asks for confirmation before clearing a tier
func (b *Bot) handleClearStock(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, r clearStockRequest) {
	if !b.checkAdmin(ctx, logger, i) {
		return
	}
	b.reply(ctx, logger, i, clearConfirmEmbed(r.Service), clearComponents(r.Service)...)
}

func (b *Bot) handleConfirmClear(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, r confirmClearRequest) {
	if !b.checkAdmin(ctx, logger, i) {
		return
	}

	removed, err := b.ledger.ClearAll(ctx, i.GuildID, string(r.Service.Type))
	if err != nil {
		logger.Error("Failed to clear stock", "service", r.Service.Type, logging.Err(err))
		b.updateMessage(ctx, logger, i, failureEmbed())
		return
	}

	logger.Info("Stock cleared", "service", r.Service.Type, "removed", removed)
	b.updateMessage(ctx, logger, i, clearDoneEmbed(r.Service, removed))

	userID := i.Member.User.ID
	now := b.now()
	b.audit(ctx, logger, i.GuildID, auditClearedEmbed(userID, r.Service, removed, now))
	b.publish(ctx, logger, events.TopicStockCleared, events.StockCleared{
		GuildID:     i.GuildID,
		ServiceType: string(r.Service.Type),
		Removed:     removed,
		ClearedBy:   userID,
		At:          now,
	})
}

func (b *Bot) handleCancelClear(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate) {
	if !b.checkAdmin(ctx, logger, i) {
		return
	}
	b.updateMessage(ctx, logger, i, clearCancelledEmbed())
}
