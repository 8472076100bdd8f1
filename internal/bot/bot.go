// Package bot connects the Discord gateway to the stock ledger.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/payout-bot/internal/catalog"
	"github.com/flor3z/payout-bot/internal/config"
	"github.com/flor3z/payout-bot/internal/cooldown"
	"github.com/flor3z/payout-bot/internal/events"
	"github.com/flor3z/payout-bot/internal/importer"
	"github.com/flor3z/payout-bot/internal/logging"
	"github.com/flor3z/payout-bot/internal/storage"
)

// interactionTimeout bounds the work done for one interaction, including
// deferred edits.
const interactionTimeout = 2 * time.Minute

type batchFetcher interface {
	Fetch(ctx context.Context, url, filename string) (importer.Batch, error)
}

// Bot represents the Discord bot instance
type Bot struct {
	config    *config.Config
	session   *discordgo.Session
	ledger    storage.Ledger
	services  *catalog.Registry
	cooldowns *cooldown.Tracker
	fetcher   batchFetcher
	events    events.Publisher
	out       responder
	logger    *slog.Logger
	commands  []*discordgo.ApplicationCommand

	ctx       context.Context
	startedAt time.Time
	now       func() time.Time
}

// New creates a new Bot instance. The ledger and publisher are owned by the
// caller and are not closed by Stop.
func New(cfg *config.Config, ledger storage.Ledger, publisher events.Publisher, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds
	session.LogLevel = logging.DiscordgoLevel(cfg.Discord.LogLevel)

	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bot{
		config:    cfg,
		session:   session,
		ledger:    ledger,
		services:  catalog.Default(cfg.GuideURL),
		cooldowns: cooldown.New(cfg.Cooldown.Window, logger),
		fetcher:   importer.NewFetcher(cfg.Import.Timeout, cfg.Import.MaxBytes, cfg.Import.PerSecond),
		events:    publisher,
		out:       &sessionResponder{session: session},
		logger:    logging.Named(logger, "bot"),
		ctx:       context.Background(),
		now:       time.Now,
	}

	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection, registers commands and starts the
// cooldown sweeper
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	b.startedAt = b.now()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.logger.Info("Connected to Discord", "user", b.session.State.User.Username)

	if err := b.registerCommands(ctx); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.cooldowns.Start(ctx, b.config.Cooldown.SweepInterval)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	b.cooldowns.Stop()

	if b.config.Discord.RemoveCommands {
		b.removeCommands()
	}

	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

func (b *Bot) handleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(b.ctx, interactionTimeout)
	defer cancel()
	b.dispatch(ctx, i)
}

// dispatch parses the interaction once and routes the typed request
func (b *Bot) dispatch(ctx context.Context, i *discordgo.InteractionCreate) {
	logger := b.logger.With("interaction_id", i.ID, "guild_id", i.GuildID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic handling interaction", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	req, err := parseRequest(b.services, i)
	if err != nil {
		logger.Warn("Rejected interaction", logging.Err(err))
		b.reply(ctx, logger, i, invalidRequestEmbed(err))
		return
	}

	logger = logger.With("request", req.name(), "user_id", i.Member.User.ID)
	logger.Debug("Received request")

	switch r := req.(type) {
	case setupRequest:
		b.handleSetup(ctx, logger, i, r)
	case roleSelectRequest:
		b.handleRoleSelect(ctx, logger, i, r)
	case addStockRequest:
		b.handleAddStock(ctx, logger, i, r)
	case genRequest:
		b.handleGen(ctx, logger, i, r)
	case stockRequest:
		b.handleStock(ctx, logger, i)
	case statsRequest:
		b.handleStats(ctx, logger, i)
	case clearStockRequest:
		b.handleClearStock(ctx, logger, i, r)
	case confirmClearRequest:
		b.handleConfirmClear(ctx, logger, i, r)
	case cancelClearRequest:
		b.handleCancelClear(ctx, logger, i)
	default:
		logger.Error("Unhandled request type", "type", fmt.Sprintf("%T", req))
	}
}

// Response helpers

// reply sends an ephemeral embed as the initial response
func (b *Bot) reply(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components ...discordgo.MessageComponent) {
	err := b.out.Respond(ctx, i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.Error("Failed to respond", logging.Err(err))
	}
}

// deferReply acknowledges the interaction with an ephemeral "thinking" state
func (b *Bot) deferReply(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate) bool {
	err := b.out.Respond(ctx, i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.Error("Failed to defer response", logging.Err(err))
		return false
	}
	return true
}

// editReply replaces the deferred response. Components are always cleared.
func (b *Bot) editReply(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := b.out.Edit(ctx, i.Interaction, &discordgo.WebhookEdit{
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &[]discordgo.MessageComponent{},
	})
	if err != nil {
		logger.Error("Failed to edit response", logging.Err(err))
	}
}

// updateMessage replaces the message a component belongs to
func (b *Bot) updateMessage(ctx context.Context, logger *slog.Logger, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := b.out.Respond(ctx, i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		logger.Error("Failed to update message", logging.Err(err))
	}
}

// audit posts embed to the guild's log channel, if one is configured.
// Failures never affect the command outcome.
func (b *Bot) audit(ctx context.Context, logger *slog.Logger, guildID string, embed *discordgo.MessageEmbed) {
	cfg, err := b.ledger.GuildConfig(ctx, guildID)
	if err != nil || cfg.LogChannelID == "" {
		return
	}
	if err := b.out.ChannelMessage(ctx, cfg.LogChannelID, embed); err != nil {
		logger.Warn("Failed to send log channel message", "channel_id", cfg.LogChannelID, logging.Err(err))
	}
}

func (b *Bot) publish(ctx context.Context, logger *slog.Logger, topic string, event any) {
	if err := b.events.Publish(ctx, topic, event); err != nil {
		logger.Warn("Failed to publish event", "topic", topic, logging.Err(err))
	}
}
