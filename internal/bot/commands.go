package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/payout-bot/internal/logging"
)

// adminPermissions hides a command from everyone without Administrator
// until a server overrides it.
var adminPermissions int64 = discordgo.PermissionAdministrator

// Slash command definitions
func (b *Bot) commandDefinitions() []*discordgo.ApplicationCommand {
	dm := false
	serviceOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optionService,
			Description: description,
			Required:    true,
			Choices:     b.services.Choices(),
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     commandSetup,
			Description:              "Set up or update the payout configuration for this server",
			DefaultMemberPermissions: &adminPermissions,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        optionLogChannel,
					Description: "Channel that receives the bot's activity log",
					Required:    false,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:         commandAddStock,
			Description:  "Add accounts to stock from a .txt file",
			DMPermission: &dm,
			Options: []*discordgo.ApplicationCommandOption{
				serviceOption("Service the accounts belong to"),
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        optionFile,
					Description: "A .txt file with one email:password per line",
					Required:    true,
				},
			},
		},
		{
			Name:         commandGen,
			Description:  "Get a random account from stock",
			DMPermission: &dm,
			Options: []*discordgo.ApplicationCommandOption{
				serviceOption("The service you want an account for"),
			},
		},
		{
			Name:         commandStock,
			Description:  "Show how many accounts are in stock",
			DMPermission: &dm,
		},
		{
			Name:         commandStats,
			Description:  "Show bot statistics for this server",
			DMPermission: &dm,
		},
		{
			Name:                     commandClearStock,
			Description:              "[Dangerous] Delete ALL accounts of a service",
			DefaultMemberPermissions: &adminPermissions,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				serviceOption("Service to clear"),
			},
		},
	}
}

func (b *Bot) applicationID() string {
	if b.config.Discord.ApplicationID != "" {
		return b.config.Discord.ApplicationID
	}
	return b.session.State.User.ID
}

// registerCommands replaces the application's commands with ours, either
// globally or for the configured development guild
func (b *Bot) registerCommands(ctx context.Context) error {
	b.logger.Info("Registering slash commands", "guild_id", b.config.Discord.GuildID)

	registered, err := b.session.ApplicationCommandBulkOverwrite(
		b.applicationID(),
		b.config.Discord.GuildID, // empty = global
		b.commandDefinitions(),
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to overwrite commands: %w", err)
	}

	b.commands = registered
	b.logger.Info("Slash commands registered", "count", len(registered))
	return nil
}

// removeCommands removes all registered slash commands
func (b *Bot) removeCommands() {
	for _, cmd := range b.commands {
		err := b.session.ApplicationCommandDelete(b.applicationID(), b.config.Discord.GuildID, cmd.ID)
		if err != nil {
			b.logger.Error("Failed to remove command", "name", cmd.Name, logging.Err(err))
		}
	}
}
