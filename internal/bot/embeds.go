package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/payout-bot/internal/catalog"
	"github.com/flor3z/payout-bot/internal/importer"
	"github.com/flor3z/payout-bot/internal/storage"
)

// Embed colors
const (
	colorSuccess = 0x00FF00
	colorWarning = 0xFFCC00
	colorError   = 0xFF0000
	colorInfo    = 0x0099FF
	colorAudit   = 0xFFA500
	colorMuted   = 0xAAAAAA
)

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func userMention(id string) string    { return "<@" + id + ">" }
func roleMention(id string) string    { return "<@&" + id + ">" }
func channelMention(id string) string { return "<#" + id + ">" }

// Authorization and failures

func notConfiguredEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Not set up",
		Description: "This server has not been set up yet. Ask an administrator to run `/setup`.",
		Color:       colorError,
	}
}

func unauthorizedEmbed(roleID string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Missing permission",
		Description: fmt.Sprintf("You need the %s role to use this command.", roleMention(roleID)),
		Color:       colorError,
	}
}

func adminRequiredEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Missing permission",
		Description: "Only administrators can use this command.",
		Color:       colorError,
	}
}

func invalidRequestEmbed(err error) *discordgo.MessageEmbed {
	desc := "This command could not be understood."
	switch {
	case errors.Is(err, errGuildOnly):
		desc = "Commands can only be used inside a server."
	case errors.Is(err, errUnknownService):
		desc = "That service does not exist."
	case errors.Is(err, errMissingOption):
		desc = "A required option is missing."
	}
	return &discordgo.MessageEmbed{
		Title:       "Invalid request",
		Description: desc,
		Color:       colorError,
	}
}

func failureEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "💥 Something went wrong",
		Description: "An unexpected error occurred. Please try again later.",
		Color:       colorError,
	}
}

// Setup

func setupPromptEmbed(logChannelID string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "⚙️ Payout setup",
		Description: "Select the **payout role**. Members with this role can use `/gen`, `/addstock-bulk`, `/stock` and `/stats`.",
		Color:       colorInfo,
	}
	if logChannelID != "" {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "Log channel",
			Value: fmt.Sprintf("Bot activity will be logged in %s.", channelMention(logChannelID)),
		}}
	}
	return embed
}

func setupComponents(logChannelID string) []discordgo.MessageComponent {
	minValues := 1
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.RoleSelectMenu,
					CustomID:    setupRoleCustomID(logChannelID),
					Placeholder: "Choose the payout role",
					MinValues:   &minValues,
					MaxValues:   1,
				},
			},
		},
	}
}

func setupDoneEmbed(cfg *storage.GuildConfig) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "✅ Setup complete",
		Description: fmt.Sprintf("The payout role is now %s.", roleMention(cfg.PayoutRoleID)),
		Color:       colorSuccess,
	}
	if cfg.LogChannelID != "" {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "Log channel",
			Value: channelMention(cfg.LogChannelID),
		}}
	}
	return embed
}

// Bulk import

func importRejectedEmbed(err error) *discordgo.MessageEmbed {
	desc := "The file could not be downloaded."
	switch {
	case errors.Is(err, importer.ErrNotText):
		desc = "Please upload a `.txt` file."
	case errors.Is(err, importer.ErrTooLarge):
		desc = "The file is too large."
	}
	return &discordgo.MessageEmbed{
		Title:       "Import failed",
		Description: desc,
		Color:       colorError,
	}
}

func importEmptyEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Nothing to import",
		Description: "No valid lines were found in the file (expected `email:password`).",
		Color:       colorWarning,
	}
}

func importResultEmbed(batch importer.Batch, res storage.AddResult) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "✅ Bulk import complete",
		Description: fmt.Sprintf("Processed **%d** lines from the file.", batch.Lines),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Added", Value: fmt.Sprintf("**%d** accounts", res.Succeeded), Inline: true},
			{Name: "Skipped (duplicates)", Value: fmt.Sprintf("**%d** accounts", res.Skipped), Inline: true},
		},
	}
	if batch.Invalid > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Invalid lines", Value: fmt.Sprintf("**%d**", batch.Invalid), Inline: true,
		})
	}
	return embed
}

// Dispensing

func cooldownEmbed(left time.Duration) *discordgo.MessageEmbed {
	secs := int(left.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &discordgo.MessageEmbed{
		Title:       "Slow down",
		Description: fmt.Sprintf("Please wait **%d seconds** before using `/gen` again.", secs),
		Color:       colorWarning,
	}
}

func outOfStockEmbed(svc catalog.Service) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Out of stock",
		Description: fmt.Sprintf("Sorry, **%s** is out of stock. Please check back later.", svc.Name),
		Color:       colorWarning,
	}
}

// deliveryEmbed is the only embed that carries a secret. It is sent by DM.
func deliveryEmbed(svc catalog.Service, acct *storage.Account, guildName string, at time.Time) *discordgo.MessageEmbed {
	if guildName == "" {
		guildName = "the server"
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s Your %s account", svc.Emoji, svc.Name),
		Description: fmt.Sprintf("Here is the account you requested from **%s**.", guildName),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📧 Email", Value: codeBlock(acct.Email)},
			{Name: "🔑 Password", Value: codeBlock(acct.Secret)},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "Please do not share this account."},
		Timestamp: timestamp(at),
	}
	if svc.GuideURL != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "🔗 Instructions",
			Value: fmt.Sprintf("[Click here](%s)", svc.GuideURL),
		})
	}
	return embed
}

func deliveredEmbed(svc catalog.Service) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "✅ Sent!",
		Description: fmt.Sprintf("Your **%s** account has been sent to your direct messages.", svc.Name),
		Color:       colorSuccess,
	}
}

func deliveryFailedEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "❌ Could not send DM",
		Description: "I could not message you. Please check your privacy settings.",
		Color:       colorError,
	}
}

// Stock and stats

func stockEmbed(services *catalog.Registry, counts map[string]int64, at time.Time) *discordgo.MessageEmbed {
	if len(counts) == 0 {
		return &discordgo.MessageEmbed{
			Title:       "Stock is empty",
			Description: "There are no accounts in stock right now.",
			Color:       colorWarning,
		}
	}

	var sb strings.Builder
	seen := make(map[string]bool, len(counts))
	for _, svc := range services.List() {
		n, ok := counts[string(svc.Type)]
		if !ok {
			continue
		}
		seen[string(svc.Type)] = true
		sb.WriteString(fmt.Sprintf("%s: **%d** accounts\n", svc.Label(), n))
	}
	// Tiers that were removed from the catalog but still have rows.
	for t, n := range counts {
		if !seen[t] {
			sb.WriteString(fmt.Sprintf("`%s`: **%d** accounts\n", t, n))
		}
	}

	return &discordgo.MessageEmbed{
		Title:       "📊 Stock",
		Description: sb.String(),
		Color:       colorSuccess,
		Timestamp:   timestamp(at),
	}
}

func statsEmbed(guildName string, stats storage.Stats, uptime time.Duration, at time.Time) *discordgo.MessageEmbed {
	title := "📈 Bot statistics"
	if guildName != "" {
		title += " for " + guildName
	}
	return &discordgo.MessageEmbed{
		Title: title,
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "📦 Accounts in stock", Value: fmt.Sprintf("**%d**", stats.TotalStock), Inline: true},
			{Name: "🎁 Accounts dispensed", Value: fmt.Sprintf("**%d**", stats.TotalGenerated), Inline: true},
			{Name: "Uptime", Value: formatUptime(uptime), Inline: true},
		},
		Timestamp: timestamp(at),
	}
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// Clearing

func clearConfirmEmbed(svc catalog.Service) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "⚠️ Confirm clearing stock",
		Description: fmt.Sprintf("Delete **all** %s accounts from stock? This **cannot** be undone.", svc.Name),
		Color:       colorError,
	}
}

func clearComponents(svc catalog.Service) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Yes, delete everything",
					Style:    discordgo.DangerButton,
					CustomID: clearConfirmCustomID(svc.Type),
				},
				discordgo.Button{
					Label:    "Cancel",
					Style:    discordgo.SecondaryButton,
					CustomID: customIDClearCancel,
				},
			},
		},
	}
}

func clearDoneEmbed(svc catalog.Service, removed int64) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "✅ Done",
		Description: fmt.Sprintf("Deleted **%d** %s accounts.", removed, svc.Name),
		Color:       colorSuccess,
	}
}

func clearCancelledEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Cancelled",
		Description: "Clearing stock was cancelled.",
		Color:       colorMuted,
	}
}

// Log channel audit entries. None of these may include a secret.

func auditConfiguredEmbed(userID string, cfg *storage.GuildConfig, at time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "⚙️ Payout configured",
		Description: fmt.Sprintf("%s set the payout role to %s.", userMention(userID), roleMention(cfg.PayoutRoleID)),
		Color:       colorInfo,
		Timestamp:   timestamp(at),
	}
}

func auditStockAddedEmbed(userID string, svc catalog.Service, res storage.AddResult, at time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "📦 Stock added (bulk)",
		Description: fmt.Sprintf("%s added **%d** %s accounts (%d skipped).", userMention(userID), res.Succeeded, svc.Name, res.Skipped),
		Color:       colorSuccess,
		Timestamp:   timestamp(at),
	}
}

func auditDispensedEmbed(userID string, svc catalog.Service, email string, delivered bool, at time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "🎁 Account dispensed",
		Description: fmt.Sprintf("%s received a **%s** account.", userMention(userID), svc.Name),
		Color:       colorAudit,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Email", Value: "||" + email + "||"},
		},
		Timestamp: timestamp(at),
	}
	if !delivered {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Delivery", Value: "DM failed, the account was consumed",
		})
	}
	return embed
}

func auditClearedEmbed(userID string, svc catalog.Service, removed int64, at time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🗑️ Stock cleared",
		Description: fmt.Sprintf("%s deleted **%d** %s accounts.", userMention(userID), removed, svc.Name),
		Color:       colorError,
		Timestamp:   timestamp(at),
	}
}

func codeBlock(s string) string {
	return "```" + s + "```"
}
