package bot

import (
	"context"
	"errors"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/payout-bot/internal/storage"
)

var (
	// ErrUnauthorized is returned when a member lacks the guild's payout role
	ErrUnauthorized = errors.New("member lacks the payout role")

	// ErrAdminRequired is returned for administrator-only actions
	ErrAdminRequired = errors.New("administrator permission required")

	// ErrDeliveryFailed is reported when a dispensed account could not be
	// sent to the member. The account stays consumed.
	ErrDeliveryFailed = errors.New("could not deliver account by direct message")
)

func isAdmin(m *discordgo.Member) bool {
	return m != nil && m.Permissions&discordgo.PermissionAdministrator != 0
}

// authorize checks that member may use payout commands in guildID.
// Administrators always pass. Everyone else needs the configured payout role;
// the configuration is returned so callers can name the role.
func (b *Bot) authorize(ctx context.Context, guildID string, member *discordgo.Member) (*storage.GuildConfig, error) {
	if isAdmin(member) {
		return nil, nil
	}

	cfg, err := b.ledger.GuildConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if member == nil || !slices.Contains(member.Roles, cfg.PayoutRoleID) {
		return cfg, ErrUnauthorized
	}
	return cfg, nil
}

func requireAdmin(member *discordgo.Member) error {
	if !isAdmin(member) {
		return ErrAdminRequired
	}
	return nil
}

// denialEmbed renders an authorization failure, or returns nil when err is
// not one.
func denialEmbed(cfg *storage.GuildConfig, err error) *discordgo.MessageEmbed {
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		return notConfiguredEmbed()
	case errors.Is(err, ErrUnauthorized) && cfg != nil:
		return unauthorizedEmbed(cfg.PayoutRoleID)
	case errors.Is(err, ErrAdminRequired):
		return adminRequiredEmbed()
	}
	return nil
}
