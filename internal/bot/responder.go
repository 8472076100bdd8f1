package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// responder is the subset of the Discord API the handlers talk to
type responder interface {
	// Respond sends the initial response to an interaction.
	Respond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error

	// Edit replaces a deferred or previous response.
	Edit(ctx context.Context, i *discordgo.Interaction, edit *discordgo.WebhookEdit) error

	// DirectMessage opens a DM channel with userID and posts embed there.
	DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error

	// ChannelMessage posts embed to a guild channel.
	ChannelMessage(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error

	// GuildName returns the cached guild name, or "" when unknown.
	GuildName(guildID string) string
}

// sessionResponder implements responder on a live gateway session
type sessionResponder struct {
	session *discordgo.Session
}

func (r *sessionResponder) Respond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return r.session.InteractionRespond(i, resp, discordgo.WithContext(ctx))
}

func (r *sessionResponder) Edit(ctx context.Context, i *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := r.session.InteractionResponseEdit(i, edit, discordgo.WithContext(ctx))
	return err
}

func (r *sessionResponder) DirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	ch, err := r.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	if _, err := r.session.ChannelMessageSendEmbed(ch.ID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}
	return nil
}

func (r *sessionResponder) ChannelMessage(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	_, err := r.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	return err
}

func (r *sessionResponder) GuildName(guildID string) string {
	if r.session.State == nil {
		return ""
	}
	g, err := r.session.State.Guild(guildID)
	if err != nil {
		return ""
	}
	return g.Name
}
