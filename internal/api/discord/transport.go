package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Intents are the gateway intents the bot needs.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildVoiceStates |
	discordgo.IntentMessageContent

// Transport sends messages and reactions through a Discord session.
type Transport struct {
	dg *discordgo.Session
}

// NewTransport creates a transport on dg.
func NewTransport(dg *discordgo.Session) *Transport {
	return &Transport{dg: dg}
}

// React adds emoji to a message.
func (t *Transport) React(channelID, messageID, emoji string) error {
	return errors.Wrap(t.dg.MessageReactionAdd(channelID, messageID, emoji), "add reaction")
}

// Reply sends text as an embed.
func (t *Transport) Reply(channelID, text string) error {
	_, err := t.dg.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{Description: text})
	return errors.Wrap(err, "send message")
}

// Send sends an announcement. It satisfies notification.Sender.
func (t *Transport) Send(ctx context.Context, channelID, text string) error {
	_, err := t.dg.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{Description: text}, discordgo.WithContext(ctx))
	return errors.Wrap(err, "send announcement")
}

// VoiceChannel finds the voice channel userID is connected to in guildID
// using the state cache.
func (t *Transport) VoiceChannel(guildID, userID string) (string, bool) {
	guild, err := t.dg.State.Guild(guildID)
	if err != nil {
		return "", false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// OnMessageCreate returns a discordgo handler feeding guild messages to h.
func OnMessageCreate(h *Handler) func(s *discordgo.Session, m *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.GuildID == "" {
			return
		}
		if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}
		h.HandleMessage(m.GuildID, m.ChannelID, m.ID, requester(m), m.Content)
	}
}

// OnGuildDelete returns a discordgo handler releasing guilds the bot was
// removed from. Outages, reported as unavailable guilds, are ignored.
func OnGuildDelete(h *Handler) func(s *discordgo.Session, g *discordgo.GuildDelete) {
	return func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		if g.Guild == nil || g.Unavailable {
			return
		}
		h.HandleGuildRemoved(g.ID)
	}
}

func requester(m *discordgo.MessageCreate) track.Requester {
	name := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	} else if m.Author.GlobalName != "" {
		name = m.Author.GlobalName
	}
	return track.Requester{
		ID:      m.Author.ID,
		Name:    name,
		Mention: m.Author.Mention(),
	}
}
