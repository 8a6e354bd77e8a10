package discord

import (
	"context"
	"time"

	"github.com/wardenbot/warden/platform"

	"github.com/bwmarrin/discordgo"
)

// upper bound on how long any one event's handlers may run
var eventTimeout = 30 * time.Second

// Route registers gateway handlers which forward events for the configured guild to ev.
func (s *Session) Route(ev *platform.Events) {
	inGuild := func(guildID string) bool {
		return guildID == s.guild()
	}

	s.S.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || !inGuild(m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMessageCreate(ctx, convertMessage(m.Message))
	})
	s.S.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		// embed-only updates arrive without an author
		if m.Message == nil || m.Author == nil || !inGuild(m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMessageUpdate(ctx, convertMessage(m.Message))
	})
	s.S.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		if m.Message == nil || !inGuild(m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMessageDelete(ctx, parseID(m.ChannelID), parseID(m.ID))
	})
	s.S.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.Member == nil || !inGuild(m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMemberJoin(ctx, *convertMember(m.Member))
	})
	s.S.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		if m.Member == nil || !inGuild(m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMemberUpdate(ctx, *convertMember(m.Member))
	})
	s.S.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
		if m.Member == nil || !inGuild(m.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMemberRemove(ctx, *convertMember(m.Member))
	})
	s.S.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanAdd) {
		if b.User == nil || !inGuild(b.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMemberBan(ctx, parseID(b.User.ID))
	})
	s.S.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanRemove) {
		if b.User == nil || !inGuild(b.GuildID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		ev.EmitMemberUnban(ctx, parseID(b.User.ID))
	})
}
