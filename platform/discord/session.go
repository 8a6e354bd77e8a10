// Platform implementation backed by a discordgo gateway session, scoped to a single guild.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wardenbot/warden/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
)

// page size of the guild ban listing endpoint
const bansPageSize = 1000

type Session struct {
	S       *discordgo.Session
	GuildID snowflake.ID
	Logger  *slog.Logger
}

var _ platform.Platform = (*Session)(nil)

func New(token string, guildID snowflake.ID, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildModeration |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent
	s.StateEnabled = true
	s.State.MaxMessageCount = 500
	return &Session{
		S:       s,
		GuildID: guildID,
		Logger:  logger.With("system", "discord"),
	}, nil
}

func (s *Session) Open() error {
	if err := s.S.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	s.Logger.Info("discord gateway connected", "bot", s.S.State.User.ID, "guild", s.GuildID)
	return nil
}

func (s *Session) Close() error {
	return s.S.Close()
}

func (s *Session) guild() string {
	return s.GuildID.String()
}

// converts REST failures in to the platform sentinel errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", platform.ErrForbidden, err)
		}
	}
	return err
}

func parseID(raw string) snowflake.ID {
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0
	}
	return id
}

func (s *Session) AddRole(ctx context.Context, user, role snowflake.ID, reason string) error {
	return mapError(s.S.GuildMemberRoleAdd(s.guild(), user.String(), role.String(), discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (s *Session) RemoveRole(ctx context.Context, user, role snowflake.ID, reason string) error {
	return mapError(s.S.GuildMemberRoleRemove(s.guild(), user.String(), role.String(), discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (s *Session) DisconnectVoice(ctx context.Context, user snowflake.ID) error {
	return mapError(s.S.GuildMemberMove(s.guild(), user.String(), nil, discordgo.WithContext(ctx)))
}

func (s *Session) Kick(ctx context.Context, user snowflake.ID, reason string) error {
	return mapError(s.S.GuildMemberDeleteWithReason(s.guild(), user.String(), reason, discordgo.WithContext(ctx)))
}

func (s *Session) Ban(ctx context.Context, user snowflake.ID, reason string) error {
	return mapError(s.S.GuildBanCreateWithReason(s.guild(), user.String(), reason, 0, discordgo.WithContext(ctx)))
}

func (s *Session) Unban(ctx context.Context, user snowflake.ID, reason string) error {
	return mapError(s.S.GuildBanDelete(s.guild(), user.String(), discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason)))
}

func (s *Session) Bans(ctx context.Context) ([]snowflake.ID, error) {
	var out []snowflake.ID
	after := ""
	for {
		page, err := s.S.GuildBans(s.guild(), bansPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapError(err)
		}
		for _, b := range page {
			if b.User == nil {
				continue
			}
			out = append(out, parseID(b.User.ID))
			after = b.User.ID
		}
		if len(page) < bansPageSize {
			return out, nil
		}
	}
}

func (s *Session) roles(ctx context.Context) ([]*discordgo.Role, error) {
	if g, err := s.S.State.Guild(s.guild()); err == nil && len(g.Roles) > 0 {
		return g.Roles, nil
	}
	roles, err := s.S.GuildRoles(s.guild(), discordgo.WithContext(ctx))
	return roles, mapError(err)
}

func (s *Session) Member(ctx context.Context, user snowflake.ID) (*platform.Member, error) {
	m, err := s.S.GuildMember(s.guild(), user.String(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := convertMember(m)
	roles, err := s.roles(ctx)
	if err != nil {
		s.Logger.Warn("failed to fetch guild roles", "err", err)
		return out, nil
	}
	out.TopRolePosition = topRolePosition(m.Roles, roles)
	return out, nil
}

func topRolePosition(held []string, roles []*discordgo.Role) int {
	top := 0
	for _, r := range roles {
		for _, h := range held {
			if r.ID == h && r.Position > top {
				top = r.Position
			}
		}
	}
	return top
}

func (s *Session) SendDirectMessage(ctx context.Context, user snowflake.ID, content string) error {
	ch, err := s.S.UserChannelCreate(user.String(), discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	_, err = s.S.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (s *Session) SendMessage(ctx context.Context, channel snowflake.ID, content string) (snowflake.ID, error) {
	msg, err := s.S.ChannelMessageSend(channel.String(), content, discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapError(err)
	}
	return parseID(msg.ID), nil
}

func (s *Session) DeleteMessage(ctx context.Context, channel, message snowflake.ID) error {
	return mapError(s.S.ChannelMessageDelete(channel.String(), message.String(), discordgo.WithContext(ctx)))
}

func (s *Session) RecentMessages(ctx context.Context, channel snowflake.ID, limit int) ([]platform.Message, error) {
	msgs, err := s.S.ChannelMessages(channel.String(), limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, convertMessage(m))
	}
	return out, nil
}

func (s *Session) BotUserID() snowflake.ID {
	if s.S.State == nil || s.S.State.User == nil {
		return 0
	}
	return parseID(s.S.State.User.ID)
}

func convertMember(m *discordgo.Member) *platform.Member {
	out := &platform.Member{
		JoinedAt: m.JoinedAt,
	}
	if m.User != nil {
		out.ID = parseID(m.User.ID)
		out.Username = m.User.Username
		out.Bot = m.User.Bot
	}
	for _, r := range m.Roles {
		out.Roles = append(out.Roles, parseID(r))
	}
	return out
}

func convertMessage(m *discordgo.Message) platform.Message {
	out := platform.Message{
		ID:          parseID(m.ID),
		ChannelID:   parseID(m.ChannelID),
		Content:     m.Content,
		HasMentions: len(m.Mentions) > 0 || len(m.MentionRoles) > 0,
		CreatedAt:   m.Timestamp,
	}
	if m.Author != nil {
		out.Author = platform.Member{
			ID:       parseID(m.Author.ID),
			Username: m.Author.Username,
			Bot:      m.Author.Bot,
		}
	}
	if m.Member != nil {
		for _, r := range m.Member.Roles {
			out.Author.Roles = append(out.Author.Roles, parseID(r))
		}
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	return out
}
