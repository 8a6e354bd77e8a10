// The chat platform session, as seen by the moderation components.
//
// Platform is the minimal set of guild operations the bot performs. The discord sub-package implements it on top of a gateway session; MockPlatform implements it in-process for tests.
package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

var (
	ErrNotFound  = errors.New("platform: not found")
	ErrForbidden = errors.New("platform: missing permissions")
)

type Platform interface {
	AddRole(ctx context.Context, user, role snowflake.ID, reason string) error
	RemoveRole(ctx context.Context, user, role snowflake.ID, reason string) error
	// disconnects the member from any voice channel
	DisconnectVoice(ctx context.Context, user snowflake.ID) error
	Kick(ctx context.Context, user snowflake.ID, reason string) error
	Ban(ctx context.Context, user snowflake.ID, reason string) error
	Unban(ctx context.Context, user snowflake.ID, reason string) error
	// full list of banned user ids for the guild
	Bans(ctx context.Context) ([]snowflake.ID, error)
	// ErrNotFound if the user is not a guild member
	Member(ctx context.Context, user snowflake.ID) (*Member, error)
	SendDirectMessage(ctx context.Context, user snowflake.ID, content string) error
	SendMessage(ctx context.Context, channel snowflake.ID, content string) (snowflake.ID, error)
	DeleteMessage(ctx context.Context, channel, message snowflake.ID) error
	// most recent first
	RecentMessages(ctx context.Context, channel snowflake.ID, limit int) ([]Message, error)
	BotUserID() snowflake.ID
}

type Member struct {
	ID       snowflake.ID
	Username string
	Bot      bool
	Roles    []snowflake.ID
	// position of the highest role held; zero for members with no roles
	TopRolePosition int
	JoinedAt        time.Time
}

func (m *Member) HasRole(role snowflake.ID) bool {
	return slices.Contains(m.Roles, role)
}

func (m *Member) HasAnyRole(roles []snowflake.ID) bool {
	for _, r := range roles {
		if m.HasRole(r) {
			return true
		}
	}
	return false
}

func (m *Member) Mention() string {
	return Mention(m.ID)
}

func (m *Member) String() string {
	if m.Username == "" {
		return m.ID.String()
	}
	return m.Username
}

// Mention formats a user mention.
func Mention(user snowflake.ID) string {
	return fmt.Sprintf("<@%s>", user)
}

// ChannelMention formats a channel mention.
func ChannelMention(channel snowflake.ID) string {
	return fmt.Sprintf("<#%s>", channel)
}

// RoleMention formats a role mention.
func RoleMention(role snowflake.ID) string {
	return fmt.Sprintf("<@&%s>", role)
}

type Message struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	Author    Member
	Content   string
	// any user or role mentions (not counting @everyone)
	HasMentions bool
	CreatedAt   time.Time
}

// AccountCreated derives the account creation time from a user id.
func AccountCreated(user snowflake.ID) time.Time {
	return user.Time()
}
