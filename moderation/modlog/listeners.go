package modlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
)

// accounts younger than this are flagged on join
const newAccountAge = 24 * time.Hour

// Register attaches the user-log listeners.
func (m *ModLog) Register(ev *platform.Events) {
	ev.OnMemberJoin(m.onMemberJoin)
	ev.OnMemberRemove(m.onMemberRemove)
	ev.OnMemberUpdate(m.onMemberUpdate)
	ev.OnMemberBan(m.onMemberBan)
	ev.OnMemberUnban(m.onMemberUnban)
	ev.OnMessageDelete(m.onMessageDelete)
}

// claimed reports whether the event was caused by the bot. Ledger failures are treated as unclaimed, so the event is logged.
func (m *ModLog) claimed(ctx context.Context, kind ledger.EventKind, target snowflake.ID) bool {
	ok, err := m.Ledger.Consume(ctx, kind, target)
	if err != nil {
		m.Logger.Warn("suppression lookup failed", "event", kind, "target", target, "err", err)
		return false
	}
	if ok {
		eventsSuppressed.WithLabelValues(string(kind)).Inc()
	}
	return ok
}

func memberLine(m platform.Member) string {
	return fmt.Sprintf("%s (`%s`)", m.String(), m.ID)
}

func (m *ModLog) onMemberJoin(ctx context.Context, member platform.Member) {
	now := m.now()
	created := platform.AccountCreated(member.ID)

	e := Entry{Icon: IconJoin, Title: "User joined"}
	e.Add("Member", memberLine(member))
	e.Add("Account age", strings.TrimSpace(humanize.RelTime(created, now, "", "")))
	if now.Sub(created) < newAccountAge {
		e.Icon = IconNew
		e.Add("Note", "New account")
	}
	m.User(ctx, e)
}

func (m *ModLog) onMemberRemove(ctx context.Context, member platform.Member) {
	if m.claimed(ctx, ledger.MemberRemove, member.ID) {
		return
	}
	e := Entry{Icon: IconLeave, Title: "User left"}
	e.Add("Member", memberLine(member))
	m.User(ctx, e)
}

func (m *ModLog) onMemberUpdate(ctx context.Context, member platform.Member) {
	if m.claimed(ctx, ledger.MemberUpdate, member.ID) {
		return
	}
	roles := make([]string, 0, len(member.Roles))
	for _, r := range member.Roles {
		roles = append(roles, platform.RoleMention(r))
	}
	e := Entry{Icon: IconUpdate, Title: "Member updated"}
	e.Add("Member", memberLine(member))
	if len(roles) > 0 {
		e.Add("Roles", strings.Join(roles, " "))
	}
	m.User(ctx, e)
}

func (m *ModLog) onMemberBan(ctx context.Context, user snowflake.ID) {
	if m.claimed(ctx, ledger.MemberBan, user) {
		return
	}
	e := Entry{Icon: IconBan, Title: "User banned"}
	e.Add("Member", fmt.Sprintf("%s (`%s`)", platform.Mention(user), user))
	m.User(ctx, e)
}

func (m *ModLog) onMemberUnban(ctx context.Context, user snowflake.ID) {
	if m.claimed(ctx, ledger.MemberUnban, user) {
		return
	}
	e := Entry{Icon: IconUnban, Title: "User unbanned"}
	e.Add("Member", fmt.Sprintf("%s (`%s`)", platform.Mention(user), user))
	m.User(ctx, e)
}

func (m *ModLog) onMessageDelete(ctx context.Context, channel, message snowflake.ID) {
	// deletes inside the log channels themselves are not interesting
	if channel == m.Channels.ModLog || channel == m.Channels.UserLog {
		return
	}
	if m.claimed(ctx, ledger.MessageDelete, message) {
		return
	}
	e := Entry{Icon: IconDelete, Title: "Message deleted"}
	e.Add("Channel", platform.ChannelMention(channel))
	e.Add("Message ID", fmt.Sprintf("`%s`", message))
	m.User(ctx, e)
}
