// Mod-log and user-log emitter, plus the platform event listeners which populate the user log.
//
// Listeners consult the suppression ledger first: events the bot caused itself (and registered for suppression) are not logged as member activity.
package modlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wardenbot/warden/config"
	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
)

// icons, as emoji shortcodes
const (
	IconBan       = ":hammer:"
	IconUnban     = ":unlock:"
	IconMute      = ":mute:"
	IconUnmute    = ":loud_sound:"
	IconKick      = ":door:"
	IconWarn      = ":warning:"
	IconJoin      = ":inbox_tray:"
	IconLeave     = ":outbox_tray:"
	IconUpdate    = ":pencil2:"
	IconDelete    = ":wastebasket:"
	IconNew       = ":new:"
	IconRemoved   = ":closed_lock_with_key:"
	IconDrift     = ":twisted_rightwards_arrows:"
	IconFailmail  = ":x: :envelope:"
	IconSentMail  = ":incoming_envelope:"
	IconOK        = ":ok_hand:"
	IconFailure   = ":x:"
	IconMentioned = ":bell:"
)

type Field struct {
	Name  string
	Value string
}

// A single log message. Fields render in insertion order.
type Entry struct {
	Icon   string
	Title  string
	Fields []Field
	Footer string
	// message content placed above the entry, eg a role mention on failures
	Ping string
}

func (e *Entry) Add(name, value string) {
	e.Fields = append(e.Fields, Field{Name: name, Value: value})
}

// Set replaces an existing field, or adds it.
func (e *Entry) Set(name, value string) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			e.Fields[i].Value = value
			return
		}
	}
	e.Add(name, value)
}

func (e *Entry) Get(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (e *Entry) Render() string {
	var sb strings.Builder
	if e.Ping != "" {
		sb.WriteString(e.Ping)
		sb.WriteString("\n")
	}
	if e.Icon != "" {
		sb.WriteString(e.Icon)
		sb.WriteString(" ")
	}
	fmt.Fprintf(&sb, "**%s**\n", e.Title)
	for _, f := range e.Fields {
		switch {
		case f.Value == "":
			continue
		case f.Name == "":
			// unnamed fields are free text
			fmt.Fprintf(&sb, "%s\n", f.Value)
		default:
			fmt.Fprintf(&sb, "**%s:** %s\n", f.Name, f.Value)
		}
	}
	if e.Footer != "" {
		fmt.Fprintf(&sb, "-# %s\n", e.Footer)
	}
	return strings.TrimRight(sb.String(), "\n")
}

type ModLog struct {
	Platform platform.Platform
	Ledger   ledger.Ledger
	Channels config.Channels
	Logger   *slog.Logger

	now func() time.Time
}

func New(p platform.Platform, l ledger.Ledger, channels config.Channels, logger *slog.Logger) *ModLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModLog{
		Platform: p,
		Ledger:   l,
		Channels: channels,
		Logger:   logger.With("system", "modlog"),
		now:      time.Now,
	}
}

// Send posts an entry to a channel. Failures are logged, not returned: a missing log line never blocks moderation.
func (m *ModLog) Send(ctx context.Context, channel snowflake.ID, e Entry) {
	if channel == 0 {
		return
	}
	if _, err := m.Platform.SendMessage(ctx, channel, e.Render()); err != nil {
		m.Logger.Error("failed to send log entry", "channel", channel, "title", e.Title, "err", err)
		return
	}
	entriesSent.WithLabelValues(channel.String()).Inc()
}

// Mod posts to the moderation log.
func (m *ModLog) Mod(ctx context.Context, e Entry) {
	m.Send(ctx, m.Channels.ModLog, e)
}

// User posts to the member activity log.
func (m *ModLog) User(ctx context.Context, e Entry) {
	m.Send(ctx, m.Channels.UserLog, e)
}

// Alert posts to the moderator alerts channel.
func (m *ModLog) Alert(ctx context.Context, e Entry) {
	m.Send(ctx, m.Channels.ModAlerts, e)
}

// DeleteQuietly deletes a message without it showing up in the user log as member activity.
func (m *ModLog) DeleteQuietly(ctx context.Context, channel, message snowflake.ID) error {
	if err := m.Ledger.Expect(ctx, ledger.MessageDelete, message, ledger.DefaultTTL); err != nil {
		// worst case the delete is logged
		m.Logger.Warn("failed to register message delete suppression", "message", message, "err", err)
	}
	return m.Platform.DeleteMessage(ctx, channel, message)
}
