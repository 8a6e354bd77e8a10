// Removes messages which contain Discord webhook URLs, since anyone holding the URL can post as the webhook.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/platform"
)

var webhookURLRE = regexp.MustCompile(`(?i)((?:https?://)?(?:(?:ptb|canary)\.)?discord(?:app)?\.com/api/(?:v\d+/)?webhooks/\d+/)\S+/?`)

const alertTemplate = "%s, looks like you posted a Discord webhook URL. Therefore, your " +
	"message has been removed. Your webhook may have been **compromised** so " +
	"please re-create the webhook **immediately**. If you believe this was " +
	"a mistake, please let us know."

// Redact returns the webhook URL in content with its token replaced, or "" if there is none.
func Redact(content string) string {
	m := webhookURLRE.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return m[1] + "xxx"
}

type Scrubber struct {
	Platform platform.Platform
	ModLog   *modlog.ModLog
	Logger   *slog.Logger
}

func New(p platform.Platform, ml *modlog.ModLog, logger *slog.Logger) *Scrubber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scrubber{
		Platform: p,
		ModLog:   ml,
		Logger:   logger.With("component", "webhooks"),
	}
}

// Register checks both new and edited messages.
func (s *Scrubber) Register(ev *platform.Events) {
	ev.OnMessageCreate(s.Check)
	ev.OnMessageUpdate(s.Check)
}

func (s *Scrubber) Check(ctx context.Context, msg platform.Message) {
	if msg.Author.ID == s.Platform.BotUserID() {
		return
	}
	redacted := Redact(msg.Content)
	if redacted == "" {
		return
	}
	logger := s.Logger.With("author", msg.Author.ID, "channel", msg.ChannelID, "message", msg.ID)

	err := s.ModLog.DeleteQuietly(ctx, msg.ChannelID, msg.ID)
	if errors.Is(err, platform.ErrNotFound) {
		// already gone, eg deleted by the author or a second event for the same edit
		return
	}
	if err != nil {
		logger.Error("failed to delete message with webhook url", "err", err)
		return
	}
	webhooksRemoved.Inc()

	if _, err := s.Platform.SendMessage(ctx, msg.ChannelID, fmt.Sprintf(alertTemplate, msg.Author.Mention())); err != nil {
		logger.Warn("failed to warn author about webhook url", "err", err)
	}

	text := fmt.Sprintf("%s (`%s`) posted a Discord webhook URL to %s. Webhook URL was `%s`",
		msg.Author.String(), msg.Author.ID, platform.ChannelMention(msg.ChannelID), redacted)
	logger.Info("removed webhook url", "redacted", redacted)

	e := modlog.Entry{Icon: modlog.IconRemoved, Title: "Discord webhook URL removed!"}
	e.Add("", text)
	s.ModLog.Alert(ctx, e)
}
