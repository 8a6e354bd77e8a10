package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/wardenbot/warden/moderation"
)

func infractionMessage(inf *moderation.Infraction, expiry, rulesURL, appeals string) string {
	reason := inf.Reason
	if reason == "" {
		reason = "No reason provided."
	}
	var sb strings.Builder
	sb.WriteString("**Infraction information**\n")
	fmt.Fprintf(&sb, "**Type:** %s\n", inf.Kind.Title())
	if inf.Kind.Ongoing() {
		fmt.Fprintf(&sb, "**Expires:** %s\n", expiry)
	}
	fmt.Fprintf(&sb, "**Reason:** %s", reason)
	if rulesURL != "" {
		fmt.Fprintf(&sb, "\nPlease review our rules over at %s", rulesURL)
	}
	if inf.Kind.Ongoing() && appeals != "" {
		fmt.Fprintf(&sb, "\n-# To appeal this infraction, contact %s", appeals)
	}
	return sb.String()
}

func pardonMessage(inf *moderation.Infraction) string {
	switch inf.Kind {
	case moderation.KindMute:
		return "**You have been unmuted**\nYou may now send messages in the server."
	case moderation.KindBan:
		return "**You have been unbanned**\nYou may now rejoin the server."
	default:
		return fmt.Sprintf("**Your %s has been lifted**", inf.Kind)
	}
}

func (eng *Engine) notifyInfraction(ctx context.Context, inf *moderation.Infraction) error {
	msg := infractionMessage(inf, moderation.FormatExpiry(inf.ExpiresAt, eng.now()), eng.Config.RulesURL, eng.Config.AppealsContact)
	if err := eng.Platform.SendDirectMessage(ctx, inf.Subject, msg); err != nil {
		notifications.WithLabelValues("infraction", "failed").Inc()
		return fmt.Errorf("%w: %w", moderation.ErrNotificationFailed, err)
	}
	notifications.WithLabelValues("infraction", "sent").Inc()
	return nil
}

func (eng *Engine) notifyPardon(ctx context.Context, inf *moderation.Infraction) error {
	if err := eng.Platform.SendDirectMessage(ctx, inf.Subject, pardonMessage(inf)); err != nil {
		notifications.WithLabelValues("pardon", "failed").Inc()
		return fmt.Errorf("%w: %w", moderation.ErrNotificationFailed, err)
	}
	notifications.WithLabelValues("pardon", "sent").Inc()
	return nil
}
