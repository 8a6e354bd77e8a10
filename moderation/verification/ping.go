package verification

import (
	"context"
	"fmt"
	"time"
)

// Run keeps a verification reminder posted in the checkpoint channel, checking immediately and then every ping interval until ctx is done. A reminder older than the configured age is replaced.
func (v *Verification) Run(ctx context.Context) error {
	if v.Config.Channels.Verification == 0 {
		v.Logger.Info("no verification channel configured, not running reminder task")
		<-ctx.Done()
		return nil
	}
	v.remind(ctx)

	ticker := time.NewTicker(v.Config.Verification.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.remind(ctx)
		}
	}
}

func (v *Verification) remind(ctx context.Context) {
	if err := v.Remind(ctx); err != nil {
		v.Logger.Error("verification reminder failed", "err", err)
	}
}

// Remind posts the reminder unless a recent enough one is already among the latest messages.
func (v *Verification) Remind(ctx context.Context) error {
	channel := v.Config.Channels.Verification
	recent, err := v.Platform.RecentMessages(ctx, channel, reminderLookback)
	if err != nil {
		return fmt.Errorf("reading checkpoint history: %w", err)
	}
	ping := v.pingMessage()
	bot := v.Platform.BotUserID()
	for _, msg := range recent {
		if msg.Author.ID != bot || msg.Content != ping {
			continue
		}
		if v.now().Sub(msg.CreatedAt) < v.Config.Verification.ReminderAge {
			return nil
		}
		if err := v.ModLog.DeleteQuietly(ctx, channel, msg.ID); err != nil {
			v.Logger.Warn("failed to delete stale verification reminder", "message", msg.ID, "err", err)
		}
		break
	}
	if _, err := v.Platform.SendMessage(ctx, channel, ping); err != nil {
		return fmt.Errorf("posting verification reminder: %w", err)
	}
	remindersPosted.Inc()
	v.Logger.Info("posted verification reminder")
	return nil
}
