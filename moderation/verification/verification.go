// Member verification in the checkpoint channel, and self-service announcement subscriptions.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenbot/warden/config"
	"github.com/wardenbot/warden/moderation/commands"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
)

const (
	// bot messages in the checkpoint channel, other than the reminder, are removed after this
	botMessageDelay = 10 * time.Second
	// how long verification instructions stay up
	instructionsDelay = 20 * time.Second
	// how far back to look for the previous reminder
	reminderLookback = 10
)

type Verification struct {
	Platform platform.Platform
	ModLog   *modlog.ModLog
	Router   *commands.Router
	Config   config.Config
	Logger   *slog.Logger

	now func() time.Time

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	pending sync.WaitGroup
}

func New(p platform.Platform, ml *modlog.ModLog, r *commands.Router, cfg config.Config, logger *slog.Logger) *Verification {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verification{
		Platform: p,
		ModLog:   ml,
		Router:   r,
		Config:   cfg,
		Logger:   logger.With("component", "verification"),
		now:      time.Now,
		closing:  make(chan struct{}),
	}
}

// Register adds the verification commands to the router, and the checkpoint listener to the event bus.
func (v *Verification) Register(ev *platform.Events) {
	v.Router.Add(commands.Command{
		Name:     "accept",
		Aliases:  []string{"verify", "verified", "accepted"},
		Usage:    "accept",
		Channels: []snowflake.ID{v.Config.Channels.Verification},
		Handler:  v.accept,
	})
	v.Router.Add(commands.Command{
		Name:     "subscribe",
		Usage:    "subscribe",
		Channels: []snowflake.ID{v.Config.Channels.BotCommands},
		Handler:  v.subscribe,
	})
	v.Router.Add(commands.Command{
		Name:     "unsubscribe",
		Usage:    "unsubscribe",
		Channels: []snowflake.ID{v.Config.Channels.BotCommands},
		Handler:  v.unsubscribe,
	})
	v.Router.AddCheck(v.checkpointOnly)
	ev.OnMessageCreate(v.onMessage)
}

// Only accept may be used in the checkpoint channel, except by staff. Other commands are dropped silently and the message is cleaned up by onMessage.
func (v *Verification) checkpointOnly(inv *commands.Invocation) error {
	if inv.Message.ChannelID != v.Config.Channels.Verification {
		return nil
	}
	author := inv.Author()
	if inv.Command.Name == "accept" || author.HasAnyRole(v.Config.StaffRoles()) {
		return nil
	}
	return commands.ErrBlocked
}

func (v *Verification) pingMessage() string {
	msg := fmt.Sprintf("@everyone To verify that you have read our rules, please type `%saccept`.", v.Config.Prefix)
	if len(v.Config.Roles.Admins) > 0 {
		msg += fmt.Sprintf(" If you encounter any problems during the verification process, ping the %s role in this channel.",
			platform.RoleMention(v.Config.Roles.Admins[0]))
	}
	return msg
}

func (v *Verification) welcomeMessage() string {
	msg := "Hello! Welcome to the server, and thanks for verifying yourself!\n\n"
	if v.Config.Moderation.RulesURL != "" {
		msg += fmt.Sprintf("For your records, you accepted our rules, here: <%s>\nFeel free to review them at any point!\n\n", v.Config.Moderation.RulesURL)
	}
	if v.Config.Channels.Announcements != 0 && v.Config.Channels.BotCommands != 0 {
		msg += fmt.Sprintf("Additionally, if you'd like to receive notifications for the announcements we post in %s "+
			"from time to time, you can send `%ssubscribe` to %s at any time to assign yourself the **Announcements** role. "+
			"We'll mention this role every time we make an announcement.\n\n"+
			"If you'd like to unsubscribe from the announcement notifications, simply send `%sunsubscribe` to %s.",
			platform.ChannelMention(v.Config.Channels.Announcements),
			v.Config.Prefix, platform.ChannelMention(v.Config.Channels.BotCommands),
			v.Config.Prefix, platform.ChannelMention(v.Config.Channels.BotCommands))
	}
	return msg
}

func (v *Verification) accept(inv *commands.Invocation) error {
	author := inv.Author()
	logger := v.Logger.With("member", author.ID)
	defer func() {
		if err := v.ModLog.DeleteQuietly(inv.Ctx, inv.Message.ChannelID, inv.Message.ID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			logger.Warn("failed to delete accept message", "err", err)
		}
	}()

	if author.HasRole(v.Config.Roles.Verified) {
		return nil
	}
	if err := v.Platform.AddRole(inv.Ctx, author.ID, v.Config.Roles.Verified, "Accepted the rules"); err != nil {
		return fmt.Errorf("granting verified role: %w", err)
	}
	verificationsAccepted.Inc()
	logger.Info("member accepted the rules")

	if err := v.Platform.SendDirectMessage(inv.Ctx, author.ID, v.welcomeMessage()); err != nil {
		logger.Info("failed to send welcome message", "err", err)
	}
	return nil
}

func (v *Verification) subscribe(inv *commands.Invocation) error {
	author := inv.Author()
	if author.HasRole(v.Config.Roles.Announcements) {
		return inv.Reply(author.Mention() + " You're already subscribed!")
	}
	if err := v.Platform.AddRole(inv.Ctx, author.ID, v.Config.Roles.Announcements, "Subscribed to announcements"); err != nil {
		return fmt.Errorf("granting announcements role: %w", err)
	}
	subscriptions.WithLabelValues("subscribe").Inc()
	return inv.Reply(fmt.Sprintf("%s Subscribed to %s notifications.", author.Mention(), platform.ChannelMention(v.Config.Channels.Announcements)))
}

func (v *Verification) unsubscribe(inv *commands.Invocation) error {
	author := inv.Author()
	if !author.HasRole(v.Config.Roles.Announcements) {
		return inv.Reply(author.Mention() + " You're already unsubscribed!")
	}
	if err := v.Platform.RemoveRole(inv.Ctx, author.ID, v.Config.Roles.Announcements, "Unsubscribed from announcements"); err != nil {
		return fmt.Errorf("removing announcements role: %w", err)
	}
	subscriptions.WithLabelValues("unsubscribe").Inc()
	return inv.Reply(fmt.Sprintf("%s Unsubscribed from %s notifications.", author.Mention(), platform.ChannelMention(v.Config.Channels.Announcements)))
}

// onMessage polices the checkpoint channel: anything other than accept gets removed, with instructions for unverified members.
func (v *Verification) onMessage(ctx context.Context, msg platform.Message) {
	if msg.ChannelID != v.Config.Channels.Verification {
		return
	}
	if msg.Author.Bot {
		if msg.Author.ID == v.Platform.BotUserID() && msg.Content == v.pingMessage() {
			return
		}
		v.deleteAfter(msg.ChannelID, msg.ID, botMessageDelay)
		return
	}
	logger := v.Logger.With("member", msg.Author.ID, "message", msg.ID)

	if msg.HasMentions {
		logger.Info("mentions posted in checkpoint channel")
		e := modlog.Entry{
			Icon:  modlog.IconMentioned,
			Title: "User/Role mentioned in " + platform.ChannelMention(msg.ChannelID),
		}
		e.Add("", fmt.Sprintf("%s sent a message in %s that contained user and/or role mentions.", msg.Author.Mention(), platform.ChannelMention(msg.ChannelID)))
		e.Add("Original message", msg.Content)
		v.ModLog.Alert(ctx, e)
	}

	if cmd, ok := v.Router.Match(msg.Content); ok && cmd.Name == "accept" {
		return
	}
	if msg.Author.HasAnyRole(v.Config.StaffRoles()) {
		return
	}
	if msg.Author.HasRole(v.Config.Roles.Verified) {
		logger.Info("verified member posted in checkpoint channel")
		return
	}

	reply, err := v.Platform.SendMessage(ctx, msg.ChannelID, fmt.Sprintf(
		"%s Please type `%saccept` to verify that you accept our rules, and gain access to the rest of the server.",
		msg.Author.Mention(), v.Config.Prefix))
	if err != nil {
		logger.Warn("failed to send verification instructions", "err", err)
	} else {
		v.deleteAfter(msg.ChannelID, reply, instructionsDelay)
	}
	if err := v.Platform.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		logger.Warn("failed to delete checkpoint chatter", "err", err)
	}
}

// deleteAfter removes a message once delay has passed, unless the component is closed first.
func (v *Verification) deleteAfter(channel, message snowflake.ID, delay time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.pending.Add(1)
	go func() {
		defer v.pending.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-v.closing:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := v.ModLog.DeleteQuietly(ctx, channel, message); err != nil && !errors.Is(err, platform.ErrNotFound) {
			v.Logger.Warn("failed to delete checkpoint message", "message", message, "err", err)
		}
	}()
}

// Close drops any pending delayed deletions and waits for in-flight ones.
func (v *Verification) Close() {
	v.mu.Lock()
	if !v.closed {
		v.closed = true
		close(v.closing)
	}
	v.mu.Unlock()
	v.pending.Wait()
}
