package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/config"
	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/engine"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
)

// Infraction commands, backed by the lifecycle engine.
type Moderation struct {
	Engine   *engine.Engine
	Platform platform.Platform
	Config   config.Config
	Logger   *slog.Logger

	now func() time.Time
}

func NewModeration(eng *engine.Engine, p platform.Platform, cfg config.Config, logger *slog.Logger) *Moderation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Moderation{
		Engine:   eng,
		Platform: p,
		Config:   cfg,
		Logger:   logger.With("component", "moderation-commands"),
		now:      time.Now,
	}
}

type infractionCmd struct {
	kind     moderation.Kind
	hidden   bool
	duration bool
}

func (m *Moderation) Register(r *Router) {
	staff := m.Config.StaffRoles()
	admins := m.Config.AdminRoles()
	if len(admins) == 0 {
		admins = staff
	}

	add := func(name string, aliases []string, usage string, roles []snowflake.ID, s infractionCmd) {
		r.Add(Command{
			Name:    name,
			Aliases: aliases,
			Usage:   usage,
			Roles:   roles,
			Handler: func(inv *Invocation) error { return m.apply(inv, s) },
		})
	}
	add("warn", nil, "warn <user> [reason]", staff, infractionCmd{kind: moderation.KindWarning})
	add("note", nil, "note <user> [reason]", staff, infractionCmd{kind: moderation.KindNote, hidden: true})
	add("kick", nil, "kick <user> [reason]", staff, infractionCmd{kind: moderation.KindKick})
	add("shadow_kick", []string{"skick"}, "shadow_kick <user> [reason]", staff, infractionCmd{kind: moderation.KindKick, hidden: true})
	add("ban", nil, "ban <user> [reason]", staff, infractionCmd{kind: moderation.KindBan})
	add("shadow_ban", []string{"sban"}, "shadow_ban <user> [reason]", staff, infractionCmd{kind: moderation.KindBan, hidden: true})
	add("tempban", nil, "tempban <user> <duration> [reason]", staff, infractionCmd{kind: moderation.KindBan, duration: true})
	add("shadow_tempban", []string{"stempban"}, "shadow_tempban <user> <duration> [reason]", staff, infractionCmd{kind: moderation.KindBan, hidden: true, duration: true})
	add("mute", nil, "mute <user> [reason]", staff, infractionCmd{kind: moderation.KindMute})
	add("tempmute", nil, "tempmute <user> <duration> [reason]", staff, infractionCmd{kind: moderation.KindMute, duration: true})
	add("shadow_tempmute", []string{"smute"}, "shadow_tempmute <user> <duration> [reason]", staff, infractionCmd{kind: moderation.KindMute, hidden: true, duration: true})

	r.Add(Command{
		Name:    "unmute",
		Usage:   "unmute <user> [reason]",
		Roles:   staff,
		Handler: func(inv *Invocation) error { return m.pardon(inv, moderation.KindMute) },
	})
	r.Add(Command{
		Name:    "unban",
		Usage:   "unban <user> [reason]",
		Roles:   staff,
		Handler: func(inv *Invocation) error { return m.pardon(inv, moderation.KindBan) },
	})
	r.Add(Command{
		Name:    "infraction",
		Aliases: []string{"infr", "infractions"},
		Usage:   "infraction <edit|search> ...",
		Roles:   staff,
		Handler: m.infraction,
	})
	r.Add(Command{
		Name:    "reconcile",
		Usage:   "reconcile",
		Roles:   admins,
		Handler: m.reconcile,
	})
}

func (m *Moderation) apply(inv *Invocation, s infractionCmd) error {
	minArgs := 1
	if s.duration {
		minArgs = 2
	}
	if len(inv.Args) < minArgs {
		return inv.Usage()
	}
	subject, err := ParseUser(inv.Args[0])
	if err != nil {
		return err
	}
	var expires *time.Time
	if s.duration {
		t, err := ParseExpiry(inv.Args[1], m.now())
		if err != nil {
			return err
		}
		expires = &t
	}
	reason := inv.Joined(minArgs)

	if s.kind == moderation.KindKick || s.kind == moderation.KindBan {
		if err := m.checkHierarchy(inv, subject, s.kind); err != nil {
			return err
		}
	}

	res, err := m.Engine.Apply(inv.Ctx, moderation.NewInfraction{
		Kind:      s.kind,
		Subject:   subject,
		Actor:     inv.Author().ID,
		Reason:    reason,
		ExpiresAt: expires,
		Hidden:    s.hidden,
	})
	var aae *moderation.AlreadyActiveError
	if errors.As(err, &aae) {
		return inv.Reply(fmt.Sprintf(":x: According to my records, this user already has a %s infraction. See infraction **#%d**.", s.kind, aae.Existing.ID))
	}
	if err != nil {
		return err
	}
	return inv.Reply(m.confirmation(inv, res))
}

// The actor's highest role must be above the target's. Targets who are not members (eg, banning someone who already left) are not checked.
func (m *Moderation) checkHierarchy(inv *Invocation, subject snowflake.ID, kind moderation.Kind) error {
	if subject == inv.Author().ID {
		return &ReplyError{Msg: fmt.Sprintf("you can't %s yourself", kind)}
	}
	target, err := m.Platform.Member(inv.Ctx, subject)
	if errors.Is(err, platform.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetching target member: %w", err)
	}
	actor, err := m.Platform.Member(inv.Ctx, inv.Author().ID)
	if err != nil {
		return fmt.Errorf("fetching actor member: %w", err)
	}
	if target.TopRolePosition >= actor.TopRolePosition {
		m.Logger.Info("role hierarchy check failed", "actor", actor.ID, "target", target.ID, "type", kind)
		return &ReplyError{Msg: fmt.Sprintf("I can't %s users above or equal to you in the role hierarchy.", kind)}
	}
	return nil
}

func dmPrefix(attempted, delivered bool) string {
	switch {
	case !attempted:
		return ""
	case delivered:
		return modlog.IconSentMail + " "
	default:
		return modlog.IconFailmail + " "
	}
}

func (m *Moderation) confirmation(inv *Invocation, res *engine.ApplyResult) string {
	inf := res.Infraction
	confirm := modlog.IconOK + " applied"
	expiry := ""
	if inf.Kind.Ongoing() {
		if inf.ExpiresAt != nil {
			expiry = " until " + moderation.FormatTimestamp(*inf.ExpiresAt)
		} else {
			expiry = " permanently"
		}
	}
	if !res.OK() {
		confirm = modlog.IconFailure + " failed to apply"
		expiry = ""
	}
	return fmt.Sprintf("%s%s **%s** to %s%s%s.",
		dmPrefix(res.NotifyAttempted, res.Notified), confirm, inf.Kind, platform.Mention(inf.Subject), expiry, m.history(inv, inf.Subject))
}

// Total infraction count, only disclosed in staff channels.
func (m *Moderation) history(inv *Invocation, subject snowflake.ID) string {
	if !m.Config.IsStaffChannel(inv.Message.ChannelID) {
		return ""
	}
	all, err := m.Engine.Store.List(inv.Ctx, moderation.Filter{Subject: subject})
	if err != nil {
		m.Logger.Warn("failed to count infractions", "subject", subject, "err", err)
		return ""
	}
	if len(all) == 1 {
		return " (1 infraction total)"
	}
	return fmt.Sprintf(" (%d infractions total)", len(all))
}

func (m *Moderation) pardon(inv *Invocation, kind moderation.Kind) error {
	if len(inv.Args) < 1 {
		return inv.Usage()
	}
	subject, err := ParseUser(inv.Args[0])
	if err != nil {
		return err
	}
	res, err := m.Engine.Pardon(inv.Ctx, kind, subject, inv.Author().ID, inv.Joined(1))
	if errors.Is(err, moderation.ErrNoActiveInfraction) {
		return inv.Reply(fmt.Sprintf(":x: There's no active %s infraction for user %s.", kind, platform.Mention(subject)))
	}
	if err != nil {
		return err
	}
	if !res.Primary.Deactivated {
		return inv.Reply(fmt.Sprintf(":x: Infraction **#%d** for %s had already been deactivated.", res.ID, platform.Mention(subject)))
	}
	confirm := modlog.IconOK + " pardoned"
	if res.Failed() {
		confirm = modlog.IconFailure + " failed to pardon"
	}
	return inv.Reply(fmt.Sprintf("%s%s infraction **%s** for %s.",
		dmPrefix(res.Primary.NotifyAttempted, res.Primary.Notified), confirm, kind, platform.Mention(subject)))
}

func (m *Moderation) reconcile(inv *Invocation) error {
	report, err := m.Engine.Reconcile(inv.Ctx)
	if err != nil {
		return err
	}
	return inv.Reply(fmt.Sprintf("%s reconciled %d active infractions: %d scheduled, %d rescheduled, %d expired, %d drifted, %d canceled, %d errors.",
		modlog.IconOK, report.Active, len(report.Scheduled), len(report.Rescheduled), len(report.Expired), len(report.Drifted), len(report.Canceled), len(report.Errors)))
}
