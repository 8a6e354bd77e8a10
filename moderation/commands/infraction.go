package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/platform"
)

// search output is capped to keep replies under the platform message limit
const searchLimit = 10

func (m *Moderation) infraction(inv *Invocation) error {
	if len(inv.Args) < 1 {
		return inv.Usage()
	}
	sub := &Invocation{
		Ctx:     inv.Ctx,
		Router:  inv.Router,
		Message: inv.Message,
		Args:    inv.Args[1:],
	}
	switch strings.ToLower(inv.Args[0]) {
	case "edit", "e":
		sub.Command = &Command{Name: "infraction edit", Usage: "infraction edit <id|l|last|recent> <duration|p|permanent> [reason]"}
		return m.edit(sub)
	case "search", "s":
		sub.Command = &Command{Name: "infraction search", Usage: "infraction search <user|reason> <query>"}
		return m.search(sub)
	default:
		return inv.Usage()
	}
}

// resolveID accepts a numeric id, or one of the keywords meaning the invoker's most recent infraction.
func (m *Moderation) resolveID(inv *Invocation, raw string) (int64, error) {
	switch strings.ToLower(raw) {
	case "l", "last", "recent":
		recent, err := m.Engine.Store.List(inv.Ctx, moderation.Filter{Actor: inv.Author().ID, NewestFirst: true})
		if err != nil {
			return 0, err
		}
		if len(recent) == 0 {
			return 0, &ReplyError{Msg: "Couldn't find most recent infraction; you have never given an infraction."}
		}
		return recent[0].ID, nil
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ArgumentError{Arg: raw, Msg: "is not a valid infraction id"}
	}
	return id, nil
}

// edit takes an id, then optionally a new expiry, then optionally a new reason. If the second argument is neither a duration nor a permanence keyword, everything after the id is the reason.
func (m *Moderation) edit(inv *Invocation) error {
	if len(inv.Args) < 2 {
		return inv.Usage()
	}
	id, err := m.resolveID(inv, inv.Args[0])
	if err != nil {
		return err
	}

	var upd moderation.Update
	reasonFrom := 1
	switch {
	case IsPermanent(inv.Args[1]):
		upd.SetExpiry = true
		reasonFrom = 2
	default:
		if t, err := ParseExpiry(inv.Args[1], m.now()); err == nil {
			upd.SetExpiry = true
			upd.ExpiresAt = &t
			reasonFrom = 2
		}
	}
	if reason := inv.Joined(reasonFrom); reason != "" {
		upd.Reason = &reason
	}

	inf, err := m.Engine.Edit(inv.Ctx, id, upd, inv.Author().ID)
	switch {
	case errors.Is(err, moderation.ErrNotFound):
		return &ReplyError{Msg: fmt.Sprintf("Couldn't find infraction **#%d**.", id)}
	case errors.Is(err, moderation.ErrNotActive):
		return &ReplyError{Msg: "Cannot edit the expiration of an expired infraction."}
	case errors.Is(err, moderation.ErrInvalidInfraction):
		return &ReplyError{Msg: strings.TrimPrefix(err.Error(), moderation.ErrInvalidInfraction.Error()+": ")}
	case err != nil:
		return err
	}

	var changes []string
	if upd.SetExpiry {
		changes = append(changes, "expiry to "+moderation.FormatExpiry(inf.ExpiresAt, m.now()))
	}
	if upd.Reason != nil {
		changes = append(changes, "reason")
	}
	return inv.Reply(fmt.Sprintf("%s Updated the %s of infraction **#%d**.", modlog.IconOK, strings.Join(changes, " and "), inf.ID))
}

func (m *Moderation) search(inv *Invocation) error {
	if len(inv.Args) < 2 {
		return inv.Usage()
	}
	var f moderation.Filter
	var about string
	switch strings.ToLower(inv.Args[0]) {
	case "user", "member", "u":
		subject, err := ParseUser(inv.Args[1])
		if err != nil {
			return err
		}
		f.Subject = subject
		about = platform.Mention(subject)
	case "reason", "r":
		f.Search = inv.Joined(1)
		if _, err := moderation.SearchPattern(f.Search); err != nil {
			return &ArgumentError{Arg: f.Search, Msg: "is not a valid regular expression"}
		}
		about = "`" + f.Search + "`"
	default:
		return inv.Usage()
	}
	f.NewestFirst = true

	found, err := m.Engine.Store.List(inv.Ctx, f)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return inv.Reply(fmt.Sprintf("No infractions found for %s.", about))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%d infraction(s)** found for %s:\n", len(found), about)
	now := m.now()
	for i, inf := range found {
		if i == searchLimit {
			fmt.Fprintf(&sb, "... and %d more", len(found)-searchLimit)
			break
		}
		sb.WriteString(infractionLine(&inf, now.UTC()))
		sb.WriteString("\n")
	}
	return inv.Reply(strings.TrimRight(sb.String(), "\n"))
}

func infractionLine(inf *moderation.Infraction, now time.Time) string {
	state := ""
	if inf.Active {
		state = " (active)"
	}
	line := fmt.Sprintf("**#%d** %s%s for %s by %s on %s", inf.ID, inf.Kind.Title(), state,
		platform.Mention(inf.Subject), platform.Mention(inf.Actor), moderation.FormatTimestamp(inf.CreatedAt))
	if inf.Kind.Ongoing() {
		line += ", expires: " + moderation.FormatExpiry(inf.ExpiresAt, now)
	}
	if inf.Hidden {
		line += ", hidden"
	}
	if inf.Reason != "" {
		line += ": " + inf.Reason
	}
	return line
}
