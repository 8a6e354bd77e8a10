package engine

import (
	"context"
	"fmt"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
)

// Edit changes an infraction's expiry and/or reason. A new expiry reschedules the timer (firing immediately if it is already past); making the infraction permanent cancels it. Expiry can only be edited on active, ongoing infractions.
func (eng *Engine) Edit(ctx context.Context, id int64, upd moderation.Update, actor snowflake.ID) (*moderation.Infraction, error) {
	ctx, span := tracer.Start(ctx, "Edit")
	defer span.End()

	old, err := eng.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.SetExpiry {
		if !old.Kind.Ongoing() {
			return nil, fmt.Errorf("%w: %s infractions can not expire", moderation.ErrInvalidInfraction, old.Kind)
		}
		if !old.Active {
			return nil, fmt.Errorf("%w: can not edit the expiration of an expired infraction", moderation.ErrNotActive)
		}
	}
	if !upd.SetExpiry && upd.Reason == nil {
		return nil, fmt.Errorf("%w: nothing to edit", moderation.ErrInvalidInfraction)
	}

	inf, err := eng.Store.Update(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("updating infraction %d: %w", id, err)
	}

	if upd.SetExpiry && inf.Active {
		if inf.ExpiresAt == nil {
			eng.Scheduler.Cancel(inf.ID)
		} else {
			eng.Scheduler.Schedule(inf.ID, *inf.ExpiresAt)
		}
	}

	now := eng.now()
	e := modlog.Entry{
		Icon:   modlog.IconUpdate,
		Title:  "Infraction edited",
		Footer: fmt.Sprintf("ID: %d", inf.ID),
	}
	e.Add("Member", platform.Mention(inf.Subject))
	e.Add("Actor", platform.Mention(actor))
	if upd.SetExpiry {
		e.Add("Previous expiry", moderation.FormatExpiry(old.ExpiresAt, now))
		e.Add("New expiry", moderation.FormatExpiry(inf.ExpiresAt, now))
	}
	if upd.Reason != nil {
		e.Add("Previous reason", old.Reason)
		e.Add("New reason", inf.Reason)
	}
	eng.modLog(ctx, e)
	eng.Logger.Info("infraction edited", "infraction", inf.ID, "actor", actor, "expiry", upd.SetExpiry)
	return inf, nil
}
