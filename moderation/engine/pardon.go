package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/recordstore"

	"github.com/disgoorg/snowflake/v2"
)

type PardonResult struct {
	// id of the first active infraction
	ID int64
	// the first active infraction, which ran the full protocol. Deactivated is false when an expiry or another pardon got there first.
	Primary *DeactivateResult
	// any further active infractions of the same type, marked inactive without platform action or notification
	Extra []int64
	// failures deactivating extras
	Errors []error
}

func (r *PardonResult) Failed() bool {
	return r.Primary.Failed() || len(r.Errors) > 0
}

// Pardon ends a subject's active infraction of the given kind early.
//
// Normally there is exactly one. If the store holds several (which can happen after out-of-band edits), only the first gets the inverse platform action and a notification; the platform can not hold a ban or role twice, and one message is enough.
func (eng *Engine) Pardon(ctx context.Context, kind moderation.Kind, subject, actor snowflake.ID, reason string) (*PardonResult, error) {
	ctx, span := tracer.Start(ctx, "Pardon")
	defer span.End()

	actives, err := recordstore.ListActive(ctx, eng.Store, kind, subject)
	if err != nil {
		return nil, fmt.Errorf("listing active infractions: %w", err)
	}
	if len(actives) == 0 {
		return nil, fmt.Errorf("%w: %s for %s", moderation.ErrNoActiveInfraction, kind, subject)
	}
	logger := eng.Logger.With("type", kind, "subject", subject)

	auditReason := reason
	if auditReason == "" {
		auditReason = fmt.Sprintf("Pardoned by %s", actor)
	}
	primary, err := eng.Deactivate(ctx, actives[0].ID, DeactivateOptions{
		Trigger: TriggerPardon,
		Reason:  auditReason,
		Actor:   actor,
		Notify:  true,
	})
	if err != nil {
		return nil, err
	}
	out := &PardonResult{ID: actives[0].ID, Primary: primary}

	if len(actives) > 1 {
		logger.Warn("found more than one active infraction; deactivating the extras too", "count", len(actives))
		ids := make([]string, 0, len(actives))
		ids = append(ids, fmt.Sprint(actives[0].ID))
		for _, inf := range actives[1:] {
			ids = append(ids, fmt.Sprint(inf.ID))
			eng.Scheduler.Cancel(inf.ID)
			_, err := eng.Store.Deactivate(ctx, inf.ID)
			if err != nil && !errors.Is(err, moderation.ErrNotActive) {
				logger.Error("failed to deactivate extra infraction", "infraction", inf.ID, "err", err)
				out.Errors = append(out.Errors, fmt.Errorf("infraction %d: %w", inf.ID, err))
				continue
			}
			out.Extra = append(out.Extra, inf.ID)
			deactivations.WithLabelValues(string(kind), string(TriggerPardon)).Inc()
		}
		primary.Entry.Footer = "Infraction IDs: " + strings.Join(ids, ", ")
		primary.Entry.Set("Note", fmt.Sprintf("Found multiple **active** %s infractions in the database.", kind))
	}

	if primary.Deactivated {
		if reason != "" {
			primary.Entry.Add("Pardon reason", reason)
		}
		if len(out.Errors) > 0 {
			primary.Entry.Set("Failure", "See bot's logs for details.")
			primary.Entry.Ping = eng.failurePing()
		}
		eng.modLog(ctx, primary.Entry)
	}
	return out, nil
}
