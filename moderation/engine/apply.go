package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/executor"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/moderation/recordstore"
	"github.com/wardenbot/warden/platform"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type ApplyResult struct {
	// as created; Active is cleared if the platform action failed and the record was deactivated
	Infraction *moderation.Infraction
	Action     executor.Result
	// the record was deleted because the bot lacks permissions
	RolledBack bool
	Scheduled  bool
	// another path deactivated the record while the platform action was in flight, so the effect was lifted again
	Superseded bool
	// whether the subject was messaged, and whether delivery succeeded
	NotifyAttempted bool
	Notified        bool
	Entry           modlog.Entry
}

func (r *ApplyResult) OK() bool {
	return r.Action.OK()
}

// Apply creates an infraction and performs its platform effect.
//
// Errors are returned only when no platform action was attempted: invalid input, an existing active infraction of the same type (AlreadyActiveError), or a store failure. A failed platform action is reported in the result's Action instead. A permission failure deletes the new record; any other failure on an ongoing kind marks it inactive, so there is never an active record without its platform effect.
func (eng *Engine) Apply(ctx context.Context, req moderation.NewInfraction) (*ApplyResult, error) {
	ctx, span := tracer.Start(ctx, "Apply")
	defer span.End()
	span.SetAttributes(attribute.String("type", string(req.Kind)), attribute.String("subject", req.Subject.String()))

	if err := req.Validate(); err != nil {
		return nil, err
	}
	logger := eng.Logger.With("type", req.Kind, "subject", req.Subject)

	if req.Kind.Ongoing() {
		existing, err := recordstore.ListActive(ctx, eng.Store, req.Kind, req.Subject)
		if err != nil {
			return nil, fmt.Errorf("checking for active infractions: %w", err)
		}
		if len(existing) > 0 {
			return nil, &moderation.AlreadyActiveError{Existing: existing[0]}
		}
	}

	inf, err := eng.Store.Create(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store create failed")
		return nil, fmt.Errorf("creating infraction: %w", err)
	}
	logger = logger.With("infraction", inf.ID)
	span.SetAttributes(attribute.Int64("infraction", inf.ID))
	res := &ApplyResult{Infraction: inf}

	// kicks and bans remove the shared guild, so notify first
	if !inf.Hidden && inf.Kind.Notifiable() {
		res.NotifyAttempted = true
		if err := eng.notifyInfraction(ctx, inf); err != nil {
			logger.Info("infraction notification not delivered", "err", err)
		} else {
			res.Notified = true
		}
	}

	res.Action = eng.Executor.Apply(ctx, inf.Kind, inf.Subject, inf.Reason)
	switch res.Action.Outcome {
	case executor.Success:
		if inf.Kind.Ongoing() && eng.liftIfDeactivated(ctx, inf, logger) {
			res.Superseded = true
			inf.Active = false
		} else if inf.TimeBound() {
			res.Scheduled = eng.Scheduler.Schedule(inf.ID, *inf.ExpiresAt)
		}
	case executor.PermissionDenied:
		logger.Warn("failed to apply infraction: bot lacks permissions", "err", res.Action.Err)
		if err := eng.Store.Delete(ctx, inf.ID); err != nil {
			logger.Error("failed to roll back infraction record", "err", err)
		} else {
			res.RolledBack = true
		}
	default:
		logger.Error("failed to apply infraction", "outcome", res.Action.Outcome, "err", res.Action.Err)
		if inf.Kind.Ongoing() {
			if _, err := eng.Store.Deactivate(ctx, inf.ID); err != nil && !errors.Is(err, moderation.ErrNotActive) {
				logger.Error("failed to deactivate infraction after apply failure", "err", err)
			} else {
				inf.Active = false
			}
		}
	}
	if !res.OK() {
		span.RecordError(res.Action.Err)
	}

	res.Entry = eng.applyEntry(inf, res)
	eng.modLog(ctx, res.Entry)
	infractionsApplied.WithLabelValues(string(inf.Kind), res.Action.Outcome.String()).Inc()
	logger.Info("infraction applied", "outcome", res.Action.Outcome, "expires", moderation.FormatExpiry(inf.ExpiresAt, eng.now()), "notified", res.Notified)
	return res, nil
}

func (eng *Engine) applyEntry(inf *moderation.Infraction, res *ApplyResult) modlog.Entry {
	title := "applied"
	if !res.OK() {
		title = "failed to apply"
	}
	e := modlog.Entry{
		Icon:   applyIcon(inf.Kind),
		Title:  fmt.Sprintf("Infraction %s: %s", title, inf.Kind),
		Footer: fmt.Sprintf("ID %d", inf.ID),
	}
	e.Add("Member", fmt.Sprintf("%s (`%s`)", platform.Mention(inf.Subject), inf.Subject))
	e.Add("Actor", platform.Mention(inf.Actor))
	if res.NotifyAttempted {
		if res.Notified {
			e.Add("DM", "Sent")
		} else {
			e.Add("DM", "**Failed**")
		}
	}
	e.Add("Reason", inf.Reason)
	if inf.Kind.Ongoing() {
		e.Add("Expires", moderation.FormatExpiry(inf.ExpiresAt, eng.now()))
	}
	if !res.OK() {
		e.Add("Failure", failureText(res.Action))
		e.Ping = eng.failurePing()
	}
	return e
}
