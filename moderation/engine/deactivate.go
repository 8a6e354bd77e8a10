package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/executor"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// What caused a deactivation.
type Trigger string

const (
	TriggerExpiry Trigger = "expiry"
	TriggerPardon Trigger = "pardon"
	// the platform effect was already gone
	TriggerDrift  Trigger = "drift"
	TriggerRejoin Trigger = "rejoin"
)

type DeactivateOptions struct {
	Trigger Trigger
	// audit log reason for the inverse platform action
	Reason string
	// zero for automatic deactivations
	Actor snowflake.ID
	// message the subject, unless the infraction is hidden
	Notify bool
	// post the mod log entry; pardons post their own combined entry instead
	SendLog bool
	// extra context for the mod log, eg why drift was detected
	Note string
}

type DeactivateResult struct {
	// false when another path already deactivated the infraction
	Deactivated bool
	// row as updated by the store; nil when not deactivated
	Infraction *moderation.Infraction
	// zero value when no inverse action was attempted
	Reverse executor.Result
	// whether a notification was attempted, and whether it was delivered
	NotifyAttempted bool
	Notified        bool
	// non-nil when the notification failed; wraps ErrNotificationFailed
	NotifyErr error
	// rendered to the mod log when SendLog is set
	Entry modlog.Entry
}

// Failed reports whether the inverse platform action failed (a missing target is not a failure).
func (r *DeactivateResult) Failed() bool {
	if !r.Deactivated {
		return false
	}
	switch r.Reverse.Outcome {
	case executor.Success, executor.TargetNotFound:
		return false
	}
	return true
}

// Deactivate is the single deactivation protocol shared by timer fires, pardons, reconciliation and rejoin handling.
//
// Any pending timer is canceled first. The store's compare-and-set of active→inactive gates everything after it: if the infraction is no longer active, nothing else happens and the call is a silent no-op (Deactivated is false, error is nil). The inverse platform action and notification are attempted only by the winner; their failures are recorded in the result and logged, never returned.
func (eng *Engine) Deactivate(ctx context.Context, id int64, opts DeactivateOptions) (*DeactivateResult, error) {
	ctx, span := tracer.Start(ctx, "Deactivate")
	defer span.End()
	span.SetAttributes(attribute.Int64("infraction", id), attribute.String("trigger", string(opts.Trigger)))

	logger := eng.Logger.With("infraction", id, "trigger", opts.Trigger)

	eng.Scheduler.Cancel(id)

	inf, err := eng.Store.Deactivate(ctx, id)
	if errors.Is(err, moderation.ErrNotActive) {
		logger.Debug("infraction already inactive")
		deactivationSkipped.WithLabelValues(string(opts.Trigger)).Inc()
		return &DeactivateResult{}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store deactivate failed")
		return nil, fmt.Errorf("deactivating infraction %d: %w", id, err)
	}
	logger = logger.With("type", inf.Kind, "subject", inf.Subject)

	res := &DeactivateResult{
		Deactivated: true,
		Infraction:  inf,
	}

	if inf.Kind.Ongoing() {
		reason := opts.Reason
		if reason == "" {
			reason = fmt.Sprintf("Infraction #%d deactivated (%s)", id, opts.Trigger)
		}
		res.Reverse = eng.Executor.Reverse(ctx, inf.Kind, inf.Subject, reason)
		switch res.Reverse.Outcome {
		case executor.Success:
		case executor.TargetNotFound:
			// the effect is moot: member left, or ban already lifted
			logger.Info("inverse action target not found", "err", res.Reverse.Err)
		default:
			logger.Error("inverse action failed", "outcome", res.Reverse.Outcome, "err", res.Reverse.Err)
			span.RecordError(res.Reverse.Err)
		}
	}

	if opts.Notify && !inf.Hidden && inf.Kind.Notifiable() {
		res.NotifyAttempted = true
		if err := eng.notifyPardon(ctx, inf); err != nil {
			res.NotifyErr = err
			logger.Info("pardon notification not delivered", "err", err)
		} else {
			res.Notified = true
		}
	}

	res.Entry = eng.deactivationEntry(inf, opts, res)
	if opts.SendLog {
		eng.modLog(ctx, res.Entry)
	}

	deactivations.WithLabelValues(string(inf.Kind), string(opts.Trigger)).Inc()
	logger.Info("infraction deactivated", "reverse", res.Reverse.Outcome, "notified", res.Notified)
	return res, nil
}

func (eng *Engine) deactivationEntry(inf *moderation.Infraction, opts DeactivateOptions, res *DeactivateResult) modlog.Entry {
	title := "expired"
	switch opts.Trigger {
	case TriggerPardon:
		title = "pardoned"
	case TriggerDrift:
		title = "removed externally"
	}
	if res.Failed() {
		title = "pardon failed"
		if opts.Trigger == TriggerExpiry {
			title = "expiration failed"
		}
	}

	e := modlog.Entry{
		Icon:   pardonIcon(inf.Kind),
		Title:  fmt.Sprintf("Infraction %s: %s", title, inf.Kind),
		Footer: fmt.Sprintf("ID: %d", inf.ID),
	}
	e.Add("Member", fmt.Sprintf("%s (`%s`)", platform.Mention(inf.Subject), inf.Subject))
	if opts.Actor != 0 {
		e.Add("Actor", platform.Mention(opts.Actor))
	} else {
		e.Add("Actor", platform.Mention(inf.Actor))
	}
	e.Add("Reason", inf.Reason)
	e.Add("Created", moderation.FormatTimestamp(inf.CreatedAt))
	if res.NotifyAttempted {
		if res.Notified {
			e.Add("DM", "Sent")
		} else {
			e.Add("DM", "**Failed**")
		}
	}
	if opts.Note != "" {
		e.Add("Note", opts.Note)
	}
	if res.Failed() {
		e.Add("Failure", failureText(res.Reverse))
		e.Ping = eng.failurePing()
	}
	return e
}

func failureText(r executor.Result) string {
	if r.Outcome == executor.PermissionDenied {
		return "The bot lacks permissions to do this (role hierarchy?)"
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Outcome.String()
}

func applyIcon(k moderation.Kind) string {
	switch k {
	case moderation.KindBan:
		return modlog.IconBan
	case moderation.KindMute:
		return modlog.IconMute
	case moderation.KindKick:
		return modlog.IconKick
	default:
		return modlog.IconWarn
	}
}

func pardonIcon(k moderation.Kind) string {
	switch k {
	case moderation.KindBan:
		return modlog.IconUnban
	case moderation.KindMute:
		return modlog.IconUnmute
	default:
		return modlog.IconOK
	}
}
