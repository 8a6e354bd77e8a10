package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Outcome of a single reconciliation sweep. Slices hold infraction ids.
type ReconcileReport struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	// active infractions seen in the store
	Active int `json:"active"`
	// timers registered for active infractions which had none
	Scheduled []int64 `json:"scheduled"`
	// timers replaced because the stored expiry changed
	Rescheduled []int64 `json:"rescheduled"`
	// overdue infractions deactivated
	Expired []int64 `json:"expired"`
	// infractions whose platform effect was already gone
	Drifted []int64 `json:"drifted"`
	// timers dropped because the store no longer holds the infraction as active
	Canceled []int64  `json:"canceled"`
	Errors   []string `json:"errors,omitempty"`
}

func (r *ReconcileReport) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// platform view used for drift detection; each lookup is done at most once per sweep
type platformView struct {
	eng     *Engine
	bans    map[snowflake.ID]bool
	bansErr error
	fetched bool
}

func (v *platformView) banned(ctx context.Context, user snowflake.ID) (bool, error) {
	if !v.fetched {
		v.fetched = true
		ids, err := v.eng.Platform.Bans(ctx)
		if err != nil {
			v.bansErr = err
		} else {
			v.bans = make(map[snowflake.ID]bool, len(ids))
			for _, id := range ids {
				v.bans[id] = true
			}
		}
	}
	if v.bansErr != nil {
		return false, v.bansErr
	}
	return v.bans[user], nil
}

// drift returns a note describing why the platform effect of inf is already absent, or "" if it is present or can not be determined.
func (v *platformView) drift(ctx context.Context, inf *moderation.Infraction) (string, error) {
	switch inf.Kind {
	case moderation.KindBan:
		banned, err := v.banned(ctx, inf.Subject)
		if err != nil {
			return "", err
		}
		if !banned {
			return "Ban is no longer present in the guild ban list.", nil
		}
	case moderation.KindMute:
		member, err := v.eng.Platform.Member(ctx, inf.Subject)
		if errors.Is(err, platform.ErrNotFound) {
			// not in the guild; the mute is re-applied if they rejoin
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if !member.HasRole(v.eng.Config.MutedRole) {
			return "Muted role was removed from the member.", nil
		}
	}
	return "", nil
}

// Reconcile audits the timer set against the record store and live platform state. It is safe to run concurrently with timer fires and pardons; concurrent sweeps are serialized.
func (eng *Engine) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	eng.reconcileMu.Lock()
	defer eng.reconcileMu.Unlock()

	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()

	start := time.Now()
	now := eng.now()
	report := &ReconcileReport{
		RunID:   uuid.NewString(),
		Started: now,
	}
	logger := eng.Logger.With("run", report.RunID)
	span.SetAttributes(attribute.String("run", report.RunID))

	actives, err := eng.Store.List(ctx, moderation.Filter{Active: moderation.ActiveOnly()})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing active infractions failed")
		return nil, fmt.Errorf("listing active infractions: %w", err)
	}
	report.Active = len(actives)

	view := &platformView{eng: eng}
	activeIDs := make(map[int64]bool, len(actives))
	for i := range actives {
		inf := &actives[i]
		activeIDs[inf.ID] = true
		if !inf.Kind.Ongoing() {
			continue
		}

		if inf.ExpiresAt != nil && !inf.ExpiresAt.After(now) {
			res, err := eng.Deactivate(ctx, inf.ID, DeactivateOptions{
				Trigger: TriggerExpiry,
				Reason:  "Infraction expired",
				Notify:  true,
				SendLog: true,
			})
			if err != nil {
				report.fail("expiring %d: %v", inf.ID, err)
			} else if res.Deactivated {
				report.Expired = append(report.Expired, inf.ID)
			}
			continue
		}

		// a young infraction may still be waiting on its platform action
		var note string
		var err error
		if now.Sub(inf.CreatedAt) >= eng.Config.DriftGrace {
			note, err = view.drift(ctx, inf)
		}
		if err != nil {
			// unknown platform state is not drift
			report.fail("checking platform state for %d: %v", inf.ID, err)
		} else if note != "" {
			res, err := eng.Deactivate(ctx, inf.ID, DeactivateOptions{
				Trigger: TriggerDrift,
				Reason:  "Platform effect removed externally",
				Notify:  false,
				SendLog: true,
				Note:    note,
			})
			if err != nil {
				report.fail("deactivating drifted %d: %v", inf.ID, err)
			} else if res.Deactivated {
				report.Drifted = append(report.Drifted, inf.ID)
			}
			continue
		}

		if inf.ExpiresAt == nil {
			continue
		}
		at, ok := eng.Scheduler.At(inf.ID)
		switch {
		case !ok:
			eng.Scheduler.Schedule(inf.ID, *inf.ExpiresAt)
			report.Scheduled = append(report.Scheduled, inf.ID)
		case !at.Equal(*inf.ExpiresAt):
			eng.Scheduler.Schedule(inf.ID, *inf.ExpiresAt)
			report.Rescheduled = append(report.Rescheduled, inf.ID)
		}
	}

	// timers without an active record. The listing above is a snapshot, so confirm with the store before dropping a timer registered after it was taken.
	for _, t := range eng.Scheduler.Pending() {
		if activeIDs[t.ID] {
			continue
		}
		inf, err := eng.Store.Get(ctx, t.ID)
		if err != nil && !errors.Is(err, moderation.ErrNotFound) {
			report.fail("checking timer %d: %v", t.ID, err)
			continue
		}
		if err == nil && inf.Active {
			continue
		}
		if eng.Scheduler.Cancel(t.ID) {
			report.Canceled = append(report.Canceled, t.ID)
		}
	}

	report.Duration = time.Since(start)
	reconcileRuns.Inc()
	reconcileDuration.Observe(report.Duration.Seconds())
	reconcileActions.WithLabelValues("scheduled").Add(float64(len(report.Scheduled)))
	reconcileActions.WithLabelValues("rescheduled").Add(float64(len(report.Rescheduled)))
	reconcileActions.WithLabelValues("expired").Add(float64(len(report.Expired)))
	reconcileActions.WithLabelValues("drifted").Add(float64(len(report.Drifted)))
	reconcileActions.WithLabelValues("canceled").Add(float64(len(report.Canceled)))

	logger.Info("reconciliation sweep complete",
		"active", report.Active,
		"scheduled", len(report.Scheduled),
		"rescheduled", len(report.Rescheduled),
		"expired", len(report.Expired),
		"drifted", len(report.Drifted),
		"canceled", len(report.Canceled),
		"errors", len(report.Errors),
		"duration", report.Duration,
	)
	eng.lastReport.Store(report)
	return report, nil
}

// LastReport returns the most recent completed sweep, or nil.
func (eng *Engine) LastReport() *ReconcileReport {
	return eng.lastReport.Load()
}
