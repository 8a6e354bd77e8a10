// Infraction lifecycle: applying new infractions, expiring and pardoning them, and keeping the in-memory timer set consistent with the record store and live platform state.
//
// The record store's conditional active→inactive transition is the only serialization point for deactivation. Timer fires, pardons, reconciliation and rejoin handling may all race on the same infraction; whichever wins the compare-and-set performs the inverse platform action, and the rest are silent no-ops.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/executor"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/moderation/recordstore"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("engine")

type Config struct {
	MutedRole snowflake.ID
	// mentioned in the mod log when an action fails
	ModeratorRole     snowflake.ID
	ReconcileInterval time.Duration
	// a rejoining member whose mute has less than this remaining is unmuted instead
	RejoinThreshold time.Duration
	// bounds the work done by a single timer fire
	FireTimeout time.Duration
	// infractions younger than this are not checked for drift, their platform effect may still be in flight. Defaults to FireTimeout.
	DriftGrace time.Duration
	// optional, linked from infraction notifications
	RulesURL       string
	AppealsContact string
}

// Store, Executor and Platform must be non-nil. Construct with New, which also wires the Scheduler.
type Engine struct {
	Store     recordstore.RecordStore
	Executor  *executor.Executor
	Platform  platform.Platform
	ModLog    *modlog.ModLog
	Scheduler *Scheduler
	Config    Config
	Logger    *slog.Logger

	now         func() time.Time
	reconcileMu sync.Mutex
	lastReport  atomic.Pointer[ReconcileReport]
}

func New(store recordstore.RecordStore, exec *executor.Executor, p platform.Platform, ml *modlog.ModLog, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 10 * time.Minute
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = time.Minute
	}
	if cfg.DriftGrace <= 0 {
		cfg.DriftGrace = cfg.FireTimeout
	}
	eng := &Engine{
		Store:    store,
		Executor: exec,
		Platform: p,
		ModLog:   ml,
		Config:   cfg,
		Logger:   logger.With("system", "engine"),
		now:      time.Now,
	}
	eng.Scheduler = NewScheduler(eng.expire, logger)
	return eng
}

// Register attaches the engine's gateway listeners.
func (eng *Engine) Register(ev *platform.Events) {
	ev.OnMemberJoin(eng.Rejoin)
}

// Run performs a reconciliation sweep immediately, then on every interval until ctx is done.
func (eng *Engine) Run(ctx context.Context) error {
	eng.sweep(ctx)

	ticker := time.NewTicker(eng.Config.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			eng.sweep(ctx)
		}
	}
}

func (eng *Engine) sweep(ctx context.Context) {
	if _, err := eng.Reconcile(ctx); err != nil {
		eng.Logger.Error("reconciliation sweep failed", "err", err)
	}
}

// Stop cancels all pending timers and waits for in-flight deactivations.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.Scheduler.Stop(ctx)
}

// timer callback
func (eng *Engine) expire(ctx context.Context, id int64) {
	ctx, cancel := context.WithTimeout(ctx, eng.Config.FireTimeout)
	defer cancel()
	_, err := eng.Deactivate(ctx, id, DeactivateOptions{
		Trigger: TriggerExpiry,
		Reason:  "Infraction expired",
		Notify:  true,
		SendLog: true,
	})
	if err != nil {
		eng.Logger.Error("failed to expire infraction", "infraction", id, "err", err)
	}
}

// liftIfDeactivated re-reads an infraction after its platform effect was (re)applied. A deactivation which won the store CAS while the action was in flight ran its inverse too early, so the effect is lifted again here. Reports whether that happened.
func (eng *Engine) liftIfDeactivated(ctx context.Context, inf *moderation.Infraction, logger *slog.Logger) bool {
	cur, err := eng.Store.Get(ctx, inf.ID)
	if err != nil {
		logger.Warn("failed to re-read infraction after platform action", "err", err)
		return false
	}
	if cur.Active {
		return false
	}
	eng.Scheduler.Cancel(inf.ID)
	logger.Warn("infraction deactivated while its platform effect was being applied; lifting it again")
	res := eng.Executor.Reverse(ctx, inf.Kind, inf.Subject, fmt.Sprintf("Infraction #%d was deactivated while being applied", inf.ID))
	if !res.OK() && res.Outcome != executor.TargetNotFound {
		logger.Error("failed to lift superseded infraction", "outcome", res.Outcome, "err", res.Err)
	}
	lateLifts.WithLabelValues(string(inf.Kind)).Inc()
	return true
}

func (eng *Engine) modLog(ctx context.Context, e modlog.Entry) {
	if eng.ModLog == nil {
		return
	}
	eng.ModLog.Mod(ctx, e)
}

func (eng *Engine) failurePing() string {
	if eng.Config.ModeratorRole == 0 {
		return ""
	}
	return platform.RoleMention(eng.Config.ModeratorRole)
}
