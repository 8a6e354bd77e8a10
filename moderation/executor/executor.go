// Performs the platform side of an infraction, and its inverse.
//
// Each call is an independent unit of work with a bounded per-attempt timeout and a bounded number of retries. Failures are returned as a typed Result rather than aborting the caller's flow.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/platform"

	"github.com/cenkalti/backoff/v5"
	"github.com/disgoorg/snowflake/v2"
)

type Outcome int

const (
	Success Outcome = iota
	PermissionDenied
	TargetNotFound
	PlatformError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PermissionDenied:
		return "permission_denied"
	case TargetNotFound:
		return "target_not_found"
	case PlatformError:
		return "platform_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome Outcome
	// wraps the matching moderation sentinel error; nil on success
	Err error
}

func (r Result) OK() bool {
	return r.Outcome == Success
}

type Config struct {
	MutedRole snowflake.ID
	// per attempt
	Timeout    time.Duration
	MaxRetries uint
	// lifetime of suppression entries registered before each action
	SuppressionTTL time.Duration
	// first retry delay; doubles on each attempt
	RetryInterval time.Duration
}

type Executor struct {
	Platform platform.Platform
	Ledger   ledger.Ledger
	Config   Config
	Logger   *slog.Logger
}

func New(p platform.Platform, l ledger.Ledger, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SuppressionTTL <= 0 {
		cfg.SuppressionTTL = ledger.DefaultTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	return &Executor{
		Platform: p,
		Ledger:   l,
		Config:   cfg,
		Logger:   logger.With("system", "executor"),
	}
}

// Apply performs the platform effect of a new infraction. Warnings and notes have no platform effect and always succeed.
func (x *Executor) Apply(ctx context.Context, kind moderation.Kind, subject snowflake.ID, reason string) Result {
	var res Result
	switch kind {
	case moderation.KindMute:
		res = x.suppressed(ctx, subject, []ledger.EventKind{ledger.MemberUpdate}, "add_role", kind, func(ctx context.Context) error {
			return x.Platform.AddRole(ctx, subject, x.Config.MutedRole, reason)
		})
		if res.OK() {
			// not fatal: most muted members are not in a voice channel
			if err := x.Platform.DisconnectVoice(ctx, subject); err != nil {
				x.Logger.Debug("voice disconnect failed", "subject", subject, "err", err)
			}
		}
	case moderation.KindKick:
		res = x.suppressed(ctx, subject, []ledger.EventKind{ledger.MemberRemove}, "kick", kind, func(ctx context.Context) error {
			return x.Platform.Kick(ctx, subject, reason)
		})
	case moderation.KindBan:
		res = x.suppressed(ctx, subject, []ledger.EventKind{ledger.MemberBan, ledger.MemberRemove}, "ban", kind, func(ctx context.Context) error {
			return x.Platform.Ban(ctx, subject, reason)
		})
	case moderation.KindWarning, moderation.KindNote:
		res = Result{Outcome: Success}
	default:
		res = Result{Outcome: PlatformError, Err: fmt.Errorf("%w: unknown type %q", moderation.ErrInvalidInfraction, kind)}
	}
	actionsTotal.WithLabelValues("apply", string(kind), res.Outcome.String()).Inc()
	return res
}

// Reverse lifts the platform effect of an ongoing infraction.
func (x *Executor) Reverse(ctx context.Context, kind moderation.Kind, subject snowflake.ID, reason string) Result {
	var res Result
	switch kind {
	case moderation.KindMute:
		res = x.suppressed(ctx, subject, []ledger.EventKind{ledger.MemberUpdate}, "remove_role", kind, func(ctx context.Context) error {
			return x.Platform.RemoveRole(ctx, subject, x.Config.MutedRole, reason)
		})
	case moderation.KindBan:
		res = x.suppressed(ctx, subject, []ledger.EventKind{ledger.MemberUnban}, "unban", kind, func(ctx context.Context) error {
			return x.Platform.Unban(ctx, subject, reason)
		})
	default:
		res = Result{Outcome: PlatformError, Err: fmt.Errorf("%w: %s has no inverse action", moderation.ErrInvalidInfraction, kind)}
	}
	actionsTotal.WithLabelValues("reverse", string(kind), res.Outcome.String()).Inc()
	return res
}

// suppressed runs a platform call with suppressions registered for the events it will cause. A ledger failure only means the event gets logged as user activity, so it does not block the action. When the call fails the entries are consumed again, so that a real event for the same target is not swallowed.
func (x *Executor) suppressed(ctx context.Context, subject snowflake.ID, kinds []ledger.EventKind, op string, kind moderation.Kind, fn func(ctx context.Context) error) Result {
	for _, k := range kinds {
		if err := x.Ledger.Expect(ctx, k, subject, x.Config.SuppressionTTL); err != nil {
			x.Logger.Warn("failed to register event suppression", "event", k, "subject", subject, "err", err)
		}
	}
	res := x.call(ctx, op, kind, fn)
	if res.OK() {
		return res
	}
	// the caller's ctx may already be done
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.Config.Timeout)
	defer cancel()
	for _, k := range kinds {
		if _, err := x.Ledger.Consume(rctx, k, subject); err != nil {
			x.Logger.Warn("failed to release event suppression", "event", k, "subject", subject, "err", err)
		}
	}
	return res
}

func (x *Executor) backoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = x.Config.RetryInterval
	bo.MaxInterval = 8 * x.Config.RetryInterval
	return bo
}

func (x *Executor) call(ctx context.Context, op string, kind moderation.Kind, fn func(ctx context.Context) error) Result {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, x.Config.Timeout)
		defer cancel()
		err := fn(actx)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, platform.ErrNotFound) || errors.Is(err, platform.ErrForbidden) {
			return struct{}{}, backoff.Permanent(err)
		}
		x.Logger.Warn("platform call failed", "op", op, "type", kind, "attempt", attempt, "err", err)
		return struct{}{}, err
	}, backoff.WithBackOff(x.backoff()), backoff.WithMaxTries(x.Config.MaxRetries+1))
	return classify(err)
}

func classify(err error) Result {
	switch {
	case err == nil:
		return Result{Outcome: Success}
	case errors.Is(err, platform.ErrForbidden):
		return Result{Outcome: PermissionDenied, Err: fmt.Errorf("%w: %w", moderation.ErrPermissionDenied, err)}
	case errors.Is(err, platform.ErrNotFound):
		return Result{Outcome: TargetNotFound, Err: fmt.Errorf("%w: %w", moderation.ErrTargetNotFound, err)}
	default:
		return Result{Outcome: PlatformError, Err: fmt.Errorf("%w: %w", moderation.ErrTransient, err)}
	}
}
