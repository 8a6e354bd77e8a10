package engine

import (
	"context"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/executor"
	"github.com/wardenbot/warden/moderation/recordstore"
	"github.com/wardenbot/warden/platform"
)

// Rejoin re-applies an active mute when its subject joins the guild again, since leaving drops all roles. If less than the rejoin threshold remains, the mute is deactivated instead.
func (eng *Engine) Rejoin(ctx context.Context, member platform.Member) {
	actives, err := recordstore.ListActive(ctx, eng.Store, moderation.KindMute, member.ID)
	if err != nil {
		eng.Logger.Error("failed to check active mutes on join", "subject", member.ID, "err", err)
		return
	}
	if len(actives) == 0 {
		return
	}
	inf := actives[0]
	logger := eng.Logger.With("infraction", inf.ID, "subject", member.ID)

	if inf.ExpiresAt != nil && inf.Remaining(eng.now()) < eng.Config.RejoinThreshold {
		logger.Info("deactivating instead of re-applying; mute is about to expire")
		_, err := eng.Deactivate(ctx, inf.ID, DeactivateOptions{
			Trigger: TriggerRejoin,
			Reason:  "Infraction expired",
			Notify:  true,
			SendLog: true,
		})
		if err != nil {
			logger.Error("failed to deactivate mute on rejoin", "err", err)
		}
		return
	}

	res := eng.Executor.Apply(ctx, moderation.KindMute, member.ID, "Re-applied mute on rejoin")
	if res.Outcome != executor.Success {
		logger.Error("failed to re-apply mute on rejoin", "outcome", res.Outcome, "err", res.Err)
		return
	}
	if eng.liftIfDeactivated(ctx, &inf, logger) {
		return
	}
	logger.Info("re-applied mute upon rejoining")
}
