package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardenbot/warden/moderation"
	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/platform"

	"github.com/stretchr/testify/assert"
)

const (
	mutedRole = 500
	subject   = 100
)

func testExecutor() (*Executor, *platform.MockPlatform, *ledger.MemLedger) {
	p := platform.NewMockPlatform(1)
	p.AddMember(platform.Member{ID: subject, Username: "alice"})
	l := ledger.NewMemLedger(100, time.Minute)
	x := New(p, l, Config{
		MutedRole:     mutedRole,
		Timeout:       time.Second,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	}, nil)
	return x, p, l
}

func TestApplyMuteRegistersSuppression(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	x, p, l := testExecutor()

	res := x.Apply(ctx, moderation.KindMute, subject, "spam")
	assert.True(res.OK())
	assert.NoError(res.Err)
	assert.True(p.HasRole(subject, mutedRole))
	assert.Equal(1, p.CallCount(platform.OpDisconnectVoice))

	ok, err := l.Consume(ctx, ledger.MemberUpdate, subject)
	assert.NoError(err)
	assert.True(ok)

	res = x.Reverse(ctx, moderation.KindMute, subject, "expired")
	assert.True(res.OK())
	assert.False(p.HasRole(subject, mutedRole))
}

func TestApplyBanSuppressesBothEvents(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	x, p, l := testExecutor()

	assert.True(x.Apply(ctx, moderation.KindBan, subject, "raid").OK())
	assert.True(p.IsBanned(subject))

	for _, k := range []ledger.EventKind{ledger.MemberBan, ledger.MemberRemove} {
		ok, err := l.Consume(ctx, k, subject)
		assert.NoError(err)
		assert.True(ok, k)
	}

	assert.True(x.Reverse(ctx, moderation.KindBan, subject, "appeal").OK())
	ok, _ := l.Consume(ctx, ledger.MemberUnban, subject)
	assert.True(ok)
}

func TestVoiceDisconnectFailureIsNotFatal(t *testing.T) {
	x, p, _ := testExecutor()
	p.FailWith(platform.OpDisconnectVoice, errors.New("not in voice"), -1)
	assert.True(t, x.Apply(context.Background(), moderation.KindMute, subject, "").OK())
}

func TestPointInTimeKinds(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	x, p, _ := testExecutor()

	assert.True(x.Apply(ctx, moderation.KindWarning, subject, "").OK())
	assert.True(x.Apply(ctx, moderation.KindNote, subject, "").OK())

	res := x.Reverse(ctx, moderation.KindKick, subject, "")
	assert.Equal(PlatformError, res.Outcome)
	assert.ErrorIs(res.Err, moderation.ErrInvalidInfraction)
	assert.Equal(0, p.CallCount(platform.OpKick))
}

func TestOutcomeClassification(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, p, _ := testExecutor()
	p.FailWith(platform.OpBan, platform.ErrForbidden, -1)
	res := x.Apply(ctx, moderation.KindBan, subject, "")
	assert.Equal(PermissionDenied, res.Outcome)
	assert.ErrorIs(res.Err, moderation.ErrPermissionDenied)
	// terminal errors are not retried
	assert.Equal(1, p.CallCount(platform.OpBan))

	res = x.Apply(ctx, moderation.KindKick, 999, "")
	assert.Equal(TargetNotFound, res.Outcome)
	assert.ErrorIs(res.Err, moderation.ErrTargetNotFound)
	assert.Equal(1, p.CallCount(platform.OpKick))
}

func TestTransientFailuresAreRetried(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, p, _ := testExecutor()
	p.FailWith(platform.OpAddRole, errors.New("502 bad gateway"), 2)
	assert.True(x.Apply(ctx, moderation.KindMute, subject, "").OK())
	assert.Equal(3, p.CallCount(platform.OpAddRole))

	x, p, _ = testExecutor()
	p.FailWith(platform.OpAddRole, errors.New("502 bad gateway"), -1)
	res := x.Apply(ctx, moderation.KindMute, subject, "")
	assert.Equal(PlatformError, res.Outcome)
	assert.ErrorIs(res.Err, moderation.ErrTransient)
	assert.Equal(3, p.CallCount(platform.OpAddRole))
}

func TestAttemptTimeout(t *testing.T) {
	x, p, _ := testExecutor()
	x.Config.Timeout = 10 * time.Millisecond
	x.Config.MaxRetries = 0
	p.Latency = time.Second

	start := time.Now()
	res := x.Apply(context.Background(), moderation.KindKick, subject, "")
	assert.Equal(t, PlatformError, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFailedActionReleasesSuppression(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	x, p, l := testExecutor()
	p.FailWith(platform.OpBan, platform.ErrForbidden, -1)
	assert.Equal(PermissionDenied, x.Apply(ctx, moderation.KindBan, subject, "").Outcome)
	assert.Equal(0, l.Len())

	// a real ban by a moderator right after is not swallowed
	for _, k := range []ledger.EventKind{ledger.MemberBan, ledger.MemberRemove} {
		ok, err := l.Consume(ctx, k, subject)
		assert.NoError(err)
		assert.False(ok, k)
	}

	p.FailWith(platform.OpRemoveRole, errors.New("502 bad gateway"), -1)
	assert.Equal(PlatformError, x.Reverse(ctx, moderation.KindMute, subject, "").Outcome)
	ok, err := l.Consume(ctx, ledger.MemberUpdate, subject)
	assert.NoError(err)
	assert.False(ok)
}
