package moderation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	assert := assert.New(t)

	assert.True(KindMute.Ongoing())
	assert.True(KindBan.Ongoing())
	assert.False(KindKick.Ongoing())
	assert.False(KindWarning.Ongoing())
	assert.False(KindNote.Ongoing())
	assert.False(KindNote.Notifiable())

	k, err := ParseKind("ban")
	assert.NoError(err)
	assert.Equal(KindBan, k)

	_, err = ParseKind("superstar")
	assert.ErrorIs(err, ErrInvalidInfraction)
}

func TestNewInfractionValidate(t *testing.T) {
	assert := assert.New(t)
	soon := time.Now().Add(time.Hour)

	ok := NewInfraction{Kind: KindMute, Subject: 123, ExpiresAt: &soon}
	assert.NoError(ok.Validate())
	assert.True(ok.Active())

	warn := NewInfraction{Kind: KindWarning, Subject: 123}
	assert.NoError(warn.Validate())
	assert.False(warn.Active())

	bad := NewInfraction{Kind: KindKick, Subject: 123, ExpiresAt: &soon}
	assert.ErrorIs(bad.Validate(), ErrInvalidInfraction)

	noSubject := NewInfraction{Kind: KindBan}
	assert.ErrorIs(noSubject.Validate(), ErrInvalidInfraction)
}

func TestInfractionTiming(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()
	past := now.Add(-time.Hour)

	inf := Infraction{Kind: KindBan, Active: true}
	assert.True(inf.Permanent())
	assert.False(inf.TimeBound())
	assert.Equal(time.Duration(0), inf.Remaining(now))

	inf.ExpiresAt = &past
	assert.True(inf.TimeBound())
	assert.Equal(-time.Hour, inf.Remaining(now))

	inf.Active = false
	assert.False(inf.TimeBound())
}

func TestAlreadyActiveError(t *testing.T) {
	err := error(&AlreadyActiveError{Existing: Infraction{ID: 4, Kind: KindMute}})
	assert.True(t, errors.Is(err, ErrAlreadyActive))
	var aae *AlreadyActiveError
	assert.True(t, errors.As(err, &aae))
	assert.Equal(t, int64(4), aae.Existing.ID)
}

func TestFormatExpiry(t *testing.T) {
	assert := assert.New(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal("permanent", FormatExpiry(nil, now))

	later := now.Add(2 * time.Hour)
	assert.Equal("2024-03-01 12:00 UTC (2 hours from now)", FormatExpiry(&later, now))

	earlier := now.Add(-3 * 24 * time.Hour)
	assert.Equal("2024-02-27 10:00 UTC (3 days ago)", FormatExpiry(&earlier, now))

	assert.Equal("Mute", KindMute.Title())
}
