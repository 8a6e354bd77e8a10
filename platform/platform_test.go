package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
)

func TestMockPlatformEchoesEvents(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	ev := NewEvents(nil)
	var updates, removes, bans int
	ev.OnMemberUpdate(func(ctx context.Context, m Member) { updates++ })
	ev.OnMemberRemove(func(ctx context.Context, m Member) { removes++ })
	ev.OnMemberBan(func(ctx context.Context, u snowflake.ID) { bans++ })

	p := NewMockPlatform(1)
	p.Events = ev
	p.AddMember(Member{ID: 100, Username: "alice"})

	assert.NoError(p.AddRole(ctx, 100, 5, "mute"))
	assert.True(p.HasRole(100, 5))
	assert.Equal(1, updates)

	assert.NoError(p.Ban(ctx, 100, "spam"))
	assert.True(p.IsBanned(100))
	assert.Equal(1, bans)
	assert.Equal(1, removes)

	_, err := p.Member(ctx, 100)
	assert.ErrorIs(err, ErrNotFound)

	assert.NoError(p.Unban(ctx, 100, "appeal"))
	assert.ErrorIs(p.Unban(ctx, 100, "again"), ErrNotFound)
	assert.Equal(2, p.CallCount(OpUnban))
}

func TestMockPlatformFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	p := NewMockPlatform(1)
	p.AddMember(Member{ID: 100})
	boom := errors.New("boom")

	p.FailWith(OpAddRole, boom, 2)
	assert.ErrorIs(p.AddRole(ctx, 100, 5, ""), boom)
	assert.ErrorIs(p.AddRole(ctx, 100, 5, ""), boom)
	assert.NoError(p.AddRole(ctx, 100, 5, ""))
	assert.Equal(3, p.CallCount(OpAddRole))

	p.FailWith(OpKick, ErrForbidden, -1)
	for range 3 {
		assert.ErrorIs(p.Kick(ctx, 100, ""), ErrForbidden)
	}
	p.FailWith(OpKick, nil, 0)
	assert.NoError(p.Kick(ctx, 100, ""))
}

func TestEventsRecoverPanics(t *testing.T) {
	ev := NewEvents(nil)
	var after bool
	ev.OnMessageCreate(func(ctx context.Context, msg Message) { panic("handler bug") })
	ev.OnMessageCreate(func(ctx context.Context, msg Message) { after = true })

	assert.NotPanics(t, func() {
		ev.EmitMessageCreate(context.Background(), Message{Content: "hi"})
	})
	assert.True(t, after)
}

func TestRecentMessagesNewestFirst(t *testing.T) {
	assert := assert.New(t)
	p := NewMockPlatform(1)
	for _, c := range []string{"a", "b", "c"} {
		p.PostMessage(Message{ChannelID: 9, Content: c})
	}
	msgs, err := p.RecentMessages(context.Background(), 9, 2)
	assert.NoError(err)
	if assert.Len(msgs, 2) {
		assert.Equal("c", msgs[0].Content)
		assert.Equal("b", msgs[1].Content)
	}
}

func TestMentions(t *testing.T) {
	assert.Equal(t, "<@42>", Mention(42))
	assert.Equal(t, "<#7>", ChannelMention(7))
	assert.Equal(t, "<@&3>", RoleMention(3))
}
