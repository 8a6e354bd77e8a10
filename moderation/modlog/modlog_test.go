package modlog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wardenbot/warden/config"
	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
)

const (
	modLogChannel  = 10
	userLogChannel = 11
	alertsChannel  = 12
)

func testModLog() (*ModLog, *platform.MockPlatform, *ledger.MemLedger, *platform.Events) {
	p := platform.NewMockPlatform(1)
	l := ledger.NewMemLedger(100, time.Minute)
	ev := platform.NewEvents(nil)
	m := New(p, l, config.Channels{
		ModLog:    modLogChannel,
		UserLog:   userLogChannel,
		ModAlerts: alertsChannel,
	}, nil)
	m.Register(ev)
	p.Events = ev
	return m, p, l, ev
}

func TestEntryRender(t *testing.T) {
	e := Entry{Icon: IconMute, Title: "Infraction applied: mute", Footer: "ID 7", Ping: "<@&5>"}
	e.Add("Member", "<@100>")
	e.Add("Expires", "")
	e.Add("Reason", "spam")
	e.Set("Reason", "flooding")

	out := e.Render()
	assert.Equal(t, "<@&5>\n:mute: **Infraction applied: mute**\n**Member:** <@100>\n**Reason:** flooding\n-# ID 7", out)

	v, ok := e.Get("Reason")
	assert.True(t, ok)
	assert.Equal(t, "flooding", v)
}

func TestSelfCausedEventsNotLogged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, p, l, _ := testModLog()
	p.AddMember(platform.Member{ID: 100, Username: "alice"})

	// bot-caused: registered before the action
	assert.NoError(l.Expect(ctx, ledger.MemberBan, 100, time.Minute))
	assert.NoError(l.Expect(ctx, ledger.MemberRemove, 100, time.Minute))
	assert.NoError(p.Ban(ctx, 100, "spam"))
	assert.Empty(p.ChannelMessages(userLogChannel))

	// user-caused: someone else unbanned manually
	assert.NoError(p.Unban(ctx, 100, ""))
	msgs := p.ChannelMessages(userLogChannel)
	if assert.Len(msgs, 1) {
		assert.Contains(msgs[0].Content, "User unbanned")
	}
}

func TestMemberJoinAccountAge(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, p, _, ev := testModLog()

	fresh := snowflake.New(time.Now().Add(-time.Hour))
	ev.EmitMemberJoin(ctx, platform.Member{ID: fresh, Username: "newbie"})

	old := snowflake.New(time.Now().Add(-400 * 24 * time.Hour))
	ev.EmitMemberJoin(ctx, platform.Member{ID: old, Username: "veteran"})

	msgs := p.ChannelMessages(userLogChannel)
	if assert.Len(msgs, 2) {
		assert.True(strings.HasPrefix(msgs[0].Content, IconNew))
		assert.Contains(msgs[0].Content, "New account")
		assert.NotContains(msgs[1].Content, "New account")
		assert.Contains(msgs[1].Content, "veteran")
	}
}

func TestMessageDeleteSuppression(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, p, l, ev := testModLog()

	msg := p.PostMessage(platform.Message{ChannelID: 50, Content: "hello"})
	assert.NoError(l.Expect(ctx, ledger.MessageDelete, msg.ID, time.Minute))
	assert.NoError(p.DeleteMessage(ctx, 50, msg.ID))
	assert.Empty(p.ChannelMessages(userLogChannel))

	ev.EmitMessageDelete(ctx, 50, 999)
	assert.Len(p.ChannelMessages(userLogChannel), 1)

	// deletes in log channels are ignored
	ev.EmitMessageDelete(ctx, userLogChannel, 998)
	assert.Len(p.ChannelMessages(userLogChannel), 1)
}

func TestSendSkipsUnconfiguredChannel(t *testing.T) {
	m, p, _, _ := testModLog()
	m.Send(context.Background(), 0, Entry{Title: "nowhere"})
	assert.Equal(t, 0, p.CallCount(platform.OpSendMessage))
}
