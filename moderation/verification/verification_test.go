package verification

import (
	"context"
	"testing"
	"time"

	"github.com/wardenbot/warden/config"
	"github.com/wardenbot/warden/moderation/commands"
	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	botID         snowflake.ID = 1
	checkpoint    snowflake.ID = 10
	botCommands   snowflake.ID = 11
	announcements snowflake.ID = 12
	userLog       snowflake.ID = 13
	modAlerts     snowflake.ID = 14

	verifiedRole snowflake.ID = 20
	announceRole snowflake.ID = 21
	modRole      snowflake.ID = 22
	adminRole    snowflake.ID = 23

	newcomer snowflake.ID = 1000
)

type fixture struct {
	Platform *platform.MockPlatform
	Events   *platform.Events
	V        *Verification
}

func newFixture(t *testing.T) *fixture {
	p := platform.NewMockPlatform(botID)
	ev := platform.NewEvents(nil)
	p.Events = ev
	p.AddMember(platform.Member{ID: newcomer, Username: "newcomer"})

	cfg := config.Default()
	cfg.Roles.Verified = verifiedRole
	cfg.Roles.Announcements = announceRole
	cfg.Roles.Moderators = []snowflake.ID{modRole}
	cfg.Roles.Admins = []snowflake.ID{adminRole}
	cfg.Channels = config.Channels{
		Verification:  checkpoint,
		BotCommands:   botCommands,
		Announcements: announcements,
		UserLog:       userLog,
		ModAlerts:     modAlerts,
	}
	cfg.Moderation.RulesURL = "https://example.com/rules"

	l := ledger.NewMemLedger(100, time.Minute)
	ml := modlog.New(p, l, cfg.Channels, nil)
	ml.Register(ev)
	r := commands.NewRouter(p, cfg.Prefix, nil)
	r.Register(ev)
	v := New(p, ml, r, cfg, nil)
	v.Register(ev)
	t.Cleanup(v.Close)
	return &fixture{Platform: p, Events: ev, V: v}
}

// post places a member message in a channel and emits it.
func (f *fixture) post(channel snowflake.ID, content string, roles ...snowflake.ID) platform.Message {
	msg := f.Platform.PostMessage(platform.Message{
		ChannelID: channel,
		Author:    platform.Member{ID: newcomer, Roles: roles},
		Content:   content,
	})
	f.Events.EmitMessageCreate(context.Background(), msg)
	return msg
}

func contents(msgs []platform.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestAccept(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture(t)

	f.post(checkpoint, "!accept")

	assert.True(f.Platform.HasRole(newcomer, verifiedRole))
	dms := f.Platform.DirectMessages(newcomer)
	require.Len(dms, 1)
	assert.Contains(dms[0], "https://example.com/rules")
	assert.Contains(dms[0], "`!subscribe`")

	// command message removed, without instructions and without a user log entry
	assert.Empty(f.Platform.ChannelMessages(checkpoint))
	for _, c := range contents(f.Platform.ChannelMessages(userLog)) {
		assert.NotContains(c, "Message deleted")
	}

	// accepting twice is harmless
	f.post(checkpoint, "!verify", verifiedRole)
	assert.Equal(1, f.Platform.CallCount(platform.OpAddRole))
	assert.Empty(f.Platform.ChannelMessages(checkpoint))
}

func TestAcceptOnlyInCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.post(botCommands, "!accept")
	assert.False(t, f.Platform.HasRole(newcomer, verifiedRole))
	assert.Contains(t, f.Platform.ChannelMessages(botCommands)[1].Content, platform.ChannelMention(checkpoint))
}

func TestCheckpointChatter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	f := newFixture(t)

	chatter := f.post(checkpoint, "hello? how do i get in")
	msgs := f.Platform.ChannelMessages(checkpoint)
	require.Len(msgs, 1)
	assert.NotEqual(chatter.ID, msgs[0].ID)
	assert.Contains(msgs[0].Content, "<@1000> Please type `!accept`")
	assert.Empty(f.Platform.ChannelMessages(modAlerts))

	// other commands are not run in the checkpoint channel, and are cleaned up like chatter
	f.post(checkpoint, "!subscribe")
	assert.False(f.Platform.HasRole(newcomer, announceRole))
	assert.Len(f.Platform.ChannelMessages(checkpoint), 2)

	mention := f.Platform.PostMessage(platform.Message{
		ChannelID:   checkpoint,
		Author:      platform.Member{ID: newcomer},
		Content:     "hey <@2000>",
		HasMentions: true,
	})
	f.Events.EmitMessageCreate(context.Background(), mention)
	alerts := f.Platform.ChannelMessages(modAlerts)
	require.Len(alerts, 1)
	assert.Contains(alerts[0].Content, "contained user and/or role mentions")
	assert.Contains(alerts[0].Content, "hey <@2000>")

	// staff and verified members are left alone
	before := len(f.Platform.ChannelMessages(checkpoint))
	f.post(checkpoint, "welcome everyone", modRole)
	f.post(checkpoint, "i'm already in", verifiedRole)
	assert.Len(f.Platform.ChannelMessages(checkpoint), before+2)
}

func TestSubscribe(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t)

	f.post(botCommands, "!subscribe")
	assert.True(f.Platform.HasRole(newcomer, announceRole))
	msgs := contents(f.Platform.ChannelMessages(botCommands))
	assert.Equal("<@1000> Subscribed to <#12> notifications.", msgs[len(msgs)-1])

	f.post(botCommands, "!subscribe", announceRole)
	msgs = contents(f.Platform.ChannelMessages(botCommands))
	assert.Equal("<@1000> You're already subscribed!", msgs[len(msgs)-1])

	f.post(botCommands, "!unsubscribe", announceRole)
	assert.False(f.Platform.HasRole(newcomer, announceRole))
	msgs = contents(f.Platform.ChannelMessages(botCommands))
	assert.Equal("<@1000> Unsubscribed from <#12> notifications.", msgs[len(msgs)-1])

	f.post(botCommands, "!unsubscribe")
	msgs = contents(f.Platform.ChannelMessages(botCommands))
	assert.Equal("<@1000> You're already unsubscribed!", msgs[len(msgs)-1])
}

func TestRemind(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	ping := f.V.pingMessage()
	assert.Contains(ping, "`!accept`")
	assert.Contains(ping, "<@&23>")

	require.NoError(f.V.Remind(ctx))
	msgs := f.Platform.ChannelMessages(checkpoint)
	require.Len(msgs, 1)
	assert.Equal(ping, msgs[0].Content)

	// a fresh reminder is left in place
	require.NoError(f.V.Remind(ctx))
	assert.Len(f.Platform.ChannelMessages(checkpoint), 1)

	// a stale one is replaced
	f.V.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	require.NoError(f.V.Remind(ctx))
	msgs = f.Platform.ChannelMessages(checkpoint)
	require.Len(msgs, 1)
	assert.Equal(2, f.Platform.CallCount(platform.OpSendMessage))
	assert.Equal(1, f.Platform.CallCount(platform.OpDeleteMessage))
}

func TestRunStops(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- f.V.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(f.Platform.ChannelMessages(checkpoint)) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestDelayedDeletesDroppedOnClose(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	msg := f.Platform.PostMessage(platform.Message{
		ChannelID: checkpoint,
		Author:    platform.Member{ID: 99, Bot: true},
		Content:   "some other bot",
	})
	f.Events.EmitMessageCreate(context.Background(), msg)
	f.V.Close()
	assert.Len(t, f.Platform.ChannelMessages(checkpoint), 1)

	// closed: nothing new is scheduled
	f.Events.EmitMessageCreate(context.Background(), msg)
	f.V.Close()
}
