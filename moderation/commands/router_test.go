package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
)

const (
	testChannel snowflake.ID = 700
	otherChan   snowflake.ID = 701
	staffRole   snowflake.ID = 800
)

func testRouter() (*Router, *platform.MockPlatform, *[]string) {
	p := platform.NewMockPlatform(1)
	r := NewRouter(p, "!", nil)
	var seen []string
	r.Add(Command{
		Name:    "echo",
		Aliases: []string{"say"},
		Usage:   "echo <text>",
		Handler: func(inv *Invocation) error {
			if len(inv.Args) == 0 {
				return inv.Usage()
			}
			seen = append(seen, inv.Joined(0))
			return inv.Reply(inv.Joined(0))
		},
	})
	r.Add(Command{
		Name:     "secret",
		Usage:    "secret",
		Roles:    []snowflake.ID{staffRole},
		Channels: []snowflake.ID{testChannel},
		Handler: func(inv *Invocation) error {
			seen = append(seen, "secret")
			return nil
		},
	})
	r.Add(Command{
		Name:  "broken",
		Usage: "broken",
		Handler: func(inv *Invocation) error {
			return errors.New("database exploded")
		},
	})
	r.Add(Command{
		Name:  "panics",
		Usage: "panics",
		Handler: func(inv *Invocation) error {
			panic("oops")
		},
	})
	return r, p, &seen
}

func message(channel snowflake.ID, content string, roles ...snowflake.ID) platform.Message {
	return platform.Message{
		ID:        99,
		ChannelID: channel,
		Author:    platform.Member{ID: 2000, Roles: roles},
		Content:   content,
	}
}

func lastReply(p *platform.MockPlatform, channel snowflake.ID) string {
	msgs := p.ChannelMessages(channel)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

func TestRouterDispatch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	r, p, seen := testRouter()

	r.Dispatch(ctx, message(testChannel, "!echo hello   world"))
	r.Dispatch(ctx, message(testChannel, "!SAY again"))
	assert.Equal([]string{"hello world", "again"}, *seen)
	assert.Equal("again", lastReply(p, testChannel))

	// not commands
	r.Dispatch(ctx, message(testChannel, "echo hello"))
	r.Dispatch(ctx, message(testChannel, "!"))
	r.Dispatch(ctx, message(testChannel, "!unknown thing"))
	bot := message(testChannel, "!echo from a bot")
	bot.Author.Bot = true
	r.Dispatch(ctx, bot)
	assert.Len(*seen, 2)

	assert.True(r.IsCommand("!say hi"))
	assert.False(r.IsCommand("!nope"))
	assert.False(r.IsCommand("say hi"))
}

func TestRouterChecks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	r, p, seen := testRouter()

	r.Dispatch(ctx, message(testChannel, "!secret"))
	assert.Empty(*seen)
	assert.Contains(lastReply(p, testChannel), "required role")

	r.Dispatch(ctx, message(otherChan, "!secret", staffRole))
	assert.Empty(*seen)
	assert.Contains(lastReply(p, otherChan), platform.ChannelMention(testChannel))

	r.Dispatch(ctx, message(testChannel, "!secret", staffRole))
	assert.Equal([]string{"secret"}, *seen)
}

func TestRouterErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	r, p, _ := testRouter()

	r.Dispatch(ctx, message(testChannel, "!echo"))
	assert.Equal(":x: usage: `!echo <text>`", lastReply(p, testChannel))

	// internal failures are not echoed back
	r.Dispatch(ctx, message(testChannel, "!broken"))
	assert.NotContains(lastReply(p, testChannel), "database")
	assert.Contains(lastReply(p, testChannel), ":x:")

	assert.NotPanics(func() {
		r.Dispatch(ctx, message(testChannel, "!panics"))
	})
	assert.Contains(lastReply(p, testChannel), ":x:")
}

func TestRouterDuplicateName(t *testing.T) {
	r, _, _ := testRouter()
	assert.Panics(t, func() {
		r.Add(Command{Name: "say", Handler: func(*Invocation) error { return nil }})
	})
}

func TestRouterRegister(t *testing.T) {
	r, p, seen := testRouter()
	ev := platform.NewEvents(nil)
	r.Register(ev)
	ev.EmitMessageCreate(context.Background(), message(testChannel, "!echo via events"))
	assert.Equal(t, []string{"via events"}, *seen)
	assert.Equal(t, 1, p.CallCount(platform.OpSendMessage))
}

func TestRouterCheck(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	r, p, seen := testRouter()
	r.AddCheck(func(inv *Invocation) error {
		if inv.Message.ChannelID == otherChan {
			return ErrBlocked
		}
		return nil
	})

	r.Dispatch(ctx, message(otherChan, "!echo quiet"))
	assert.Empty(*seen)
	assert.Empty(p.ChannelMessages(otherChan))

	r.Dispatch(ctx, message(testChannel, "!echo loud"))
	assert.Equal([]string{"loud"}, *seen)
}
