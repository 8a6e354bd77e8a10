package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/wardenbot/warden/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(mapError(nil))

	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	assert.ErrorIs(mapError(notFound), platform.ErrNotFound)

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	assert.ErrorIs(mapError(forbidden), platform.ErrForbidden)

	other := errors.New("connection reset")
	assert.Equal(other, mapError(other))
}

func TestConvertMessage(t *testing.T) {
	assert := assert.New(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := convertMessage(&discordgo.Message{
		ID:        "1200000000000000001",
		ChannelID: "1200000000000000002",
		Content:   "hello",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "1200000000000000003", Username: "alice"},
		Member:    &discordgo.Member{Roles: []string{"55"}},
		Mentions:  []*discordgo.User{{ID: "9"}},
	})
	assert.Equal("1200000000000000001", msg.ID.String())
	assert.Equal("alice", msg.Author.Username)
	assert.True(msg.Author.HasRole(55))
	assert.True(msg.HasMentions)
	assert.Equal(ts, msg.CreatedAt)
}

func TestTopRolePosition(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "1", Position: 3},
		{ID: "2", Position: 7},
		{ID: "3", Position: 5},
	}
	assert.Equal(t, 5, topRolePosition([]string{"1", "3"}, roles))
	assert.Equal(t, 0, topRolePosition(nil, roles))
}
