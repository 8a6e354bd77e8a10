package commands

import (
	"errors"
	"strings"

	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
)

var (
	ErrMissingRole = errors.New("you do not have the required role to use this command")
	// returned by a router Check to drop a command silently
	ErrBlocked = errors.New("command blocked")
)

type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: `" + e.Usage + "`"
}

// A single argument which failed to parse.
type ArgumentError struct {
	Arg string
	Msg string
}

func (e *ArgumentError) Error() string {
	return "`" + e.Arg + "` " + e.Msg
}

type ChannelError struct {
	Allowed []snowflake.ID
}

func (e *ChannelError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, c := range e.Allowed {
		names[i] = platform.ChannelMention(c)
	}
	return "this command can only be used in " + strings.Join(names, ", ")
}

// Replied to the invoker. Internal failures are not described in detail.
func userMessage(err error) string {
	var ue *UsageError
	var ae *ArgumentError
	var ce *ChannelError
	var re *ReplyError
	switch {
	case errors.As(err, &re):
		return re.Msg
	case errors.As(err, &ue), errors.As(err, &ae), errors.As(err, &ce), errors.Is(err, ErrMissingRole):
		return err.Error()
	default:
		return "something went wrong while running that command"
	}
}

// A handler failure with a specific message for the invoker.
type ReplyError struct {
	Msg string
}

func (e *ReplyError) Error() string {
	return e.Msg
}
