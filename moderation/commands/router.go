// Prefix command dispatch for the bot.
//
// Commands are declared in an explicit table (name, aliases, required roles, channel restriction), modeled on urfave/cli command definitions. The router applies the role and channel checks uniformly before any handler runs, so handlers only deal with their own arguments.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
)

type HandlerFunc func(inv *Invocation) error

type Command struct {
	Name    string
	Aliases []string
	// shown in usage errors, without the prefix
	Usage string
	// if non-empty, the invoker must hold at least one of these roles
	Roles []snowflake.ID
	// if non-empty, the command is only accepted in these channels
	Channels []snowflake.ID
	Handler  HandlerFunc
}

// A single parsed command message.
type Invocation struct {
	Ctx     context.Context
	Router  *Router
	Command *Command
	Message platform.Message
	// whitespace separated arguments after the command name
	Args []string
}

// Joined returns the arguments from position i onward, or "" when there are none.
func (inv *Invocation) Joined(i int) string {
	if i >= len(inv.Args) {
		return ""
	}
	return strings.Join(inv.Args[i:], " ")
}

func (inv *Invocation) Author() platform.Member {
	return inv.Message.Author
}

func (inv *Invocation) Reply(content string) error {
	_, err := inv.Router.Platform.SendMessage(inv.Ctx, inv.Message.ChannelID, content)
	return err
}

func (inv *Invocation) Usage() error {
	return &UsageError{Usage: inv.Router.Prefix + inv.Command.Usage}
}

// A Check runs before every command, ahead of the per-command role and channel checks. Returning ErrBlocked drops the invocation without a reply.
type Check func(inv *Invocation) error

type Router struct {
	Platform platform.Platform
	Prefix   string
	Logger   *slog.Logger

	commands []*Command
	lookup   map[string]*Command
	checks   []Check
}

func NewRouter(p platform.Platform, prefix string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		Platform: p,
		Prefix:   prefix,
		Logger:   logger.With("component", "commands"),
		lookup:   make(map[string]*Command),
	}
}

// Add registers a command. Panics on a duplicate name or alias, which is a wiring bug.
func (r *Router) Add(cmd Command) {
	c := &cmd
	for _, name := range append([]string{c.Name}, c.Aliases...) {
		name = strings.ToLower(name)
		if _, ok := r.lookup[name]; ok {
			panic(fmt.Sprintf("duplicate command name: %s", name))
		}
		r.lookup[name] = c
	}
	r.commands = append(r.commands, c)
}

func (r *Router) AddCheck(c Check) {
	r.checks = append(r.checks, c)
}

func (r *Router) Lookup(name string) (*Command, bool) {
	c, ok := r.lookup[strings.ToLower(name)]
	return c, ok
}

// Match returns the registered command invoked by the message content, if any.
func (r *Router) Match(content string) (*Command, bool) {
	name, _, ok := r.split(content)
	if !ok {
		return nil, false
	}
	return r.Lookup(name)
}

func (r *Router) IsCommand(content string) bool {
	_, ok := r.Match(content)
	return ok
}

func (r *Router) split(content string) (string, []string, bool) {
	if !strings.HasPrefix(content, r.Prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, r.Prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

func (r *Router) Register(ev *platform.Events) {
	ev.OnMessageCreate(r.Dispatch)
}

// Dispatch parses and runs a command message. Messages from bots, and messages which are not commands, are ignored.
func (r *Router) Dispatch(ctx context.Context, msg platform.Message) {
	if msg.Author.Bot {
		return
	}
	name, args, ok := r.split(msg.Content)
	if !ok {
		return
	}
	cmd, ok := r.Lookup(name)
	if !ok {
		return
	}
	inv := &Invocation{
		Ctx:     ctx,
		Router:  r,
		Command: cmd,
		Message: msg,
		Args:    args,
	}
	logger := r.Logger.With("command", cmd.Name, "author", msg.Author.ID, "channel", msg.ChannelID)

	if err := r.check(inv); err != nil {
		if errors.Is(err, ErrBlocked) {
			commandsInvoked.WithLabelValues(cmd.Name, "blocked").Inc()
			return
		}
		commandsInvoked.WithLabelValues(cmd.Name, "denied").Inc()
		logger.Info("command check failed", "err", err)
		r.replyError(inv, err)
		return
	}

	err := r.run(inv)
	if err != nil {
		commandsInvoked.WithLabelValues(cmd.Name, "error").Inc()
		var ue *UsageError
		var ae *ArgumentError
		if errors.As(err, &ue) || errors.As(err, &ae) {
			logger.Info("bad command arguments", "err", err)
		} else {
			logger.Error("command failed", "err", err)
		}
		r.replyError(inv, err)
		return
	}
	commandsInvoked.WithLabelValues(cmd.Name, "ok").Inc()
}

func (r *Router) run(inv *Invocation) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.Logger.Error("command handler panic", "command", inv.Command.Name, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error running %s", inv.Command.Name)
		}
	}()
	return inv.Command.Handler(inv)
}

func (r *Router) check(inv *Invocation) error {
	for _, c := range r.checks {
		if err := c(inv); err != nil {
			return err
		}
	}
	cmd := inv.Command
	if len(cmd.Channels) > 0 && !slices.Contains(cmd.Channels, inv.Message.ChannelID) {
		return &ChannelError{Allowed: cmd.Channels}
	}
	if len(cmd.Roles) > 0 {
		author := inv.Author()
		if !author.HasAnyRole(cmd.Roles) {
			return ErrMissingRole
		}
	}
	return nil
}

func (r *Router) replyError(inv *Invocation, err error) {
	if rerr := inv.Reply(":x: " + userMessage(err)); rerr != nil {
		r.Logger.Warn("failed to send command error reply", "command", inv.Command.Name, "err", rerr)
	}
}
