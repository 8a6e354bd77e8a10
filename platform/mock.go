package platform

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// operation names, as counted by MockPlatform
const (
	OpAddRole         = "add_role"
	OpRemoveRole      = "remove_role"
	OpDisconnectVoice = "disconnect_voice"
	OpKick            = "kick"
	OpBan             = "ban"
	OpUnban           = "unban"
	OpBans            = "bans"
	OpMember          = "member"
	OpDirectMessage   = "direct_message"
	OpSendMessage     = "send_message"
	OpDeleteMessage   = "delete_message"
	OpRecentMessages  = "recent_messages"
)

type injectedFailure struct {
	err   error
	times int // negative means every call
}

// In-process Platform for tests. Tracks guild members, the ban list, and per-operation call counts. When Events is set, bot actions are echoed back as gateway events the way a real guild would.
type MockPlatform struct {
	BotID  snowflake.ID
	Events *Events
	// optional delay added to every mutating call
	Latency time.Duration

	mu       sync.Mutex
	members  map[snowflake.ID]*Member
	bans     map[snowflake.ID]bool
	calls    map[string]int
	failures map[string]*injectedFailure
	dms      map[snowflake.ID][]string
	channels map[snowflake.ID][]Message
	nextMsg  uint64
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform(botID snowflake.ID) *MockPlatform {
	return &MockPlatform{
		BotID:    botID,
		members:  make(map[snowflake.ID]*Member),
		bans:     make(map[snowflake.ID]bool),
		calls:    make(map[string]int),
		failures: make(map[string]*injectedFailure),
		dms:      make(map[snowflake.ID][]string),
		channels: make(map[snowflake.ID][]Message),
		nextMsg:  1,
	}
}

func (p *MockPlatform) AddMember(m Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m.Roles = slices.Clone(m.Roles)
	p.members[m.ID] = &m
}

func (p *MockPlatform) RemoveMember(user snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members, user)
}

// AddBan puts a user on the ban list without counting a call or emitting an event.
func (p *MockPlatform) AddBan(user snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bans[user] = true
}

func (p *MockPlatform) IsBanned(user snowflake.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bans[user]
}

func (p *MockPlatform) HasRole(user, role snowflake.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[user]
	return ok && m.HasRole(role)
}

// SetRole changes a member role without counting a call, as a human moderator would.
func (p *MockPlatform) SetRole(user, role snowflake.ID, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[user]
	if !ok {
		return
	}
	if present && !m.HasRole(role) {
		m.Roles = append(m.Roles, role)
	} else if !present {
		m.Roles = slices.DeleteFunc(m.Roles, func(r snowflake.ID) bool { return r == role })
	}
}

func (p *MockPlatform) CallCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// FailWith makes the next `times` calls of op return err. A negative count fails every call until cleared with times == 0.
func (p *MockPlatform) FailWith(op string, err error, times int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if times == 0 {
		delete(p.failures, op)
		return
	}
	p.failures[op] = &injectedFailure{err: err, times: times}
}

func (p *MockPlatform) DirectMessages(user snowflake.ID) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.dms[user])
}

func (p *MockPlatform) ChannelMessages(channel snowflake.ID) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.channels[channel])
}

// PostMessage places a message in a channel as if a user had sent it, returning its id.
func (p *MockPlatform) PostMessage(msg Message) Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg.ID = snowflake.ID(p.nextMsg)
	p.nextMsg++
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	p.channels[msg.ChannelID] = append(p.channels[msg.ChannelID], msg)
	return msg
}

// begin counts a call and returns any injected failure. Caller must hold the lock.
func (p *MockPlatform) begin(op string) error {
	p.calls[op]++
	f, ok := p.failures[op]
	if !ok {
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(p.failures, op)
		}
	}
	return f.err
}

func (p *MockPlatform) sleep(ctx context.Context) error {
	if p.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(p.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MockPlatform) AddRole(ctx context.Context, user, role snowflake.ID, reason string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.begin(OpAddRole); err != nil {
		p.mu.Unlock()
		return err
	}
	m, ok := p.members[user]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: member %s", ErrNotFound, user)
	}
	if !m.HasRole(role) {
		m.Roles = append(m.Roles, role)
	}
	echo := *m
	p.mu.Unlock()

	if p.Events != nil {
		p.Events.EmitMemberUpdate(ctx, echo)
	}
	return nil
}

func (p *MockPlatform) RemoveRole(ctx context.Context, user, role snowflake.ID, reason string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.begin(OpRemoveRole); err != nil {
		p.mu.Unlock()
		return err
	}
	m, ok := p.members[user]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: member %s", ErrNotFound, user)
	}
	m.Roles = slices.DeleteFunc(m.Roles, func(r snowflake.ID) bool { return r == role })
	echo := *m
	p.mu.Unlock()

	if p.Events != nil {
		p.Events.EmitMemberUpdate(ctx, echo)
	}
	return nil
}

func (p *MockPlatform) DisconnectVoice(ctx context.Context, user snowflake.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.begin(OpDisconnectVoice)
}

func (p *MockPlatform) Kick(ctx context.Context, user snowflake.ID, reason string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.begin(OpKick); err != nil {
		p.mu.Unlock()
		return err
	}
	m, ok := p.members[user]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: member %s", ErrNotFound, user)
	}
	delete(p.members, user)
	echo := *m
	p.mu.Unlock()

	if p.Events != nil {
		p.Events.EmitMemberRemove(ctx, echo)
	}
	return nil
}

func (p *MockPlatform) Ban(ctx context.Context, user snowflake.ID, reason string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.begin(OpBan); err != nil {
		p.mu.Unlock()
		return err
	}
	p.bans[user] = true
	m, wasMember := p.members[user]
	var echo Member
	if wasMember {
		echo = *m
		delete(p.members, user)
	}
	p.mu.Unlock()

	if p.Events != nil {
		p.Events.EmitMemberBan(ctx, user)
		if wasMember {
			p.Events.EmitMemberRemove(ctx, echo)
		}
	}
	return nil
}

func (p *MockPlatform) Unban(ctx context.Context, user snowflake.ID, reason string) error {
	if err := p.sleep(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.begin(OpUnban); err != nil {
		p.mu.Unlock()
		return err
	}
	if !p.bans[user] {
		p.mu.Unlock()
		return fmt.Errorf("%w: ban for %s", ErrNotFound, user)
	}
	delete(p.bans, user)
	p.mu.Unlock()

	if p.Events != nil {
		p.Events.EmitMemberUnban(ctx, user)
	}
	return nil
}

func (p *MockPlatform) Bans(ctx context.Context) ([]snowflake.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpBans); err != nil {
		return nil, err
	}
	out := make([]snowflake.ID, 0, len(p.bans))
	for id := range p.bans {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (p *MockPlatform) Member(ctx context.Context, user snowflake.ID) (*Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpMember); err != nil {
		return nil, err
	}
	m, ok := p.members[user]
	if !ok {
		return nil, fmt.Errorf("%w: member %s", ErrNotFound, user)
	}
	out := *m
	out.Roles = slices.Clone(m.Roles)
	return &out, nil
}

func (p *MockPlatform) SendDirectMessage(ctx context.Context, user snowflake.ID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDirectMessage); err != nil {
		return err
	}
	p.dms[user] = append(p.dms[user], content)
	return nil
}

func (p *MockPlatform) SendMessage(ctx context.Context, channel snowflake.ID, content string) (snowflake.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpSendMessage); err != nil {
		return 0, err
	}
	id := snowflake.ID(p.nextMsg)
	p.nextMsg++
	p.channels[channel] = append(p.channels[channel], Message{
		ID:        id,
		ChannelID: channel,
		Author:    Member{ID: p.BotID, Bot: true},
		Content:   content,
		CreatedAt: time.Now(),
	})
	return id, nil
}

func (p *MockPlatform) DeleteMessage(ctx context.Context, channel, message snowflake.ID) error {
	p.mu.Lock()
	if err := p.begin(OpDeleteMessage); err != nil {
		p.mu.Unlock()
		return err
	}
	msgs := p.channels[channel]
	idx := slices.IndexFunc(msgs, func(m Message) bool { return m.ID == message })
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: message %s", ErrNotFound, message)
	}
	p.channels[channel] = slices.Delete(msgs, idx, idx+1)
	p.mu.Unlock()

	if p.Events != nil {
		p.Events.EmitMessageDelete(ctx, channel, message)
	}
	return nil
}

func (p *MockPlatform) RecentMessages(ctx context.Context, channel snowflake.ID, limit int) ([]Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpRecentMessages); err != nil {
		return nil, err
	}
	msgs := p.channels[channel]
	out := make([]Message, 0, min(limit, len(msgs)))
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (p *MockPlatform) BotUserID() snowflake.ID {
	return p.BotID
}
