package platform

import (
	"context"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

type MessageHandler func(ctx context.Context, msg Message)
type MessageDeleteHandler func(ctx context.Context, channel, message snowflake.ID)
type MemberHandler func(ctx context.Context, member Member)
type UserHandler func(ctx context.Context, user snowflake.ID)

// Fan-out of gateway events to the components which listen for them. Components register at construction time; the platform session emits.
type Events struct {
	Logger *slog.Logger

	mu            sync.RWMutex
	messageCreate []MessageHandler
	messageUpdate []MessageHandler
	messageDelete []MessageDeleteHandler
	memberJoin    []MemberHandler
	memberUpdate  []MemberHandler
	memberRemove  []MemberHandler
	memberBan     []UserHandler
	memberUnban   []UserHandler
}

func NewEvents(logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{Logger: logger}
}

func (ev *Events) OnMessageCreate(h MessageHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.messageCreate = append(ev.messageCreate, h)
}

func (ev *Events) OnMessageUpdate(h MessageHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.messageUpdate = append(ev.messageUpdate, h)
}

func (ev *Events) OnMessageDelete(h MessageDeleteHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.messageDelete = append(ev.messageDelete, h)
}

func (ev *Events) OnMemberJoin(h MemberHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.memberJoin = append(ev.memberJoin, h)
}

func (ev *Events) OnMemberUpdate(h MemberHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.memberUpdate = append(ev.memberUpdate, h)
}

func (ev *Events) OnMemberRemove(h MemberHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.memberRemove = append(ev.memberRemove, h)
}

func (ev *Events) OnMemberBan(h UserHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.memberBan = append(ev.memberBan, h)
}

func (ev *Events) OnMemberUnban(h UserHandler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.memberUnban = append(ev.memberUnban, h)
}

// similar to an HTTP server, we want to recover any panics from handler execution
func (ev *Events) guard(event string) {
	if r := recover(); r != nil {
		ev.Logger.Error("event handler exception", "err", r, "event", event)
	}
}

func (ev *Events) EmitMessageCreate(ctx context.Context, msg Message) {
	ev.mu.RLock()
	handlers := ev.messageCreate
	ev.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer ev.guard("message_create")
			h(ctx, msg)
		}()
	}
}

func (ev *Events) EmitMessageUpdate(ctx context.Context, msg Message) {
	ev.mu.RLock()
	handlers := ev.messageUpdate
	ev.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer ev.guard("message_update")
			h(ctx, msg)
		}()
	}
}

func (ev *Events) EmitMessageDelete(ctx context.Context, channel, message snowflake.ID) {
	ev.mu.RLock()
	handlers := ev.messageDelete
	ev.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer ev.guard("message_delete")
			h(ctx, channel, message)
		}()
	}
}

func (ev *Events) emitMember(ctx context.Context, event string, handlers []MemberHandler, m Member) {
	for _, h := range handlers {
		func() {
			defer ev.guard(event)
			h(ctx, m)
		}()
	}
}

func (ev *Events) emitUser(ctx context.Context, event string, handlers []UserHandler, user snowflake.ID) {
	for _, h := range handlers {
		func() {
			defer ev.guard(event)
			h(ctx, user)
		}()
	}
}

func (ev *Events) EmitMemberJoin(ctx context.Context, m Member) {
	ev.mu.RLock()
	handlers := ev.memberJoin
	ev.mu.RUnlock()
	ev.emitMember(ctx, "member_join", handlers, m)
}

func (ev *Events) EmitMemberUpdate(ctx context.Context, m Member) {
	ev.mu.RLock()
	handlers := ev.memberUpdate
	ev.mu.RUnlock()
	ev.emitMember(ctx, "member_update", handlers, m)
}

func (ev *Events) EmitMemberRemove(ctx context.Context, m Member) {
	ev.mu.RLock()
	handlers := ev.memberRemove
	ev.mu.RUnlock()
	ev.emitMember(ctx, "member_remove", handlers, m)
}

func (ev *Events) EmitMemberBan(ctx context.Context, user snowflake.ID) {
	ev.mu.RLock()
	handlers := ev.memberBan
	ev.mu.RUnlock()
	ev.emitUser(ctx, "member_ban", handlers, user)
}

func (ev *Events) EmitMemberUnban(ctx context.Context, user snowflake.ID) {
	ev.mu.RLock()
	handlers := ev.memberUnban
	ev.mu.RUnlock()
	ev.emitUser(ctx, "member_unban", handlers, user)
}
