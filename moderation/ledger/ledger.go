// Event suppression ledger: short-lived markers for platform events which the bot itself is about to cause.
//
// Before performing a platform action (eg, applying a mute role), the executor calls Expect for the event the platform will echo back (eg, a member update). Listeners which would otherwise log the event as user activity call Consume first, and skip the event when it returns true. Entries which are never consumed expire after their TTL.
//
// Includes an interface and implementations using redis and in-process memory.
package ledger

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type EventKind string

const (
	MemberUpdate  EventKind = "member_update"
	MemberRemove  EventKind = "member_remove"
	MemberBan     EventKind = "member_ban"
	MemberUnban   EventKind = "member_unban"
	MessageDelete EventKind = "message_delete"
)

const DefaultTTL = 30 * time.Second

type Ledger interface {
	// Registers one pending suppression. Each call is matched by at most one Consume.
	Expect(ctx context.Context, kind EventKind, target snowflake.ID, ttl time.Duration) error
	// Returns true, and removes one entry, if a non-expired suppression is pending. False means the event was not caused by the bot.
	Consume(ctx context.Context, kind EventKind, target snowflake.ID) (bool, error)
}

func entryKey(kind EventKind, target snowflake.ID) string {
	return string(kind) + "/" + target.String()
}
