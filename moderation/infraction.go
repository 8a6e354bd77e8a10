package moderation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Kind is the type of a moderation action.
type Kind string

const (
	KindMute    Kind = "mute"
	KindKick    Kind = "kick"
	KindBan     Kind = "ban"
	KindWarning Kind = "warning"
	KindNote    Kind = "note"
)

var AllKinds = []Kind{KindMute, KindKick, KindBan, KindWarning, KindNote}

func ParseKind(raw string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown infraction type %q", ErrInvalidInfraction, raw)
}

// Ongoing kinds are the only ones which may be active, and the only ones with an inverse platform action.
func (k Kind) Ongoing() bool {
	return k == KindMute || k == KindBan
}

// Whether the subject should be sent a message about this kind by default. Notes are always private.
func (k Kind) Notifiable() bool {
	return k != KindNote
}

func (k Kind) String() string {
	return string(k)
}

// An infraction row, as held by the record store.
type Infraction struct {
	ID        int64
	Kind      Kind
	Subject   snowflake.ID
	Actor     snowflake.ID
	Reason    string
	CreatedAt time.Time
	// nil means permanent
	ExpiresAt *time.Time
	Active    bool
	Hidden    bool
}

func (inf *Infraction) Permanent() bool {
	return inf.ExpiresAt == nil
}

// TimeBound is true for infractions which need an expiry timer.
func (inf *Infraction) TimeBound() bool {
	return inf.Active && inf.Kind.Ongoing() && inf.ExpiresAt != nil
}

// Remaining returns the time left until expiry, relative to now. Negative when overdue; zero for permanent infractions.
func (inf *Infraction) Remaining(now time.Time) time.Duration {
	if inf.ExpiresAt == nil {
		return 0
	}
	return inf.ExpiresAt.Sub(now)
}

// Parameters for creating a new infraction.
type NewInfraction struct {
	Kind      Kind
	Subject   snowflake.ID
	Actor     snowflake.ID
	Reason    string
	ExpiresAt *time.Time
	Hidden    bool
}

// Active is derived: point-in-time kinds are never active.
func (n *NewInfraction) Active() bool {
	return n.Kind.Ongoing()
}

// Validate checks the creation invariants: only mute and ban may carry an expiry.
func (n *NewInfraction) Validate() error {
	if _, err := ParseKind(string(n.Kind)); err != nil {
		return err
	}
	if n.Subject == 0 {
		return fmt.Errorf("%w: missing subject", ErrInvalidInfraction)
	}
	if n.ExpiresAt != nil && !n.Kind.Ongoing() {
		return fmt.Errorf("%w: %s infractions can not expire", ErrInvalidInfraction, n.Kind)
	}
	return nil
}

// Query filter for listing infractions. Zero values are not filtered on.
type Filter struct {
	Active  *bool
	Kind    Kind
	Subject snowflake.ID
	Actor   snowflake.ID
	// case-insensitive RE2 pattern, matched anywhere in the reason
	Search string
	// most recent first
	NewestFirst bool
}

// SearchPattern compiles a Filter.Search pattern.
func SearchPattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSearch, err)
	}
	return re, nil
}

func ActiveOnly() *bool {
	t := true
	return &t
}

// Edit to an existing infraction. ExpiresAt is only applied when SetExpiry is true; a nil ExpiresAt then marks the infraction permanent.
type Update struct {
	SetExpiry bool
	ExpiresAt *time.Time
	Reason    *string
}
