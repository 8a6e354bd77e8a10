package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// In-process ledger. Keys are held in an expirable LRU (bounding both memory and lifetime); each key holds the deadlines of its pending entries, which are checked lazily on Consume.
type MemLedger struct {
	mu     sync.Mutex
	data   *expirable.LRU[string, []time.Time]
	maxTTL time.Duration
	now    func() time.Time
}

var _ Ledger = (*MemLedger)(nil)

// maxTTL caps the ttl of any single entry.
func NewMemLedger(capacity int, maxTTL time.Duration) *MemLedger {
	return &MemLedger{
		data:   expirable.NewLRU[string, []time.Time](capacity, nil, maxTTL),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

func (l *MemLedger) Expect(ctx context.Context, kind EventKind, target snowflake.ID, ttl time.Duration) error {
	if ttl <= 0 || ttl > l.maxTTL {
		ttl = l.maxTTL
	}
	key := entryKey(kind, target)

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	pending, _ := l.data.Get(key)
	pending = append(live(pending, now), now.Add(ttl))
	l.data.Add(key, pending)
	suppressionsExpected.WithLabelValues(string(kind)).Inc()
	return nil
}

func (l *MemLedger) Consume(ctx context.Context, kind EventKind, target snowflake.ID) (bool, error) {
	key := entryKey(kind, target)

	l.mu.Lock()
	defer l.mu.Unlock()
	pending, ok := l.data.Get(key)
	if !ok {
		return false, nil
	}
	pending = live(pending, l.now())
	if len(pending) == 0 {
		l.data.Remove(key)
		return false, nil
	}
	// consumed in registration order
	pending = pending[1:]
	if len(pending) == 0 {
		l.data.Remove(key)
	} else {
		l.data.Add(key, pending)
	}
	suppressionsConsumed.WithLabelValues(string(kind)).Inc()
	return true, nil
}

// Len is the number of keys with pending (possibly expired) entries.
func (l *MemLedger) Len() int {
	return l.data.Len()
}

func live(deadlines []time.Time, now time.Time) []time.Time {
	out := deadlines[:0:0]
	for _, d := range deadlines {
		if d.After(now) {
			out = append(out, d)
		}
	}
	return out
}
