package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLedgerRoundTrip(t *testing.T, l Ledger) {
	assert := assert.New(t)
	ctx := context.Background()

	ok, err := l.Consume(ctx, MemberUpdate, 100)
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(l.Expect(ctx, MemberUpdate, 100, time.Minute))
	// different kind or target does not match
	ok, err = l.Consume(ctx, MemberBan, 100)
	assert.NoError(err)
	assert.False(ok)
	ok, err = l.Consume(ctx, MemberUpdate, 101)
	assert.NoError(err)
	assert.False(ok)

	ok, err = l.Consume(ctx, MemberUpdate, 100)
	assert.NoError(err)
	assert.True(ok)
	ok, err = l.Consume(ctx, MemberUpdate, 100)
	assert.NoError(err)
	assert.False(ok)

	// one consume per expect
	assert.NoError(l.Expect(ctx, MessageDelete, 200, time.Minute))
	assert.NoError(l.Expect(ctx, MessageDelete, 200, time.Minute))
	for _, want := range []bool{true, true, false} {
		ok, err = l.Consume(ctx, MessageDelete, 200)
		assert.NoError(err)
		assert.Equal(want, ok)
	}
}

func TestMemLedgerRoundTrip(t *testing.T) {
	testLedgerRoundTrip(t, NewMemLedger(100, time.Minute))
}

func TestMemLedgerExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	l := NewMemLedger(100, time.Minute)
	clock := time.Now()
	l.now = func() time.Time { return clock }

	assert.NoError(l.Expect(ctx, MemberRemove, 5, 10*time.Second))
	assert.NoError(l.Expect(ctx, MemberRemove, 5, 40*time.Second))

	// first entry lapses; second is still pending
	clock = clock.Add(20 * time.Second)
	ok, err := l.Consume(ctx, MemberRemove, 5)
	assert.NoError(err)
	assert.True(ok)
	ok, err = l.Consume(ctx, MemberRemove, 5)
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(0, l.Len())

	// unconsumed entries are evicted once the ttl passes
	assert.NoError(l.Expect(ctx, MemberUnban, 6, 5*time.Second))
	clock = clock.Add(6 * time.Second)
	ok, err = l.Consume(ctx, MemberUnban, 6)
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(0, l.Len())
}

func TestMemLedgerBackgroundEviction(t *testing.T) {
	ctx := context.Background()
	l := NewMemLedger(100, 50*time.Millisecond)

	assert.NoError(t, l.Expect(ctx, MemberBan, 9, time.Hour))
	assert.Equal(t, 1, l.Len())
	assert.Eventually(t, func() bool { return l.Len() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestRedisLedgerRoundTrip(t *testing.T) {
	t.Skip("live test, need redis running locally")

	l, err := NewRedisLedger("redis://localhost:6379/0")
	if err != nil {
		t.Fatal(err)
	}
	testLedgerRoundTrip(t, l)
}

func TestRedisLedgerShortTTLKeepsLongerEntries(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	l, err := NewRedisLedger("redis://localhost:6379/0")
	if err != nil {
		t.Fatal(err)
	}
	key := redisLedgerPrefix + entryKey(MemberUpdate, 77)
	defer l.Client.Del(ctx, key)

	assert.NoError(l.Expect(ctx, MemberUpdate, 77, time.Hour))
	assert.NoError(l.Expect(ctx, MemberUpdate, 77, 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	ttl, err := l.Client.PTTL(ctx, key).Result()
	assert.NoError(err)
	assert.Greater(ttl, 59*time.Minute)

	ok, err := l.Consume(ctx, MemberUpdate, 77)
	assert.NoError(err)
	assert.True(ok)
}
