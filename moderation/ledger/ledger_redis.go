package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var redisLedgerPrefix = "suppress/"

// Adds an entry and moves the key expiry to the latest deadline in the set, so a short ttl never cuts off a longer lived entry.
//
// KEYS[1] = ledger key
// ARGV[1] = deadline (unix milliseconds)
// ARGV[2] = entry id
var redisExpectScript = redis.NewScript(`
local key = KEYS[1]
redis.call("ZADD", key, ARGV[1], ARGV[2])
local last = redis.call("ZRANGE", key, -1, -1, "WITHSCORES")
redis.call("PEXPIREAT", key, string.format("%.0f", tonumber(last[2])))
return 1
`)

// Ledger shared between bot processes. Each key is a sorted set whose members are unique entry ids, scored by their deadline (unix milliseconds).
type RedisLedger struct {
	Client *redis.Client
}

var _ Ledger = (*RedisLedger)(nil)

func NewRedisLedger(redisURL string) (*RedisLedger, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisLedger{Client: rdb}, nil
}

func (l *RedisLedger) Expect(ctx context.Context, kind EventKind, target snowflake.ID, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := redisLedgerPrefix + entryKey(kind, target)
	deadline := time.Now().Add(ttl).UnixMilli()

	if err := redisExpectScript.Run(ctx, l.Client, []string{key}, deadline, uuid.NewString()).Err(); err != nil {
		return err
	}
	suppressionsExpected.WithLabelValues(string(kind)).Inc()
	return nil
}

func (l *RedisLedger) Consume(ctx context.Context, kind EventKind, target snowflake.ID) (bool, error) {
	key := redisLedgerPrefix + entryKey(kind, target)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	// drop expired entries, then pop the oldest remaining one
	if err := l.Client.ZRemRangeByScore(ctx, key, "-inf", now).Err(); err != nil {
		return false, err
	}
	popped, err := l.Client.ZPopMin(ctx, key, 1).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if len(popped) == 0 {
		return false, nil
	}
	suppressionsConsumed.WithLabelValues(string(kind)).Inc()
	return true, nil
}
