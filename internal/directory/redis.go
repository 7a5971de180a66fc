package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDirectory implements Directory on a shared Redis instance.
// This is the production implementation; gateway instances scale
// horizontally against the same keyspace.
type RedisDirectory struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) (*RedisDirectory, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &RedisDirectory{rdb: rdb}, nil
}

var markPairScript = redis.NewScript(`
-- KEYS[1] = caller in-call key
-- KEYS[2] = receiver in-call key
-- ARGV[1] = call id
-- ARGV[2] = ttl_ms
--
-- Returns 1 if both markers were set, 0 if either party is already in a call.
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
return 1
`)

func (d *RedisDirectory) Register(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	if userID == "" || sessionID == "" {
		return errors.New("userID and sessionID are required")
	}
	key := keyPresence + userID
	pipe := d.rdb.TxPipeline()
	pipe.SAdd(ctx, key, sessionID)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (d *RedisDirectory) Deregister(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return errors.New("userID and sessionID are required")
	}
	return d.rdb.SRem(ctx, keyPresence+userID, sessionID).Err()
}

func (d *RedisDirectory) SessionsOf(ctx context.Context, userID string) ([]string, error) {
	return d.rdb.SMembers(ctx, keyPresence+userID).Result()
}

func (d *RedisDirectory) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := d.rdb.SCard(ctx, keyPresence+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDirectory) CacheCall(ctx context.Context, callID string, snapshot []byte, ttl time.Duration) error {
	if callID == "" {
		return errors.New("callID is required")
	}
	return d.rdb.Set(ctx, keyCall+callID, snapshot, ttl).Err()
}

func (d *RedisDirectory) GetCall(ctx context.Context, callID string) ([]byte, bool, error) {
	b, err := d.rdb.Get(ctx, keyCall+callID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (d *RedisDirectory) ClearCall(ctx context.Context, callID string, participantIDs []string) error {
	keys := make([]string, 0, len(participantIDs)+1)
	keys = append(keys, keyCall+callID)
	for _, id := range participantIDs {
		if id != "" {
			keys = append(keys, keyInCall+id)
		}
	}
	return d.rdb.Del(ctx, keys...).Err()
}

func (d *RedisDirectory) MarkInCall(ctx context.Context, userID, callID string, ttl time.Duration) error {
	if userID == "" || callID == "" {
		return errors.New("userID and callID are required")
	}
	return d.rdb.Set(ctx, keyInCall+userID, callID, ttl).Err()
}

func (d *RedisDirectory) MarkPairInCall(ctx context.Context, userA, userB, callID string, ttl time.Duration) (bool, error) {
	if userA == "" || userB == "" || callID == "" {
		return false, errors.New("both users and callID are required")
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be > 0")
	}
	res, err := markPairScript.Run(ctx, d.rdb,
		[]string{keyInCall + userA, keyInCall + userB},
		callID, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("mark pair in-call: %w", err)
	}
	return res == 1, nil
}

func (d *RedisDirectory) InCallOf(ctx context.Context, userID string) (string, bool, error) {
	v, err := d.rdb.Get(ctx, keyInCall+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (d *RedisDirectory) IsInCall(ctx context.Context, userID string) (bool, error) {
	_, ok, err := d.InCallOf(ctx, userID)
	return ok, err
}

func (d *RedisDirectory) TryMarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("key is required")
	}
	return d.rdb.SetNX(ctx, keyDedup+key, 1, ttl).Result()
}

func (d *RedisDirectory) IncrMissedCalls(ctx context.Context, userID string) (int64, error) {
	return d.rdb.Incr(ctx, keyMissed+userID).Result()
}

func (d *RedisDirectory) SetMissedCalls(ctx context.Context, userID string, n int64) error {
	return d.rdb.Set(ctx, keyMissed+userID, n, 0).Err()
}

func (d *RedisDirectory) GetMissedCalls(ctx context.Context, userID string) (int64, bool, error) {
	n, err := d.rdb.Get(ctx, keyMissed+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (d *RedisDirectory) CachePage(ctx context.Context, key string, page []byte, ttl time.Duration) error {
	return d.rdb.Set(ctx, keyPage+key, page, ttl).Err()
}

func (d *RedisDirectory) GetPage(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := d.rdb.Get(ctx, keyPage+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}
