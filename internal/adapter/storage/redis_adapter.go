package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	priceKeyPrefix    = "price:"
	droppedField      = "dropped"
	idempotencyKeyTTL = 24 * time.Hour
	lockRetryInterval = 500 * time.Millisecond
)

// ErrLockNotObtained is returned by WithLock when the lock stays taken
// until the context expires.
var ErrLockNotObtained = errors.New("storage: lock not obtained")

// compile-time interface check
var _ port.CacheRepository = (*RedisAdapter)(nil)

// setPriceScript writes the cached price only if it supersedes the cached
// one by (inserted_at, seq), so a slow reader cannot overwrite a newer price.
// A dropped key is never repopulated.
var setPriceScript = redis.NewScript(`
local key = KEYS[1]
local at = tonumber(ARGV[1])
local seq = tonumber(ARGV[2])

local current = redis.call('HMGET', key, 'at', 'seq', 'dropped')
if current[3] then
	return 0
end
if current[1] then
	local curAt = tonumber(current[1])
	local curSeq = tonumber(current[2])
	if curAt > at or (curAt == at and curSeq >= seq) then
		return 0
	end
end

redis.call('HSET', key, 'at', ARGV[1], 'seq', ARGV[2], 'price', ARGV[3], 'article', ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 1
`)

type RedisAdapter struct {
	client   *redis.Client
	locker   *redislock.Client
	priceTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, priceTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client:   client,
		locker:   redislock.New(client),
		priceTTL: priceTTL,
	}
}

func (r *RedisAdapter) GetPrice(ctx context.Context, articleID uuid.UUID) (*domain.PriceRecord, error) {
	fields, err := r.client.HGetAll(ctx, priceKeyPrefix+articleID.String()).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 || fields[droppedField] != "" {
		return nil, nil
	}

	at, err := strconv.ParseInt(fields["at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cached price at: %w", err)
	}
	seq, err := strconv.ParseInt(fields["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cached price seq: %w", err)
	}
	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return nil, fmt.Errorf("cached price: %w", err)
	}

	return &domain.PriceRecord{
		Seq:        seq,
		ArticleID:  articleID,
		Price:      price,
		InsertedAt: time.UnixMicro(at).UTC(),
	}, nil
}

func (r *RedisAdapter) SetPrice(ctx context.Context, p domain.PriceRecord) error {
	key := priceKeyPrefix + p.ArticleID.String()
	return setPriceScript.Run(ctx, r.client, []string{key},
		p.InsertedAt.UnixMicro(), p.Seq, p.Price.String(), p.ArticleID.String(), r.priceTTL.Milliseconds(),
	).Err()
}

// DropPrice replaces the cached price with a tombstone that lives as long
// as a cached price would, so an in-flight fill cannot bring it back.
func (r *RedisAdapter) DropPrice(ctx context.Context, articleID uuid.UUID) error {
	key := priceKeyPrefix + articleID.String()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, droppedField, 1)
		pipe.PExpire(ctx, key, r.priceTTL)
		return nil
	})
	return err
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// WithLock runs fn while holding a distributed lock on key. The lock is
// retried until ctx is done; ttl bounds how long a crashed holder blocks others.
func (r *RedisAdapter) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	lock, err := r.locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(lockRetryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockNotObtained
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer lock.Release(context.WithoutCancel(ctx))

	return fn()
}
