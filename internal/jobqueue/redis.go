package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"photoflow/internal/photos"
)

// DefaultRedisPrefix namespaces the queue keys on a shared Redis server.
const DefaultRedisPrefix = "photos:queue:" + Name + ":"

// Key layout under the prefix:
//
//	seq            enqueue counter, gives every job its FIFO position
//	all            zset of every unacknowledged job id, scored by seq
//	heads          zset of the oldest job id of each photo, scored by seq
//	photo:<id>     list of one photo's job ids in enqueue order
//	job:<id>       hash with data, photo, seq, visible (unix ms), receipt, attempts
//
// Only heads are claimable, which keeps delivery per photo in enqueue order.

var enqueueScript = redis.NewScript(`
local seq = redis.call("INCR", KEYS[1])
redis.call("HSET", KEYS[5], "data", ARGV[2], "photo", ARGV[3], "seq", seq,
    "visible", ARGV[4], "receipt", "", "attempts", 0)
redis.call("ZADD", KEYS[2], seq, ARGV[1])
redis.call("RPUSH", KEYS[4], ARGV[1])
if redis.call("LINDEX", KEYS[4], 0) == ARGV[1] then
    redis.call("ZADD", KEYS[3], seq, ARGV[1])
end
return seq
`)

var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
for _, id in ipairs(redis.call("ZRANGE", KEYS[1], 0, -1)) do
    local key = ARGV[4] .. "job:" .. id
    local visible = tonumber(redis.call("HGET", key, "visible") or "0")
    if visible <= now then
        local attempts = redis.call("HINCRBY", key, "attempts", 1)
        redis.call("HSET", key, "receipt", ARGV[3], "visible", now + tonumber(ARGV[2]))
        return {id, redis.call("HGET", key, "data"), attempts}
    end
end
return false
`)

var ackScript = redis.NewScript(`
local photo = redis.call("HGET", KEYS[3], "photo")
if not photo then
    return 0
end
local list = ARGV[2] .. "photo:" .. photo
redis.call("LREM", list, 1, ARGV[1])
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("DEL", KEYS[3])
local head = redis.call("LINDEX", list, 0)
if head then
    redis.call("ZADD", KEYS[2], redis.call("HGET", ARGV[2] .. "job:" .. head, "seq"), head)
end
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "receipt") ~= ARGV[1] then
    return 0
end
redis.call("HSET", KEYS[1], "receipt", "", "visible", ARGV[2])
return 1
`)

var depthScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local ready, inflight, delayed = 0, 0, 0
for _, id in ipairs(redis.call("ZRANGE", KEYS[1], 0, -1)) do
    local fields = redis.call("HMGET", ARGV[2] .. "job:" .. id, "visible", "receipt")
    if tonumber(fields[1] or "0") <= now then
        ready = ready + 1
    elseif fields[2] and fields[2] ~= "" then
        inflight = inflight + 1
    else
        delayed = delayed + 1
    end
end
return {ready, inflight, delayed}
`)

// RedisQueue keeps jobs on a Redis server shared by every photoflow process.
// Each state change is one Lua script, so claims from concurrent workers never
// hand out the same delivery. Waiting consumers poll.
type RedisQueue struct {
	client            redis.UniversalClient
	prefix            string
	visibilityTimeout time.Duration
	pollInterval      time.Duration
	now               Clock
}

// NewRedis wraps an existing client. The caller owns the client. An empty
// prefix uses DefaultRedisPrefix.
func NewRedis(client redis.UniversalClient, prefix string, visibilityTimeout, pollInterval time.Duration) *RedisQueue {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &RedisQueue{
		client:            client,
		prefix:            prefix,
		visibilityTimeout: visibilityTimeout,
		pollInterval:      pollInterval,
		now:               time.Now,
	}
}

// WithClock overrides the time source used for visibility decisions.
func (q *RedisQueue) WithClock(now Clock) *RedisQueue {
	if now != nil {
		q.now = now
	}
	return q
}

func (q *RedisQueue) key(parts ...string) string {
	key := q.prefix
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		key += part
	}
	return key
}

func (q *RedisQueue) nowMillis() int64 {
	return q.now().UTC().UnixMilli()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Target == "" {
		job.Target = photos.StatusProcessing
	}
	now := q.now().UTC()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	data, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("encode job: %w", err)
	}
	keys := []string{q.key("seq"), q.key("all"), q.key("heads"), q.key("photo", job.PhotoID), q.key("job", job.ID)}
	if err := enqueueScript.Run(ctx, q.client, keys, job.ID, data, job.PhotoID, now.UnixMilli()).Err(); err != nil {
		return Job{}, photos.Wrap(photos.ErrQueueUnavailable, "queue", "enqueue", err)
	}
	return job, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Delivery, error) {
	deadline := time.Now().Add(wait)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		delivery, err := q.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, photos.Wrap(photos.ErrQueueUnavailable, "queue", "dequeue", err)
		}
		if delivery != nil {
			return delivery, nil
		}
		if !waitFor(ctx, q.pollInterval, deadline) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrEmpty
		}
	}
}

func (q *RedisQueue) claim(ctx context.Context) (*Delivery, error) {
	receipt := uuid.NewString()
	result, err := claimScript.Run(ctx, q.client, []string{q.key("heads")},
		q.nowMillis(), q.visibilityTimeout.Milliseconds(), receipt, q.prefix).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) != 3 {
		return nil, fmt.Errorf("unexpected claim reply %v", result)
	}
	data, _ := result[1].(string)
	attempts, _ := result[2].(int64)
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("decode job %v: %w", result[0], err)
	}
	return &Delivery{Job: job, Receipt: receipt, Attempt: int(attempts)}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, delivery *Delivery) error {
	if delivery == nil {
		return nil
	}
	keys := []string{q.key("all"), q.key("heads"), q.key("job", delivery.ID)}
	if err := ackScript.Run(ctx, q.client, keys, delivery.ID, q.prefix).Err(); err != nil {
		return photos.Wrap(photos.ErrQueueUnavailable, "queue", "ack", err)
	}
	return nil
}

func (q *RedisQueue) Release(ctx context.Context, delivery *Delivery, delay time.Duration) error {
	if delivery == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	visible := q.now().UTC().Add(delay).UnixMilli()
	if err := releaseScript.Run(ctx, q.client, []string{q.key("job", delivery.ID)}, delivery.Receipt, visible).Err(); err != nil {
		return photos.Wrap(photos.ErrQueueUnavailable, "queue", "release", err)
	}
	return nil
}

func (q *RedisQueue) Pending(ctx context.Context, photoID string) (bool, error) {
	n, err := q.client.LLen(ctx, q.key("photo", photoID)).Result()
	if err != nil {
		return false, photos.Wrap(photos.ErrQueueUnavailable, "queue", "pending", err)
	}
	return n > 0, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (Depth, error) {
	counts, err := depthScript.Run(ctx, q.client, []string{q.key("all")}, q.nowMillis(), q.prefix).Int64Slice()
	if err != nil {
		return Depth{}, photos.Wrap(photos.ErrQueueUnavailable, "queue", "depth", err)
	}
	if len(counts) != 3 {
		return Depth{}, photos.Wrap(photos.ErrQueueUnavailable, "queue", "depth", fmt.Errorf("unexpected reply %v", counts))
	}
	return Depth{Ready: int(counts[0]), InFlight: int(counts[1]), Delayed: int(counts[2])}, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return photos.Wrap(photos.ErrQueueUnavailable, "queue", "ping", err)
	}
	return nil
}
