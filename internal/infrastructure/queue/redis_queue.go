package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the queue's Redis keys
const DefaultKeyPrefix = "billing:queue:"

// KEYS: ready, tasks, unique key (or the empty string)
// ARGV: task id, payload, score
var enqueueScript = redis.NewScript(`
if KEYS[3] ~= '' then
	if redis.call('SET', KEYS[3], ARGV[1], 'NX') == false then
		return 0
	end
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

// KEYS: ready, leases, tasks
// ARGV: now score, lease expiry score
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local payload = redis.call('HGET', KEYS[3], id)
if not payload then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[2], id)
return payload
`)

// KEYS: ready, leases, tasks, unique key (or the empty string)
// ARGV: task id
var completeScript = redis.NewScript(`
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
if KEYS[4] ~= '' and redis.call('GET', KEYS[4]) == ARGV[1] then
	redis.call('DEL', KEYS[4])
end
return 1
`)

// KEYS: ready, leases, tasks
// ARGV: task id, payload, score
var retryScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

// RedisTaskQueue is a TaskQueue shared by every billing instance. Ready
// tasks live in a sorted set scored by availability time, claimed tasks in a
// second sorted set scored by lease expiry, and payloads in a hash. Unique
// keys are plain strings set with NX and removed on completion.
type RedisTaskQueue struct {
	client redis.UniversalClient
	prefix string
	lease  time.Duration
}

// NewRedisTaskQueue creates a queue on client. Empty prefix and non-positive
// lease fall back to DefaultKeyPrefix and DefaultLease.
func NewRedisTaskQueue(client redis.UniversalClient, prefix string, lease time.Duration) *RedisTaskQueue {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisTaskQueue{client: client, prefix: prefix, lease: lease}
}

func (q *RedisTaskQueue) readyKey() string  { return q.prefix + "ready" }
func (q *RedisTaskQueue) leasesKey() string { return q.prefix + "leases" }
func (q *RedisTaskQueue) tasksKey() string  { return q.prefix + "tasks" }

func (q *RedisTaskQueue) uniqueKey(key string) string {
	if key == "" {
		return ""
	}
	return q.prefix + "unique:" + key
}

func score(t time.Time) int64 {
	return t.UnixMilli()
}

// Enqueue adds a task. It fails with billing.ErrDuplicateTask while another
// task with the same unique key is pending or claimed.
func (q *RedisTaskQueue) Enqueue(ctx context.Context, task billing.Task) (billing.TaskHandle, error) {
	if task.ID == uuid.Nil || task.OrderID == uuid.Nil {
		return billing.TaskHandle{}, ErrInvalidTask
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return billing.TaskHandle{}, fmt.Errorf("encode task: %w", err)
	}

	keys := []string{q.readyKey(), q.tasksKey(), q.uniqueKey(task.UniqueKey)}
	added, err := enqueueScript.Run(ctx, q.client, keys, task.ID.String(), payload, score(task.AvailableAt)).Int()
	if err != nil {
		return billing.TaskHandle{}, fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	if added == 0 {
		return billing.TaskHandle{}, billing.ErrDuplicateTask
	}
	return billing.TaskHandle{ID: task.ID}, nil
}

// Claim leases the earliest task available at now and increments its
// delivery count. It returns billing.ErrNoTask when nothing is due.
func (q *RedisTaskQueue) Claim(ctx context.Context, now time.Time) (*billing.Task, error) {
	keys := []string{q.readyKey(), q.leasesKey(), q.tasksKey()}
	payload, err := claimScript.Run(ctx, q.client, keys, score(now), score(now.Add(q.lease))).Text()
	if errors.Is(err, redis.Nil) {
		return nil, billing.ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	var task billing.Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	task.Attempts++

	// Only the lease holder writes the payload until the task is retried or completed
	updated, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.HSet(ctx, q.tasksKey(), task.ID.String(), updated).Err(); err != nil {
		return nil, fmt.Errorf("record delivery of task %s: %w", task.ID, err)
	}
	return &task, nil
}

// Complete removes a task and frees its unique key
func (q *RedisTaskQueue) Complete(ctx context.Context, task *billing.Task) error {
	keys := []string{q.readyKey(), q.leasesKey(), q.tasksKey(), q.uniqueKey(task.UniqueKey)}
	if err := completeScript.Run(ctx, q.client, keys, task.ID.String()).Err(); err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	return nil
}

// Retry stores the task's retry counters and makes it available again at availableAt
func (q *RedisTaskQueue) Retry(ctx context.Context, task *billing.Task, availableAt time.Time) error {
	task.AvailableAt = availableAt
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	keys := []string{q.readyKey(), q.leasesKey(), q.tasksKey()}
	ok, err := retryScript.Run(ctx, q.client, keys, task.ID.String(), payload, score(availableAt)).Int()
	if err != nil {
		return fmt.Errorf("retry task %s: %w", task.ID, err)
	}
	if ok == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Len returns the number of tasks held, claimed or not
func (q *RedisTaskQueue) Len(ctx context.Context) (int64, error) {
	return q.client.HLen(ctx, q.tasksKey()).Result()
}

var _ billing.TaskQueue = (*RedisTaskQueue)(nil)
