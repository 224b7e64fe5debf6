package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/seracourt/ripple/internal/domain"
)

// claimMinIdle is how long a delivered-but-unacked task must sit before
// another consumer may steal it. Covers worker crashes mid-batch.
const claimMinIdle = 30 * time.Second

const entryIDField = "wal_entry_id"

// RedisQueue bridges the fast path to the slow path over a Redis Stream
// with one consumer group. Delivery is at-least-once; the WAL status check
// on the worker side makes redelivery harmless.
type RedisQueue struct {
	client *redis.Client
	stream string
	group  string
}

func NewRedisQueue(client *redis.Client, stream, group string) *RedisQueue {
	return &RedisQueue{client: client, stream: stream, group: group}
}

// EnsureGroup creates the stream and consumer group if either is missing.
// Safe to call on every startup.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", q.group, q.stream, err)
	}
	return nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, entryID uuid.UUID) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{entryIDField: entryID.String()},
	}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, count int64, block time.Duration) ([]domain.QueueTask, error) {
	if tasks := q.claimStale(ctx, consumer, count); len(tasks) > 0 {
		return tasks, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read group %s: %w", q.group, err)
	}

	var tasks []domain.QueueTask
	for _, s := range streams {
		tasks = append(tasks, q.parseMessages(ctx, s.Messages)...)
	}
	return tasks, nil
}

// claimStale steals tasks another consumer took but never acknowledged.
// Errors are swallowed: the regular read path is authoritative, the claim
// is opportunistic.
func (q *RedisQueue) claimStale(ctx context.Context, consumer string, count int64) []domain.QueueTask {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return nil
	}
	return q.parseMessages(ctx, msgs)
}

// parseMessages drops malformed payloads after acking them: a message that
// cannot name a WAL entry can never be processed, and leaving it pending
// would cycle it through claim forever.
func (q *RedisQueue) parseMessages(ctx context.Context, msgs []redis.XMessage) []domain.QueueTask {
	var tasks []domain.QueueTask
	for _, m := range msgs {
		raw, ok := m.Values[entryIDField].(string)
		if !ok {
			_ = q.Ack(ctx, m.ID)
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = q.Ack(ctx, m.ID)
			continue
		}
		tasks = append(tasks, domain.QueueTask{MessageID: m.ID, EntryID: id})
	}
	return tasks
}

func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	return q.client.XAck(ctx, q.stream, q.group, messageID).Err()
}

// Depth is the total stream length, consumed or not. The health endpoint
// reports it as the backlog signal.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.XLen(ctx, q.stream).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
