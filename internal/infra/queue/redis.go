package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/infra/metrics"
)

// RedisEventQueue реализует очередь событий на базе Redis lists.
// Используется как запасной транспорт, когда RabbitMQ не сконфигурирован.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

var _ domain.EventQueue = (*RedisEventQueue)(nil)

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key}
}

// Enqueue публикует событие в очередь.
func (q *RedisEventQueue) Enqueue(ctx context.Context, event domain.EngagementEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis-queue", "publish", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди. ack(false) возвращает
// событие в очередь.
func (q *RedisEventQueue) Receive(ctx context.Context) (domain.EngagementEvent, domain.EventAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.EngagementEvent{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.EngagementEvent{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.EngagementEvent{}, nil, err
		}
		if len(res) != 2 {
			return domain.EngagementEvent{}, nil, errors.New("redis queue: unexpected response")
		}

		payload := res[1]
		var event domain.EngagementEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return domain.EngagementEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}

		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return event, ack, nil
	}
}
