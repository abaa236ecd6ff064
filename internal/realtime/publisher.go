package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// Publisher announces committed changes.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// RedisPublisher publishes each event as JSON on its table topic.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	return p.PublishRaw(ctx, ev.Schema, ev.Table, data)
}

// PublishRaw forwards an already encoded event, as relayed from Kafka.
func (p *RedisPublisher) PublishRaw(ctx context.Context, schema, table string, data []byte) error {
	if err := p.rdb.Publish(ctx, Topic(schema, table), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Topic(schema, table), err)
	}
	return nil
}
