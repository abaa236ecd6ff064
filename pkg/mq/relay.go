package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/config"
	"github.com/osslararemellan/ole/internal/realtime"
)

// RawPublisher forwards encoded change events; realtime.RedisPublisher is
// the production implementation.
type RawPublisher interface {
	PublishRaw(ctx context.Context, schema, table string, data []byte) error
}

// ChangeRelay consumes the change log and republishes every record on the
// Redis topic of its table. It is a sarama.ConsumerGroupHandler.
type ChangeRelay struct {
	out    RawPublisher
	logger *zap.Logger
}

func NewChangeRelay(out RawPublisher, logger *zap.Logger) *ChangeRelay {
	return &ChangeRelay{out: out, logger: logger}
}

func (r *ChangeRelay) Setup(sarama.ConsumerGroupSession) error { return nil }

func (r *ChangeRelay) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks records as consumed even when they cannot be relayed:
// live updates are best effort and a stuck partition would stop them all.
func (r *ChangeRelay) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := r.relay(sess.Context(), msg); err != nil {
				r.logger.Warn("change relay failed",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
			}
			sess.MarkMessage(msg, "")
		}
	}
}

func (r *ChangeRelay) relay(ctx context.Context, msg *sarama.ConsumerMessage) error {
	schema, table := header(msg, HeaderSchema), header(msg, HeaderTable)
	if table == "" {
		// Records without headers still carry the event itself.
		ev, err := realtime.DecodeEvent(msg.Value)
		if err != nil {
			return err
		}
		schema, table = ev.Schema, ev.Table
	}
	if table == "" {
		return errors.New("change record names no table")
	}
	return r.out.PublishRaw(ctx, schema, table, msg.Value)
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// NewConsumerGroup joins the relay's consumer group, starting from the
// newest records: sessions reload on connect, so older changes are moot.
func NewConsumerGroup(cfg config.KafkaConfig) (sarama.ConsumerGroup, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return group, nil
}

// RunRelay consumes topic until ctx ends, rejoining after rebalances and
// errors.
func RunRelay(ctx context.Context, group sarama.ConsumerGroup, topic string, relay *ChangeRelay, logger *zap.Logger) {
	go func() {
		for err := range group.Errors() {
			logger.Warn("consumer group error", zap.Error(err))
		}
	}()
	for {
		if err := group.Consume(ctx, []string{topic}, relay); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			logger.Warn("consume change log", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}
