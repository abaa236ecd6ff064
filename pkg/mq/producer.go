// Package mq carries row change events through Kafka: services write them
// to a durable log and a relay fans them out to Redis for live sessions.
package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/config"
	"github.com/osslararemellan/ole/internal/realtime"
)

// Header names set on every change record.
const (
	HeaderSchema    = "schema"
	HeaderTable     = "table"
	HeaderEventType = "event_type"
)

// ChangeProducer is a realtime.Publisher writing to the change log topic.
// Records are keyed by table so one table's changes stay in order. When the
// log is unreachable events go to the fallback publisher, if any, so live
// updates survive a Kafka outage.
type ChangeProducer struct {
	producer sarama.SyncProducer
	topic    string
	fallback realtime.Publisher
	logger   *zap.Logger
}

// NewChangeProducer connects a synchronous producer that waits for all
// in-sync replicas.
func NewChangeProducer(cfg config.KafkaConfig, fallback realtime.Publisher, logger *zap.Logger) (*ChangeProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Version = sarama.V2_8_0_0

	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("start kafka producer: %w", err)
	}
	return NewChangeProducerWith(p, cfg.Topic, fallback, logger), nil
}

// NewChangeProducerWith wraps an existing producer.
func NewChangeProducerWith(p sarama.SyncProducer, topic string, fallback realtime.Publisher, logger *zap.Logger) *ChangeProducer {
	return &ChangeProducer{producer: p, topic: topic, fallback: fallback, logger: logger}
}

func (p *ChangeProducer) Publish(ctx context.Context, ev realtime.ChangeEvent) error {
	if ev.Schema == "" {
		ev.Schema = realtime.DefaultSchema
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Schema + "." + ev.Table),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderSchema), Value: []byte(ev.Schema)},
			{Key: []byte(HeaderTable), Value: []byte(ev.Table)},
			{Key: []byte(HeaderEventType), Value: []byte(ev.EventType)},
		},
		Timestamp: ev.CommitTimestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		if p.fallback == nil {
			return fmt.Errorf("send change event: %w", err)
		}
		p.logger.Warn("change log unavailable, publishing directly",
			zap.String("table", ev.Table), zap.Error(err))
		return p.fallback.Publish(ctx, ev)
	}

	p.logger.Debug("change event stored",
		zap.String("topic", p.topic),
		zap.String("table", ev.Table),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (p *ChangeProducer) Close() error {
	return p.producer.Close()
}
