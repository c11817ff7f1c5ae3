package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
)

// KafkaEmitter publishes match facts to a kafka topic, keyed by instrument
// so per-instrument ordering survives partitioning.
type KafkaEmitter struct {
	writer *kafka.Writer
}

func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (e *KafkaEmitter) EmitMatch(ctx context.Context, m *ledger.TradeMatch) error {
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal trade %d: %w", m.ID, err)
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.Instrument),
		Value: val,
	})
}

func (e *KafkaEmitter) Close() error { return e.writer.Close() }

var _ ledger.MatchEmitter = (*KafkaEmitter)(nil)
