// Package kafka publishes ledger events to Kafka topics keyed by account,
// so every consumer sees one account's changes in commit order.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"saldo/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer         messageWriter
	eventsTopic    string
	reconcileTopic string
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher writes ledger events to topic and reconcile requests to
// topic + ".reconcile".
func NewPublisher(brokers []string, topic string) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, topic)
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{writer: w, eventsTopic: topic, reconcileTopic: topic + ".reconcile"}
}

func (p *Publisher) PublishLedgerEvent(ctx context.Context, e events.LedgerEvent) error {
	data, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	return p.write(ctx, p.eventsTopic, e.AccountID, string(e.Type), data)
}

func (p *Publisher) PublishReconcileRequest(ctx context.Context, r events.ReconcileRequest) error {
	data, err := r.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal reconcile request: %w", err)
	}
	return p.write(ctx, p.reconcileTopic, r.AccountID, "reconcile", data)
}

func (p *Publisher) write(ctx context.Context, topic, key, eventType string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(eventType)}},
	})
	if err != nil {
		return fmt.Errorf("write kafka message to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
