// Package events forwards reconciliation events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"gateway-reconciler/internal/hooks"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Message is the JSON shape written to the topic.
type Message struct {
	Type              string            `json:"type"`
	OrderID           string            `json:"order_id,omitempty"`
	MerchantReference string            `json:"merchant_reference,omitempty"`
	OrderStatus       string            `json:"order_status,omitempty"`
	TransactionID     string            `json:"transaction_id,omitempty"`
	RemoteID          string            `json:"remote_id,omitempty"`
	Status            string            `json:"status,omitempty"`
	PreviousStatus    string            `json:"previous_status,omitempty"`
	EventCode         string            `json:"event_code,omitempty"`
	Amount            int64             `json:"amount,omitempty"`
	Currency          string            `json:"currency,omitempty"`
	Data              map[string]string `json:"data,omitempty"`
	OccurredAt        string            `json:"occurred_at"`
}

func NewMessage(ev hooks.Event) Message {
	m := Message{
		Type:       ev.Name,
		EventCode:  ev.EventCode,
		Data:       ev.Data,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339),
	}
	if ev.Previous != "" {
		m.PreviousStatus = string(ev.Previous)
	}
	if o := ev.Order; o != nil {
		m.OrderID = o.ID.String()
		m.MerchantReference = o.MerchantReference
		m.OrderStatus = string(o.Status)
	}
	if t := ev.Transaction; t != nil {
		m.TransactionID = t.ID.String()
		m.RemoteID = t.RemoteID
		m.Status = string(t.Status)
		m.Amount = t.Amount
		m.Currency = t.Currency
		if m.MerchantReference == "" {
			m.MerchantReference = t.MerchantReference
		}
	}
	return m
}

type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// NewSyncProducer dials the brokers with acks from all replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	return sarama.NewSyncProducer(brokers, config)
}

// Handle is a hooks.Subscriber. Messages are keyed by merchant reference so
// one order's events stay on one partition in order.
func (p *Publisher) Handle(_ context.Context, ev hooks.Event) error {
	m := NewMessage(ev)
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(b),
	}
	if m.MerchantReference != "" {
		msg.Key = sarama.StringEncoder(m.MerchantReference)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}
	p.logger.Debug("Event published",
		zap.String("type", m.Type),
		zap.String("merchant_reference", m.MerchantReference),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Attach subscribes the publisher to every event on the registry.
func (p *Publisher) Attach(registry *hooks.Registry) {
	registry.Subscribe("", p.Handle)
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
