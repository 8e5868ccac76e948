package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

const (
	// OutboxTopic is where the relay publishes mail it wants delivered.
	OutboxTopic = "mail-outbox"

	// DLQTopic is where messages that exhaust all retries are written so they
	// can be inspected and replayed manually without blocking the main consumer.
	DLQTopic = "mail-dlq"

	// maxRetries is the number of delivery attempts before a message is routed
	// to the DLQ. Each attempt adds a short backoff.
	maxRetries = 3
)

// Publisher writes outbox messages to the mail-outbox topic. Satisfied by
// *kafka.Writer through Writer below; the relay depends on this interface so
// tests can capture published messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Writer is a thin Publisher over a kafka.Writer bound to the outbox topic.
type Writer struct {
	w *kafka.Writer
}

// NewWriter creates a Writer connected to the given Kafka brokers.
func NewWriter(brokers []string) *Writer {
	return &Writer{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        OutboxTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}}
}

// Publish JSON-encodes msg and writes it keyed by the outbox record ID.
func (p *Writer) Publish(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ID),
		Value: value,
	})
}

// Close releases the underlying Kafka writer.
func (p *Writer) Close() error {
	return p.w.Close()
}

// Consumer reads Messages from the mail-outbox Kafka topic and dispatches
// them via a Sender. It commits Kafka offsets only after processing, giving
// at-least-once delivery semantics; the recipient may see a duplicate mail
// rather than a silent miss.
//
// On repeated failure a message is forwarded to mail-dlq so the consumer can
// continue making progress without losing the problematic record.
type Consumer struct {
	reader *kafka.Reader
	dlq    *kafka.Writer
	sender Sender
}

// NewConsumer creates a Consumer connected to the given Kafka brokers.
func NewConsumer(brokers []string, sender Sender) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          OutboxTopic,
		GroupID:        "sorteo-mail-sender",
		MinBytes:       1,
		MaxBytes:       1 << 20, // 1 MiB
		CommitInterval: 0,       // explicit commits only
		StartOffset:    kafka.LastOffset,
	})

	dlq := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	return &Consumer{
		reader: reader,
		dlq:    dlq,
		sender: sender,
	}
}

// Run blocks, consuming messages until ctx is cancelled.
// It logs each attempt and handles retries + DLQ routing internally.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("mail-sender: consuming from topic %q", OutboxTopic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Clean shutdown.
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if err := c.dispatch(ctx, m); err != nil {
			// dispatch already logged the error and sent to DLQ.
			// We still commit so the consumer does not get stuck.
			log.Printf("mail-sender: routed message key=%s to DLQ: %v", string(m.Key), err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("mail-sender: commit failed (message may be redelivered): %v", err)
		}
	}
}

// Close releases all Kafka resources.
func (c *Consumer) Close() error {
	rerr := c.reader.Close()
	werr := c.dlq.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// dispatch attempts to send msg up to maxRetries times with backoff.
// If all attempts fail it writes the raw Kafka message to the DLQ.
func (c *Consumer) dispatch(ctx context.Context, m kafka.Message) error {
	var msg Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return c.sendToDLQ(ctx, m, fmt.Errorf("unmarshal: %w", err))
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = c.sender.Send(ctx, msg)
		if lastErr == nil {
			log.Printf("mail-sender: sent id=%s to=%s (attempt %d)", msg.ID, msg.To, attempt)
			return nil
		}

		log.Printf("mail-sender: attempt %d/%d failed for id=%s: %v", attempt, maxRetries, msg.ID, lastErr)

		if attempt < maxRetries {
			backoff := time.Duration(attempt) * 2 * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return c.sendToDLQ(ctx, m, lastErr)
}

// sendToDLQ writes the original raw Kafka message to the dead-letter topic so
// it can be inspected and replayed without blocking the main consumer.
func (c *Consumer) sendToDLQ(ctx context.Context, original kafka.Message, reason error) error {
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   original.Key,
		Value: original.Value,
	})
	if err != nil {
		log.Printf("mail-sender: CRITICAL - could not write to DLQ: %v", err)
	}
	return reason
}
