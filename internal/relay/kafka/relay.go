// Package kafka implements the relay boundary on a Kafka-compatible broker.
// One topic per destination domain; provenance and priority travel as record
// headers; consumption is at-least-once via commit-after-handle.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"vaultbridge/internal/relay"
	id "vaultbridge/pkg/domain"
)

const (
	headerMessageID     = "message-id"
	headerOriginDomain  = "origin-domain"
	headerOriginAddress = "origin-address"
	headerPriority      = "priority"
	headerSentAt        = "sent-at"
)

// Topic returns the delivery topic for a destination domain.
func Topic(prefix string, dest id.BridgeDomain) string {
	return fmt.Sprintf("%s.%s", prefix, dest)
}

// EnsureTopics creates the per-domain topics if they do not exist.
func EnsureTopics(ctx context.Context, brokers []string, prefix string) error {
	kc, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("kafka admin client: %w", err)
	}
	defer kc.Close()

	adm := kadm.NewClient(kc)
	topics := []string{Topic(prefix, id.DomainControl), Topic(prefix, id.DomainExecution)}
	resps, err := adm.CreateTopics(ctx, 3, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Client submits payloads to the broker. It implements relay.Client.
type Client struct {
	kc          *kgo.Client
	topicPrefix string
	origin      id.BridgeDomain
	address     id.Address
}

// NewClient connects a producer bound to an origin identity.
func NewClient(brokers []string, topicPrefix string, origin id.BridgeDomain, address id.Address) (*Client, error) {
	kc, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Client{
		kc:          kc,
		topicPrefix: topicPrefix,
		origin:      origin,
		address:     address,
	}, nil
}

// Send produces the payload and returns the relay-assigned message ID once
// the broker has acknowledged it.
func (c *Client) Send(ctx context.Context, dest id.BridgeDomain, payload []byte, priority id.Priority) (id.MessageID, error) {
	msgID := id.MessageID(uuid.NewString())
	rec := &kgo.Record{
		Topic: Topic(c.topicPrefix, dest),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: headerMessageID, Value: []byte(msgID)},
			{Key: headerOriginDomain, Value: []byte(c.origin)},
			{Key: headerOriginAddress, Value: []byte(c.address)},
			{Key: headerPriority, Value: []byte(priority)},
			{Key: headerSentAt, Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
		},
	}
	if err := c.kc.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return "", fmt.Errorf("relay send: %w", err)
	}
	return msgID, nil
}

func (c *Client) Close() {
	c.kc.Close()
}

// Receiver consumes one domain's topic and feeds envelopes to a handler.
// It implements relay.Receiver.
type Receiver struct {
	kc      *kgo.Client
	handler relay.Handler
	logger  *slog.Logger
	domain  id.BridgeDomain
}

// NewReceiver joins the consumer group for a domain's topic. Offsets are
// committed only after the handler consumes a record, so an unconsumed
// delivery is redelivered.
func NewReceiver(brokers []string, topicPrefix, group string, domain id.BridgeDomain, handler relay.Handler, logger *slog.Logger) (*Receiver, error) {
	kc, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(Topic(topicPrefix, domain)),
		kgo.ConsumerGroup(group),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return &Receiver{
		kc:      kc,
		handler: handler,
		logger:  logger,
		domain:  domain,
	}, nil
}

// Run polls until the context is cancelled.
func (r *Receiver) Run(ctx context.Context) error {
	defer r.kc.Close()
	for {
		fetches := r.kc.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			r.logger.ErrorContext(ctx, "relay fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		if consumed := r.handle(ctx, fetches); len(consumed) > 0 {
			if err := r.kc.CommitRecords(ctx, consumed...); err != nil {
				r.logger.ErrorContext(ctx, "commit failed", "error", err)
			}
		}
	}
}

// handle feeds fetched records to the handler in partition order and
// returns the records safe to commit. A failed record stops its
// partition: committing any later offset on that partition would mark the
// failed record consumed and the broker would never redeliver it. Other
// partitions are unaffected.
func (r *Receiver) handle(ctx context.Context, fetches kgo.Fetches) []*kgo.Record {
	var consumed []*kgo.Record
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		for _, rec := range p.Records {
			env := envelopeFrom(rec, r.domain)
			if err := r.handler(ctx, env); err != nil {
				r.logger.WarnContext(ctx, "delivery not consumed",
					"message_id", env.MessageID.String(),
					"error", err,
				)
				return
			}
			consumed = append(consumed, rec)
		}
	})
	return consumed
}

func envelopeFrom(rec *kgo.Record, dest id.BridgeDomain) relay.Envelope {
	env := relay.Envelope{
		Destination: dest,
		Payload:     rec.Value,
		SentAt:      rec.Timestamp,
	}
	for _, h := range rec.Headers {
		switch h.Key {
		case headerMessageID:
			env.MessageID = id.MessageID(h.Value)
		case headerOriginDomain:
			env.OriginDomain = id.BridgeDomain(h.Value)
		case headerOriginAddress:
			env.OriginAddress = id.Address(h.Value)
		case headerPriority:
			env.Priority = id.Priority(h.Value)
		case headerSentAt:
			if t, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				env.SentAt = t
			}
		}
	}
	return env
}
