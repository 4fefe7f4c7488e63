// Package queue carries propagation envelopes from command handlers to the
// poller over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/config"
	"github.com/richardliu001/identity-service/internal/metrics"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/retry"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Message is one received envelope.
type Message struct {
	Envelope model.Envelope
	Attempts int

	raw kafka.Message
	due time.Time
}

// NewWriter returns the producer used by command handlers.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// NewReader returns the consumer-group reader used by the poller. Offsets are
// committed explicitly.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        5 * time.Second,
		CommitInterval: 0,
	})
}

// Kafka is an at-least-once queue: a message is committed only when acked,
// and a nacked message is handed out again after a backoff.
type Kafka struct {
	writer  *kafka.Writer
	reader  *kafka.Reader
	log     *zap.SugaredLogger
	backoff retry.Backoff
	rng     *rand.Rand

	mu      sync.Mutex
	pending *Message
}

// NewKafka wraps a writer and/or a reader; either may be nil when the process
// only produces or only consumes.
func NewKafka(w *kafka.Writer, r *kafka.Reader, logger *zap.SugaredLogger) *Kafka {
	return &Kafka{
		writer:  w,
		reader:  r,
		log:     logger,
		backoff: retry.DefaultBackoff(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
	}
}

// Enqueue publishes envelopes keyed by entity id, so one entity's events share
// a partition.
func (k *Kafka) Enqueue(ctx context.Context, envs ...model.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(envs))
	for _, env := range envs {
		msg, err := encode(env)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return apperr.Transient("kafka write", err)
	}
	return nil
}

// Receive long-polls the next message. A nacked message is returned again
// once its backoff has elapsed.
func (k *Kafka) Receive(ctx context.Context) (*Message, error) {
	k.mu.Lock()
	p := k.pending
	k.pending = nil
	k.mu.Unlock()
	if p != nil {
		select {
		case <-ctx.Done():
			k.mu.Lock()
			k.pending = p
			k.mu.Unlock()
			return nil, ctx.Err()
		case <-time.After(time.Until(p.due)):
		}
		return p, nil
	}

	for {
		raw, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperr.Transient("kafka fetch", err)
		}
		env, err := decode(raw)
		if err != nil {
			k.log.Errorw("dropping undecodable message",
				"partition", raw.Partition, "offset", raw.Offset, "error", err)
			if cerr := k.reader.CommitMessages(ctx, raw); cerr != nil {
				return nil, apperr.Transient("kafka commit", cerr)
			}
			continue
		}
		return &Message{Envelope: env, raw: raw}, nil
	}
}

// Ack commits the message offset.
func (k *Kafka) Ack(ctx context.Context, m *Message) error {
	if err := k.reader.CommitMessages(ctx, m.raw); err != nil {
		return apperr.Transient("kafka commit", err)
	}
	return nil
}

// Nack schedules m for redelivery. The partition does not advance meanwhile.
func (k *Kafka) Nack(_ context.Context, m *Message) error {
	m.Attempts++
	m.due = time.Now().Add(k.backoff.Delay(m.Attempts, k.rng))
	k.mu.Lock()
	k.pending = m
	k.mu.Unlock()
	metrics.Get().QueueRedelivery.Inc()
	return nil
}

// Close releases the writer and reader.
func (k *Kafka) Close() error {
	var err error
	if k.reader != nil {
		err = k.reader.Close()
	}
	if k.writer != nil {
		if werr := k.writer.Close(); err == nil {
			err = werr
		}
	}
	return err
}

func encode(env model.Envelope) (kafka.Message, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode envelope: %w", err)
	}
	return kafka.Message{
		Key:   []byte(env.EntityType + ":" + env.EntityID),
		Value: payload,
		Time:  time.Now(),
	}, nil
}

func decode(msg kafka.Message) (model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return env, err
	}
	if env.EventID == "" || env.EntityType == "" || env.EntityID == "" {
		return env, fmt.Errorf("incomplete envelope %s", msg.Value)
	}
	return env, nil
}
