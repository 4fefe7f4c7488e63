package pipeline

import (
	"context"
	"time"

	"github.com/richardliu001/identity-service/internal/config"
	"github.com/richardliu001/identity-service/internal/metrics"
	"github.com/richardliu001/identity-service/internal/queue"
	"go.uber.org/zap"
)

// Queue is the at-least-once delivery the QueueSource consumes.
type Queue interface {
	Receive(ctx context.Context) (*queue.Message, error)
	Ack(ctx context.Context, m *queue.Message) error
	Nack(ctx context.Context, m *queue.Message) error
}

// QueueSource feeds queued envelopes to a Processor. A message is acked only
// after the step succeeds; failures are nacked for redelivery.
type QueueSource struct {
	q    Queue
	p    Processor
	log  *zap.SugaredLogger
	m    *metrics.Metrics
	idle time.Duration
	max  int
}

func NewQueueSource(q Queue, p Processor, cfg config.PipelineConfig, logger *zap.SugaredLogger) *QueueSource {
	return &QueueSource{q: q, p: p, log: logger, m: metrics.Get(), idle: cfg.PollInterval, max: cfg.MaxAttempts}
}

// Run consumes until ctx is cancelled. The step in flight at cancellation is
// finished before Run returns.
func (s *QueueSource) Run(ctx context.Context) error {
	s.log.Infow("queue source started")
	for {
		msg, err := s.q.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Infow("queue source stopped")
				return nil
			}
			s.log.Warnw("queue receive failed", "error", err)
			if sleep(ctx, s.idle) != nil {
				return nil
			}
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *QueueSource) handle(ctx context.Context, msg *queue.Message) {
	env := msg.Envelope
	work := context.WithoutCancel(ctx)
	if err := s.p.Process(work, env); err != nil {
		s.m.Processed.WithLabelValues(config.SourceQueue, env.EntityType, "error").Inc()
		lvl := s.log.Warnw
		if s.max > 0 && msg.Attempts+1 >= s.max {
			lvl = s.log.Errorw
		}
		lvl("propagation failed, scheduling redelivery",
			"eventId", env.EventID, "entityType", env.EntityType, "entityId", env.EntityID,
			"attempts", msg.Attempts+1, "error", err)
		if err := s.q.Nack(work, msg); err != nil {
			s.log.Errorw("nack failed", "eventId", env.EventID, "error", err)
		}
		return
	}
	s.m.Processed.WithLabelValues(config.SourceQueue, env.EntityType, "ok").Inc()
	if err := s.q.Ack(work, msg); err != nil {
		// the broker redelivers; reprocessing is idempotent
		s.log.Warnw("ack failed", "eventId", env.EventID, "error", err)
	}
}
