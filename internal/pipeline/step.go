// Package pipeline propagates pushed events into normalized and materialized
// documents and announces each processed event.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/richardliu001/identity-service/internal/metrics"
	"github.com/richardliu001/identity-service/internal/model"
	"go.uber.org/zap"
)

// Processor runs the propagation step for one pushed event.
type Processor interface {
	Process(ctx context.Context, env model.Envelope) error
}

// Normalizer rebuilds normalized documents.
type Normalizer interface {
	Normalize(ctx context.Context, entityType string, ids []string) error
}

// Materializer rebuilds read views and their dependents.
type Materializer interface {
	MaterializeEntities(ctx context.Context, entityType string, ids []string) error
}

// Announcer publishes command-processed announcements.
type Announcer interface {
	Publish(ctx context.Context, env model.Envelope) error
}

// Step normalizes the event's entity, materializes it with its dependents,
// then announces the event. Every stage is idempotent so a failed step can be
// rerun from the start.
type Step struct {
	norm Normalizer
	mat  Materializer
	ann  Announcer
	log  *zap.SugaredLogger
	m    *metrics.Metrics
}

func NewStep(n Normalizer, mat Materializer, ann Announcer, logger *zap.SugaredLogger) *Step {
	return &Step{norm: n, mat: mat, ann: ann, log: logger, m: metrics.Get()}
}

func (s *Step) Process(ctx context.Context, env model.Envelope) error {
	start := time.Now()
	ids := []string{env.EntityID}
	if err := s.norm.Normalize(ctx, env.EntityType, ids); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	if err := s.mat.MaterializeEntities(ctx, env.EntityType, ids); err != nil {
		return fmt.Errorf("materialize: %w", err)
	}
	if err := s.ann.Publish(ctx, env); err != nil {
		s.m.Announcements.WithLabelValues("error").Inc()
		return fmt.Errorf("announce: %w", err)
	}
	s.m.Announcements.WithLabelValues("ok").Inc()
	s.m.StepLatency.WithLabelValues(env.EntityType).Observe(time.Since(start).Seconds())
	s.log.Debugw("event processed",
		"eventId", env.EventID, "entityType", env.EntityType, "entityId", env.EntityID)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
