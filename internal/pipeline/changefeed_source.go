package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/richardliu001/identity-service/internal/config"
	"github.com/richardliu001/identity-service/internal/metrics"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/retry"
	"go.uber.org/zap"
)

// FeedStore is the event log and resume token storage of a change feed.
type FeedStore interface {
	EventsAfter(ctx context.Context, seq uint64, limit int) ([]model.Event, error)
	LoadResumeToken(ctx context.Context, stream string) (*model.ResumeToken, error)
	SaveResumeToken(ctx context.Context, tok *model.ResumeToken) error
}

// ChangeFeedSource follows the event log in insertion order. The resume token
// is saved after every processed event and never moves past an event whose
// step failed.
type ChangeFeedSource struct {
	store  FeedStore
	p      Processor
	log    *zap.SugaredLogger
	m      *metrics.Metrics
	stream string
	poll   time.Duration
	batch  int
	max    int

	Backoff retry.Backoff

	seq    uint64
	loaded bool
}

func NewChangeFeedSource(store FeedStore, p Processor, cfg config.PipelineConfig, logger *zap.SugaredLogger) *ChangeFeedSource {
	return &ChangeFeedSource{
		store:   store,
		p:       p,
		log:     logger,
		m:       metrics.Get(),
		stream:  cfg.Stream,
		poll:    cfg.PollInterval,
		batch:   cfg.BatchSize,
		max:     cfg.MaxAttempts,
		Backoff: retry.DefaultBackoff(),
	}
}

// Run follows the feed until ctx is cancelled, or returns an error when an
// event cannot be processed within the attempt limit.
func (s *ChangeFeedSource) Run(ctx context.Context) error {
	s.log.Infow("change feed source started", "stream", s.stream)
	for {
		n, err := s.RunOnce(ctx)
		if ctx.Err() != nil {
			s.log.Infow("change feed source stopped", "stream", s.stream, "seq", s.seq)
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 && sleep(ctx, s.poll) != nil {
			return nil
		}
	}
}

// RunOnce processes the next batch after the resume token and reports how
// many events it processed.
func (s *ChangeFeedSource) RunOnce(ctx context.Context) (int, error) {
	if !s.loaded {
		tok, err := s.store.LoadResumeToken(ctx, s.stream)
		if err != nil {
			s.log.Warnw("load resume token failed", "stream", s.stream, "error", err)
			return 0, nil
		}
		if tok != nil {
			s.seq = tok.Seq
		}
		s.loaded = true
		s.log.Infow("resuming change feed", "stream", s.stream, "seq", s.seq)
	}

	evts, err := s.store.EventsAfter(ctx, s.seq, s.batch)
	if err != nil {
		s.log.Warnw("read change feed failed", "stream", s.stream, "error", err)
		return 0, nil
	}
	for i, ev := range evts {
		if err := s.process(ctx, ev); err != nil {
			return i, err
		}
		s.seq = ev.Seq
		s.m.ResumeTokenSeq.WithLabelValues(s.stream).Set(float64(ev.Seq))
	}
	return len(evts), nil
}

// Seq is the position of the last processed event.
func (s *ChangeFeedSource) Seq() uint64 { return s.seq }

func (s *ChangeFeedSource) process(ctx context.Context, ev model.Event) error {
	env := model.EnvelopeOf(ev)
	work := context.WithoutCancel(ctx)
	tok := &model.ResumeToken{ID: s.stream, Seq: ev.Seq, Event: ev.ID, Date: ev.Date}

	var err error
	for attempt := 1; ; attempt++ {
		err = s.p.Process(work, env)
		if err == nil {
			err = s.store.SaveResumeToken(work, tok)
			if err != nil {
				err = fmt.Errorf("save resume token: %w", err)
			}
		}
		if err == nil {
			s.m.Processed.WithLabelValues(config.SourceChangeFeed, env.EntityType, "ok").Inc()
			return nil
		}
		s.m.Processed.WithLabelValues(config.SourceChangeFeed, env.EntityType, "error").Inc()
		s.log.Warnw("propagation failed",
			"eventId", env.EventID, "entityType", env.EntityType, "entityId", env.EntityID,
			"seq", ev.Seq, "attempt", attempt, "error", err)
		if s.max > 0 && attempt >= s.max {
			break
		}
		if serr := sleep(ctx, s.Backoff.Delay(attempt, nil)); serr != nil {
			return serr
		}
	}
	s.log.Errorw("change feed halted",
		"stream", s.stream, "eventId", env.EventID, "seq", ev.Seq, "error", err)
	return fmt.Errorf("change feed %s halted at event %s after %d attempts: %w", s.stream, env.EventID, s.max, err)
}
