package pipeline

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/config"
	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/metrics"
	"github.com/richardliu001/identity-service/internal/pubsub"
	"go.uber.org/zap"
)

// IssueFunc pushes events and returns their results.
type IssueFunc func(ctx context.Context) ([]eventstore.Result, error)

// Waiter lets a caller block until the events of a command are processed.
type Waiter struct {
	broker  pubsub.Broker
	timeout time.Duration
	log     *zap.SugaredLogger
	m       *metrics.Metrics
}

// NewWaiter returns a Waiter; timeout is clamped to the allowed bounds.
func NewWaiter(b pubsub.Broker, timeout time.Duration, logger *zap.SugaredLogger) *Waiter {
	return &Waiter{broker: b, timeout: config.ClampWaitTimeout(timeout), log: logger, m: metrics.Get()}
}

// WaitUntilProcessed subscribes before running issue, so no announcement is
// missed, then waits until every returned event id is announced. On timeout it
// returns the results with a *apperr.ProcessingTimeoutError.
func (w *Waiter) WaitUntilProcessed(ctx context.Context, issue IssueFunc) ([]eventstore.Result, error) {
	sub, err := w.broker.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			w.log.Warnw("close subscription", "error", err)
		}
	}()

	results, err := issue(ctx)
	if err != nil {
		return results, err
	}
	pending := make(map[string]struct{}, len(results))
	for _, r := range results {
		pending[r.ID] = struct{}{}
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	for len(pending) > 0 {
		select {
		case env, ok := <-sub.C():
			if !ok {
				return results, apperr.Transient("wait for processing", errors.New("subscription closed"))
			}
			delete(pending, env.EventID)
		case <-timer.C:
			w.m.WaiterTimeouts.Inc()
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			return results, &apperr.ProcessingTimeoutError{Pending: ids}
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}
