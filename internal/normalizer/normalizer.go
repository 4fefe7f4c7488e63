package normalizer

import (
	"context"
	"fmt"

	"github.com/richardliu001/identity-service/internal/model"
	"go.uber.org/zap"
)

// StreamReader reads one entity's event stream.
type StreamReader interface {
	Stream(ctx context.Context, entityType, entityID string) ([]model.Event, error)
}

// DocumentWriter stores normalized documents.
type DocumentWriter interface {
	SaveNormalized(ctx context.Context, doc *model.NormalizedDocument) error
}

// Normalizer rebuilds normalized documents from the event log.
type Normalizer struct {
	events StreamReader
	docs   DocumentWriter
	log    *zap.SugaredLogger
}

// New returns a Normalizer.
func New(events StreamReader, docs DocumentWriter, logger *zap.SugaredLogger) *Normalizer {
	return &Normalizer{events: events, docs: docs, log: logger}
}

// Normalize folds the stream of each id and replaces its document. Ids without
// events are skipped. Safe to re-run.
func (n *Normalizer) Normalize(ctx context.Context, entityType string, ids []string) error {
	if !model.IsEntityType(entityType) {
		return fmt.Errorf("normalize: unknown entity type %q", entityType)
	}
	reducer := ReducerFor(entityType)
	for _, id := range ids {
		evts, err := n.events.Stream(ctx, entityType, id)
		if err != nil {
			return fmt.Errorf("normalize %s %s: %w", entityType, id, err)
		}
		if len(evts) == 0 {
			n.log.Warnw("no events to normalize", "entityType", entityType, "entityId", id)
			continue
		}
		doc := FoldAll(evts, reducer).Document(entityType, id)
		if err := n.docs.SaveNormalized(ctx, doc); err != nil {
			return fmt.Errorf("save normalized %s %s: %w", entityType, id, err)
		}
	}
	return nil
}
