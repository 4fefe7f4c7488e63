package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Criteria selects normalized documents of one entity type. Empty criteria
// match every document.
type Criteria struct {
	IDs []string
	// Fields matches value fields by equality.
	Fields map[string]string
	// ExcludeDeleted drops soft-deleted documents.
	ExcludeDeleted bool
}

// ByIDs is shorthand for Criteria{IDs: ids}.
func ByIDs(ids ...string) Criteria { return Criteria{IDs: ids} }

// RepositoryInterface restricts Repo methods to what the derived stores need.
type RepositoryInterface interface {
	SaveNormalized(ctx context.Context, doc *model.NormalizedDocument) error
	GetNormalized(ctx context.Context, entityType, id string) (*model.NormalizedDocument, error)
	FindNormalized(ctx context.Context, entityType string, c Criteria) ([]model.NormalizedDocument, error)
	NormalizedIDs(ctx context.Context, entityType string, c Criteria) ([]string, error)
	SaveMaterialized(ctx context.Context, docs []model.MaterializedDocument) error
	DeleteMaterialized(ctx context.Context, entityType string, ids []string) error
	GetMaterialized(ctx context.Context, entityType, id string) (*model.MaterializedDocument, error)
	ListMaterialized(ctx context.Context, entityType string, limit int) ([]model.MaterializedDocument, error)
	EventsAfter(ctx context.Context, seq uint64, limit int) ([]model.Event, error)
	LoadResumeToken(ctx context.Context, stream string) (*model.ResumeToken, error)
	SaveResumeToken(ctx context.Context, tok *model.ResumeToken) error
}

var _ RepositoryInterface = (*Repository)(nil)

// Repository implements RepositoryInterface.
type Repository struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, log: logger}
}

// SaveNormalized replaces the normalized document wholesale.
func (r *Repository) SaveNormalized(ctx context.Context, doc *model.NormalizedDocument) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(doc).Error
}

// GetNormalized loads one normalized document.
func (r *Repository) GetNormalized(ctx context.Context, entityType, id string) (*model.NormalizedDocument, error) {
	var doc model.NormalizedDocument
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, id).
		First(&doc).Error
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	return &doc, nil
}

// FindNormalized returns the documents matching c ordered by id.
func (r *Repository) FindNormalized(ctx context.Context, entityType string, c Criteria) ([]model.NormalizedDocument, error) {
	q, ok := r.query(ctx, entityType, c)
	if !ok {
		return nil, nil
	}
	var docs []model.NormalizedDocument
	if err := q.Order("entity_id").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("find normalized %s: %w", entityType, err)
	}
	return docs, nil
}

// NormalizedIDs returns only the ids of the documents matching c.
func (r *Repository) NormalizedIDs(ctx context.Context, entityType string, c Criteria) ([]string, error) {
	q, ok := r.query(ctx, entityType, c)
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := q.Model(&model.NormalizedDocument{}).Order("entity_id").Pluck("entity_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("normalized ids %s: %w", entityType, err)
	}
	return ids, nil
}

// query builds the selection for c. ok is false when c cannot match anything.
func (r *Repository) query(ctx context.Context, entityType string, c Criteria) (*gorm.DB, bool) {
	if c.IDs != nil && len(c.IDs) == 0 {
		return nil, false
	}
	q := r.db.WithContext(ctx).Where("entity_type = ?", entityType)
	if len(c.IDs) > 0 {
		q = q.Where("entity_id IN ?", c.IDs)
	}
	for field, value := range c.Fields {
		q = q.Where(datatypes.JSONQuery("doc_values").Equals(value, field))
	}
	if c.ExcludeDeleted {
		q = q.Where("deleted = ?", false)
	}
	return q, true
}

// SaveMaterialized replaces-or-inserts docs keyed by (entity_type, entity_id).
func (r *Repository) SaveMaterialized(ctx context.Context, docs []model.MaterializedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&docs).Error
}

// DeleteMaterialized removes the read views of ids.
func (r *Repository) DeleteMaterialized(ctx context.Context, entityType string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id IN ?", entityType, ids).
		Delete(&model.MaterializedDocument{}).Error
}

// GetMaterialized loads one read view.
func (r *Repository) GetMaterialized(ctx context.Context, entityType, id string) (*model.MaterializedDocument, error) {
	var doc model.MaterializedDocument
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, id).
		First(&doc).Error
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	return &doc, nil
}

// ListMaterialized returns up to limit read views ordered by id.
func (r *Repository) ListMaterialized(ctx context.Context, entityType string, limit int) ([]model.MaterializedDocument, error) {
	var docs []model.MaterializedDocument
	err := r.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Order("entity_id").Limit(limit).
		Find(&docs).Error
	return docs, err
}

// EventsAfter pulls events inserted after seq, in insertion order.
func (r *Repository) EventsAfter(ctx context.Context, seq uint64, limit int) ([]model.Event, error) {
	var evts []model.Event
	err := r.db.WithContext(ctx).Where("seq > ?", seq).Order("seq").Limit(limit).Find(&evts).Error
	return evts, err
}

// LoadResumeToken returns the stream's token, or nil when the stream never ran.
func (r *Repository) LoadResumeToken(ctx context.Context, stream string) (*model.ResumeToken, error) {
	var tok model.ResumeToken
	err := r.db.WithContext(ctx).Where("id = ?", stream).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// SaveResumeToken upserts the stream's token.
func (r *Repository) SaveResumeToken(ctx context.Context, tok *model.ResumeToken) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(tok).Error
}
