// Package reservation enforces uniqueness of (entity type, key, value) claims.
package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IDKey is the reservation key every CREATE claims for its entity id.
const IDKey = "_id"

// Ledger reserves and releases unique values. Writes take the caller's
// transaction so they commit or abort with the event push.
type Ledger struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewLedger returns a Ledger.
func NewLedger(db *gorm.DB, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{db: db, log: logger}
}

// Reserve claims r for r.EntityID. A claim already held, by any entity,
// fails with apperr.ErrDuplicateKey.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, r model.Reservation) error {
	if r.Value == "" {
		return apperr.Invalid(r.Key, "is required")
	}
	if err := tx.WithContext(ctx).Create(&r).Error; err != nil {
		err = apperr.FromStorage(err)
		if errors.Is(err, apperr.ErrDuplicateKey) {
			return fmt.Errorf("reserve %s.%s=%q: %w", r.EntityType, r.Key, r.Value, err)
		}
		return err
	}
	return nil
}

// Release drops every claim entityID holds on key.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, entityType, key, entityID string) error {
	return tx.WithContext(ctx).
		Where("entity_type = ? AND reservation_key = ? AND entity_id = ?", entityType, key, entityID).
		Delete(&model.Reservation{}).Error
}

// Holder returns the entity holding (entityType, key, value), or
// apperr.ErrNotFound.
func (l *Ledger) Holder(ctx context.Context, entityType, key, value string) (string, error) {
	var r model.Reservation
	err := l.db.WithContext(ctx).
		Where("entity_type = ? AND reservation_key = ? AND value = ?", entityType, key, value).
		First(&r).Error
	if err != nil {
		return "", apperr.FromStorage(err)
	}
	return r.EntityID, nil
}

// Held returns the value entityID currently holds on key, or "".
func (l *Ledger) Held(ctx context.Context, tx *gorm.DB, entityType, key, entityID string) (string, error) {
	var values []string
	err := tx.WithContext(ctx).Model(&model.Reservation{}).
		Where("entity_type = ? AND reservation_key = ? AND entity_id = ?", entityType, key, entityID).
		Limit(1).Pluck("value", &values).Error
	if err != nil || len(values) == 0 {
		return "", err
	}
	return values[0], nil
}
