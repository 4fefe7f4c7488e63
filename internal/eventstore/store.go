// Package eventstore is the append-only log of entity events.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result describes one persisted event.
type Result struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     *string        `json:"userId,omitempty"`
	Values     map[string]any `json:"values"`
}

// Envelope returns the propagation envelope of r.
func (r Result) Envelope() model.Envelope {
	return model.Envelope{EventID: r.ID, EntityType: r.EntityType, EntityID: r.EntityID, UserID: r.UserID}
}

// Store appends and reads events.
type Store struct {
	db       *gorm.DB
	validate *validator.Validate
	log      *zap.SugaredLogger
	now      func() time.Time
}

// New returns a Store backed by db.
func New(db *gorm.DB, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, validate: newValidator(), log: logger, now: time.Now}
}

// Push validates every event, then appends each one. tx may be nil to write
// outside a transaction. Each insert is independent; a duplicate key surfaces
// as apperr.ErrDuplicateKey.
func (s *Store) Push(ctx context.Context, tx *gorm.DB, entityType string, events []model.Event) ([]Result, error) {
	if tx == nil {
		tx = s.db
	}
	for i := range events {
		if err := s.Validate(entityType, &events[i]); err != nil {
			return nil, err
		}
	}
	results := make([]Result, 0, len(events))
	for i := range events {
		ev := &events[i]
		ev.EntityType = entityType
		ev.Seq = 0
		if ev.ID == "" {
			// v7 ids are monotonic within the process, so events sharing a
			// millisecond still sort in push order.
			ev.ID = uuid.Must(uuid.NewV7()).String()
		}
		if ev.Date.IsZero() {
			ev.Date = s.now()
		}
		ev.Date = ev.Date.UTC().Truncate(time.Millisecond)
		if ev.Values == nil {
			ev.Values = datatypes.JSONMap{}
		}
		if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
			err = apperr.FromStorage(err)
			if errors.Is(err, apperr.ErrDuplicateKey) {
				return results, err
			}
			return results, fmt.Errorf("push %s %s: %w", entityType, ev.Command, err)
		}
		s.log.Debugw("event pushed", "eventId", ev.ID, "entityType", entityType, "entityId", ev.EntityID, "command", ev.Command)
		results = append(results, Result{
			ID:         ev.ID,
			EntityType: entityType,
			EntityID:   ev.EntityID,
			UserID:     ev.UserID,
			Values:     map[string]any(ev.Values),
		})
	}
	return results, nil
}

// Validate checks ev against the schema of entityType.
func (s *Store) Validate(entityType string, ev *model.Event) error {
	if !model.IsEntityType(entityType) {
		return apperr.Invalid("entityType", "unknown entity type %q", entityType)
	}
	if ev.EntityID == "" {
		return apperr.Invalid("entityId", "is required")
	}
	rules, ok := rulesFor(entityType, ev.Command)
	if !ok {
		return apperr.Invalid("command", "%q is not a %s command", ev.Command, entityType)
	}

	var fieldErrs []apperr.FieldError
	for field := range ev.Values {
		if _, ok := rules[field]; !ok {
			fieldErrs = append(fieldErrs, apperr.FieldError{Field: "values." + field, Message: "unknown field"})
		}
	}
	data := map[string]interface{}(ev.Values)
	if data == nil {
		data = map[string]interface{}{}
	}
	for field, rule := range rules {
		if err := s.validate.Var(data[field], rule); err != nil {
			fieldErrs = append(fieldErrs, apperr.FieldError{Field: "values." + field, Message: ruleMessage(err)})
		}
	}
	if len(fieldErrs) > 0 {
		sort.Slice(fieldErrs, func(i, j int) bool { return fieldErrs[i].Field < fieldErrs[j].Field })
		return &apperr.ValidationError{Errors: fieldErrs}
	}
	return nil
}

func ruleMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if verrs[0].Tag() == "required" {
			return "is required"
		}
		return fmt.Sprintf("failed the %q rule", verrs[0].Tag())
	}
	return err.Error()
}

// Stream returns the events of one entity sorted by (entityId, date, id).
func (s *Store) Stream(ctx context.Context, entityType, entityID string) ([]model.Event, error) {
	var evts []model.Event
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("date").Order("id").
		Find(&evts).Error
	if err != nil {
		return nil, apperr.Transient("read stream", err)
	}
	model.SortEvents(evts)
	return evts, nil
}

// EntityIDs returns every entity id that has at least one event.
func (s *Store) EntityIDs(ctx context.Context, entityType string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.Event{}).
		Where("entity_type = ?", entityType).
		Distinct("entity_id").Order("entity_id").
		Pluck("entity_id", &ids).Error
	return ids, err
}
