package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/richardliu001/identity-service/internal/apperr"
	"github.com/richardliu001/identity-service/internal/eventstore"
	"github.com/richardliu001/identity-service/internal/metrics"
	"github.com/richardliu001/identity-service/internal/model"
	"github.com/richardliu001/identity-service/internal/reservation"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enqueuer hands pushed events to the propagation queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, envs ...model.Envelope) error
}

// NopEnqueuer is used when a change-feed listener drives propagation.
type NopEnqueuer struct{}

func (NopEnqueuer) Enqueue(context.Context, ...model.Envelope) error { return nil }

// entityKind describes how commands of one entity type claim unique values.
type entityKind struct {
	Type string
	// Unique is the value field reserved besides the id, or "".
	Unique string
	// Refs are value fields that must name existing entities.
	Refs []ref
}

type ref struct {
	Field string
	Type  string
}

// eventOpts flags a pushed event.
type eventOpts struct {
	omitFromHistory  bool
	omitFromModified bool
}

// Core runs commands: reservation changes and the event push share one
// transaction, and committed events are enqueued for propagation.
type Core struct {
	db       *gorm.DB
	store    *eventstore.Store
	ledger   *reservation.Ledger
	enq      Enqueuer
	log      *zap.SugaredLogger
	validate *validator.Validate
	m        *metrics.Metrics
}

// NewCore wires the command dependencies. enq may be nil.
func NewCore(db *gorm.DB, store *eventstore.Store, ledger *reservation.Ledger, enq Enqueuer, logger *zap.SugaredLogger) *Core {
	if enq == nil {
		enq = NopEnqueuer{}
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Core{db: db, store: store, ledger: ledger, enq: enq, log: logger, validate: v, m: metrics.Get()}
}

// check validates a command input struct.
func (c *Core) check(in any) error {
	err := c.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &apperr.ValidationError{}
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed the %q rule", fe.Tag())
		if fe.Tag() == "required" {
			msg = "is required"
		}
		ve.Errors = append(ve.Errors, apperr.FieldError{Field: fe.Field(), Message: msg})
	}
	return ve
}

// create reserves the id and the unique value, then pushes CREATE.
func (c *Core) create(ctx context.Context, kind entityKind, id string, actor *string, values map[string]any) ([]eventstore.Result, error) {
	if id == "" {
		id = uuid.NewString()
	}
	return c.run(ctx, kind.Type, model.CommandCreate, func(tx *gorm.DB) ([]eventstore.Result, error) {
		if err := c.ledger.Reserve(ctx, tx, model.Reservation{
			EntityType: kind.Type, Key: reservation.IDKey, Value: id, EntityID: id,
		}); err != nil {
			return nil, err
		}
		if err := c.checkRefs(ctx, tx, kind, values); err != nil {
			return nil, err
		}
		if kind.Unique != "" {
			value, _ := values[kind.Unique].(string)
			if err := c.ledger.Reserve(ctx, tx, model.Reservation{
				EntityType: kind.Type, Key: kind.Unique, Value: value, EntityID: id,
			}); err != nil {
				return nil, err
			}
		}
		return c.push(ctx, tx, kind.Type, model.CommandCreate, id, actor, values, eventOpts{})
	})
}

// change pushes command against an existing entity. When values carry the
// unique field, the superseded claim is released and the new one reserved.
func (c *Core) change(ctx context.Context, kind entityKind, id, command string, actor *string, values map[string]any, opts eventOpts) ([]eventstore.Result, error) {
	return c.run(ctx, kind.Type, command, func(tx *gorm.DB) ([]eventstore.Result, error) {
		if err := c.mustExist(ctx, tx, kind.Type, id); err != nil {
			return nil, err
		}
		if value, ok := values[kind.Unique].(string); ok && kind.Unique != "" {
			if err := c.ledger.Release(ctx, tx, kind.Type, kind.Unique, id); err != nil {
				return nil, err
			}
			if err := c.ledger.Reserve(ctx, tx, model.Reservation{
				EntityType: kind.Type, Key: kind.Unique, Value: value, EntityID: id,
			}); err != nil {
				return nil, err
			}
		}
		return c.push(ctx, tx, kind.Type, command, id, actor, values, opts)
	})
}

// delete appends DELETE. Claims stay with the entity so it can be restored.
func (c *Core) delete(ctx context.Context, kind entityKind, id string, actor *string) ([]eventstore.Result, error) {
	return c.change(ctx, entityKind{Type: kind.Type}, id, model.CommandDelete, actor, nil, eventOpts{})
}

// restore appends RESTORE.
func (c *Core) restore(ctx context.Context, kind entityKind, id string, actor *string) ([]eventstore.Result, error) {
	return c.change(ctx, entityKind{Type: kind.Type}, id, model.CommandRestore, actor, nil, eventOpts{})
}

// createOrRestore creates the entity, or, when its id or unique value is
// already claimed, restores the entity holding the claim instead.
func (c *Core) createOrRestore(ctx context.Context, kind entityKind, id string, actor *string, values map[string]any) ([]eventstore.Result, error) {
	res, err := c.create(ctx, kind, id, actor, values)
	if !errors.Is(err, apperr.ErrDuplicateKey) {
		return res, err
	}
	holder, herr := c.holder(ctx, kind, id, values)
	if herr != nil {
		return nil, fmt.Errorf("find reservation holder: %w (after %v)", herr, err)
	}
	c.log.Infow("create collided with reservation, restoring", "entityType", kind.Type, "entityId", holder)
	return c.restore(ctx, kind, holder, actor)
}

func (c *Core) holder(ctx context.Context, kind entityKind, id string, values map[string]any) (string, error) {
	if id != "" {
		h, err := c.ledger.Holder(ctx, kind.Type, reservation.IDKey, id)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return "", err
		}
	}
	if kind.Unique != "" {
		if value, ok := values[kind.Unique].(string); ok {
			return c.ledger.Holder(ctx, kind.Type, kind.Unique, value)
		}
	}
	return "", apperr.ErrNotFound
}

func (c *Core) mustExist(ctx context.Context, tx *gorm.DB, entityType, id string) error {
	if id == "" {
		return apperr.Invalid("entityId", "is required")
	}
	held, err := c.ledger.Held(ctx, tx, entityType, reservation.IDKey, id)
	if err != nil {
		return err
	}
	if held == "" {
		return fmt.Errorf("%s %s: %w", entityType, id, apperr.ErrNotFound)
	}
	return nil
}

func (c *Core) checkRefs(ctx context.Context, tx *gorm.DB, kind entityKind, values map[string]any) error {
	for _, r := range kind.Refs {
		id, _ := values[r.Field].(string)
		held, err := c.ledger.Held(ctx, tx, r.Type, reservation.IDKey, id)
		if err != nil {
			return err
		}
		if held == "" {
			return apperr.Invalid(r.Field, "unknown %s %q", r.Type, id)
		}
	}
	return nil
}

func (c *Core) push(ctx context.Context, tx *gorm.DB, entityType, command, id string, actor *string, values map[string]any, opts eventOpts) ([]eventstore.Result, error) {
	ev := model.Event{
		EntityID:         id,
		Command:          command,
		UserID:           actor,
		Values:           datatypes.JSONMap(values),
		OmitFromHistory:  opts.omitFromHistory,
		OmitFromModified: opts.omitFromModified,
	}
	return c.store.Push(ctx, tx, entityType, []model.Event{ev})
}

// Ingest appends raw events of entityType in one transaction and enqueues
// them. A CREATE claims the entity id when it is still free so later commands
// can address the entity; unique values are not reserved.
func (c *Core) Ingest(ctx context.Context, entityType string, events []model.Event) ([]eventstore.Result, error) {
	return c.run(ctx, entityType, "ingest", func(tx *gorm.DB) ([]eventstore.Result, error) {
		results, err := c.store.Push(ctx, tx, entityType, events)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.Command != model.CommandCreate {
				continue
			}
			held, err := c.ledger.Held(ctx, tx, entityType, reservation.IDKey, ev.EntityID)
			if err != nil {
				return nil, err
			}
			if held != "" {
				continue
			}
			if err := c.ledger.Reserve(ctx, tx, model.Reservation{
				EntityType: entityType, Key: reservation.IDKey, Value: ev.EntityID, EntityID: ev.EntityID,
			}); err != nil {
				return nil, err
			}
		}
		return results, nil
	})
}

// run executes fn in a transaction and enqueues the results once committed.
func (c *Core) run(ctx context.Context, entityType, command string, fn func(tx *gorm.DB) ([]eventstore.Result, error)) ([]eventstore.Result, error) {
	var results []eventstore.Result
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		results, err = fn(tx)
		return err
	})
	if err != nil {
		c.m.Commands.WithLabelValues(entityType, command, resultLabel(err)).Inc()
		return nil, err
	}
	c.m.Commands.WithLabelValues(entityType, command, "ok").Inc()

	envs := make([]model.Envelope, 0, len(results))
	for _, r := range results {
		envs = append(envs, r.Envelope())
	}
	if err := c.enq.Enqueue(ctx, envs...); err != nil {
		c.log.Errorw("enqueue failed", "entityType", entityType, "command", command, "error", err)
		return results, apperr.Transient("enqueue", err)
	}
	return results, nil
}

func resultLabel(err error) string {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, apperr.ErrDuplicateKey):
		return "duplicate"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// decode copies loosely typed command values into an input struct.
func decode(values map[string]any, out any) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return apperr.Invalid("values", "%v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Invalid("values", "%v", err)
	}
	return nil
}

// setIf adds s to m under key when it is non-empty.
func setIf(m map[string]any, key, s string) {
	if s != "" {
		m[key] = s
	}
}
