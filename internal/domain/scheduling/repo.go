package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/CodePlayData/fhir/internal/domain/availability"
)

var (
	ErrScheduleNotFound       = errors.New("schedule not found")
	ErrScheduleInactive       = errors.New("schedule is no longer active")
	ErrInvalidPlanningHorizon = errors.New("planning horizon ends before it starts")
	ErrUnsupportedField       = errors.New("unsupported schedule field")
)

// Filter keys.
const (
	FilterID        = "id"
	FilterFHIRID    = "fhir_id"
	FilterActive    = "active"
	FilterActorType = "actor-type"
)

// Update data keys.
const (
	FieldActive     = "active"
	FieldActors     = "actors"
	FieldOptions    = "options"
	FieldStart      = "planning_horizon_start"
	FieldEnd        = "planning_horizon_end"
	FieldResource   = "resource"
	FieldReplacesID = "replaces_id"
)

// ScheduleRepository persists schedule documents. Filters and update data
// are keyed by the Filter* and Field* constants; other keys fail with
// ErrUnsupportedField. Lookups that match nothing fail with ErrScheduleNotFound.
// A search limit of zero or less returns every match.
type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, doc *ScheduleDocument) error
	UpdateSchedule(ctx context.Context, filter map[string]string, data map[string]interface{}) (int64, error)
	DeactivateSchedule(ctx context.Context, filter map[string]string) (int64, error)
	FindSchedule(ctx context.Context, filter map[string]string) (*ScheduleDocument, error)
	SearchSchedules(ctx context.Context, filter map[string]string, limit, offset int) ([]*ScheduleDocument, int, error)
}

// Transactor runs fn atomically against the repository's store.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactor runs fn directly, for stores without transactions.
type NopTransactor struct{}

func (NopTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type commitHooksKey struct{}

type commitHooks struct {
	fns []func(ctx context.Context)
}

// withinTx runs fn through tx, then the hooks fn registered with afterCommit.
// The hooks are dropped when the transaction fails.
func withinTx(ctx context.Context, tx Transactor, fn func(ctx context.Context) error) error {
	hooks := &commitHooks{}
	if err := tx.WithinTx(context.WithValue(ctx, commitHooksKey{}, hooks), fn); err != nil {
		return err
	}
	for _, h := range hooks.fns {
		h(ctx)
	}
	return nil
}

// afterCommit defers fn until the transaction started by withinTx commits.
// Without one, fn runs immediately.
func afterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		hooks.fns = append(hooks.fns, fn)
		return
	}
	fn(ctx)
}

type scheduleFilter struct {
	ID        *uuid.UUID
	FHIRID    *string
	Active    *bool
	ActorType *availability.ActorType
}

func parseFilter(filter map[string]string) (scheduleFilter, error) {
	var f scheduleFilter
	for key, v := range filter {
		switch key {
		case FilterID:
			id, err := uuid.Parse(v)
			if err != nil {
				return f, fmt.Errorf("filter %s: %w", key, err)
			}
			f.ID = &id
		case FilterFHIRID:
			val := v
			f.FHIRID = &val
		case FilterActive:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return f, fmt.Errorf("filter %s: %w", key, err)
			}
			f.Active = &b
		case FilterActorType:
			t, err := availability.ParseActorType(v)
			if err != nil {
				return f, fmt.Errorf("filter %s: %w", key, err)
			}
			f.ActorType = &t
		default:
			return f, fmt.Errorf("%w: filter %q", ErrUnsupportedField, key)
		}
	}
	return f, nil
}

func (f scheduleFilter) matches(d *ScheduleDocument) bool {
	if f.ID != nil && d.ID != *f.ID {
		return false
	}
	if f.FHIRID != nil && d.FHIRID != *f.FHIRID {
		return false
	}
	if f.Active != nil && d.Active != *f.Active {
		return false
	}
	if f.ActorType != nil {
		found := false
		for _, a := range d.Actors {
			if a.Type == *f.ActorType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type scheduleUpdate struct {
	Active     *bool
	Actors     *[]availability.BookableActor
	Options    **availability.ScheduleOptions
	Start      *time.Time
	End        *time.Time
	Resource   json.RawMessage
	ReplacesID **uuid.UUID
}

func typeError(key string, v interface{}) error {
	return fmt.Errorf("field %s: unexpected value type %T", key, v)
}

func parseUpdate(data map[string]interface{}) (scheduleUpdate, error) {
	var u scheduleUpdate
	for key, v := range data {
		switch key {
		case FieldActive:
			b, ok := v.(bool)
			if !ok {
				return u, typeError(key, v)
			}
			u.Active = &b
		case FieldActors:
			actors, ok := v.([]availability.BookableActor)
			if !ok {
				return u, typeError(key, v)
			}
			u.Actors = &actors
		case FieldOptions:
			opts, ok := v.(*availability.ScheduleOptions)
			if !ok && v != nil {
				return u, typeError(key, v)
			}
			u.Options = &opts
		case FieldStart, FieldEnd:
			t, ok := v.(time.Time)
			if !ok {
				return u, typeError(key, v)
			}
			if key == FieldStart {
				u.Start = &t
			} else {
				u.End = &t
			}
		case FieldResource:
			switch raw := v.(type) {
			case json.RawMessage:
				u.Resource = raw
			case []byte:
				u.Resource = raw
			default:
				return u, typeError(key, v)
			}
		case FieldReplacesID:
			id, ok := v.(*uuid.UUID)
			if !ok && v != nil {
				return u, typeError(key, v)
			}
			u.ReplacesID = &id
		default:
			return u, fmt.Errorf("%w: %q", ErrUnsupportedField, key)
		}
	}
	return u, nil
}

func (u scheduleUpdate) apply(d *ScheduleDocument) {
	if u.Active != nil {
		d.Active = *u.Active
	}
	if u.Actors != nil {
		d.Actors = append([]availability.BookableActor(nil), (*u.Actors)...)
	}
	if u.Options != nil {
		d.Options = *u.Options
	}
	if u.Start != nil {
		d.Start = *u.Start
	}
	if u.End != nil {
		d.End = *u.End
	}
	if u.Resource != nil {
		d.Resource = append(json.RawMessage(nil), u.Resource...)
	}
	if u.ReplacesID != nil {
		d.ReplacesID = *u.ReplacesID
	}
}
