package scheduling

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/CodePlayData/fhir/internal/domain/availability"
	"github.com/CodePlayData/fhir/internal/platform/events"
)

// Offsets tunes the availability clock. Zero values keep the defaults of the
// availability package.
type Offsets struct {
	Activity time.Duration
	Close    time.Duration
}

type Service struct {
	schedules ScheduleRepository
	tx        Transactor
	events    events.Publisher
	logger    zerolog.Logger
	nowFunc   func() time.Time
	offsets   Offsets
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.nowFunc = now
		}
	}
}

func WithOffsets(o Offsets) ServiceOption {
	return func(s *Service) { s.offsets = o }
}

// NewService wires the use cases. A nil tx runs writes without a
// transaction and a nil publisher drops events.
func NewService(repo ScheduleRepository, tx Transactor, pub events.Publisher, logger zerolog.Logger, opts ...ServiceOption) *Service {
	if tx == nil {
		tx = NopTransactor{}
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	s := &Service{
		schedules: repo,
		tx:        tx,
		events:    pub,
		logger:    logger,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) buildOpts() []availability.Option {
	opts := []availability.Option{availability.WithNow(s.nowFunc)}
	if s.offsets.Activity > 0 {
		opts = append(opts, availability.WithOffset(s.offsets.Activity))
	}
	return opts
}

func (s *Service) closeOpts() []availability.Option {
	opts := []availability.Option{availability.WithNow(s.nowFunc)}
	if s.offsets.Close > 0 {
		opts = append(opts, availability.WithOffset(s.offsets.Close))
	}
	return opts
}

type OpenScheduleInput struct {
	Actors  []availability.BookableActor
	Start   time.Time
	End     time.Time
	Options *availability.ScheduleOptions
}

// OpenSchedule builds a schedule from in and stores it as a new live document.
func (s *Service) OpenSchedule(ctx context.Context, in OpenScheduleInput) (*ScheduleDocument, error) {
	if in.End.Before(in.Start) {
		return nil, ErrInvalidPlanningHorizon
	}
	sched := availability.New(in.Actors, availability.Period{Start: in.Start, End: in.End}, in.Options, s.buildOpts()...)
	doc, err := NewDocument(sched, nil)
	if err != nil {
		return nil, err
	}
	if err := s.schedules.SaveSchedule(ctx, doc); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	s.logger.Info().Str("schedule_id", doc.FHIRID).Bool("active", sched.Active()).
		Int("actors", len(doc.Actors)).Msg("schedule opened")
	s.publish(ctx, events.New(events.ScheduleOpened, availability.ScheduleResourceType, doc.FHIRID, map[string]interface{}{
		"active": sched.Active(),
		"start":  sched.Start(),
		"end":    sched.End(),
	}))
	return doc, nil
}

func (s *Service) GetSchedule(ctx context.Context, fhirID string) (*ScheduleDocument, error) {
	doc, err := s.schedules.FindSchedule(ctx, map[string]string{FilterFHIRID: fhirID})
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", fhirID, err)
	}
	return doc, nil
}

func (s *Service) SearchSchedules(ctx context.Context, params map[string]string, limit, offset int) ([]*ScheduleDocument, int, error) {
	docs, total, err := s.schedules.SearchSchedules(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search schedules: %w", err)
	}
	return docs, total, nil
}

// ExtendSchedule moves the end of the live schedule to newEnd.
func (s *Service) ExtendSchedule(ctx context.Context, fhirID, newEnd string) (*UpdateResult, error) {
	return s.update(ctx, fhirID, events.ScheduleExtended, func(sched *availability.Schedule) (*availability.Update, error) {
		return availability.Extend(sched, newEnd, s.closeOpts()...)
	})
}

func (s *Service) AddScheduleActor(ctx context.Context, fhirID string, actor availability.BookableActor) (*UpdateResult, error) {
	return s.update(ctx, fhirID, events.ScheduleActorAdded, func(sched *availability.Schedule) (*availability.Update, error) {
		return availability.AddActor(sched, actor, s.closeOpts()...), nil
	})
}

func (s *Service) ChangeScheduleOptions(ctx context.Context, fhirID string, options *availability.ScheduleOptions) (*UpdateResult, error) {
	return s.update(ctx, fhirID, events.ScheduleOptionsChanged, func(sched *availability.Schedule) (*availability.Update, error) {
		return availability.ChangeOptions(sched, options, s.closeOpts()...), nil
	})
}

// update runs op against the live schedule fhirID, then atomically rewrites
// the stored row as the closed prior and saves the current schedule as a new
// document pointing back at it.
func (s *Service) update(ctx context.Context, fhirID, eventType string, op func(*availability.Schedule) (*availability.Update, error)) (*UpdateResult, error) {
	doc, err := s.GetSchedule(ctx, fhirID)
	if err != nil {
		return nil, err
	}
	if !doc.Active {
		return nil, ErrScheduleInactive
	}

	up, err := op(doc.Schedule(s.buildOpts()...))
	if err != nil {
		return nil, err
	}
	prior, err := doc.supersede(up.Prior, s.nowFunc().UTC())
	if err != nil {
		return nil, err
	}
	current, err := NewDocument(up.Current, &doc.ID)
	if err != nil {
		return nil, err
	}

	err = withinTx(ctx, s.tx, func(ctx context.Context) error {
		n, err := s.schedules.UpdateSchedule(ctx, liveFilter(fhirID), prior.updateData())
		if err != nil {
			return fmt.Errorf("close schedule %s: %w", fhirID, err)
		}
		if n == 0 {
			return ErrScheduleInactive
		}
		if err := s.schedules.SaveSchedule(ctx, current); err != nil {
			return fmt.Errorf("save schedule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("schedule_id", current.FHIRID).Str("replaces", fhirID).
		Str("event", eventType).Msg("schedule updated")
	s.publish(ctx, events.New(eventType, availability.ScheduleResourceType, current.FHIRID, map[string]interface{}{
		"replaces": fhirID,
		"active":   up.Current.Active(),
		"start":    up.Current.Start(),
		"end":      up.Current.End(),
	}))
	return &UpdateResult{Prior: prior, Current: current}, nil
}

// DeactivateSchedule retires the schedule. Deactivating an already inactive
// schedule succeeds without effect.
func (s *Service) DeactivateSchedule(ctx context.Context, fhirID string) error {
	n, err := s.schedules.DeactivateSchedule(ctx, liveFilter(fhirID))
	if err != nil {
		return fmt.Errorf("deactivate schedule %s: %w", fhirID, err)
	}
	if n == 0 {
		_, err := s.GetSchedule(ctx, fhirID)
		return err
	}
	s.logger.Info().Str("schedule_id", fhirID).Msg("schedule deactivated")
	s.publish(ctx, events.New(events.ScheduleDeactivated, availability.ScheduleResourceType, fhirID, nil))
	return nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("event", e.Type).Str("schedule_id", e.ResourceID).
			Msg("publish schedule event")
	}
}

func liveFilter(fhirID string) map[string]string {
	return map[string]string{FilterFHIRID: fhirID, FilterActive: strconv.FormatBool(true)}
}
