package availability

import (
	"time"

	"github.com/goccy/go-json"
)

// DefaultActivityOffset is how far past now the activity check looks, to
// absorb the delay between assembling a period and building the schedule.
const DefaultActivityOffset = 750 * time.Millisecond

// Period is the planning horizon of a schedule. End before Start is accepted
// here; Extend reports it.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Inverted reports whether the period ends before it starts.
func (p Period) Inverted() bool { return p.End.Before(p.Start) }

// ScheduleOptions is the optional descriptive metadata of a schedule. Empty
// values are absent.
type ScheduleOptions struct {
	Name            string   `json:"name,omitempty" bson:"name,omitempty"`
	Comment         string   `json:"comment,omitempty" bson:"comment,omitempty"`
	ServiceCategory string   `json:"serviceCategory,omitempty" bson:"service_category,omitempty"`
	ServiceType     []string `json:"serviceType,omitempty" bson:"service_type,omitempty"`
	Specialty       []string `json:"specialty,omitempty" bson:"specialty,omitempty"`
}

func (o *ScheduleOptions) clone() *ScheduleOptions {
	if o == nil {
		return nil
	}
	c := *o
	if o.ServiceType != nil {
		c.ServiceType = append([]string(nil), o.ServiceType...)
	}
	if o.Specialty != nil {
		c.Specialty = append([]string(nil), o.Specialty...)
	}
	return &c
}

type settings struct {
	now       func() time.Time
	offset    time.Duration
	offsetSet bool
}

// Option tunes construction and update operations.
type Option func(*settings)

// WithNow replaces the clock used for activity checks and window closing.
func WithNow(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOffset overrides the default offset. On New it is the activity offset;
// on update operations it is how far before now the prior window closes.
func WithOffset(d time.Duration) Option {
	return func(s *settings) {
		s.offset = d
		s.offsetSet = true
	}
}

func resolve(now func() time.Time, offset time.Duration, opts []Option) settings {
	s := settings{now: now, offset: offset}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// IsActive reports whether now+offset falls strictly inside p.
func IsActive(p Period, now time.Time, offset time.Duration) bool {
	ref := now.Add(offset)
	return p.Start.Before(ref) && p.End.After(ref)
}

// Schedule is the availability aggregate: who can be booked over which
// window. Instances are immutable; updates return new ones.
type Schedule struct {
	record         ScheduleRecord
	actors         []BookableActor
	period         Period
	options        *ScheduleOptions
	active         bool
	nowFunc        func() time.Time
	activityOffset time.Duration
}

// New builds a schedule for actors over period. Active is computed once, here.
func New(actors []BookableActor, period Period, options *ScheduleOptions, opts ...Option) *Schedule {
	cfg := resolve(time.Now, DefaultActivityOffset, opts)
	return build(actors, period, options, cfg.now, cfg.offset)
}

func build(actors []BookableActor, period Period, options *ScheduleOptions, now func() time.Time, offset time.Duration) *Schedule {
	s := &Schedule{
		actors:         copyActors(actors),
		period:         period,
		options:        options.clone(),
		nowFunc:        now,
		activityOffset: offset,
	}
	s.active = IsActive(period, now(), offset)
	s.record = NewScheduleRecord(s.recordInput())
	return s
}

func (s *Schedule) recordInput() ScheduleR5 {
	active := s.active
	horizon := s.period
	in := ScheduleR5{
		ScheduleR4B: ScheduleR4B{
			Active:          &active,
			Actor:           s.actors,
			PlanningHorizon: &horizon,
		},
	}
	o := s.options
	if o == nil {
		return in
	}
	in.Comment = o.Comment
	if o.Name != "" {
		name := o.Name
		in.Name = &name
	}
	if o.ServiceCategory != "" {
		in.ServiceCategory = &CodingInput{Display: o.ServiceCategory}
	}
	if o.ServiceType != nil {
		in.ServiceType = make([]ServiceTypeInput, len(o.ServiceType))
		for i, label := range o.ServiceType {
			in.ServiceType[i] = ServiceTypeInput{Concept: CodingInput{Display: label}}
		}
	}
	if o.Specialty != nil {
		in.Specialty = make([]CodingInput, len(o.Specialty))
		for i, label := range o.Specialty {
			in.Specialty[i] = CodingInput{Display: label}
		}
	}
	return in
}

// Whose returns a copy of the schedule's actors.
func (s *Schedule) Whose() []BookableActor { return copyActors(s.actors) }

// Start returns the planning horizon start as RFC 3339.
func (s *Schedule) Start() string { return s.period.Start.Format(time.RFC3339Nano) }

// End returns the planning horizon end as RFC 3339.
func (s *Schedule) End() string { return s.period.End.Format(time.RFC3339Nano) }

func (s *Schedule) Period() Period { return s.period }

// Options returns a copy of the options, or nil when none were given.
func (s *Schedule) Options() *ScheduleOptions { return s.options.clone() }

// Active is the activity computed at construction. It goes stale as time
// passes; build a fresh schedule to recompute it.
func (s *Schedule) Active() bool { return s.active }

func (s *Schedule) Name() string {
	if s.options == nil {
		return ""
	}
	return s.options.Name
}

func (s *Schedule) Comment() string {
	if s.options == nil {
		return ""
	}
	return s.options.Comment
}

func (s *Schedule) ServiceCategory() string {
	if s.options == nil {
		return ""
	}
	return s.options.ServiceCategory
}

func (s *Schedule) ServiceType() []string {
	if s.options == nil {
		return nil
	}
	return append([]string(nil), s.options.ServiceType...)
}

func (s *Schedule) Specialty() []string {
	if s.options == nil {
		return nil
	}
	return append([]string(nil), s.options.Specialty...)
}

// Record returns the canonical resource backing the schedule.
func (s *Schedule) Record() ScheduleRecord { return s.record }

func (s *Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.record)
}
