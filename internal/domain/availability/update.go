package availability

import "time"

const (
	extendCloseOffset        = 200 * time.Millisecond
	addActorCloseOffset      = 200 * time.Millisecond
	changeOptionsCloseOffset = 750 * time.Millisecond
)

// Update is the outcome of a schedule change: Prior is the original schedule
// closed at now minus the offset, Current is the newly effective one.
type Update struct {
	Prior   *Schedule
	Current *Schedule
}

func (s *Schedule) closed(cfg settings) Period {
	return Period{Start: s.period.Start, End: cfg.now().Add(-cfg.offset)}
}

func (s *Schedule) derive(actors []BookableActor, period Period, options *ScheduleOptions, cfg settings) *Schedule {
	return build(actors, period, options, cfg.now, s.activityOffset)
}

// Extend moves the end of s to newEnd. The start never changes.
func Extend(s *Schedule, newEnd string, opts ...Option) (*Update, error) {
	cfg := resolve(s.nowFunc, extendCloseOffset, opts)
	if s.period.Inverted() {
		return nil, ErrScheduleEndsBeforeStarts
	}
	end, err := ParseTime(newEnd)
	if err != nil {
		return nil, err
	}
	if end.Before(s.period.End) {
		return nil, ErrScheduleNewEndIsBeforePriorEnd
	}
	return &Update{
		Prior:   s.derive(s.actors, s.closed(cfg), s.options, cfg),
		Current: s.derive(s.actors, Period{Start: s.period.Start, End: end}, s.options, cfg),
	}, nil
}

// AddActor appends actor to a copy of the actor list. Prior keeps the list
// as it was. Duplicates are not checked.
func AddActor(s *Schedule, actor BookableActor, opts ...Option) *Update {
	cfg := resolve(s.nowFunc, addActorCloseOffset, opts)
	actors := append(copyActors(s.actors), actor)
	return &Update{
		Prior:   s.derive(s.actors, s.closed(cfg), s.options, cfg),
		Current: s.derive(actors, s.period, s.options, cfg),
	}
}

// ChangeOptions replaces the options of s wholesale. Fields left out of
// options are dropped, not carried over.
func ChangeOptions(s *Schedule, options *ScheduleOptions, opts ...Option) *Update {
	cfg := resolve(s.nowFunc, changeOptionsCloseOffset, opts)
	return &Update{
		Prior:   s.derive(s.actors, s.closed(cfg), s.options, cfg),
		Current: s.derive(s.actors, s.period, options, cfg),
	}
}
