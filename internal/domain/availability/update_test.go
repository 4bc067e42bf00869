package availability

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	start, end string
	body       []byte
}

func snap(t *testing.T, s *Schedule) snapshot {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return snapshot{start: s.Start(), end: s.End(), body: b}
}

func TestExtend(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSchedule(t, now, &ScheduleOptions{Comment: "kept"})
	before := snap(t, s)

	u, err := Extend(s, "2024-03-01T14:00:00Z")
	require.NoError(t, err)

	assert.Equal(t, before, snap(t, s))

	assert.Equal(t, s.Start(), u.Prior.Start())
	assert.Equal(t, now.Add(-200*time.Millisecond), u.Prior.Period().End)
	assert.False(t, u.Prior.Active())
	assert.Equal(t, "kept", u.Prior.Comment())

	assert.Equal(t, s.Start(), u.Current.Start())
	assert.Equal(t, "2024-03-01T14:00:00Z", u.Current.End())
	assert.True(t, u.Current.Active())
	assert.Equal(t, "kept", u.Current.Comment())
	assert.Equal(t, s.Whose(), u.Current.Whose())
}

func TestExtend_SameEndAllowed(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSchedule(t, now, nil)

	u, err := Extend(s, s.End())
	require.NoError(t, err)
	assert.Equal(t, s.End(), u.Current.End())
}

func TestExtend_NewEndBeforePriorEnd(t *testing.T) {
	april := time.Date(1996, 4, 17, 3, 24, 0, 0, time.Local)
	s := New([]BookableActor{{}}, Period{Start: april, End: april}, nil)

	u, err := Extend(s, "February 17, 1996 03:24:00")
	assert.ErrorIs(t, err, ErrScheduleNewEndIsBeforePriorEnd)
	assert.Nil(t, u)
}

func TestExtend_EndsBeforeStartsCheckedFirst(t *testing.T) {
	april := time.Date(1996, 4, 17, 3, 24, 0, 0, time.Local)
	s := New([]BookableActor{{}}, Period{Start: april, End: april.AddDate(0, -2, 0)}, nil)

	_, err := Extend(s, "February 17, 1996 03:24:00")
	assert.ErrorIs(t, err, ErrScheduleEndsBeforeStarts)

	_, err = Extend(s, "not a date")
	assert.ErrorIs(t, err, ErrScheduleEndsBeforeStarts)
}

func TestExtend_UnparseableEnd(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSchedule(t, now, nil)

	_, err := Extend(s, "tomorrow-ish")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrScheduleNewEndIsBeforePriorEnd)
	assert.NotErrorIs(t, err, ErrScheduleEndsBeforeStarts)
}

func TestExtend_CustomOffsetAndClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(10 * time.Minute)
	s := testSchedule(t, now, nil)

	u, err := Extend(s, "2024-03-02T00:00:00Z", WithNow(fixedClock(later)), WithOffset(time.Second))
	require.NoError(t, err)
	assert.Equal(t, later.Add(-time.Second), u.Prior.Period().End)
	assert.False(t, u.Prior.Active())
}

func TestAddActor(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSchedule(t, now, nil)
	require.Len(t, s.Whose(), 1)
	before := snap(t, s)

	practitioner := NewActor(ActorPractitioner, "urn:system", "dr-1")
	u := AddActor(s, practitioner)

	assert.Equal(t, before, snap(t, s))
	assert.Len(t, s.Whose(), 1)
	assert.Len(t, u.Prior.Whose(), 1)
	assert.False(t, u.Prior.Active())
	assert.Equal(t, now.Add(-200*time.Millisecond), u.Prior.Period().End)

	require.Len(t, u.Current.Whose(), 2)
	assert.Equal(t, practitioner, u.Current.Whose()[1])
	assert.Equal(t, s.Period(), u.Current.Period())
	assert.True(t, u.Current.Active())
}

func TestAddActor_AllowsDuplicates(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSchedule(t, now, nil)

	u := AddActor(s, s.Whose()[0])
	u = AddActor(u.Current, s.Whose()[0])
	assert.Len(t, u.Current.Whose(), 3)
	assert.Len(t, u.Prior.Whose(), 2)
}

func TestChangeOptions(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSchedule(t, now, &ScheduleOptions{Name: "Clinic", Comment: "old"})
	before := snap(t, s)

	u := ChangeOptions(s, &ScheduleOptions{Comment: "new"})

	assert.Equal(t, before, snap(t, s))
	assert.Equal(t, "old", u.Prior.Comment())
	assert.Equal(t, "Clinic", u.Prior.Name())
	assert.False(t, u.Prior.Active())
	assert.Equal(t, now.Add(-750*time.Millisecond), u.Prior.Period().End)

	assert.Equal(t, "new", u.Current.Comment())
	assert.Empty(t, u.Current.Name())
	assert.Equal(t, s.Period(), u.Current.Period())
	assert.Equal(t, s.Whose(), u.Current.Whose())
}

func TestChangeOptions_Nil(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSchedule(t, now, &ScheduleOptions{Comment: "old"})

	u := ChangeOptions(s, nil)
	assert.Nil(t, u.Current.Options())
	assert.Nil(t, u.Current.Record().ServiceCategory)
	assert.Empty(t, u.Current.Record().Comment)
}
