package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/CodePlayData/fhir/internal/domain/availability"
)

func TestParseFilter(t *testing.T) {
	id := uuid.New()
	f, err := parseFilter(map[string]string{
		FilterID:        id.String(),
		FilterFHIRID:    "abc",
		FilterActive:    "false",
		FilterActorType: "Location",
	})
	require.NoError(t, err)
	assert.Equal(t, id, *f.ID)
	assert.Equal(t, "abc", *f.FHIRID)
	assert.False(t, *f.Active)
	assert.Equal(t, availability.ActorLocation, *f.ActorType)
}

func TestParseFilter_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad id":         {FilterID: "not-a-uuid"},
		"bad active":     {FilterActive: "maybe"},
		"bad actor type": {FilterActorType: "Organization"},
	}
	for name, filter := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseFilter(filter)
			assert.Error(t, err)
		})
	}

	_, err := parseFilter(map[string]string{"practitioner_id": "x"})
	assert.ErrorIs(t, err, ErrUnsupportedField)
}

func TestParseUpdate(t *testing.T) {
	prior := uuid.New()
	end := testNow.Add(time.Hour)
	u, err := parseUpdate(map[string]interface{}{
		FieldActive:     true,
		FieldActors:     []availability.BookableActor{patient("p-1")},
		FieldOptions:    (*availability.ScheduleOptions)(nil),
		FieldEnd:        end,
		FieldResource:   []byte(`{"resourceType":"Schedule"}`),
		FieldReplacesID: &prior,
	})
	require.NoError(t, err)
	assert.True(t, *u.Active)
	assert.Len(t, *u.Actors, 1)
	require.NotNil(t, u.Options)
	assert.Nil(t, *u.Options)
	assert.Nil(t, u.Start)
	assert.True(t, u.End.Equal(end))
	assert.JSONEq(t, `{"resourceType":"Schedule"}`, string(u.Resource))
	assert.Equal(t, prior, **u.ReplacesID)
}

func TestParseUpdate_Invalid(t *testing.T) {
	_, err := parseUpdate(map[string]interface{}{FieldActive: "yes"})
	assert.EqualError(t, err, "field active: unexpected value type string")

	_, err = parseUpdate(map[string]interface{}{FieldStart: "2024-01-01"})
	assert.Error(t, err)

	_, err = parseUpdate(map[string]interface{}{"fhir_id": "x"})
	assert.ErrorIs(t, err, ErrUnsupportedField)
}

func newMemoryRepo() *MemoryRepository {
	r := NewMemoryRepository()
	r.nowFunc = clock
	return r
}

func saveDoc(t *testing.T, r ScheduleRepository, actors ...availability.BookableActor) *ScheduleDocument {
	t.Helper()
	s := availability.New(actors, availability.Period{Start: testNow, End: testNow.Add(time.Hour)}, nil, availability.WithNow(clock))
	doc, err := NewDocument(s, nil)
	require.NoError(t, err)
	require.NoError(t, r.SaveSchedule(context.Background(), doc))
	return doc
}

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	r := newMemoryRepo()
	doc := saveDoc(t, r, patient("p-1"))
	assert.True(t, doc.CreatedAt.Equal(testNow))

	got, err := r.FindSchedule(context.Background(), map[string]string{FilterFHIRID: doc.FHIRID})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	got.Actors[0] = patient("changed")
	again, err := r.FindSchedule(context.Background(), map[string]string{FilterID: doc.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, "p-1", again.Actors[0].Identifier.Value, "stored document is not shared")

	_, err = r.FindSchedule(context.Background(), map[string]string{FilterFHIRID: "missing"})
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestMemoryRepository_UpdateAndDeactivate(t *testing.T) {
	ctx := context.Background()
	r := newMemoryRepo()
	doc := saveDoc(t, r, patient("p-1"))
	live := map[string]string{FilterFHIRID: doc.FHIRID, FilterActive: "true"}

	n, err := r.UpdateSchedule(ctx, live, map[string]interface{}{
		FieldActors: []availability.BookableActor{patient("p-1"), patient("p-2")},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := r.FindSchedule(ctx, live)
	require.NoError(t, err)
	assert.Len(t, got.Actors, 2)
	assert.Equal(t, 2, got.VersionID)

	n, err = r.DeactivateSchedule(ctx, live)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = r.DeactivateSchedule(ctx, live)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err = r.FindSchedule(ctx, map[string]string{FilterFHIRID: doc.FHIRID})
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 3, got.VersionID)
}

func TestMemoryRepository_Search(t *testing.T) {
	ctx := context.Background()
	r := newMemoryRepo()
	step := testNow
	r.nowFunc = func() time.Time { step = step.Add(time.Second); return step }

	first := saveDoc(t, r, patient("p-1"))
	second := saveDoc(t, r, availability.NewActor(availability.ActorLocation, "", "room-1"))
	third := saveDoc(t, r, patient("p-3"))

	all, total, err := r.SearchSchedules(ctx, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{third.ID, second.ID, first.ID}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	page, total, err := r.SearchSchedules(ctx, nil, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	patients, total, err := r.SearchSchedules(ctx, map[string]string{FilterActorType: "Patient"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, patients, 2)

	beyond, total, err := r.SearchSchedules(ctx, nil, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, beyond)
}

func TestWhereClause(t *testing.T) {
	active := true
	fhirID := "abc"
	actor := availability.ActorPractitioner
	where, args := whereClause(scheduleFilter{FHIRID: &fhirID, Active: &active, ActorType: &actor}, 3)

	assert.Equal(t, " WHERE fhir_id = $3 AND active = $4 AND actors @> $5::jsonb", where)
	assert.Equal(t, []interface{}{"abc", true, `[{"type":"Practitioner"}]`}, args)

	where, args = whereClause(scheduleFilter{}, 1)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestSetClause(t *testing.T) {
	active := false
	end := testNow
	opts := (*availability.ScheduleOptions)(nil)
	set, args, err := setClause(scheduleUpdate{Active: &active, Options: &opts, End: &end, Resource: json.RawMessage(`{}`)})
	require.NoError(t, err)

	assert.Equal(t, "active = $1, options = $2, planning_horizon_end = $3, resource = $4, version_id = version_id + 1, updated_at = NOW()", set)
	require.Len(t, args, 4)
	assert.Equal(t, false, args[0])
	assert.Nil(t, args[1])
	assert.Equal(t, []byte(`{}`), args[3])
}

func TestEncodeActors(t *testing.T) {
	b, err := encodeActors(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	b, err = encodeActors([]availability.BookableActor{patient("p-1")})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"Patient","identifier":{"system":"urn:mrn","value":"p-1"}}]`, string(b))
}

func TestMongoFilter(t *testing.T) {
	id := uuid.New()
	active := true
	actor := availability.ActorDevice
	q := mongoFilter(scheduleFilter{ID: &id, Active: &active, ActorType: &actor})

	assert.Equal(t, id.String(), q["_id"])
	assert.Equal(t, true, q["active"])
	assert.Equal(t, "Device", q["actors.type"])
	assert.NotContains(t, q, "fhir_id")
}

func TestMongoUpdate(t *testing.T) {
	active := false
	var noPrior *uuid.UUID
	u := mongoUpdate(scheduleUpdate{Active: &active, Resource: json.RawMessage(`{"a":1}`), ReplacesID: &noPrior}, testNow)

	set, ok := u["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, false, set["active"])
	assert.Equal(t, `{"a":1}`, set["resource"])
	assert.Equal(t, "", set["replaces_id"])
	assert.Equal(t, testNow, set["updated_at"])
	assert.NotContains(t, set, "actors")
	assert.Contains(t, u, "$inc")
}

func TestMongoSchedule_Document(t *testing.T) {
	prior := uuid.New()
	doc, err := NewDocument(liveSchedule(&availability.ScheduleOptions{Name: "n"}), &prior)
	require.NoError(t, err)
	doc.CreatedAt, doc.UpdatedAt = testNow, testNow

	m := toMongo(doc)
	assert.Equal(t, doc.ID.String(), m.ID)
	assert.Equal(t, prior.String(), m.ReplacesID)
	assert.Equal(t, string(doc.Resource), m.Resource)

	back, err := m.document()
	require.NoError(t, err)
	assert.Equal(t, doc, back)

	m.ID = "bad"
	_, err = m.document()
	assert.Error(t, err)
}
