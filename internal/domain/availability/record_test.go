package availability

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

func marshal(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestNewScheduleRecord_Empty(t *testing.T) {
	rec := NewScheduleRecord(ScheduleR4B{})
	assert.JSONEq(t, `{"resourceType":"Schedule","actor":[]}`, marshal(t, rec))
}

func TestNewScheduleRecord_NameGatedByVariant(t *testing.T) {
	name := "Radiology"

	r4b := NewScheduleRecord(ScheduleR4B{Comment: "c"})
	assert.Nil(t, r4b.Name)

	r5 := NewScheduleRecord(ScheduleR5{ScheduleR4B: ScheduleR4B{Comment: "c"}, Name: &name})
	require.NotNil(t, r5.Name)
	assert.Equal(t, "Radiology", *r5.Name)

	unnamed := NewScheduleRecord(ScheduleR5{})
	assert.NotContains(t, marshal(t, unnamed), `"name"`)
}

func TestNewScheduleRecord_FullCoding(t *testing.T) {
	selected := true
	rec := NewScheduleRecord(ScheduleR4B{
		ServiceCategory: &CodingInput{
			System:       "http://terminology.hl7.org/CodeSystem/service-category",
			Version:      "1.0.0",
			Code:         "17",
			Display:      "General Practice",
			UserSelected: &selected,
		},
		Specialty: []CodingInput{{Display: "Clinical immunology"}},
	})

	assert.JSONEq(t, `{
		"resourceType": "Schedule",
		"serviceCategory": {"coding": [{
			"system": "http://terminology.hl7.org/CodeSystem/service-category",
			"version": "1.0.0",
			"code": "17",
			"display": "General Practice",
			"userSelected": true
		}]},
		"specialty": [{"coding": [{"display": "Clinical immunology"}]}],
		"actor": []
	}`, marshal(t, rec))
}

func TestNewScheduleRecord_ServiceTypeReference(t *testing.T) {
	service := NewActor(ActorHealthcareService, "urn:services", "vaccines")
	rec := NewScheduleRecord(ScheduleR4B{
		ServiceType: []ServiceTypeInput{
			{Concept: CodingInput{Code: "57", Display: "Immunization"}, Reference: &service},
			{Concept: CodingInput{Display: "Dental"}},
		},
	})

	require.Len(t, rec.ServiceType, 2)
	assert.Equal(t, "HealthcareService", rec.ServiceType[0].Reference.Type)
	assert.Equal(t, "vaccines", rec.ServiceType[0].Reference.Identifier.Value)
	assert.JSONEq(t, `{"concept":{"coding":[{"display":"Dental"}]},"reference":{"type":"HealthcareService"}}`,
		marshal(t, rec.ServiceType[1]))
}

func TestNewScheduleRecord_ActorsAndHorizon(t *testing.T) {
	start := time.Date(2019, 10, 30, 10, 45, 31, 449_000_000, time.FixedZone("IST", 5*3600+1800))
	active := true
	rec := NewScheduleRecord(ScheduleR4B{
		Identifier:      []fhir.Identifier{{System: "urn:system", Value: "sched-1"}},
		Active:          &active,
		Actor:           []BookableActor{{}, NewActor(ActorLocation, "", "room-1")},
		PlanningHorizon: &Period{Start: start, End: start.Add(30 * time.Minute)},
	})

	assert.JSONEq(t, `{
		"resourceType": "Schedule",
		"identifier": [{"system": "urn:system", "value": "sched-1"}],
		"active": true,
		"actor": [{}, {"type": "Location", "identifier": {"value": "room-1"}}],
		"planningHorizon": {"start": "2019-10-30T05:15:31.449Z", "end": "2019-10-30T05:45:31.449Z"}
	}`, marshal(t, rec))
}

func TestNewScheduleRecord_DoesNotShareInput(t *testing.T) {
	active := true
	in := ScheduleR4B{
		Identifier: []fhir.Identifier{{Value: "a"}},
		Active:     &active,
	}
	rec := NewScheduleRecord(in)
	in.Identifier[0].Value = "b"
	active = false

	assert.Equal(t, "a", rec.Identifier[0].Value)
	assert.True(t, *rec.Active)
}

func TestParseActorType(t *testing.T) {
	got, err := ParseActorType("PractitionerRole")
	require.NoError(t, err)
	assert.Equal(t, ActorPractitionerRole, got)

	_, err = ParseActorType("Organization")
	assert.Error(t, err)
}

func TestBookableActor_String(t *testing.T) {
	assert.Equal(t, "Patient[urn:mrn|42]", NewActor(ActorPatient, "urn:mrn", "42").String())
	assert.Equal(t, "Device", NewActor(ActorDevice, "", "").String())
	assert.Nil(t, NewActor(ActorDevice, "", "").Identifier)
}
