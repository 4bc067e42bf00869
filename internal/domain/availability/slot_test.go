package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

func TestNewSlot(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	slot := NewSlot(SlotInput{
		Identifier:      []fhir.Identifier{{System: "urn:system", Value: "slot-0001"}},
		ServiceCategory: []CodingInput{{System: "http://terminology.hl7.org/CodeSystem/service-category", Code: "17", Display: "General Practice"}},
		Specialty:       []CodingInput{{System: "http://snomed.info/sct", Code: "408480009", Display: "Clinical immunology"}},
		AppointmentType: []CodingInput{{System: "http://hl7.org/fhir/v2/0276", Code: "WALKIN", Display: "A previously unscheduled walk-in visit"}},
		Schedule:        ScheduleReference("abc"),
		Status:          SlotFree,
		Start:           time.Date(2019, 10, 30, 10, 45, 31, 449_000_000, ist),
		End:             time.Date(2019, 10, 30, 11, 15, 31, 450_000_000, ist),
		Comment:         "Assessments should be performed before requesting appointments in this slot.",
	})

	assert.JSONEq(t, `{
		"resourceType": "Slot",
		"identifier": [{"system": "urn:system", "value": "slot-0001"}],
		"serviceCategory": [{"coding": [{"system": "http://terminology.hl7.org/CodeSystem/service-category", "code": "17", "display": "General Practice"}]}],
		"specialty": [{"coding": [{"system": "http://snomed.info/sct", "code": "408480009", "display": "Clinical immunology"}]}],
		"appointmentType": [{"coding": [{"system": "http://hl7.org/fhir/v2/0276", "code": "WALKIN", "display": "A previously unscheduled walk-in visit"}]}],
		"schedule": {"reference": "Schedule/abc", "type": "Schedule"},
		"status": "free",
		"start": "2019-10-30T10:45:31.449+05:30",
		"end": "2019-10-30T11:15:31.450+05:30",
		"comment": "Assessments should be performed before requesting appointments in this slot."
	}`, marshal(t, slot))
}

func TestSlotStatus(t *testing.T) {
	assert.True(t, SlotBusyTentative.Valid())
	assert.Equal(t, "Busy (Unavailable)", SlotBusyUnavailable.Display())
	assert.False(t, SlotStatus("busy-unavailabe").Valid())
	assert.Empty(t, SlotStatus("closed").Display())
}

func TestSplitSlots(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ref := ScheduleReference("abc")

	slots := SplitSlots(ref, Period{Start: start, End: start.Add(100 * time.Minute)}, 30*time.Minute, SlotFree)
	if assert.Len(t, slots, 3) {
		assert.Equal(t, "2024-03-01T09:00:00.000Z", slots[0].Start)
		assert.Equal(t, "2024-03-01T09:30:00.000Z", slots[0].End)
		assert.Equal(t, "2024-03-01T10:30:00.000Z", slots[2].End)
		assert.Equal(t, ref, slots[2].Schedule)
		assert.Equal(t, SlotFree, slots[2].Status)
	}

	assert.Len(t, SplitSlots(ref, Period{Start: start, End: start.Add(time.Hour)}, 30*time.Minute, SlotBusy), 2)
	assert.Empty(t, SplitSlots(ref, Period{Start: start, End: start.Add(10 * time.Minute)}, 30*time.Minute, SlotFree))
	assert.Nil(t, SplitSlots(ref, Period{Start: start, End: start.Add(-time.Hour)}, 30*time.Minute, SlotFree))
	assert.Nil(t, SplitSlots(ref, Period{Start: start, End: start.Add(time.Hour)}, 0, SlotFree))
}
