package availability

import (
	"time"

	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

const SlotResourceType = "Slot"

// SlotStatus is the free/busy status of a slot.
type SlotStatus string

const (
	SlotBusy            SlotStatus = "busy"
	SlotFree            SlotStatus = "free"
	SlotBusyUnavailable SlotStatus = "busy-unavailable"
	SlotBusyTentative   SlotStatus = "busy-tentative"
	SlotEnteredInError  SlotStatus = "entered-in-error"
)

var slotStatusDisplay = map[SlotStatus]string{
	SlotBusy:            "Busy",
	SlotFree:            "Free",
	SlotBusyUnavailable: "Busy (Unavailable)",
	SlotBusyTentative:   "Busy (Tentative)",
	SlotEnteredInError:  "Entered in error",
}

func (s SlotStatus) Valid() bool {
	_, ok := slotStatusDisplay[s]
	return ok
}

// Display returns the value set label, or "" for unknown codes.
func (s SlotStatus) Display() string { return slotStatusDisplay[s] }

// SlotInput is the loose form of a Slot. Schedule, Status, Start and End are
// expected but not checked.
type SlotInput struct {
	Identifier      []fhir.Identifier
	ServiceCategory []CodingInput
	ServiceType     []ServiceTypeInput
	Specialty       []CodingInput
	AppointmentType []CodingInput
	Schedule        fhir.Reference
	Status          SlotStatus
	Start           time.Time
	End             time.Time
	Overbooked      *bool
	Comment         string
}

// Slot is a bookable interval of a schedule's horizon. Start and End keep
// the zone they were given in.
type Slot struct {
	ResourceType    string                   `json:"resourceType"`
	Identifier      []fhir.Identifier        `json:"identifier,omitempty"`
	ServiceCategory []fhir.CodeableConcept   `json:"serviceCategory,omitempty"`
	ServiceType     []fhir.CodeableReference `json:"serviceType,omitempty"`
	Specialty       []fhir.CodeableConcept   `json:"specialty,omitempty"`
	AppointmentType []fhir.CodeableConcept   `json:"appointmentType,omitempty"`
	Schedule        fhir.Reference           `json:"schedule"`
	Status          SlotStatus               `json:"status"`
	Start           string                   `json:"start"`
	End             string                   `json:"end"`
	Overbooked      *bool                    `json:"overbooked,omitempty"`
	Comment         string                   `json:"comment,omitempty"`
}

// NewSlot shapes in into a Slot. Nothing is validated.
func NewSlot(in SlotInput) Slot {
	slot := Slot{
		ResourceType: SlotResourceType,
		Schedule:     in.Schedule,
		Status:       in.Status,
		Start:        in.Start.Format(fhir.InstantLayout),
		End:          in.End.Format(fhir.InstantLayout),
		Overbooked:   copyBool(in.Overbooked),
		Comment:      in.Comment,
	}
	if in.Identifier != nil {
		slot.Identifier = append([]fhir.Identifier(nil), in.Identifier...)
	}
	slot.ServiceCategory = concepts(in.ServiceCategory)
	slot.Specialty = concepts(in.Specialty)
	slot.AppointmentType = concepts(in.AppointmentType)
	if in.ServiceType != nil {
		slot.ServiceType = make([]fhir.CodeableReference, len(in.ServiceType))
		for i, st := range in.ServiceType {
			slot.ServiceType[i] = serviceTypeReference(st)
		}
	}
	return slot
}

// ScheduleReference points a slot at the schedule stored under id.
func ScheduleReference(id string) fhir.Reference {
	return fhir.Reference{Reference: fhir.FormatReference(ScheduleResourceType, id), Type: ScheduleResourceType}
}

func concepts(in []CodingInput) []fhir.CodeableConcept {
	if in == nil {
		return nil
	}
	out := make([]fhir.CodeableConcept, len(in))
	for i, c := range in {
		out[i] = c.concept()
	}
	return out
}

// SplitSlots cuts p into back-to-back slots of length every, all pointing at
// schedule. A tail shorter than every is left out.
func SplitSlots(schedule fhir.Reference, p Period, every time.Duration, status SlotStatus) []Slot {
	if every <= 0 || p.Inverted() {
		return nil
	}
	var out []Slot
	for start := p.Start; !start.Add(every).After(p.End); start = start.Add(every) {
		out = append(out, NewSlot(SlotInput{
			Schedule: schedule,
			Status:   status,
			Start:    start,
			End:      start.Add(every),
		}))
	}
	return out
}
