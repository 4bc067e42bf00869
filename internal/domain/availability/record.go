package availability

import (
	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

const (
	ScheduleResourceType          = "Schedule"
	healthcareServiceResourceType = "HealthcareService"
)

// CodingInput is the loose form of a coded value. Only Display may be set,
// in which case the resulting concept carries the label alone.
type CodingInput struct {
	System       string `json:"system,omitempty"`
	Version      string `json:"version,omitempty"`
	Code         string `json:"code,omitempty"`
	Display      string `json:"display,omitempty"`
	UserSelected *bool  `json:"userSelected,omitempty"`
}

func (c CodingInput) concept() fhir.CodeableConcept {
	return fhir.NewCodeableConcept(fhir.Coding{
		System:       c.System,
		Version:      c.Version,
		Code:         c.Code,
		Display:      c.Display,
		UserSelected: c.UserSelected,
	})
}

// ServiceTypeInput pairs a service concept with the HealthcareService
// providing it, when one is known.
type ServiceTypeInput struct {
	Concept   CodingInput    `json:"concept"`
	Reference *BookableActor `json:"reference,omitempty"`
}

// RecordInput is implemented by ScheduleR4B and ScheduleR5 only.
type RecordInput interface {
	base() ScheduleR4B
	name() (*string, bool)
}

// ScheduleR4B is the input shape of the R4B Schedule, which has no name.
type ScheduleR4B struct {
	Identifier      []fhir.Identifier
	Active          *bool
	ServiceCategory *CodingInput
	ServiceType     []ServiceTypeInput
	Specialty       []CodingInput
	Actor           []BookableActor
	PlanningHorizon *Period
	Comment         string
}

func (s ScheduleR4B) base() ScheduleR4B { return s }
func (ScheduleR4B) name() (*string, bool) { return nil, false }

// ScheduleR5 adds the human-readable name introduced in R5.
type ScheduleR5 struct {
	ScheduleR4B
	Name *string
}

func (s ScheduleR5) name() (*string, bool) { return s.Name, true }

// ScheduleRecord is the canonical Schedule resource. Absent elements are
// omitted from JSON; actor is always present.
type ScheduleRecord struct {
	ResourceType    string                   `json:"resourceType"`
	Identifier      []fhir.Identifier        `json:"identifier,omitempty"`
	Active          *bool                    `json:"active,omitempty"`
	ServiceCategory *fhir.CodeableConcept    `json:"serviceCategory,omitempty"`
	ServiceType     []fhir.CodeableReference `json:"serviceType,omitempty"`
	Specialty       []fhir.CodeableConcept   `json:"specialty,omitempty"`
	Name            *string                  `json:"name,omitempty"`
	Actor           []fhir.Reference         `json:"actor"`
	PlanningHorizon *fhir.Period             `json:"planningHorizon,omitempty"`
	Comment         string                   `json:"comment,omitempty"`
}

// NewScheduleRecord shapes in into a ScheduleRecord. Nothing is validated.
func NewScheduleRecord(in RecordInput) ScheduleRecord {
	b := in.base()
	rec := ScheduleRecord{
		ResourceType: ScheduleResourceType,
		Active:       copyBool(b.Active),
		Comment:      b.Comment,
		Actor:        make([]fhir.Reference, 0, len(b.Actor)),
	}
	if b.Identifier != nil {
		rec.Identifier = append([]fhir.Identifier(nil), b.Identifier...)
	}
	if b.ServiceCategory != nil {
		cc := b.ServiceCategory.concept()
		rec.ServiceCategory = &cc
	}
	if b.ServiceType != nil {
		rec.ServiceType = make([]fhir.CodeableReference, len(b.ServiceType))
		for i, st := range b.ServiceType {
			rec.ServiceType[i] = serviceTypeReference(st)
		}
	}
	rec.Specialty = concepts(b.Specialty)
	for _, a := range b.Actor {
		rec.Actor = append(rec.Actor, a.Reference())
	}
	if b.PlanningHorizon != nil {
		rec.PlanningHorizon = fhir.NewPeriod(b.PlanningHorizon.Start, b.PlanningHorizon.End)
	}
	if n, ok := in.name(); ok && n != nil {
		v := *n
		rec.Name = &v
	}
	return rec
}

func serviceTypeReference(st ServiceTypeInput) fhir.CodeableReference {
	cc := st.Concept.concept()
	ref := &fhir.Reference{Type: healthcareServiceResourceType}
	if st.Reference != nil && st.Reference.Identifier != nil {
		id := *st.Reference.Identifier
		ref.Identifier = &id
	}
	return fhir.CodeableReference{Concept: &cc, Reference: ref}
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
