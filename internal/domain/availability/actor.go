package availability

import (
	"fmt"

	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

// ActorType is the resource type of something availability can be published for.
type ActorType string

const (
	ActorPatient           ActorType = "Patient"
	ActorPractitioner      ActorType = "Practitioner"
	ActorPractitionerRole  ActorType = "PractitionerRole"
	ActorCareTeam          ActorType = "CareTeam"
	ActorRelatedPerson     ActorType = "RelatedPerson"
	ActorDevice            ActorType = "Device"
	ActorHealthcareService ActorType = "HealthcareService"
	ActorLocation          ActorType = "Location"
)

var actorTypes = map[ActorType]bool{
	ActorPatient: true, ActorPractitioner: true, ActorPractitionerRole: true,
	ActorCareTeam: true, ActorRelatedPerson: true, ActorDevice: true,
	ActorHealthcareService: true, ActorLocation: true,
}

// Valid reports whether t is one of the bookable resource types.
func (t ActorType) Valid() bool { return actorTypes[t] }

// ParseActorType maps a FHIR resource type name to an ActorType.
func ParseActorType(s string) (ActorType, error) {
	t := ActorType(s)
	if !t.Valid() {
		return "", fmt.Errorf("resource type %q cannot be booked", s)
	}
	return t, nil
}

// BookableActor is an opaque handle on a bookable resource: its type tag and,
// optionally, the identifier it is known by. The zero value is an empty
// stand-in and references nothing.
type BookableActor struct {
	Type       ActorType        `json:"type,omitempty" bson:"type,omitempty"`
	Identifier *fhir.Identifier `json:"identifier,omitempty" bson:"identifier,omitempty"`
}

// NewActor returns an actor of type t identified by system|value.
func NewActor(t ActorType, system, value string) BookableActor {
	a := BookableActor{Type: t}
	if system != "" || value != "" {
		a.Identifier = &fhir.Identifier{System: system, Value: value}
	}
	return a
}

// Reference converts the actor into the reference stored on a Schedule.
func (a BookableActor) Reference() fhir.Reference {
	ref := fhir.Reference{Type: string(a.Type)}
	if a.Identifier != nil {
		id := *a.Identifier
		ref.Identifier = &id
	}
	return ref
}

func (a BookableActor) String() string {
	if a.Identifier == nil {
		return string(a.Type)
	}
	return fmt.Sprintf("%s[%s|%s]", a.Type, a.Identifier.System, a.Identifier.Value)
}

func copyActors(actors []BookableActor) []BookableActor {
	out := make([]BookableActor, len(actors))
	copy(out, actors)
	return out
}
