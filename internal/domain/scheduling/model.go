package scheduling

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/CodePlayData/fhir/internal/domain/availability"
	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

// ScheduleDocument is the persisted envelope of a Schedule. Active is the
// lifecycle flag: false once the document has been superseded by an update
// or deactivated. Resource holds the canonical FHIR JSON as built.
type ScheduleDocument struct {
	ID         uuid.UUID                     `json:"id"`
	FHIRID     string                        `json:"fhir_id"`
	Active     bool                          `json:"active"`
	Actors     []availability.BookableActor  `json:"actors"`
	Start      time.Time                     `json:"planning_horizon_start"`
	End        time.Time                     `json:"planning_horizon_end"`
	Options    *availability.ScheduleOptions `json:"options,omitempty"`
	Resource   json.RawMessage               `json:"resource"`
	ReplacesID *uuid.UUID                    `json:"replaces_id,omitempty"`
	VersionID  int                           `json:"version_id"`
	CreatedAt  time.Time                     `json:"created_at"`
	UpdatedAt  time.Time                     `json:"updated_at"`
}

// NewDocument wraps s in a fresh document, optionally pointing back at the
// document it replaces.
func NewDocument(s *availability.Schedule, replaces *uuid.UUID) (*ScheduleDocument, error) {
	id := uuid.New()
	doc := &ScheduleDocument{
		ID:         id,
		FHIRID:     id.String(),
		Active:     true,
		ReplacesID: replaces,
		VersionID:  1,
	}
	if err := doc.setSchedule(s); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *ScheduleDocument) setSchedule(s *availability.Schedule) error {
	raw, err := json.Marshal(s.Record())
	if err != nil {
		return fmt.Errorf("marshal schedule resource: %w", err)
	}
	p := s.Period()
	d.Actors = s.Whose()
	d.Start = p.Start
	d.End = p.End
	d.Options = s.Options()
	d.Resource = raw
	return nil
}

// supersede returns a copy of d holding the closed-out prior schedule.
func (d *ScheduleDocument) supersede(prior *availability.Schedule, now time.Time) (*ScheduleDocument, error) {
	out := *d
	if err := out.setSchedule(prior); err != nil {
		return nil, err
	}
	out.Active = false
	out.VersionID = d.VersionID + 1
	out.UpdatedAt = now
	return &out, nil
}

// updateData is the repository update applied when d replaces the stored row.
func (d *ScheduleDocument) updateData() map[string]interface{} {
	return map[string]interface{}{
		FieldActive:   d.Active,
		FieldActors:   d.Actors,
		FieldOptions:  d.Options,
		FieldStart:    d.Start,
		FieldEnd:      d.End,
		FieldResource: d.Resource,
	}
}

// Schedule rebuilds the availability aggregate. Its activity is recomputed
// against the current clock.
func (d *ScheduleDocument) Schedule(opts ...availability.Option) *availability.Schedule {
	return availability.New(d.Actors, availability.Period{Start: d.Start, End: d.End}, d.Options, opts...)
}

// ToFHIR returns the stored resource with id and meta filled in. A document
// that is no longer live always reports active false.
func (d *ScheduleDocument) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{}
	if len(d.Resource) > 0 {
		if err := json.Unmarshal(d.Resource, &result); err != nil {
			result = map[string]interface{}{}
		}
	}
	result["resourceType"] = availability.ScheduleResourceType
	result["id"] = d.FHIRID
	updated := d.UpdatedAt
	result["meta"] = fhir.Meta{
		VersionID:   fmt.Sprintf("%d", d.VersionID),
		LastUpdated: &updated,
	}
	if !d.Active {
		result["active"] = false
	}
	return result
}

func (d *ScheduleDocument) clone() *ScheduleDocument {
	out := *d
	out.Actors = append([]availability.BookableActor(nil), d.Actors...)
	if d.Options != nil {
		o := *d.Options
		out.Options = &o
	}
	out.Resource = append(json.RawMessage(nil), d.Resource...)
	if d.ReplacesID != nil {
		id := *d.ReplacesID
		out.ReplacesID = &id
	}
	return &out
}

// UpdateResult is the persisted form of an availability update.
type UpdateResult struct {
	Prior   *ScheduleDocument
	Current *ScheduleDocument
}
