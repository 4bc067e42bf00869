package fhir

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// InstantLayout is the wire form of FHIR instants: UTC, millisecond precision.
const InstantLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatInstant renders t in InstantLayout after converting it to UTC.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

type Period struct {
	Start *time.Time
	End   *time.Time
}

// NewPeriod returns a closed period over [start, end].
func NewPeriod(start, end time.Time) *Period {
	return &Period{Start: &start, End: &end}
}

type periodJSON struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (p Period) MarshalJSON() ([]byte, error) {
	var out periodJSON
	if p.Start != nil {
		out.Start = FormatInstant(*p.Start)
	}
	if p.End != nil {
		out.End = FormatInstant(*p.End)
	}
	return json.Marshal(out)
}

func (p *Period) UnmarshalJSON(data []byte) error {
	var in periodJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Period{}
	if in.Start != "" {
		t, err := time.Parse(time.RFC3339Nano, in.Start)
		if err != nil {
			return fmt.Errorf("period start: %w", err)
		}
		p.Start = &t
	}
	if in.End != "" {
		t, err := time.Parse(time.RFC3339Nano, in.End)
		if err != nil {
			return fmt.Errorf("period end: %w", err)
		}
		p.End = &t
	}
	return nil
}
