package scheduling

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/CodePlayData/fhir/internal/domain/availability"
	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("actor_type", func(fl validator.FieldLevel) bool {
		return availability.ActorType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("fhir_time", func(fl validator.FieldLevel) bool {
		_, err := availability.ParseTime(fl.Field().String())
		return err == nil
	})
	return v
}

var validationMessages = map[string]string{
	"required":   "is required",
	"min":        "must have at least %s item(s)",
	"eq":         "must be %s",
	"actor_type": "is not a bookable resource type",
	"fhir_time":  "is not a valid date",
}

// validationError flattens validator output into one diagnostics line.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := validationMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, fe.Param())
		}
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		msgs = append(msgs, path+" "+msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}

type actorRequest struct {
	Type       string           `json:"type" validate:"required,actor_type"`
	Identifier *fhir.Identifier `json:"identifier"`
}

func (a actorRequest) actor() availability.BookableActor {
	out := availability.BookableActor{Type: availability.ActorType(a.Type)}
	if a.Identifier != nil {
		id := *a.Identifier
		out.Identifier = &id
	}
	return out
}

type conceptRequest struct {
	Coding []fhir.Coding `json:"coding"`
	Text   string        `json:"text"`
}

// label is the text of the concept, else its first display, else its first code.
func (c conceptRequest) label() string {
	if c.Text != "" {
		return c.Text
	}
	for _, cd := range c.Coding {
		if cd.Display != "" {
			return cd.Display
		}
	}
	for _, cd := range c.Coding {
		if cd.Code != "" {
			return cd.Code
		}
	}
	return ""
}

func labels(in []conceptRequest) []string {
	var out []string
	for _, c := range in {
		if l := c.label(); l != "" {
			out = append(out, l)
		}
	}
	return out
}

type serviceTypeRequest struct {
	Concept *conceptRequest `json:"concept"`
}

type periodRequest struct {
	Start string `json:"start" validate:"required,fhir_time"`
	End   string `json:"end" validate:"required,fhir_time"`
}

// openScheduleRequest is the FHIR Schedule body accepted on create.
type openScheduleRequest struct {
	ResourceType    string               `json:"resourceType" validate:"omitempty,eq=Schedule"`
	Actor           []actorRequest       `json:"actor" validate:"required,min=1,dive"`
	PlanningHorizon *periodRequest       `json:"planningHorizon" validate:"required"`
	Name            string               `json:"name"`
	Comment         string               `json:"comment"`
	ServiceCategory []conceptRequest     `json:"serviceCategory"`
	ServiceType     []serviceTypeRequest `json:"serviceType"`
	Specialty       []conceptRequest     `json:"specialty"`
}

func (r openScheduleRequest) input() (OpenScheduleInput, error) {
	start, err := availability.ParseTime(r.PlanningHorizon.Start)
	if err != nil {
		return OpenScheduleInput{}, err
	}
	end, err := availability.ParseTime(r.PlanningHorizon.End)
	if err != nil {
		return OpenScheduleInput{}, err
	}
	in := OpenScheduleInput{Start: start, End: end}
	for _, a := range r.Actor {
		in.Actors = append(in.Actors, a.actor())
	}

	opts := &availability.ScheduleOptions{
		Name:      r.Name,
		Comment:   r.Comment,
		Specialty: labels(r.Specialty),
	}
	if cats := labels(r.ServiceCategory); len(cats) > 0 {
		opts.ServiceCategory = cats[0]
	}
	for _, st := range r.ServiceType {
		if st.Concept != nil {
			if l := st.Concept.label(); l != "" {
				opts.ServiceType = append(opts.ServiceType, l)
			}
		}
	}
	if opts.Name != "" || opts.Comment != "" || opts.ServiceCategory != "" ||
		len(opts.ServiceType) > 0 || len(opts.Specialty) > 0 {
		in.Options = opts
	}
	return in, nil
}

type extendRequest struct {
	End string `json:"end" validate:"required,fhir_time"`
}
