package scheduling

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/CodePlayData/fhir/internal/domain/availability"
	"github.com/CodePlayData/fhir/internal/platform/auth"
	"github.com/CodePlayData/fhir/internal/platform/fhir"
	"github.com/CodePlayData/fhir/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the Schedule endpoints on the /fhir group. Reads are
// open to any authenticated caller; writes need the scheduler role.
func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/metadata", h.Metadata)

	fhirGroup.GET("/Schedule", h.SearchSchedules)
	fhirGroup.GET("/Schedule/:id", h.GetSchedule)

	write := fhirGroup.Group("", auth.RequireRole(auth.RoleScheduler, auth.RoleAdmin))
	write.POST("/Schedule", h.OpenSchedule)
	write.POST("/Schedule/:id/$extend", h.ExtendSchedule)
	write.POST("/Schedule/:id/$add-actor", h.AddScheduleActor)
	write.POST("/Schedule/:id/$change-options", h.ChangeScheduleOptions)
	write.DELETE("/Schedule/:id", h.DeactivateSchedule)
}

func (h *Handler) OpenSchedule(c echo.Context) error {
	var req openScheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	in, err := req.input()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.OpenSchedule(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Location", "/fhir/"+fhir.FormatReference(availability.ScheduleResourceType, doc.FHIRID))
	return c.JSON(http.StatusCreated, doc.ToFHIR())
}

func (h *Handler) GetSchedule(c echo.Context) error {
	doc, err := h.svc.GetSchedule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc.ToFHIR())
}

func (h *Handler) SearchSchedules(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	query := url.Values{}

	if v := c.QueryParam("active"); v != "" {
		if _, err := strconv.ParseBool(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be true or false")
		}
		params[FilterActive] = v
		query.Set("active", v)
	}
	if v := c.QueryParam("actor-type"); v != "" {
		if _, err := availability.ParseActorType(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		params[FilterActorType] = v
		query.Set("actor-type", v)
	}

	docs, total, err := h.svc.SearchSchedules(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	resources := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		resources[i] = d.ToFHIR()
	}
	bundle, err := fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL:  "/fhir/Schedule",
		QueryStr: query.Encode(),
		Count:    pg.Limit,
		Offset:   pg.Offset,
		Total:    total,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) ExtendSchedule(c echo.Context) error {
	var req extendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.ExtendSchedule(c.Request().Context(), c.Param("id"), req.End)
	if err != nil {
		return httpError(err)
	}
	return updateResponse(c, res)
}

func (h *Handler) AddScheduleActor(c echo.Context) error {
	var req actorRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.AddScheduleActor(c.Request().Context(), c.Param("id"), req.actor())
	if err != nil {
		return httpError(err)
	}
	return updateResponse(c, res)
}

// ChangeScheduleOptions takes the complete new options. An empty body
// clears them.
func (h *Handler) ChangeScheduleOptions(c echo.Context) error {
	var opts availability.ScheduleOptions
	if err := decodeBody(c, &opts); err != nil {
		return err
	}
	var options *availability.ScheduleOptions
	if opts.Name != "" || opts.Comment != "" || opts.ServiceCategory != "" ||
		len(opts.ServiceType) > 0 || len(opts.Specialty) > 0 {
		options = &opts
	}
	res, err := h.svc.ChangeScheduleOptions(c.Request().Context(), c.Param("id"), options)
	if err != nil {
		return httpError(err)
	}
	return updateResponse(c, res)
}

func (h *Handler) DeactivateSchedule(c echo.Context) error {
	if err := h.svc.DeactivateSchedule(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Metadata serves the CapabilityStatement of the Schedule endpoints.
func (h *Handler) Metadata(c echo.Context) error {
	interactions := []fhir.CSInteraction{{Code: "read"}, {Code: "search-type"}, {Code: "create"}, {Code: "delete"}}
	resources := []fhir.CSResource{{
		Type:        availability.ScheduleResourceType,
		Interaction: interactions,
		SearchParam: []fhir.CSSearchParam{
			{Name: "active", Type: "token"},
			{Name: "actor-type", Type: "token"},
			{Name: "_count", Type: "number"},
			{Name: "_offset", Type: "number"},
		},
	}}
	ops := []fhir.CSOperation{
		{Name: "extend", Definition: "Schedule/$extend"},
		{Name: "add-actor", Definition: "Schedule/$add-actor"},
		{Name: "change-options", Definition: "Schedule/$change-options"},
	}
	return c.JSON(http.StatusOK, fhir.NewCapabilityStatement("/fhir", "FHIR Schedule availability service", resources, ops))
}

func updateResponse(c echo.Context, res *UpdateResult) error {
	c.Response().Header().Set("Location", "/fhir/"+fhir.FormatReference(availability.ScheduleResourceType, res.Current.FHIRID))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"prior":   res.Prior.ToFHIR(),
		"current": res.Current.ToFHIR(),
	})
}

// decodeBody reads a JSON or FHIR+JSON body into v. An empty body leaves v
// untouched.
func decodeBody(c echo.Context, v interface{}) error {
	err := json.NewDecoder(c.Request().Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := decodeBody(c, req); err != nil {
		return err
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, validationError(err).Error())
	}
	return nil
}

// httpError maps use case errors onto HTTP statuses. Anything unrecognised is
// returned as is and rendered as a 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrScheduleInactive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnsupportedField):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidPlanningHorizon),
		errors.Is(err, availability.ErrScheduleEndsBeforeStarts),
		errors.Is(err, availability.ErrScheduleNewEndIsBeforePriorEnd):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return err
}
