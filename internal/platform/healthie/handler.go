package healthie

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
)

// Handler exposes the Healthie adapter under /healthie.
type Handler struct {
	api    API
	logger zerolog.Logger
}

func NewHandler(api API, logger zerolog.Logger) *Handler {
	return &Handler{api: api, logger: logger.With().Str("component", "healthie").Logger()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/healthie")
	g.GET("/patients/:id", h.GetPatient)
	g.POST("/patients/search", h.SearchPatients)
	g.GET("/patients/:id/forms", h.ListPatientForms)
	g.GET("/forms/:id", h.GetForm)
	g.POST("/forms/submit", h.SubmitForm)
	g.GET("/forms/details/:id", h.GetFormDetails)
	g.DELETE("/forms/:id", h.DeleteForm)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id := c.Param("id")
	p, err := h.api.GetPatient(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "healthie.get_patient", id, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	var req PatientSearch
	if err := c.Bind(&req); err != nil {
		return h.fail(c, "healthie.search_patients", "", apperr.FromBind("healthie.search_patients", err))
	}
	patients, err := h.api.SearchPatients(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "healthie.search_patients", req.Keywords(), err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) ListPatientForms(c echo.Context) error {
	id := c.Param("id")
	ids, err := h.api.ListFormAnswerGroupsForPatient(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "healthie.list_forms", id, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, ids)
}

func (h *Handler) GetForm(c echo.Context) error {
	id := c.Param("id")
	form, err := h.api.GetFormDefinition(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "healthie.get_form", id, err)
	}
	return c.JSON(http.StatusOK, form)
}

func (h *Handler) SubmitForm(c echo.Context) error {
	const op = "healthie.submit_form"
	var in FormAnswerGroupInput
	if err := c.Bind(&in); err != nil {
		return h.fail(c, op, "", apperr.FromBind(op, err))
	}
	if err := validateSubmission(in); err != nil {
		return h.fail(c, op, in.UserID, err)
	}
	id, err := h.api.SubmitFormAnswers(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, op, in.UserID, err)
	}
	return c.JSON(http.StatusOK, FormSubmitted{FormAnswerGroupID: id, Success: true})
}

func (h *Handler) GetFormDetails(c echo.Context) error {
	id := c.Param("id")
	details, err := h.api.GetFormAnswerGroupDetails(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "healthie.get_form_details", id, err)
	}
	return c.JSON(http.StatusOK, details)
}

func (h *Handler) DeleteForm(c echo.Context) error {
	id := c.Param("id")
	if err := h.api.DeleteFormAnswerGroup(c.Request().Context(), id); err != nil {
		return h.fail(c, "healthie.delete_form", id, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func validateSubmission(in FormAnswerGroupInput) error {
	const op = "healthie.submit_form"
	if strings.TrimSpace(in.CustomModuleFormID) == "" {
		return apperr.Validation(op, "customModuleFormId is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return apperr.Validation(op, "userId is required")
	}
	for i, a := range in.FormAnswers {
		if strings.TrimSpace(a.CustomModuleID) == "" {
			return apperr.Validation(op, "formAnswers[%d].customModuleId is required", i)
		}
	}
	return nil
}

func (h *Handler) fail(c echo.Context, op, id string, err error) error {
	ev := h.logger.Error()
	if k := apperr.KindOf(err); k == apperr.KindNotFound || k == apperr.KindValidation {
		ev = h.logger.Warn()
	}
	ev.Err(err).
		Str("op", op).
		Str("id", id).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("healthie request failed")
	return err
}
