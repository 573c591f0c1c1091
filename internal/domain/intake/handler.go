package intake

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
	"github.com/healthie-intake/intake-api/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("component", "intake").Logger()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/intake")
	g.POST("/draft", h.SaveDraft)
	g.GET("/draft/:externalId", h.GetDraft)
	g.DELETE("/draft/:externalId", h.DiscardDraft)
	g.GET("/completed/:externalId", h.GetCompleted)
	g.POST("/submit", h.Submit)
	g.GET("/list", h.ListIntakes)
	g.GET("/search", h.SearchIntakes)
	g.GET("/patient/:email", h.FindByEmail)
	g.GET("/:id", h.GetIntake)
	g.DELETE("/:id", h.DeleteIntake)
}

// DraftSaved is the response of POST /api/intake/draft.
type DraftSaved struct {
	DraftID       string    `json:"draft_id"`
	Status        Status    `json:"status"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// Submitted is the response of POST /api/intake/submit.
type Submitted struct {
	IntakeID string `json:"intake_id"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
}

// Discarded is the response of DELETE /api/intake/draft/:externalId.
type Discarded struct {
	Success      bool  `json:"success"`
	DeletedCount int64 `json:"deleted_count"`
}

// Listing is the response of GET /api/intake/list.
type Listing struct {
	TotalCount    int       `json:"total_count"`
	ReturnedCount int       `json:"returned_count"`
	Intakes       []*Record `json:"intakes"`
}

// fail logs a failed operation and hands err to the echo error handler.
func (h *Handler) fail(c echo.Context, op, id string, err error) error {
	ev := h.logger.Error()
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindValidation:
		ev = h.logger.Warn()
	}
	ev.Err(err).
		Str("op", op).
		Str("id", id).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("intake request failed")
	return err
}

func decodeSubmission(c echo.Context, op string) (*Submission, error) {
	var sub Submission
	if err := c.Bind(&sub); err != nil {
		return nil, apperr.FromBind(op, err)
	}
	return &sub, nil
}

func (h *Handler) SaveDraft(c echo.Context) error {
	const op = "intake.save_draft"
	sub, err := decodeSubmission(c, op)
	if err != nil {
		return h.fail(c, op, "", err)
	}
	res, err := h.svc.SaveDraft(c.Request().Context(), sub)
	if err != nil {
		return h.fail(c, op, sub.PatientExternalID, err)
	}
	return c.JSON(http.StatusOK, DraftSaved{
		DraftID:       res.ID.String(),
		Status:        res.Status,
		LastUpdatedAt: res.LastUpdatedAt,
	})
}

func (h *Handler) GetDraft(c echo.Context) error {
	externalID := c.Param("externalId")
	rec, err := h.svc.GetDraft(c.Request().Context(), externalID)
	if err != nil {
		return h.fail(c, "intake.get_draft", externalID, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DiscardDraft(c echo.Context) error {
	externalID := c.Param("externalId")
	n, err := h.svc.DiscardDraft(c.Request().Context(), externalID)
	if err != nil {
		return h.fail(c, "intake.discard_draft", externalID, err)
	}
	return c.JSON(http.StatusOK, Discarded{Success: true, DeletedCount: n})
}

func (h *Handler) GetCompleted(c echo.Context) error {
	externalID := c.Param("externalId")
	rec, err := h.svc.GetCompleted(c.Request().Context(), externalID)
	if err != nil {
		return h.fail(c, "intake.get_completed", externalID, err)
	}
	return c.JSON(http.StatusOK, rec.Summary())
}

func (h *Handler) Submit(c echo.Context) error {
	const op = "intake.submit"
	sub, err := decodeSubmission(c, op)
	if err != nil {
		return h.fail(c, op, "", err)
	}
	res, err := h.svc.Submit(c.Request().Context(), sub)
	if err != nil {
		return h.fail(c, op, sub.PatientExternalID, err)
	}
	msg := "Intake submitted successfully"
	if res.Converted {
		msg = "Draft converted to completed intake"
	}
	h.logger.Info().
		Str("op", op).
		Str("id", res.ID.String()).
		Bool("converted", res.Converted).
		Msg("intake submitted")
	return c.JSON(http.StatusOK, Submitted{IntakeID: res.ID.String(), Status: res.Status, Message: msg})
}

func (h *Handler) ListIntakes(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecent(c.Request().Context(), pg.Limit)
	if err != nil {
		return h.fail(c, "intake.list_recent", strconv.Itoa(pg.Limit), err)
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, Listing{TotalCount: total, ReturnedCount: len(items), Intakes: items})
}

func (h *Handler) SearchIntakes(c echo.Context) error {
	path := c.QueryParam("path")
	items, err := h.svc.FindByFieldPath(c.Request().Context(), path, c.QueryParam("value"))
	if err != nil {
		return h.fail(c, "intake.find_by_field_path", path, err)
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) FindByEmail(c echo.Context) error {
	email := c.Param("email")
	if unescaped, err := url.PathUnescape(email); err == nil {
		email = unescaped
	}
	items, err := h.svc.FindByEmail(c.Request().Context(), email, pagination.FromContext(c).Limit)
	if err != nil {
		return h.fail(c, "intake.find_by_email", email, err)
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetIntake(c echo.Context) error {
	id := c.Param("id")
	rec, err := h.svc.GetByID(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "intake.get", id, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteIntake(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return h.fail(c, "intake.delete", id, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
