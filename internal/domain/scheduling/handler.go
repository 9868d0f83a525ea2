package scheduling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/backoffice/internal/platform/audit"
	"github.com/clinic/backoffice/internal/platform/auth"
	"github.com/clinic/backoffice/internal/platform/db"
	"github.com/clinic/backoffice/pkg/pagination"
	"github.com/clinic/backoffice/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := []string{"admin", "physician", "nurse", "registrar"}

	readGroup := api.Group("", auth.RequireRole(staff...))
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)
	readGroup.GET("/appointments/:id/chain", h.GetChain)

	writeGroup := api.Group("", auth.RequireRole(staff...))
	writeGroup.POST("/appointments", h.BookAppointment)
	writeGroup.PUT("/appointments/:id", h.UpdateAppointment)
	writeGroup.PATCH("/appointments/:id", h.UpdateAppointment)

	deleteGroup := api.Group("", auth.RequireRole("admin", "registrar"))
	deleteGroup.DELETE("/appointments/:id", h.DeleteAppointment)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.GET("/appointments/:id/audit", h.GetAuditTrail)
}

type bookRequest struct {
	PatientID string  `json:"patient_id" validate:"required,uuid"`
	Day       string  `json:"day" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	Modality  string  `json:"modality" validate:"required,oneof=in_person virtual shock_therapy capillary_therapy"`
	Location  *string `json:"location" validate:"omitempty,max=200"`
	Notes     *string `json:"notes" validate:"omitempty,max=4000"`
	Status    *string `json:"status" validate:"omitempty,oneof=confirmed no_response cancelled completed"`
}

type slotRequest struct {
	Day       string `json:"day" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type updateRequest struct {
	PatientID  *string      `json:"patient_id" validate:"omitempty,uuid"`
	Day        *string      `json:"day"`
	StartTime  *string      `json:"start_time"`
	EndTime    *string      `json:"end_time"`
	Modality   *string      `json:"modality" validate:"omitempty,oneof=in_person virtual shock_therapy capillary_therapy"`
	Location   *string      `json:"location" validate:"omitempty,max=200"`
	Notes      *string      `json:"notes" validate:"omitempty,max=4000"`
	Status     *string      `json:"status" validate:"omitempty,oneof=confirmed no_response cancelled rescheduled completed"`
	Reschedule *slotRequest `json:"reschedule"`
}

func parseSlot(day, start, end string) (Slot, error) {
	d, err := ParseDay(day)
	if err != nil {
		return Slot{}, &ValidationError{Field: "day", Reason: err.Error()}
	}
	st, err := ParseClock(start)
	if err != nil {
		return Slot{}, &ValidationError{Field: "start_time", Reason: err.Error()}
	}
	et, err := ParseClock(end)
	if err != nil {
		return Slot{}, &ValidationError{Field: "end_time", Reason: err.Error()}
	}
	return Slot{Day: d, Start: st, End: et}, nil
}

func (r *bookRequest) toDomain() (BookRequest, error) {
	slot, err := parseSlot(r.Day, r.StartTime, r.EndTime)
	if err != nil {
		return BookRequest{}, err
	}
	out := BookRequest{
		PatientID: uuid.MustParse(r.PatientID),
		Slot:      slot,
		Modality:  Modality(r.Modality),
		Location:  r.Location,
		Notes:     r.Notes,
	}
	if r.Status != nil {
		out.Status = Status(*r.Status)
	}
	return out, nil
}

func (r *updateRequest) toDomain() (UpdateRequest, error) {
	var out UpdateRequest
	if r.PatientID != nil {
		id := uuid.MustParse(*r.PatientID)
		out.PatientID = &id
	}
	if r.Day != nil {
		d, err := ParseDay(*r.Day)
		if err != nil {
			return out, &ValidationError{Field: "day", Reason: err.Error()}
		}
		out.Day = &d
	}
	if r.StartTime != nil {
		t, err := ParseClock(*r.StartTime)
		if err != nil {
			return out, &ValidationError{Field: "start_time", Reason: err.Error()}
		}
		out.StartTime = &t
	}
	if r.EndTime != nil {
		t, err := ParseClock(*r.EndTime)
		if err != nil {
			return out, &ValidationError{Field: "end_time", Reason: err.Error()}
		}
		out.EndTime = &t
	}
	if r.Modality != nil {
		m := Modality(*r.Modality)
		out.Modality = &m
	}
	if r.Status != nil {
		s := Status(*r.Status)
		out.Status = &s
	}
	out.Location = r.Location
	out.Notes = r.Notes
	if r.Reschedule != nil {
		slot, err := parseSlot(r.Reschedule.Day, r.Reschedule.StartTime, r.Reschedule.EndTime)
		if err != nil {
			return out, err
		}
		out.Reschedule = &slot
	}
	return out, nil
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validationHTTPError(err)
	}
	in, err := req.toDomain()
	if err != nil {
		return toHTTPError(err)
	}

	appt, err := h.svc.Book(c.Request().Context(), db.TenantFromContext(c.Request().Context()), in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.Get(c.Request().Context(), db.TenantFromContext(c.Request().Context()), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) GetChain(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	chain, err := h.svc.Chain(c.Request().Context(), db.TenantFromContext(c.Request().Context()), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": chain})
}

func (h *Handler) GetAuditTrail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.History(c.Request().Context(), db.TenantFromContext(c.Request().Context()), id)
	if err != nil {
		return toHTTPError(err)
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": entries})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return toHTTPError(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Query(c.Request().Context(), db.TenantFromContext(c.Request().Context()), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL, total)
	return c.JSON(http.StatusOK, resp)
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("from"); v != "" {
		d, err := ParseDay(v)
		if err != nil {
			return f, &ValidationError{Field: "from", Reason: err.Error()}
		}
		f.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := ParseDay(v)
		if err != nil {
			return f, &ValidationError{Field: "to", Reason: err.Error()}
		}
		f.To = &d
	}
	if v := c.QueryParam("status"); v != "" {
		s, err := ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &s
	}
	if v := c.QueryParam("modality"); v != "" {
		m, err := ParseModality(v)
		if err != nil {
			return f, err
		}
		f.Modality = &m
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, &ValidationError{Field: "patient_id", Reason: "must be a UUID"}
		}
		f.PatientID = &id
	}
	f.Text = c.QueryParam("q")
	return f, nil
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return validationHTTPError(err)
	}
	in, err := req.toDomain()
	if err != nil {
		return toHTTPError(err)
	}

	res, err := h.svc.Update(c.Request().Context(), db.TenantFromContext(c.Request().Context()), id, in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, db.TenantFromContext(ctx), id, auth.UserIDFromContext(ctx)); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func validationHTTPError(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
		"error":  "validation failed",
		"code":   "invalid",
		"fields": validator.FormatValidationErrors(err),
	})
}

// toHTTPError maps lifecycle errors onto response codes and bodies.
func toHTTPError(err error) error {
	var ve *ValidationError
	var ce *ConflictError
	var ge *GuardedDeletionError
	switch {
	case errors.As(err, &ce):
		body := map[string]interface{}{"error": ce.Error(), "code": "slot_conflict"}
		if ce.Conflict != nil {
			body["conflicting_patient"] = ce.Conflict.PatientName
			body["conflicting_appointment_id"] = ce.Conflict.Appointment.ID
		}
		return echo.NewHTTPError(http.StatusConflict, body)
	case errors.As(err, &ge):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error":    ge.Error(),
			"code":     "has_payments",
			"payments": ge.Payments,
		})
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"error": ve.Error(),
			"code":  "invalid",
			"field": ve.Field,
		})
	case errors.Is(err, ErrMissingTenant):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{"error": err.Error(), "code": "invalid"})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, map[string]interface{}{"error": err.Error(), "code": "not_found"})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
