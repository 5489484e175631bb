package tracker

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/momcare/pregnancy-tracker/internal/domain/alert"
	"github.com/momcare/pregnancy-tracker/internal/domain/record"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.RegisterPatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.POST("/patients/:id/records", h.SubmitRecord)
	api.GET("/patients/:id/records", h.ListRecords)
	api.GET("/patients/:id/records/latest", h.LatestRecord)
	api.GET("/patients/:id/summary", h.GetSummary)
}

type patientRequest struct {
	Name              string                    `json:"name"`
	Email             string                    `json:"email"`
	DueDate           string                    `json:"dueDate"`
	CurrentWeek       int                       `json:"currentWeek"`
	EmergencyContacts []record.EmergencyContact `json:"emergencyContacts"`
}

func (r patientRequest) toPatient() (*record.Patient, error) {
	p := &record.Patient{
		Name:              r.Name,
		Email:             r.Email,
		CurrentWeek:       r.CurrentWeek,
		EmergencyContacts: r.EmergencyContacts,
	}
	if r.DueDate != "" {
		due, err := ParseDueDate(r.DueDate)
		if err != nil {
			return nil, err
		}
		p.DueDate = &due
	}
	return p, nil
}

// ParseDueDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &record.ValidationError{Field: "dueDate", Reason: "must be YYYY-MM-DD"}
}

type submitRequest struct {
	Type   string           `json:"type"`
	Fields record.RawFields `json:"fields"`
}

type submitResponse struct {
	Record       record.HealthRecord `json:"record"`
	Notification alert.Notification  `json:"notification"`
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := req.toPatient()
	if err != nil {
		return respondError(c, err)
	}
	if err := h.svc.RegisterPatient(c.Request().Context(), p); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	patients, err := h.svc.Patients(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.Patient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SubmitRecord(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Fields == nil {
		req.Fields = record.RawFields{}
	}
	rec, n, err := h.svc.Submit(c.Request().Context(), c.Param("id"), record.RecordType(req.Type), req.Fields)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, submitResponse{Record: rec, Notification: n})
}

func (h *Handler) ListRecords(c echo.Context) error {
	recs, err := h.svc.Records(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) LatestRecord(c echo.Context) error {
	t, err := record.ParseType(c.QueryParam("type"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, &record.ValidationError{Field: "type", Reason: err.Error()})
	}
	rec, ok, err := h.svc.Latest(c.Request().Context(), c.Param("id"), t)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no "+t.Label()+" records")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetSummary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context(), c.Param("id"), h.now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func respondError(c echo.Context, err error) error {
	var ve *record.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, ve)
	case errors.Is(err, record.ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
