package alert

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/momcare/pregnancy-tracker/pkg/pagination"
)

// ReadMarker marks a notification read. *Log satisfies it; callers that
// also announce the change pass their own.
type ReadMarker interface {
	MarkRead(ctx context.Context, id string) (Notification, error)
}

type Handler struct {
	log    *Log
	marker ReadMarker
}

// NewHandler serves the log. A nil marker marks notifications read on the
// log directly.
func NewHandler(log *Log, marker ReadMarker) *Handler {
	if marker == nil {
		marker = log
	}
	return &Handler{log: log, marker: marker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications", h.ListNotifications)
	api.GET("/notifications/unread", h.UnreadCount)
	api.POST("/notifications/:id/read", h.MarkRead)
}

func (h *Handler) ListNotifications(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.log.List(c.Request().Context(), c.QueryParam("patient_id"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) UnreadCount(c echo.Context) error {
	n, err := h.log.Unread(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) MarkRead(c echo.Context) error {
	n, err := h.marker.MarkRead(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotificationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, n)
}
