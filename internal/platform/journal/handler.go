package journal

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vhealth/integration/pkg/pagination"
)

// Handler exposes the journal over HTTP.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sync-journal/:id", h.ListByPatient)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID := c.Param("id")
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient id is required")
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.store.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg))
}
