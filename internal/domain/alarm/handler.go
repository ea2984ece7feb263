package alarm

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vhealth/integration/internal/platform/fhir"
)

type Handler struct {
	reader *Reader
}

func NewHandler(reader *Reader) *Handler {
	return &Handler{reader: reader}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/alarms/:id", h.List)
}

func (h *Handler) List(c echo.Context) error {
	notes, err := h.reader.List(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, notes)
}
