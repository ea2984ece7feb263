package insight

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vhealth/integration/internal/platform/fhir"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/health-prediction-by-observations/:id", h.Predict)
	g.POST("/insights", h.Insight)
	g.GET("/insights/prompts", h.Prompts)
}

func (h *Handler) Predict(c echo.Context) error {
	out, err := h.svc.Predict(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSONBlob(http.StatusOK, out)
}

func (h *Handler) Insight(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.Insight(c.Request().Context(), &req)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Prompts(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"prompts": h.svc.Prompts()})
}
