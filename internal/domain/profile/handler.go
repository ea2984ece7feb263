package profile

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
	g.POST("/create-profile-with-pcp-and-vitals", h.CreateProfile)
	g.POST("/create-patient-profile", h.CreateProfile)
	g.PUT("/update-patient-profile", h.UpdateProfile)
	g.GET("/patient-full-profile/:email", h.GetFullProfile)
}

func (h *Handler) CreateProfile(c echo.Context) error {
	var p PatientProfile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.CreateProfile(c.Request().Context(), &p)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var p PatientProfile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.UpdateProfile(c.Request().Context(), &p)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetFullProfile(c echo.Context) error {
	p, err := h.svc.GetFullProfileByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
