package observation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vhealth/integration/internal/platform/fhir"
)

type Handler struct {
	svc      *Service
	realtime *RealtimeService
}

// NewHandler builds the observation handler. realtime may be nil when no
// telemetry store is configured; its routes are then not registered.
func NewHandler(svc *Service, realtime *RealtimeService) *Handler {
	return &Handler{svc: svc, realtime: realtime}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/ingest-wearable-observations-hourly-ehr", h.IngestWearable)
	g.POST("/ingest-general-lab-results-observations", h.IngestLabResults)
	g.POST("/ingest-imaging-lab-results-observations", h.IngestImaging)
	g.POST("/ingest-provider-reported-observations", h.IngestProviderReported)
	g.GET("/current-observations/:id", h.CurrentObservations)
	g.GET("/vitals-trend/:id", h.VitalsTrend)
	g.GET("/patient-lab-results/:id", h.LabResults)

	if h.realtime != nil {
		g.POST("/ingest-wearable-observations-realtime-datastore", h.IngestRealtime)
		g.GET("/realtime-vitals/:id", h.RealtimeVitals)
	}
}

func (h *Handler) IngestWearable(c echo.Context) error {
	var in WearableVitals
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.IngestWearable(c.Request().Context(), &in)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) IngestLabResults(c echo.Context) error {
	var in LabResults
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.IngestLabResults(c.Request().Context(), &in)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) IngestImaging(c echo.Context) error {
	var in ImagingResult
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.IngestImaging(c.Request().Context(), &in)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) IngestProviderReported(c echo.Context) error {
	var in ProviderReported
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.IngestProviderReported(c.Request().Context(), &in)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) CurrentObservations(c echo.Context) error {
	list, err := h.svc.CurrentObservations(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) VitalsTrend(c echo.Context) error {
	days, err := intParam(c, "days")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid days")
	}
	trends, err := h.svc.VitalsTrend(c.Request().Context(), c.Param("id"), days)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, trends)
}

func (h *Handler) LabResults(c echo.Context) error {
	view, err := h.svc.LabResults(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) IngestRealtime(c echo.Context) error {
	var in WearableVitals
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.realtime.Ingest(c.Request().Context(), &in)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"patient_id": in.PatientID, "fields": n})
}

func (h *Handler) RealtimeVitals(c echo.Context) error {
	minutes, err := intParam(c, "minutes")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid minutes")
	}
	if minutes <= 0 {
		minutes = 60
	}
	samples, err := h.realtime.Recent(c.Request().Context(), c.Param("id"), time.Duration(minutes)*time.Minute)
	if err != nil {
		return fhir.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, samples)
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
