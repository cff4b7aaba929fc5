package records

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/thyrotrack/thyrotrack/pkg/pagination"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/thyroid-panels", h.ListThyroidPanels)
	api.POST("/thyroid-panels", h.CreateThyroidPanel)
	api.GET("/thyroid-panels/latest", h.LatestThyroidPanel)
	api.PATCH("/thyroid-panels/:id", h.UpdateThyroidPanel)
	api.DELETE("/thyroid-panels/:id", h.DeleteThyroidPanel)

	api.GET("/vitals", h.ListVitals)
	api.POST("/vitals", h.CreateVital)
	api.GET("/vitals/latest", h.LatestVital)
	api.PATCH("/vitals/:id", h.UpdateVital)
	api.DELETE("/vitals/:id", h.DeleteVital)

	api.GET("/medication-changes", h.ListMedicationChanges)
	api.POST("/medication-changes", h.CreateMedicationChange)
	api.GET("/medication-changes/latest", h.LatestMedicationChange)
	api.PATCH("/medication-changes/:id", h.UpdateMedicationChange)
	api.DELETE("/medication-changes/:id", h.DeleteMedicationChange)

	api.GET("/medication-checks/:date", h.GetMedicationCheck)
	api.PUT("/medication-checks/:date", h.SetMedicationCheck)

	api.GET("/summary", h.GetSummary)
	api.GET("/health-context", h.GetHealthContext)

	api.GET("/export", h.Export)
	api.POST("/import", h.Import)
}

// storeError maps store errors onto HTTP responses.
func storeError(c echo.Context, err error) error {
	var invalid *InvalidFieldError
	switch {
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": invalid.Fields,
		})
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}

func bindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code != http.StatusBadRequest {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", he.Message))
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
}

func listBase(c echo.Context) string {
	base := c.Request().URL.Path
	if t := c.QueryParam("type"); t != "" {
		base += "?type=" + url.QueryEscape(t)
	}
	return base
}

// -- Thyroid panels --

func (h *Handler) ListThyroidPanels(c echo.Context) error {
	p := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Paginate(h.store.ThyroidPanels(), p).WithLinks(listBase(c), p))
}

func (h *Handler) CreateThyroidPanel(c echo.Context) error {
	var p ThyroidPanel
	if err := c.Bind(&p); err != nil {
		return bindError(err)
	}
	created, err := h.store.AddThyroidPanel(c.Request().Context(), p)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) LatestThyroidPanel(c echo.Context) error {
	p, ok := h.store.LatestThyroidPanel()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no thyroid panels recorded")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateThyroidPanel(c echo.Context) error {
	var patch ThyroidPanelPatch
	if err := c.Bind(&patch); err != nil {
		return bindError(err)
	}
	updated, found, err := h.store.UpdateThyroidPanel(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return storeError(c, err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "thyroid panel not found")
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteThyroidPanel(c echo.Context) error {
	found, err := h.store.DeleteThyroidPanel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "thyroid panel not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Vitals --

func vitalTypeParam(c echo.Context) (VitalType, error) {
	t := VitalType(c.QueryParam("type"))
	if t != "" && !t.Valid() {
		return "", &InvalidFieldError{Fields: []FieldError{{Field: "type", Message: "must be heartRate or weight"}}}
	}
	return t, nil
}

func (h *Handler) ListVitals(c echo.Context) error {
	t, err := vitalTypeParam(c)
	if err != nil {
		return storeError(c, err)
	}
	p := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Paginate(h.store.Vitals(t), p).WithLinks(listBase(c), p))
}

func (h *Handler) CreateVital(c echo.Context) error {
	var v VitalMetric
	if err := c.Bind(&v); err != nil {
		return bindError(err)
	}
	created, err := h.store.AddVital(c.Request().Context(), v)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) LatestVital(c echo.Context) error {
	t, err := vitalTypeParam(c)
	if err != nil {
		return storeError(c, err)
	}
	v, ok := h.store.LatestVital(t)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no vitals recorded")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateVital(c echo.Context) error {
	var patch VitalPatch
	if err := c.Bind(&patch); err != nil {
		return bindError(err)
	}
	updated, found, err := h.store.UpdateVital(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return storeError(c, err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "vital not found")
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteVital(c echo.Context) error {
	found, err := h.store.DeleteVital(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "vital not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Medication changes --

func (h *Handler) ListMedicationChanges(c echo.Context) error {
	p := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Paginate(h.store.MedicationChanges(), p).WithLinks(listBase(c), p))
}

func (h *Handler) CreateMedicationChange(c echo.Context) error {
	var m MedicationChange
	if err := c.Bind(&m); err != nil {
		return bindError(err)
	}
	created, err := h.store.AddMedicationChange(c.Request().Context(), m)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) LatestMedicationChange(c echo.Context) error {
	m, ok := h.store.LatestMedicationChange()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no medication changes recorded")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMedicationChange(c echo.Context) error {
	var patch MedicationChangePatch
	if err := c.Bind(&patch); err != nil {
		return bindError(err)
	}
	updated, found, err := h.store.UpdateMedicationChange(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return storeError(c, err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "medication change not found")
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteMedicationChange(c echo.Context) error {
	found, err := h.store.DeleteMedicationChange(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(c, err)
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "medication change not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Medication checks --

func (h *Handler) dateParam(c echo.Context) string {
	if d := c.Param("date"); d != "today" {
		return d
	}
	return h.store.Today()
}

func (h *Handler) GetMedicationCheck(c echo.Context) error {
	date := h.dateParam(c)
	if err := validateCheck(date, PeriodMorning); err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, h.store.MedicationCheckFor(date))
}

type setCheckRequest struct {
	Period  Period `json:"period"`
	Checked *bool  `json:"checked"`
}

func (h *Handler) SetMedicationCheck(c echo.Context) error {
	var req setCheckRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if req.Checked == nil {
		return storeError(c, &InvalidFieldError{Fields: []FieldError{{Field: "checked", Message: "is required"}}})
	}
	check, err := h.store.SetMedicationCheck(c.Request().Context(), h.dateParam(c), req.Period, *req.Checked)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, check)
}

// -- Views --

func (h *Handler) GetSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Summary())
}

type healthContextResponse struct {
	Context    string           `json:"context"`
	Assessment *PanelAssessment `json:"assessment,omitempty"`
}

func (h *Handler) GetHealthContext(c echo.Context) error {
	resp := healthContextResponse{Context: h.store.HealthContext()}
	if p, ok := h.store.LatestThyroidPanel(); ok {
		a := Assess(p)
		resp.Assessment = &a
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Export / import --

func (h *Handler) Export(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="thyrotrack-export.json"`)
	return c.JSON(http.StatusOK, h.store.Export())
}

func (h *Handler) Import(c echo.Context) error {
	snap, err := DecodeSnapshot(c.Request().Body)
	if err != nil {
		return bindError(err)
	}
	if err := h.store.Import(c.Request().Context(), snap); err != nil {
		return storeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{
		KeyThyroidPanels:     len(snap.ThyroidPanels),
		KeyVitals:            len(snap.Vitals),
		KeyMedicationChanges: len(snap.MedicationChanges),
		KeyMedicationChecks:  len(snap.MedicationChecks),
	})
}
