package vehicle

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/common/server"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// HTTPHandler exposes the vehicle registry and search endpoints.
type HTTPHandler struct {
	svc    *Service
	search *SearchService
}

func NewHTTPHandler(svc *Service, search *SearchService) *HTTPHandler {
	return &HTTPHandler{svc: svc, search: search}
}

func (h *HTTPHandler) Register(g *echo.Group) {
	writerRoles := server.RequireRoles(user.RoleDealer, user.RoleFleetAdmin, user.RoleSystemAdmin)

	g.GET("/search", h.searchVehicles)
	g.GET("/vehicles", h.listVehicles)
	g.GET("/vehicles/:vin", h.getVehicle)
	g.PUT("/vehicles/:vin", h.upsertVehicle, writerRoles)
	g.POST("/vehicles/:vin/registrations", h.addRegistration, writerRoles)
	g.POST("/vehicles/:vin/consent", h.setConsent,
		server.RequireRoles(user.RoleFleetAdmin, user.RoleSystemAdmin))
}

func (h *HTTPHandler) searchVehicles(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	st := SearchType(strings.TrimSpace(c.QueryParam("type")))

	page, size := pageParams(c)
	in := SearchInput{
		Type:      st,
		Query:     q,
		Offset:    (page - 1) * size,
		Limit:     size,
		IPAddress: c.RealIP(),
	}
	if ai, ok := server.AuthInfoFrom(c); ok {
		in.UserID = ai.Subject
	}

	res, err := h.search.Search(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"vehicles":  summaries(res.Vehicles),
		"total":     res.Total,
		"cache_hit": res.CacheHit,
	})
}

func (h *HTTPHandler) listVehicles(c echo.Context) error {
	page, size := pageParams(c)
	f := ListFilter{
		Make:        strings.TrimSpace(c.QueryParam("make")),
		TitleStatus: TitleStatus(strings.TrimSpace(c.QueryParam("status"))),
		StolenOnly:  c.QueryParam("stolen") == "true",
		Offset:      (page - 1) * size,
		Limit:       size,
	}
	if y := c.QueryParam("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		f.Year = year
	}

	vehicles, total, err := h.svc.Repo().List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"vehicles": summaries(vehicles), "total": total})
}

func (h *HTTPHandler) getVehicle(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.svc.GetByVIN(ctx, c.Param("vin"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	regs, err := h.svc.Repo().Registrations(ctx, v.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"vehicle":       v,
		"registrations": regs,
	})
}

func (h *HTTPHandler) upsertVehicle(c echo.Context) error {
	var req struct {
		Make               string      `json:"make"`
		Model              string      `json:"model"`
		Year               int         `json:"year"`
		Trim               string      `json:"trim"`
		BodyStyle          string      `json:"body_style"`
		Color              string      `json:"color"`
		Engine             string      `json:"engine"`
		Transmission       string      `json:"transmission"`
		Drivetrain         string      `json:"drivetrain"`
		FuelType           string      `json:"fuel_type"`
		Displacement       float64     `json:"displacement"`
		Cylinders          int         `json:"cylinders"`
		ManufactureCountry string      `json:"manufacture_country"`
		ManufacturePlant   string      `json:"manufacture_plant"`
		CurrentMileage     int         `json:"current_mileage"`
		TitleStatus        TitleStatus `json:"title_status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	v, err := h.svc.Upsert(c.Request().Context(), UpsertInput{
		VIN:                c.Param("vin"),
		Make:               req.Make,
		Model:              req.Model,
		Year:               req.Year,
		Trim:               req.Trim,
		BodyStyle:          req.BodyStyle,
		Color:              req.Color,
		Engine:             req.Engine,
		Transmission:       req.Transmission,
		Drivetrain:         req.Drivetrain,
		FuelType:           req.FuelType,
		Displacement:       req.Displacement,
		Cylinders:          req.Cylinders,
		ManufactureCountry: req.ManufactureCountry,
		ManufacturePlant:   req.ManufacturePlant,
		CurrentMileage:     req.CurrentMileage,
		TitleStatus:        req.TitleStatus,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}

func (h *HTTPHandler) addRegistration(c echo.Context) error {
	var req struct {
		PlateNumber string     `json:"plate_number"`
		State       string     `json:"state"`
		Country     string     `json:"country"`
		IssuedDate  time.Time  `json:"issued_date"`
		ExpiryDate  *time.Time `json:"expiry_date"`
		IsCurrent   bool       `json:"is_current"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	reg, err := h.svc.AddRegistration(c.Request().Context(), c.Param("vin"), AddRegistrationInput{
		PlateNumber: req.PlateNumber,
		State:       req.State,
		Country:     req.Country,
		IssuedDate:  req.IssuedDate,
		ExpiryDate:  req.ExpiryDate,
		IsCurrent:   req.IsCurrent,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, reg)
}

func (h *HTTPHandler) setConsent(c echo.Context) error {
	var req struct {
		Consent bool `json:"consent"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	v, err := h.svc.SetTrackingConsent(c.Request().Context(), c.Param("vin"), req.Consent)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}

// vehicleSummary is the compact listing/search row.
type vehicleSummary struct {
	VIN         string      `json:"vin"`
	Make        string      `json:"make"`
	Model       string      `json:"model"`
	Year        int         `json:"year"`
	TitleStatus TitleStatus `json:"title_status"`
	Mileage     int         `json:"mileage"`
	IsStolen    bool        `json:"is_stolen"`
}

func summaries(vs []Vehicle) []vehicleSummary {
	out := make([]vehicleSummary, 0, len(vs))
	for i := range vs {
		v := vs[i]
		out = append(out, vehicleSummary{
			VIN:         v.VIN,
			Make:        v.Make,
			Model:       v.Model,
			Year:        v.Year,
			TitleStatus: v.CurrentTitleStatus,
			Mileage:     v.CurrentMileage,
			IsStolen:    v.IsStolen,
		})
	}
	return out
}

func pageParams(c echo.Context) (page, size int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	size, _ = strconv.Atoi(c.QueryParam("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	return page, size
}
