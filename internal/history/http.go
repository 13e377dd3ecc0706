package history

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/common/server"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func (h *HTTPHandler) Register(g *echo.Group) {
	writerRoles := server.RequireRoles(user.RoleDealer, user.RoleFleetAdmin, user.RoleSystemAdmin)

	g.GET("/vehicles/:vin/history", h.getHistory)
	g.POST("/vehicles/:vin/history/title", h.addTitleEvent, writerRoles)
	g.POST("/vehicles/:vin/history/accidents", h.addAccident, writerRoles)
	g.POST("/vehicles/:vin/history/mileage", h.addMileage, writerRoles)
	g.POST("/vehicles/:vin/history/ownership", h.addOwnership, writerRoles)
	g.POST("/vehicles/:vin/history/theft", h.addTheft, writerRoles)
	g.PUT("/history/theft/:id/status", h.updateTheftStatus, writerRoles)
}

func (h *HTTPHandler) getHistory(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.svc.vehicleByVIN(ctx, c.Param("vin"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hist, err := h.svc.VehicleHistory(ctx, v.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *HTTPHandler) addTitleEvent(c echo.Context) error {
	var req struct {
		EventType   string `json:"event_type"`
		EventDate   string `json:"event_date"`
		TitleStatus string `json:"title_status"`
		State       string `json:"state"`
		TitleNumber string `json:"title_number"`
		Odometer    int    `json:"odometer_reading"`
		Notes       string `json:"notes"`
		Source      string `json:"source"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	date, err := parseDate(req.EventDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	e, err := h.svc.AddTitleEvent(c.Request().Context(), c.Param("vin"), TitleEventInput{
		EventType:   TitleEventType(req.EventType),
		EventDate:   date,
		TitleStatus: vehicle.TitleStatus(req.TitleStatus),
		State:       req.State,
		TitleNumber: req.TitleNumber,
		Odometer:    req.Odometer,
		Notes:       req.Notes,
		Source:      req.Source,
	})
	return respond(c, e, err)
}

func (h *HTTPHandler) addAccident(c echo.Context) error {
	var req struct {
		AccidentDate        string  `json:"accident_date"`
		Severity            string  `json:"severity"`
		Source              string  `json:"source"`
		DamageDescription   string  `json:"damage_description"`
		EstimatedDamageCost float64 `json:"estimated_damage_cost"`
		LocationCity        string  `json:"location_city"`
		LocationState       string  `json:"location_state"`
		AirbagDeployed      bool    `json:"airbag_deployed"`
		IsStructuralDamage  bool    `json:"is_structural_damage"`
		ReportNumber        string  `json:"report_number"`
		Verified            bool    `json:"verified"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	date, err := parseDate(req.AccidentDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	a, err := h.svc.AddAccident(c.Request().Context(), c.Param("vin"), AccidentInput{
		AccidentDate:        date,
		Severity:            AccidentSeverity(req.Severity),
		Source:              RecordSource(req.Source),
		DamageDescription:   req.DamageDescription,
		EstimatedDamageCost: req.EstimatedDamageCost,
		LocationCity:        req.LocationCity,
		LocationState:       req.LocationState,
		AirbagDeployed:      req.AirbagDeployed,
		IsStructuralDamage:  req.IsStructuralDamage,
		ReportNumber:        req.ReportNumber,
		Verified:            req.Verified,
	})
	return respond(c, a, err)
}

func (h *HTTPHandler) addMileage(c echo.Context) error {
	var req struct {
		RecordedDate string `json:"recorded_date"`
		Mileage      int    `json:"mileage"`
		Source       string `json:"source"`
		SourceDetail string `json:"source_detail"`
		Verified     *bool  `json:"verified"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	date, err := parseDate(req.RecordedDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	verified := true
	if req.Verified != nil {
		verified = *req.Verified
	}

	m, err := h.svc.AddMileage(c.Request().Context(), c.Param("vin"), MileageInput{
		RecordedDate: date,
		Mileage:      req.Mileage,
		Source:       RecordSource(req.Source),
		SourceDetail: req.SourceDetail,
		Verified:     verified,
	})
	return respond(c, m, err)
}

func (h *HTTPHandler) addOwnership(c echo.Context) error {
	var req struct {
		OwnerType           string `json:"owner_type"`
		OwnershipStart      string `json:"ownership_start"`
		OwnershipEnd        string `json:"ownership_end"`
		IsCurrent           bool   `json:"is_current"`
		State               string `json:"state"`
		OwnerHash           string `json:"owner_hash"`
		ConsentedToTracking bool   `json:"consented_to_tracking"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	start, err := parseDate(req.OwnershipStart)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var end *time.Time
	if req.OwnershipEnd != "" {
		t, err := parseDate(req.OwnershipEnd)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		end = &t
	}

	o, err := h.svc.AddOwnership(c.Request().Context(), c.Param("vin"), OwnershipInput{
		OwnerType:           OwnerType(req.OwnerType),
		OwnershipStart:      start,
		OwnershipEnd:        end,
		IsCurrent:           req.IsCurrent,
		State:               req.State,
		OwnerHash:           req.OwnerHash,
		ConsentedToTracking: req.ConsentedToTracking,
	})
	return respond(c, o, err)
}

func (h *HTTPHandler) addTheft(c echo.Context) error {
	var req struct {
		ReportedDate    string `json:"reported_date"`
		ReportingAgency string `json:"reporting_agency"`
		CaseNumber      string `json:"case_number"`
		LocationCity    string `json:"theft_location_city"`
		LocationState   string `json:"theft_location_state"`
		Notes           string `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	date, err := parseDate(req.ReportedDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	t, err := h.svc.AddTheft(c.Request().Context(), c.Param("vin"), TheftInput{
		ReportedDate:    date,
		ReportingAgency: req.ReportingAgency,
		CaseNumber:      req.CaseNumber,
		LocationCity:    req.LocationCity,
		LocationState:   req.LocationState,
		Notes:           req.Notes,
	})
	return respond(c, t, err)
}

func (h *HTTPHandler) updateTheftStatus(c echo.Context) error {
	var req struct {
		Status        string `json:"status"`
		RecoveredDate string `json:"recovered_date"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	var recovered *time.Time
	if req.RecoveredDate != "" {
		t, err := parseDate(req.RecoveredDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		recovered = &t
	}

	t, err := h.svc.UpdateTheftStatus(c.Request().Context(), c.Param("id"), TheftStatus(req.Status), recovered)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "theft record not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func respond(c echo.Context, body any, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, body)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date required")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
