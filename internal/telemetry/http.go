package telemetry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/common/server"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func (h *HTTPHandler) Register(g *echo.Group) {
	roles := server.RequireRoles(user.RoleFleetAdmin, user.RoleSystemAdmin)

	g.POST("/vehicles/:vin/telemetry", h.ingest, roles)
	g.GET("/vehicles/:vin/telemetry", h.recent, roles)
}

func (h *HTTPHandler) ingest(c echo.Context) error {
	var req struct {
		Traces []TraceInput `json:"traces"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	n, err := h.svc.Ingest(c.Request().Context(), c.Param("vin"), req.Traces)
	if errors.Is(err, ErrNoConsent) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, echo.Map{"stored": n})
}

func (h *HTTPHandler) recent(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	traces, err := h.svc.Recent(c.Request().Context(), c.Param("vin"), limit)
	if errors.Is(err, ErrNoConsent) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"traces": traces, "count": len(traces)})
}
