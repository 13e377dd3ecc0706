package provider

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
	svc *RefreshService
}

func NewHTTPHandler(svc *RefreshService) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func (h *HTTPHandler) Register(g *echo.Group) {
	adminRoles := server.RequireRoles(user.RoleSystemAdmin)

	g.GET("/providers", h.list, adminRoles)
	g.GET("/providers/feeds", h.feeds, adminRoles)
	g.POST("/vehicles/:vin/refresh", h.refresh, adminRoles)
}

func (h *HTTPHandler) list(c echo.Context) error {
	providers, err := h.svc.Repo().List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"providers": providers})
}

func (h *HTTPHandler) feeds(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	feeds, err := h.svc.Repo().Feeds(c.Request().Context(), c.QueryParam("provider_id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"feeds": feeds})
}

func (h *HTTPHandler) refresh(c echo.Context) error {
	err := h.svc.RefreshVehicle(c.Request().Context(), c.Param("vin"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"refreshed": true})
}
