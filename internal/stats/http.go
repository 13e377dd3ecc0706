package stats

import (
	"net/http"

	"github.com/labstack/echo/v4"

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
	g.GET("/stats/home", h.home)
	g.GET("/stats", h.statistics)
	g.GET("/stats/dashboard", h.dashboard,
		server.RequireRoles(user.RoleAuditor, user.RoleSystemAdmin))
}

func (h *HTTPHandler) home(c echo.Context) error {
	out, err := h.svc.Home(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) statistics(c echo.Context) error {
	out, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) dashboard(c echo.Context) error {
	out, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}
