package crowd

import (
	"errors"
	"net/http"
	"strconv"
	"time"

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
	moderatorRoles := server.RequireRoles(user.RoleAuditor, user.RoleSystemAdmin)

	g.POST("/vehicles/:vin/reports", h.submit)
	g.GET("/vehicles/:vin/reports", h.list)
	g.GET("/moderation/reports", h.moderationQueue, moderatorRoles)
	g.POST("/moderation/reports/:id", h.moderate, moderatorRoles)
}

func (h *HTTPHandler) submit(c echo.Context) error {
	ai, ok := server.AuthInfoFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		ReportType    string `json:"report_type"`
		ReportDate    string `json:"report_date"`
		Description   string `json:"description"`
		LocationCity  string `json:"location_city"`
		LocationState string `json:"location_state"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	in := SubmitInput{
		Type:          ReportType(req.ReportType),
		Description:   req.Description,
		LocationCity:  req.LocationCity,
		LocationState: req.LocationState,
	}
	if req.ReportDate != "" {
		d, err := time.Parse("2006-01-02", req.ReportDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid report_date")
		}
		in.ReportDate = d
	}

	rep, err := h.svc.Submit(c.Request().Context(), c.Param("vin"), ai.Subject, in)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *HTTPHandler) list(c echo.Context) error {
	f := listFilterFromQuery(c)
	reports, total, err := h.svc.ListForVIN(c.Request().Context(), c.Param("vin"), f)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"reports": reports, "total": total})
}

func (h *HTTPHandler) moderationQueue(c echo.Context) error {
	f := listFilterFromQuery(c)
	if f.Status == "" {
		f.Status = StatusPending
	}
	reports, total, err := h.svc.Repo().List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"reports": reports, "total": total})
}

func (h *HTTPHandler) moderate(c echo.Context) error {
	ai, ok := server.AuthInfoFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	rep, err := h.svc.Moderate(c.Request().Context(), c.Param("id"), ai.Subject, Status(req.Status))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rep)
}

func listFilterFromQuery(c echo.Context) ListFilter {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	return ListFilter{
		Status: Status(c.QueryParam("status")),
		Type:   ReportType(c.QueryParam("type")),
		Offset: (page - 1) * size,
		Limit:  size,
	}
}
