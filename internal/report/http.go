package report

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/common/auth"
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
	buyerRoles := server.RequireRoles(
		user.RoleVerifiedBuyer, user.RoleDealer, user.RoleFleetAdmin, user.RoleSystemAdmin)

	g.POST("/reports", h.request, buyerRoles)
	g.GET("/reports", h.listOwn)
	g.GET("/reports/:id", h.get)
	g.GET("/reports/:id/pdf", h.pdf)
	g.POST("/reports/:id/purchase", h.purchase, buyerRoles)
	g.POST("/reports/:id/retry", h.retry)
}

func caller(c echo.Context) (auth.AuthInfo, bool, error) {
	ai, ok := server.AuthInfoFrom(c)
	if !ok {
		return auth.AuthInfo{}, false, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return ai, ai.HasAnyRole(user.AdminRoles...), nil
}

func (h *HTTPHandler) request(c echo.Context) error {
	ai, _, err := caller(c)
	if err != nil {
		return err
	}

	var req struct {
		VIN                 string `json:"vin"`
		IncludeTelemetry    bool   `json:"include_telemetry"`
		IncludeOwnerHistory *bool  `json:"include_owner_history"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	in := RequestInput{
		IncludeTelemetry:    req.IncludeTelemetry,
		IncludeOwnerHistory: true,
	}
	if req.IncludeOwnerHistory != nil {
		in.IncludeOwnerHistory = *req.IncludeOwnerHistory
	}

	rep, err := h.svc.Request(c.Request().Context(), req.VIN, ai.Subject, in)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vehicle not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, rep)
}

func (h *HTTPHandler) listOwn(c echo.Context) error {
	ai, _, err := caller(c)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	reports, total, err := h.svc.ListOwn(c.Request().Context(), ai.Subject, (page-1)*size, size)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"reports": reports, "total": total})
}

func (h *HTTPHandler) get(c echo.Context) error {
	ai, isAdmin, err := caller(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.Get(c.Request().Context(), c.Param("id"), ai.Subject, isAdmin)
	return respondReport(c, rep, err)
}

func (h *HTTPHandler) pdf(c echo.Context) error {
	ai, isAdmin, err := caller(c)
	if err != nil {
		return err
	}
	data, err := h.svc.PDF(c.Request().Context(), c.Param("id"), ai.Subject, isAdmin)
	if errors.Is(err, ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.Blob(http.StatusOK, "application/pdf", data)
}

func (h *HTTPHandler) purchase(c echo.Context) error {
	ai, _, err := caller(c)
	if err != nil {
		return err
	}
	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	p, err := h.svc.Purchase(c.Request().Context(), c.Param("id"), ai.Subject, req.PaymentMethod)
	if errors.Is(err, ErrAlreadyPurchased) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if errors.Is(err, ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *HTTPHandler) retry(c echo.Context) error {
	ai, isAdmin, err := caller(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.Retry(c.Request().Context(), c.Param("id"), ai.Subject, isAdmin)
	return respondReport(c, rep, err)
}

func respondReport(c echo.Context, rep *Report, err error) error {
	if errors.Is(err, ErrForbidden) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rep)
}
