package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/AutoSentinel/AutoSentinel/internal/common/server"
	"github.com/AutoSentinel/AutoSentinel/internal/user"
)

// Middleware records authenticated access to a restricted resource type.
// The action is derived from the HTTP method.
func Middleware(rec *Recorder, resourceType string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil {
				return err
			}

			ai, ok := server.AuthInfoFrom(c)
			if !ok {
				return nil
			}
			e := Entry{
				UserID:       ai.Subject,
				Action:       actionFor(c.Request().Method),
				ResourceType: resourceType,
				ResourceID:   c.Param("id"),
				IPAddress:    c.RealIP(),
				UserAgent:    c.Request().UserAgent(),
				Metadata: map[string]interface{}{
					"path":   c.Request().URL.Path,
					"method": c.Request().Method,
				},
			}
			if vin := c.Param("vin"); vin != "" {
				e.Metadata["vin"] = vin
			}
			rec.Record(e)
			return nil
		}
	}
}

func actionFor(method string) Action {
	switch method {
	case http.MethodGet, http.MethodHead:
		return ActionView
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	}
	return ActionAccessRestricted
}

// HTTPHandler exposes the audit trail to auditors.
type HTTPHandler struct {
	repo *Repo
}

func NewHTTPHandler(repo *Repo) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

func (h *HTTPHandler) Register(g *echo.Group) {
	g.GET("/audit/logs", h.query, server.RequireRoles(user.RoleAuditor, user.RoleSystemAdmin))
}

func (h *HTTPHandler) query(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 500 {
		size = 50
	}

	f := QueryFilter{
		UserID:       c.QueryParam("user_id"),
		Action:       Action(c.QueryParam("action")),
		ResourceType: c.QueryParam("resource_type"),
		VehicleID:    c.QueryParam("vehicle_id"),
		Offset:       (page - 1) * size,
		Limit:        size,
	}
	if s := c.QueryParam("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid since, want RFC3339")
		}
		f.Since = since
	}

	logs, total, err := h.repo.Query(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"logs": logs, "total": total})
}
