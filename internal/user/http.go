package user

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/common/server"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// HTTPHandler exposes the account endpoints.
type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Register mounts routes under the API group.
func (h *HTTPHandler) Register(g *echo.Group, adminRoles ...string) {
	g.POST("/auth/register", h.register)
	g.POST("/auth/login", h.login)
	g.GET("/me", h.profile)
	g.PUT("/me", h.updateProfile)
	g.GET("/users", h.listUsers, server.RequireRoles(adminRoles...))
	g.POST("/users/:id/verify", h.verifyUser, server.RequireRoles(adminRoles...))
}

type userView struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	CompanyName  string     `json:"company_name,omitempty"`
	Roles        []string   `json:"roles"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	ConsentUsage bool       `json:"consent_usage"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toView(u *User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Phone:        u.Phone,
		CompanyName:  u.CompanyName,
		Roles:        u.RolesSlice(),
		VerifiedAt:   u.VerifiedAt,
		ConsentUsage: u.ConsentUsage,
		CreatedAt:    u.CreatedAt,
	}
}

func (h *HTTPHandler) register(c echo.Context) error {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		CompanyName string `json:"company_name"`
		Role        string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := h.svc.Register(c.Request().Context(), RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		Phone:       req.Phone,
		CompanyName: req.CompanyName,
		Role:        req.Role,
	})
	if errors.Is(err, ErrUsernameTaken) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, toView(u))
}

func (h *HTTPHandler) login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	token, exp, u, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token,
		"expires_at":   exp.Unix(),
		"user":         toView(u),
	})
}

func (h *HTTPHandler) profile(c echo.Context) error {
	ai, ok := server.AuthInfoFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing auth")
	}
	u, err := h.svc.Get(c.Request().Context(), ai.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toView(u))
}

func (h *HTTPHandler) updateProfile(c echo.Context) error {
	ai, ok := server.AuthInfoFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing auth")
	}
	var req struct {
		Email        *string `json:"email"`
		Phone        *string `json:"phone"`
		CompanyName  *string `json:"company_name"`
		ConsentUsage *bool   `json:"consent_usage"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := h.svc.UpdateProfile(c.Request().Context(), ai.Subject, ProfileUpdate{
		Email:        req.Email,
		Phone:        req.Phone,
		CompanyName:  req.CompanyName,
		ConsentUsage: req.ConsentUsage,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toView(u))
}

func (h *HTTPHandler) listUsers(c echo.Context) error {
	page, size := pageParams(c)
	users, total, err := h.svc.repo.List(c.Request().Context(), (page-1)*size, size)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]*userView, 0, len(users))
	for i := range users {
		out = append(out, toView(&users[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out, "total": total})
}

func (h *HTTPHandler) verifyUser(c echo.Context) error {
	u, err := h.svc.Verify(c.Request().Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toView(u))
}

func pageParams(c echo.Context) (page, size int) {
	page = intQuery(c, "page", 1)
	size = intQuery(c, "page_size", 20)
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	return page, size
}

func intQuery(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
