package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-gateway/internal/middleware"
	"github.com/iliyamo/chat-gateway/internal/service"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

// TokenAdmin is the grant management surface behind the admin routes.
type TokenAdmin interface {
	Issue(ctx context.Context, name, phone string, days int) (string, error)
	Renew(ctx context.Context, token string, days int) (time.Time, error)
	Revoke(ctx context.Context, token string) (bool, error)
	List(ctx context.Context) ([]service.TokenView, error)
}

// AdminHandler bundles the admin login and token management endpoints.
type AdminHandler struct {
	Tokens TokenAdmin
	// PasswordHash is the bcrypt hash of the admin password. Empty disables
	// login.
	PasswordHash string
	Secret       string
	TTLMin       int
	Secure       bool
	Log          *slog.Logger
}

type adminLoginReq struct {
	Password string `json:"password" form:"password"`
	Senha    string `json:"senha" form:"senha"`
}

type createTokenReq struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Days  int    `json:"days"`
}

type renewReq struct {
	Days int `json:"days"`
}

// Login verifies the admin password and sets a short-lived admin session
// cookie. The token is also returned for Bearer use.
func (h *AdminHandler) Login(c echo.Context) error {
	var req adminLoginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	pw := req.Password
	if pw == "" {
		pw = req.Senha
	}
	if h.PasswordHash == "" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin login is not configured"})
	}
	if pw == "" || !utils.VerifyPassword(h.PasswordHash, pw) {
		h.Log.Warn("admin login failed", "ip", c.RealIP())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	tok, err := utils.NewAdminToken(h.Secret, h.TTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue admin session failed"})
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.AdminCookieName,
		Value:    tok.Token,
		Path:     "/v1/admin",
		Expires:  tok.Exp,
		MaxAge:   h.TTLMin * 60,
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	h.Log.Info("admin login", "ip", c.RealIP())
	return c.JSON(http.StatusOK, echo.Map{"token": tok.Token, "expires": tok.Exp})
}

func (h *AdminHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.AdminCookieName,
		Value:    "",
		Path:     "/v1/admin",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) ListTokens(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	views, err := h.Tokens.List(ctx)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": views})
}

// CreateToken issues a grant. days may be omitted for the default.
func (h *AdminHandler) CreateToken(c echo.Context) error {
	var req createTokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tok, err := h.Tokens.Issue(ctx, req.Name, req.Phone, req.Days)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": tok})
}

func (h *AdminHandler) RenewToken(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	var req renewReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	exp, err := h.Tokens.Renew(ctx, token, req.Days)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token, "expires_at": exp})
}

// RevokeToken is idempotent: an unknown token answers 200 with revoked=false.
func (h *AdminHandler) RevokeToken(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	removed, err := h.Tokens.Revoke(ctx, token)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": removed})
}
