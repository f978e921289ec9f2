package router // package router wires handlers and middleware onto echo routes

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/chat-gateway/internal/handler"
	"github.com/iliyamo/chat-gateway/internal/middleware"
	"github.com/iliyamo/chat-gateway/internal/session"
)

// Deps is everything the routes need, built once in main.
type Deps struct {
	DB          handler.Pinger
	Access      *handler.AccessHandler
	Chat        *handler.ChatHandler
	Admin       *handler.AdminHandler
	Sessions    session.Store
	Validator   session.Validator
	RateLimit   echo.MiddlewareFunc // nil disables limiting
	AdminSecret string
	Log         *slog.Logger
}

// RegisterRoutes registers the probe and metrics endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAccess registers session binding routes. Registration is rate
// limited per address since it runs before any grant is bound.
func RegisterAccess(e *echo.Echo, d Deps) {
	g := e.Group("/v1/access")
	g.POST("", d.Access.Register, limiter(d))
	g.GET("", d.Access.Status)
	g.POST("/reset", d.Access.Reset)
	e.POST("/v1/logout", d.Access.Logout)
}

// RegisterChat registers the protected chat routes. RequireAccess runs first
// so the limiter can key on the bound grant.
func RegisterChat(e *echo.Echo, d Deps) {
	g := e.Group("/v1/chat", middleware.RequireAccess(d.Sessions, d.Validator, d.Log))
	g.POST("", d.Chat.Send, limiter(d))
	g.GET("/history", d.Chat.History)
}

// RegisterAdmin registers the admin panel API. Login and logout are open;
// token management requires an ADMIN session.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin")
	g.POST("/login", d.Admin.Login, limiter(d))
	g.POST("/logout", d.Admin.Logout)

	t := g.Group("/tokens", middleware.AdminAuth(d.AdminSecret), middleware.RequireRole("ADMIN"))
	t.GET("", d.Admin.ListTokens)
	t.POST("", d.Admin.CreateToken)
	t.POST("/:token/renew", d.Admin.RenewToken)
	t.DELETE("/:token", d.Admin.RevokeToken)
}

// Register wires every route group.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d.DB)
	RegisterAccess(e, d)
	RegisterChat(e, d)
	RegisterAdmin(e, d)
}

func limiter(d Deps) echo.MiddlewareFunc {
	if d.RateLimit == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return d.RateLimit
}
