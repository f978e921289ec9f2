package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/session"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

// RequireAccess gates a route on a bound, currently valid grant. It runs the
// full check on every request and never caches the outcome. A rejected
// binding is cleared before the 401 goes out; a storage failure answers 503
// and leaves the session untouched.
func RequireAccess(store session.Store, v session.Validator, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r, w := c.Request(), c.Response()
			a, err := store.Load(r)
			if err != nil {
				log.Error("session load failed", "err", err, "request_id", RequestID(c))
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
			}

			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			checked, err := session.Check(ctx, a, v)
			if err == nil {
				c.Set(ctxAccessToken, checked.Token)
				return next(c)
			}
			if apperr.Is(err, apperr.KindUnauthorized) {
				if a.Token != "" {
					log.Info("access rejected, session reset", "token", utils.TokenPrefix(a.Token))
				}
				if cerr := store.Clear(w, r); cerr != nil {
					log.Warn("session clear failed", "err", cerr)
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": apperr.Message(err)})
			}
			log.Error("access check failed", "err", err, "request_id", RequestID(c))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
		}
	}
}
