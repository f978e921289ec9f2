package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/service"
	"github.com/iliyamo/chat-gateway/internal/session"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

// Registrar issues or reuses a grant for a phone.
type Registrar interface {
	Register(ctx context.Context, name, phone string) (service.Registration, error)
}

// AccessHandler binds grants to client sessions.
type AccessHandler struct {
	Access    Registrar
	Sessions  session.Store
	Validator session.Validator
	Log       *slog.Logger
}

func NewAccessHandler(a Registrar, s session.Store, v session.Validator, log *slog.Logger) *AccessHandler {
	return &AccessHandler{Access: a, Sessions: s, Validator: v, Log: log}
}

// registerReq accepts the Portuguese field names the first web form used.
type registerReq struct {
	Name     string `json:"name" form:"name"`
	Phone    string `json:"phone" form:"phone"`
	Nome     string `json:"nome" form:"nome"`
	Telefone string `json:"telefone" form:"telefone"`
}

func (r registerReq) values() (string, string) {
	name, phone := strings.TrimSpace(r.Name), strings.TrimSpace(r.Phone)
	if name == "" {
		name = strings.TrimSpace(r.Nome)
	}
	if phone == "" {
		phone = strings.TrimSpace(r.Telefone)
	}
	return name, phone
}

// Register issues a grant (or reuses the phone's active one) and binds it to
// the caller's session. Any previous binding is replaced.
func (h *AccessHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	name, phone := req.values()
	if name == "" || phone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and phone are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reg, err := h.Access.Register(ctx, name, phone)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	a, err := session.Transition(session.Access{}, session.EventBound, reg.Token)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if err := h.Sessions.Save(c.Response(), c.Request(), a); err != nil {
		return respondError(c, h.Log, apperr.Storage("access.bind", err))
	}

	status, label := http.StatusCreated, "registered"
	if reg.Reused {
		status, label = http.StatusOK, "reused"
	}
	h.Log.Info("access bound", "token", utils.TokenPrefix(reg.Token), "reused", reg.Reused)
	return c.JSON(status, echo.Map{"status": label, "reused": reg.Reused})
}

// Status reports whether the caller's binding is valid right now. An
// invalid binding is cleared, exactly as a protected route would.
func (h *AccessHandler) Status(c echo.Context) error {
	a, err := h.Sessions.Load(c.Request())
	if err != nil {
		return respondError(c, h.Log, apperr.Storage("access.status", err))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checked, err := session.Check(ctx, a, h.Validator)
	if apperr.Is(err, apperr.KindUnauthorized) {
		if a.Token != "" {
			_ = h.Sessions.Clear(c.Response(), c.Request())
		}
		return c.JSON(http.StatusOK, echo.Map{"authorized": false, "state": session.Anonymous.String()})
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"authorized": true, "state": checked.State().String()})
}

// Reset clears the binding. Logout is the same operation under the name the
// client UI uses.
func (h *AccessHandler) Reset(c echo.Context) error {
	a, _ := h.Sessions.Load(c.Request())
	next, _ := session.Transition(a, session.EventReset, "")
	if err := h.Sessions.Save(c.Response(), c.Request(), next); err != nil {
		h.Log.Warn("session reset failed", "err", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AccessHandler) Logout(c echo.Context) error { return h.Reset(c) }
