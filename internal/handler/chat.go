package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-gateway/internal/middleware"
	"github.com/iliyamo/chat-gateway/internal/model"
)

type Chatter interface {
	Turn(ctx context.Context, token, content string) (string, error)
	Recent(ctx context.Context, token string) ([]model.ChatMessage, error)
}

// ChatHandler serves routes behind middleware.RequireAccess.
type ChatHandler struct {
	Chat Chatter
	Log  *slog.Logger
}

func NewChatHandler(ch Chatter, log *slog.Logger) *ChatHandler {
	return &ChatHandler{Chat: ch, Log: log}
}

type chatReq struct {
	Message  string `json:"message"`
	Mensagem string `json:"mensagem"`
}

type historyItem struct {
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// Send runs one chat turn and returns {"response": reply}.
func (h *ChatHandler) Send(c echo.Context) error {
	var req chatReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	msg := req.Message
	if msg == "" {
		msg = req.Mensagem
	}
	reply, err := h.Chat.Turn(c.Request().Context(), middleware.AccessToken(c), msg)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"response": reply})
}

// History returns the caller's current window, oldest first.
func (h *ChatHandler) History(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	msgs, err := h.Chat.Recent(ctx, middleware.AccessToken(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	out := make([]historyItem, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, historyItem{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": out})
}
