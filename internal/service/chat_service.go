package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/gateway"
	"github.com/iliyamo/chat-gateway/internal/metrics"
	"github.com/iliyamo/chat-gateway/internal/model"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

// HistoryStore is the transcript a ChatService reads and appends to.
type HistoryStore interface {
	Append(ctx context.Context, token string, role model.Role, content string) error
	Recent(ctx context.Context, token string, limit int) ([]model.ChatMessage, error)
}

// Completer turns a conversation into one assistant reply.
type Completer interface {
	Complete(ctx context.Context, msgs []gateway.Message) (string, error)
}

// ChatService runs one chat turn: persist the user message, assemble the
// bounded conversation, ask the model, persist the reply.
type ChatService struct {
	History      HistoryStore
	Model        Completer
	SystemPrompt string
	Window       int
	Log          *slog.Logger
}

func NewChatService(h HistoryStore, m Completer, systemPrompt string, window int, log *slog.Logger) *ChatService {
	return &ChatService{History: h, Model: m, SystemPrompt: systemPrompt, Window: window, Log: log}
}

// Assemble returns the system instruction followed by the last Window
// messages of token in ascending order.
func (s *ChatService) Assemble(ctx context.Context, token string) ([]gateway.Message, error) {
	recent, err := s.History.Recent(ctx, token, s.Window)
	if err != nil {
		return nil, err
	}
	out := make([]gateway.Message, 0, len(recent)+1)
	out = append(out, gateway.Message{Role: gateway.RoleSystem, Content: s.SystemPrompt})
	for _, m := range recent {
		out = append(out, gateway.Message{Role: string(m.Role), Content: m.Content})
	}
	return out, nil
}

// Turn answers content for token. Transcript failures are logged and
// tolerated; only an empty message or a model failure is returned.
func (s *ChatService) Turn(ctx context.Context, token, content string) (string, error) {
	const op = "chat.turn"
	if strings.TrimSpace(content) == "" {
		return "", apperr.Validation(op, "message cannot be empty")
	}
	log := s.Log.With("token", utils.TokenPrefix(token))

	if err := s.History.Append(ctx, token, model.RoleUser, content); err != nil {
		metrics.HistoryWriteFailuresTotal.Inc()
		log.Warn("user message not stored", "err", err)
	}

	msgs, err := s.Assemble(ctx, token)
	if err != nil {
		log.Warn("history unavailable, answering without context", "err", err)
		msgs = []gateway.Message{{Role: gateway.RoleSystem, Content: s.SystemPrompt}}
	}
	// The current message is always the last input, even when its append
	// failed or the window is zero.
	if last := msgs[len(msgs)-1]; last.Role != gateway.RoleUser || last.Content != content {
		msgs = append(msgs, gateway.Message{Role: gateway.RoleUser, Content: content})
	}

	reply, err := s.Model.Complete(ctx, msgs)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.E(apperr.KindGateway, op, "the assistant is unavailable right now", err)
		}
		log.Error("model call failed", "err", err)
		return "", err
	}

	if err := s.History.Append(ctx, token, model.RoleAssistant, reply); err != nil {
		metrics.HistoryWriteFailuresTotal.Inc()
		log.Warn("assistant reply not stored", "err", err)
	}
	return reply, nil
}

// Recent returns the caller's current window for display.
func (s *ChatService) Recent(ctx context.Context, token string) ([]model.ChatMessage, error) {
	return s.History.Recent(ctx, token, s.Window)
}
