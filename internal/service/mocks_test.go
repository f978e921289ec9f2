package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/chat-gateway/internal/gateway"
	"github.com/iliyamo/chat-gateway/internal/model"
	"github.com/iliyamo/chat-gateway/internal/queue"
)

type mockTokenStore struct{ mock.Mock }

func (m *mockTokenStore) Issue(ctx context.Context, name, phone string, days int) (string, error) {
	args := m.Called(ctx, name, phone, days)
	return args.String(0), args.Error(1)
}

func (m *mockTokenStore) FindActiveByPhone(ctx context.Context, phone string) (string, bool, error) {
	args := m.Called(ctx, phone)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockTokenStore) IsValid(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockTokenStore) Renew(ctx context.Context, token string, days int) (bool, error) {
	args := m.Called(ctx, token, days)
	return args.Bool(0), args.Error(1)
}

func (m *mockTokenStore) Revoke(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *mockTokenStore) List(ctx context.Context) ([]model.AccessToken, error) {
	args := m.Called(ctx)
	rows, _ := args.Get(0).([]model.AccessToken)
	return rows, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, ev queue.TokenEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// memHistory is an in-memory HistoryStore with ordering identical to the
// SQL store: newest rows by insertion, returned ascending.
type memHistory struct {
	mu        sync.Mutex
	rows      []model.ChatMessage
	appendErr error
	recentErr error
}

func (h *memHistory) Append(_ context.Context, token string, role model.Role, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return h.appendErr
	}
	h.rows = append(h.rows, model.ChatMessage{
		ID: uint64(len(h.rows) + 1), Token: token, Role: role, Content: content, CreatedAt: time.Now(),
	})
	return nil
}

func (h *memHistory) Recent(_ context.Context, token string, limit int) ([]model.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recentErr != nil {
		return nil, h.recentErr
	}
	out := make([]model.ChatMessage, 0)
	if limit <= 0 {
		return out, nil
	}
	for _, r := range h.rows {
		if r.Token == token {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (h *memHistory) byToken(token string) []model.ChatMessage {
	all, _ := h.Recent(context.Background(), token, 1<<30)
	return all
}

// fakeModel records every request and answers with reply or err.
type fakeModel struct {
	reply string
	err   error
	calls [][]gateway.Message
}

func (f *fakeModel) Complete(_ context.Context, msgs []gateway.Message) (string, error) {
	cp := make([]gateway.Message, len(msgs))
	copy(cp, msgs)
	f.calls = append(f.calls, cp)
	return f.reply, f.err
}

var errBackend = errors.New("backend down")
