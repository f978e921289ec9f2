package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/gateway"
	"github.com/iliyamo/chat-gateway/internal/handler"
	"github.com/iliyamo/chat-gateway/internal/logging"
	"github.com/iliyamo/chat-gateway/internal/model"
	"github.com/iliyamo/chat-gateway/internal/service"
	"github.com/iliyamo/chat-gateway/internal/session"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

// memTokens is an in-memory token store with the same duplicate and expiry
// rules as the SQL one.
type memTokens struct {
	mu   sync.Mutex
	rows map[string]model.AccessToken
	seq  int
}

func newMemTokens() *memTokens { return &memTokens{rows: map[string]model.AccessToken{}} }

func (m *memTokens) Issue(_ context.Context, name, phone string, days int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Phone == phone {
			return "", apperr.E(apperr.KindDuplicatePhone, "tokens.issue", "", nil)
		}
	}
	m.seq++
	tok := strings.Repeat("t", 8) + string(rune('a'+m.seq))
	exp := time.Now().AddDate(0, 0, days)
	m.rows[tok] = model.AccessToken{ID: uint64(m.seq), Name: name, Phone: phone, Token: tok, CreatedAt: time.Now(), ExpiresAt: &exp}
	return tok, nil
}

func (m *memTokens) FindActiveByPhone(_ context.Context, phone string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Phone == phone && r.ActiveAt(time.Now()) {
			return r.Token, true, nil
		}
	}
	return "", false, nil
}

func (m *memTokens) IsValid(_ context.Context, tok string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[tok]
	return ok && r.ActiveAt(time.Now()), nil
}

func (m *memTokens) Renew(_ context.Context, tok string, days int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[tok]
	if !ok {
		return false, nil
	}
	exp := time.Now().AddDate(0, 0, days)
	r.ExpiresAt = &exp
	m.rows[tok] = r
	return true, nil
}

func (m *memTokens) Revoke(_ context.Context, tok string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[tok]
	delete(m.rows, tok)
	return ok, nil
}

func (m *memTokens) List(context.Context) ([]model.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AccessToken, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

type memHistory struct {
	mu   sync.Mutex
	rows []model.ChatMessage
}

func (h *memHistory) Append(_ context.Context, tok string, role model.Role, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows = append(h.rows, model.ChatMessage{Token: tok, Role: role, Content: content, CreatedAt: time.Now()})
	return nil
}

func (h *memHistory) Recent(_ context.Context, tok string, limit int) ([]model.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.ChatMessage, 0)
	for _, r := range h.rows {
		if r.Token == tok {
			out = append(out, r)
		}
	}
	if limit <= 0 {
		return out[:0], nil
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type echoModel struct{}

func (echoModel) Complete(_ context.Context, msgs []gateway.Message) (string, error) {
	if msgs[len(msgs)-1].Content == "Olá" {
		return "Bem-vinda!", nil
	}
	return "ok", nil
}

func newServer(t *testing.T) (*echo.Echo, *memTokens) {
	t.Helper()
	log := logging.Discard()
	tokens := newMemTokens()
	access := service.NewAccessService(tokens, nil, 7, time.UTC, log)
	chat := service.NewChatService(&memHistory{}, echoModel{}, "Be kind.", 20, log)
	store := session.NewCookieStore("session-secret", session.Options{})
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	e := echo.New()
	Register(e, Deps{
		Access:      handler.NewAccessHandler(access, store, tokens, log),
		Chat:        handler.NewChatHandler(chat, log),
		Admin:       &handler.AdminHandler{Tokens: access, PasswordHash: string(hash), Secret: "admin-secret", TTLMin: 10, Log: log},
		Sessions:    store,
		Validator:   tokens,
		AdminSecret: "admin-secret",
		Log:         log,
	})
	return e, tokens
}

type client struct {
	t       *testing.T
	e       *echo.Echo
	cookies map[string]*http.Cookie
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.e.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestFlow_RegisterChatRevoke(t *testing.T) {
	e, tokens := newServer(t)
	user := &client{t: t, e: e, cookies: map[string]*http.Cookie{}}

	// chat before registering
	rec := user.do(http.MethodPost, "/v1/chat", `{"message":"Olá"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = user.do(http.MethodPost, "/v1/access", `{"name":"Maria","phone":"11987654321"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = user.do(http.MethodPost, "/v1/chat", `{"message":"Olá"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bem-vinda!", body(t, rec)["response"])

	rec = user.do(http.MethodGet, "/v1/chat/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body(t, rec)["messages"], 2)

	// a second client re-registering the same phone reuses the grant
	other := &client{t: t, e: e, cookies: map[string]*http.Cookie{}}
	rec = other.do(http.MethodPost, "/v1/access", `{"name":"Maria","phone":"11987654321"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body(t, rec)["reused"])

	// admin revokes the grant
	admin := &client{t: t, e: e, cookies: map[string]*http.Cookie{}}
	assert.Equal(t, http.StatusUnauthorized, admin.do(http.MethodGet, "/v1/admin/tokens", "").Code)
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/v1/admin/login", `{"password":"admin-pw"}`).Code)
	rows, _ := tokens.List(context.Background())
	require.Len(t, rows, 1)
	rec = admin.do(http.MethodDelete, "/v1/admin/tokens/"+rows[0].Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body(t, rec)["revoked"])

	// the stale session is rejected and cleared
	rec = user.do(http.MethodPost, "/v1/chat", `{"message":"still there?"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, user.cookies)

	rec = user.do(http.MethodGet, "/v1/access", "")
	assert.Equal(t, false, body(t, rec)["authorized"])
}

func TestFlow_ResetClearsAccess(t *testing.T) {
	e, _ := newServer(t)
	user := &client{t: t, e: e, cookies: map[string]*http.Cookie{}}
	require.Equal(t, http.StatusCreated, user.do(http.MethodPost, "/v1/access", `{"name":"Ana","phone":"21988887777"}`).Code)
	require.Equal(t, http.StatusNoContent, user.do(http.MethodPost, "/v1/access/reset", "").Code)
	assert.Equal(t, http.StatusUnauthorized, user.do(http.MethodPost, "/v1/chat", `{"message":"oi"}`).Code)
}

func TestAdmin_SessionKeyNeverAuthorizes(t *testing.T) {
	e, _ := newServer(t)
	user := &client{t: t, e: e, cookies: map[string]*http.Cookie{}}
	require.Equal(t, http.StatusCreated, user.do(http.MethodPost, "/v1/access", `{"name":"Ana","phone":"21988887777"}`).Code)
	sessionCookie := user.cookies[session.DefaultCookieName]
	require.NotNil(t, sessionCookie)

	// an admin-shaped token signed with the session key
	forged, err := utils.NewAdminToken("session-secret", 5)
	require.NoError(t, err)

	for _, raw := range []string{sessionCookie.Value, forged.Token} {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/tokens", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e, _ := newServer(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
