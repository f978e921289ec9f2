package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/model"
)

// ChatRepo is the append-only transcript stored in `chat_messages`.
type ChatRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewChatRepo(db *sql.DB) *ChatRepo { return &ChatRepo{DB: db, Now: time.Now} }

func (r *ChatRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Append stores one message for token. Unknown roles and blank content are
// rejected with ErrInvalidMessage before touching the database.
func (r *ChatRepo) Append(ctx context.Context, token string, role model.Role, content string) error {
	const op = "chat.append"
	if token == "" {
		return apperr.E(apperr.KindValidation, op, "token is required", ErrInvalidMessage)
	}
	if !role.Valid() {
		return apperr.E(apperr.KindValidation, op, "role must be user or assistant", ErrInvalidMessage)
	}
	if strings.TrimSpace(content) == "" {
		return apperr.E(apperr.KindValidation, op, "message cannot be empty", ErrInvalidMessage)
	}
	if r.DB == nil {
		return apperr.Storage(op, ErrNoDatabase)
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO chat_messages (token, role, content, created_at) VALUES (?,?,?,?)",
		token, string(role), content, r.now())
	if err != nil {
		return apperr.Storage(op, err)
	}
	return nil
}

// Recent returns up to limit of the newest messages for token in ascending
// chronological order. The query reads newest-first so the LIMIT keeps the
// tail of the conversation; the slice is reversed before returning.
func (r *ChatRepo) Recent(ctx context.Context, token string, limit int) ([]model.ChatMessage, error) {
	const op = "chat.recent"
	out := make([]model.ChatMessage, 0)
	if limit <= 0 || token == "" {
		return out, nil
	}
	if r.DB == nil {
		return nil, apperr.Storage(op, ErrNoDatabase)
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, token, role, content, created_at FROM chat_messages WHERE token=? ORDER BY created_at DESC, id DESC LIMIT ?",
		token, limit)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m    model.ChatMessage
			role string
		)
		if err := rows.Scan(&m.ID, &m.Token, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, apperr.Storage(op, err)
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
