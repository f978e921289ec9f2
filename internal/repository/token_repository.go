package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/model"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

// MaxGrantDays caps issuance and renewal periods.
const MaxGrantDays = 3650

// tokenInsertAttempts bounds retries after a random token collides with an
// existing one.
const tokenInsertAttempts = 3

// TokenRepo persists access grants in the `tokens` table. It is the single
// authority on whether a token may be used.
type TokenRepo struct {
	DB *sql.DB
	// Now returns the current instant; tests replace it to simulate time.
	Now func() time.Time
	// Generate produces new token strings.
	Generate func() (string, error)
}

func NewTokenRepo(db *sql.DB) *TokenRepo {
	return &TokenRepo{DB: db, Now: time.Now, Generate: utils.NewGrantToken}
}

func (r *TokenRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *TokenRepo) generate() (string, error) {
	if r.Generate == nil {
		return utils.NewGrantToken()
	}
	return r.Generate()
}

func validDays(days int) bool { return days > 0 && days <= MaxGrantDays }

// Issue creates a new grant for (name, phone) valid for days and returns the
// generated token. A phone that already has a row fails with
// KindDuplicatePhone; the existing row is never overwritten.
func (r *TokenRepo) Issue(ctx context.Context, name, phone string, days int) (string, error) {
	const op = "tokens.issue"
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(phone) == "" {
		return "", apperr.Validation(op, "name and phone are required")
	}
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return "", apperr.Validation(op, "phone number is not valid")
	}
	if !validDays(days) {
		return "", apperr.Validation(op, "validity must be between 1 and 3650 days")
	}
	if r.DB == nil {
		return "", apperr.Storage(op, ErrNoDatabase)
	}

	created := r.now()
	expires := created.AddDate(0, 0, days)
	for attempt := 1; ; attempt++ {
		tok, err := r.generate()
		if err != nil {
			return "", apperr.Storage(op, err)
		}
		_, err = r.DB.ExecContext(ctx,
			"INSERT INTO tokens (name, phone, token, created_at, expires_at) VALUES (?,?,?,?,?)",
			name, normalized, tok, created, expires)
		if err == nil {
			return tok, nil
		}
		key, dup := duplicateKey(err)
		if !dup {
			return "", apperr.Storage(op, err)
		}
		if strings.Contains(key, "uq_tokens_token") {
			if attempt < tokenInsertAttempts {
				continue
			}
			return "", apperr.Storage(op, err)
		}
		return "", apperr.E(apperr.KindDuplicatePhone, op, "phone already registered", ErrDuplicatePhone)
	}
}

// FindActiveByPhone returns the token of a grant for phone whose expiry is
// strictly in the future. The boolean is false when no row exists or every
// row for the phone is expired.
func (r *TokenRepo) FindActiveByPhone(ctx context.Context, phone string) (string, bool, error) {
	const op = "tokens.find_active"
	normalized, ok := NormalizePhone(phone)
	if !ok {
		return "", false, apperr.Validation(op, "phone number is not valid")
	}
	if r.DB == nil {
		return "", false, apperr.Storage(op, ErrNoDatabase)
	}
	var tok string
	err := r.DB.QueryRowContext(ctx,
		"SELECT token FROM tokens WHERE phone=? AND expires_at IS NOT NULL AND expires_at > ? ORDER BY id LIMIT 1",
		normalized, r.now()).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Storage(op, err)
	}
	return tok, true, nil
}

// IsValid reports whether token exists with a non-null expiry strictly after
// the current instant. Every protected operation calls this before trusting a
// caller-presented token.
func (r *TokenRepo) IsValid(ctx context.Context, token string) (bool, error) {
	const op = "tokens.is_valid"
	if token == "" {
		return false, nil
	}
	if r.DB == nil {
		return false, apperr.Storage(op, ErrNoDatabase)
	}
	var expiresAt sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		"SELECT expires_at FROM tokens WHERE token=? LIMIT 1", token).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage(op, err)
	}
	if !expiresAt.Valid {
		return false, nil
	}
	return expiresAt.Time.After(r.now()), nil
}

// Renew resets the expiry of token to now+days, ignoring the previous expiry.
// The boolean reports whether a row matched; a missing token is not an error.
func (r *TokenRepo) Renew(ctx context.Context, token string, days int) (bool, error) {
	const op = "tokens.renew"
	if token == "" {
		return false, apperr.Validation(op, "token is required")
	}
	if !validDays(days) {
		return false, apperr.Validation(op, "days to add must be between 1 and 3650")
	}
	if r.DB == nil {
		return false, apperr.Storage(op, ErrNoDatabase)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tokens SET expires_at=? WHERE token=?", r.now().AddDate(0, 0, days), token)
	if err != nil {
		return false, apperr.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage(op, err)
	}
	return n > 0, nil
}

// Revoke deletes the grant for token. Revoking an absent token reports false
// without an error.
func (r *TokenRepo) Revoke(ctx context.Context, token string) (bool, error) {
	const op = "tokens.revoke"
	if token == "" {
		return false, apperr.Validation(op, "token is required")
	}
	if r.DB == nil {
		return false, apperr.Storage(op, ErrNoDatabase)
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tokens WHERE token=?", token)
	if err != nil {
		return false, apperr.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage(op, err)
	}
	return n > 0, nil
}

// List returns every grant, newest first.
func (r *TokenRepo) List(ctx context.Context) ([]model.AccessToken, error) {
	const op = "tokens.list"
	if r.DB == nil {
		return nil, apperr.Storage(op, ErrNoDatabase)
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, name, phone, token, created_at, expires_at FROM tokens ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	out := make([]model.AccessToken, 0)
	for rows.Next() {
		var (
			t   model.AccessToken
			exp sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Phone, &t.Token, &t.CreatedAt, &exp); err != nil {
			return nil, apperr.Storage(op, err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		if exp.Valid {
			e := exp.Time.UTC()
			t.ExpiresAt = &e
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return out, nil
}
