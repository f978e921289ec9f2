package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/metrics"
	"github.com/iliyamo/chat-gateway/internal/model"
	"github.com/iliyamo/chat-gateway/internal/queue"
	"github.com/iliyamo/chat-gateway/internal/repository"
	"github.com/iliyamo/chat-gateway/internal/utils"
)

// TokenStore is the grant authority used by AccessService.
type TokenStore interface {
	Issue(ctx context.Context, name, phone string, days int) (string, error)
	FindActiveByPhone(ctx context.Context, phone string) (string, bool, error)
	IsValid(ctx context.Context, token string) (bool, error)
	Renew(ctx context.Context, token string, days int) (bool, error)
	Revoke(ctx context.Context, token string) (bool, error)
	List(ctx context.Context) ([]model.AccessToken, error)
}

// EventPublisher receives token lifecycle events. Failures never fail the
// operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.TokenEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.TokenEvent) error { return nil }

const (
	actorSelf  = "self"
	actorAdmin = "admin"
)

// AccessService covers self-registration and the admin token operations.
type AccessService struct {
	Tokens      TokenStore
	Events      EventPublisher
	DefaultDays int
	Location    *time.Location
	Now         func() time.Time
	Log         *slog.Logger
}

func NewAccessService(tokens TokenStore, events EventPublisher, defaultDays int, loc *time.Location, log *slog.Logger) *AccessService {
	if events == nil {
		events = nopPublisher{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AccessService{Tokens: tokens, Events: events, DefaultDays: defaultDays, Location: loc, Now: time.Now, Log: log}
}

func (s *AccessService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *AccessService) publish(ctx context.Context, ev queue.TokenEvent) {
	ev.At = s.now()
	_ = s.Events.Publish(ctx, ev)
}

// Registration is the outcome of Register.
type Registration struct {
	Token  string
	Reused bool
}

// Register issues a grant for (name, phone) with the default validity. A
// phone that already holds an active grant gets that grant back; a phone
// whose grants are all expired stays a DuplicatePhone error until an admin
// renews or revokes it.
func (s *AccessService) Register(ctx context.Context, name, phone string) (Registration, error) {
	tok, err := s.Tokens.Issue(ctx, name, phone, s.DefaultDays)
	if err == nil {
		metrics.TokenOpsTotal.WithLabelValues("register", "issued").Inc()
		exp := s.now().AddDate(0, 0, s.DefaultDays)
		s.publish(ctx, queue.TokenEvent{
			Type: queue.EventIssued, TokenPrefix: utils.TokenPrefix(tok), Name: name,
			Phone: maskPhone(phone), Days: s.DefaultDays, ExpiresAt: &exp, Actor: actorSelf,
		})
		s.Log.Info("token issued", "token", utils.TokenPrefix(tok), "actor", actorSelf)
		return Registration{Token: tok}, nil
	}
	if !apperr.Is(err, apperr.KindDuplicatePhone) {
		metrics.TokenOpsTotal.WithLabelValues("register", "error").Inc()
		return Registration{}, err
	}

	existing, ok, ferr := s.Tokens.FindActiveByPhone(ctx, phone)
	if ferr != nil {
		metrics.TokenOpsTotal.WithLabelValues("register", "error").Inc()
		return Registration{}, ferr
	}
	if !ok {
		metrics.TokenOpsTotal.WithLabelValues("register", "duplicate").Inc()
		return Registration{}, err
	}
	metrics.TokenOpsTotal.WithLabelValues("register", "reused").Inc()
	s.publish(ctx, queue.TokenEvent{
		Type: queue.EventReused, TokenPrefix: utils.TokenPrefix(existing), Name: name,
		Phone: maskPhone(phone), Actor: actorSelf,
	})
	s.Log.Info("token reused", "token", utils.TokenPrefix(existing))
	return Registration{Token: existing, Reused: true}, nil
}

// Issue creates a grant on behalf of an admin. Duplicates fail closed.
func (s *AccessService) Issue(ctx context.Context, name, phone string, days int) (string, error) {
	if days == 0 {
		days = s.DefaultDays
	}
	tok, err := s.Tokens.Issue(ctx, name, phone, days)
	metrics.TokenOpsTotal.WithLabelValues("issue", metrics.Result(err)).Inc()
	if err != nil {
		return "", err
	}
	exp := s.now().AddDate(0, 0, days)
	s.publish(ctx, queue.TokenEvent{
		Type: queue.EventIssued, TokenPrefix: utils.TokenPrefix(tok), Name: name,
		Phone: maskPhone(phone), Days: days, ExpiresAt: &exp, Actor: actorAdmin,
	})
	s.Log.Info("token issued", "token", utils.TokenPrefix(tok), "actor", actorAdmin, "days", days)
	return tok, nil
}

// Renew resets the expiry of token to now+days. A missing token is
// KindNotFound.
func (s *AccessService) Renew(ctx context.Context, token string, days int) (time.Time, error) {
	const op = "access.renew"
	ok, err := s.Tokens.Renew(ctx, token, days)
	if err == nil && !ok {
		err = apperr.E(apperr.KindNotFound, op, "token not found", nil)
	}
	metrics.TokenOpsTotal.WithLabelValues("renew", metrics.Result(err)).Inc()
	if err != nil {
		return time.Time{}, err
	}
	exp := s.now().AddDate(0, 0, days)
	s.publish(ctx, queue.TokenEvent{
		Type: queue.EventRenewed, TokenPrefix: utils.TokenPrefix(token), Days: days, ExpiresAt: &exp, Actor: actorAdmin,
	})
	s.Log.Info("token renewed", "token", utils.TokenPrefix(token), "days", days)
	return exp.In(s.Location), nil
}

// Revoke deletes token. It reports whether a row was removed; revoking an
// absent token is not an error.
func (s *AccessService) Revoke(ctx context.Context, token string) (bool, error) {
	removed, err := s.Tokens.Revoke(ctx, token)
	metrics.TokenOpsTotal.WithLabelValues("revoke", metrics.Result(err)).Inc()
	if err != nil {
		return false, err
	}
	if removed {
		s.publish(ctx, queue.TokenEvent{Type: queue.EventRevoked, TokenPrefix: utils.TokenPrefix(token), Actor: actorAdmin})
		s.Log.Info("token revoked", "token", utils.TokenPrefix(token))
	}
	return removed, nil
}

// TokenView is a grant as the admin list shows it: times in the display
// location and an active flag computed against now.
type TokenView struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	Active    bool       `json:"active"`
}

// List returns every grant newest first.
func (s *AccessService) List(ctx context.Context) ([]TokenView, error) {
	rows, err := s.Tokens.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]TokenView, 0, len(rows))
	for _, t := range rows {
		v := TokenView{
			ID:        t.ID,
			Name:      t.Name,
			Phone:     t.Phone,
			Token:     t.Token,
			CreatedAt: t.CreatedAt.In(s.Location),
			Active:    t.ActiveAt(now),
		}
		if t.ExpiresAt != nil {
			e := t.ExpiresAt.In(s.Location)
			v.ExpiresAt = &e
		}
		out = append(out, v)
	}
	return out, nil
}

// maskPhone keeps the last four digits for audit lines.
func maskPhone(raw string) string {
	p, ok := repository.NormalizePhone(raw)
	if !ok || len(p) <= 4 {
		return ""
	}
	return "***" + p[len(p)-4:]
}
