package session

import (
	"net/http"
	"time"
)

// Store persists an Access between requests.
type Store interface {
	Load(r *http.Request) (Access, error)
	// Save persists a. Saving an unbound Access clears the session.
	Save(w http.ResponseWriter, r *http.Request, a Access) error
	Clear(w http.ResponseWriter, r *http.Request) error
}

// Options are shared by every Store implementation.
type Options struct {
	CookieName string
	// TTL is the session lifetime. Zero keeps a browser-session cookie.
	TTL    time.Duration
	Secure bool
}

func (o Options) cookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     o.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if o.TTL > 0 {
		c.MaxAge = int(o.TTL / time.Second)
		c.Expires = time.Now().Add(o.TTL)
	}
	return c
}

func (o Options) expired() *http.Cookie {
	return &http.Cookie{
		Name:     o.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
}
