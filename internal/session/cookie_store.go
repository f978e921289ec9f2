package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultCookieName = "chat_session"

type accessClaims struct {
	Completed bool   `json:"cmp"`
	Token     string `json:"tok"`
	jwt.RegisteredClaims
}

// CookieStore keeps the binding client-side in an HS256-signed cookie. A
// cookie that fails verification loads as Anonymous.
type CookieStore struct {
	secret []byte
	opts   Options
}

func NewCookieStore(secret string, opts Options) *CookieStore {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &CookieStore{secret: []byte(secret), opts: opts}
}

func (s *CookieStore) Load(r *http.Request) (Access, error) {
	ck, err := r.Cookie(s.opts.CookieName)
	if err != nil || ck.Value == "" {
		return Access{}, nil
	}
	var claims accessClaims
	_, err = jwt.ParseWithClaims(ck.Value, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Access{}, nil
	}
	return Access{Completed: claims.Completed, Token: claims.Token}, nil
}

func (s *CookieStore) Save(w http.ResponseWriter, r *http.Request, a Access) error {
	if !a.Bound() {
		return s.Clear(w, r)
	}
	now := time.Now()
	claims := accessClaims{
		Completed: true,
		Token:     a.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.opts.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.opts.TTL))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.opts.cookie(signed))
	return nil
}

func (s *CookieStore) Clear(w http.ResponseWriter, _ *http.Request) error {
	http.SetCookie(w, s.opts.expired())
	return nil
}
