package middleware

// identity.go holds the context keys middleware sets for handlers and the
// accessors that read them back.

import "github.com/labstack/echo/v4"

const (
	ctxAccessToken = "access_token"
	ctxRequestID   = "request_id"
	ctxRole        = "role"
	ctxSubject     = "user_id"
)

// AccessToken returns the grant validated by RequireAccess, or "".
func AccessToken(c echo.Context) string {
	s, _ := c.Get(ctxAccessToken).(string)
	return s
}

// RequestID returns the id assigned by RequestLogger, or "".
func RequestID(c echo.Context) string {
	s, _ := c.Get(ctxRequestID).(string)
	return s
}

// rateSubject is the identity a rate-limit bucket is keyed on: a short
// token prefix when a grant is bound, otherwise "anon".
func rateSubject(c echo.Context) string {
	if tok := AccessToken(c); tok != "" {
		if len(tok) > 8 {
			return tok[:8]
		}
		return tok
	}
	return "anon"
}
