package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"     // secure random number generation
    "encoding/base64" // URL-safe encoding of random bytes
    "time"            // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// GrantTokenBytes is the amount of random data behind every access token.
const GrantTokenBytes = 24

// SessionToken represents a signed JWT along with its expiry.  It is used for
// the admin session cookie.
type SessionToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewAdminToken builds and signs an HS256 JWT for the admin surface.  The
// token carries the ADMIN role and expires after ttlMin minutes.
func NewAdminToken(secret string, ttlMin int) (SessionToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  "admin",
        "role": "ADMIN",
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return SessionToken{}, err
    }
    return SessionToken{Token: signed, Exp: exp}, nil
}

// NewGrantToken returns an unguessable access token: GrantTokenBytes of
// crypto/rand output encoded as unpadded base64url (32 characters).
func NewGrantToken() (string, error) {
    buf := make([]byte, GrantTokenBytes)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenPrefix shortens a token for logs and audit events.
func TokenPrefix(tok string) string {
    if len(tok) <= 8 {
        return tok
    }
    return tok[:8]
}
