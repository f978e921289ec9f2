package model

import "time"

// AccessToken represents a row of the `tokens` table: one access grant per
// normalized phone number.  Timestamps are stored and compared in UTC.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the grant owner.
//  Phone     – digits-only phone number, unique across rows.
//  Token     – opaque random access token, unique across rows.
//  CreatedAt – issuance instant.
//  ExpiresAt – expiry instant; nil means the grant is never valid.
type AccessToken struct {
    ID        uint64     // tokens.id
    Name      string     // tokens.name
    Phone     string     // tokens.phone
    Token     string     // tokens.token
    CreatedAt time.Time  // tokens.created_at
    ExpiresAt *time.Time // tokens.expires_at (nullable)
}

// ActiveAt reports whether the grant is valid at now.  A missing expiry fails
// closed, and an expiry equal to now is already expired.
func (t AccessToken) ActiveAt(now time.Time) bool {
    return t.ExpiresAt != nil && t.ExpiresAt.After(now)
}
