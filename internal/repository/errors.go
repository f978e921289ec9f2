// Package repository defines the MySQL-backed stores of the gateway and the
// sentinel errors they wrap. Every store converts driver errors into an
// *apperr.Error before returning, so handlers can distinguish a duplicate
// registration from a backend outage without inspecting driver types.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicatePhone is wrapped when a phone number already has a row.
// Handlers should translate this into an HTTP 409 response.
var ErrDuplicatePhone = errors.New("phone already registered")

// ErrInvalidMessage is wrapped when a chat message has an unknown role or
// empty content. Handlers should translate this into an HTTP 400 response.
var ErrInvalidMessage = errors.New("invalid message")

// ErrNoDatabase is wrapped when a store was built without a connection.
var ErrNoDatabase = errors.New("database not configured")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a unique-key violation and, if so, the
// server message naming the violated key.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return me.Message, true
	}
	return "", false
}
