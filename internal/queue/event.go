// Package queue carries token lifecycle events over RabbitMQ: a publisher
// used by the access service and a consumer that keeps an audit log.
package queue

import "time"

// TokenQueueName is the durable queue every lifecycle event goes to.
const TokenQueueName = "token.lifecycle"

type EventType string

const (
	EventIssued  EventType = "issued"
	EventReused  EventType = "reused"
	EventRenewed EventType = "renewed"
	EventRevoked EventType = "revoked"
)

// TokenEvent describes one change to a grant. Only a token prefix travels on
// the wire; the full token never leaves the database.
type TokenEvent struct {
	Type        EventType  `json:"type"`
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Days        int        `json:"days,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Actor       string     `json:"actor"` // "self" or "admin"
	At          time.Time  `json:"at"`
}
