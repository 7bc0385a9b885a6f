package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one security-relevant change to login protection state. It never
// carries a raw email or full client IP.
type Event struct {
	ID          uuid.UUID  `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Action      string     `json:"action"`
	Scope       string     `json:"scope,omitempty"`
	Subject     string     `json:"subject,omitempty"`   // hashed identifier
	Email       string     `json:"email,omitempty"`     // masked
	IPPrefix    string     `json:"ip_prefix,omitempty"` // client address truncated to /24 or /48
	Device      string     `json:"device,omitempty"`    // "Browser on OS"
	Actor       string     `json:"actor,omitempty"`     // admin actor for issued tokens
	Reason      string     `json:"reason,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	RequestID   string     `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventAccountLocked     AuditEvent = "account_locked"
	EventIPLocked          AuditEvent = "ip_locked"
	EventAccountUnlocked   AuditEvent = "account_unlocked"
	EventUnlockTokenIssued AuditEvent = "unlock_token_issued"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}
