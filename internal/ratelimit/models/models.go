package models

import (
	"net/netip"
	"strings"
	"time"

	dErrors "afenda/pkg/domain-errors"
)

// Scope is the dimension a login counter is keyed on.
type Scope string

const (
	ScopeEmail Scope = "email"
	ScopeIP    Scope = "ip"
)

// Scopes lists every supported scope in evaluation order.
var Scopes = []Scope{ScopeEmail, ScopeIP}

func (s Scope) IsValid() bool {
	return s == ScopeEmail || s == ScopeIP
}

func (s Scope) String() string {
	return string(s)
}

// maxEmailLength follows the RFC 5321 path limit.
const maxEmailLength = 320

// Identifier is the scope-qualified key a counter is stored under.
// The scope is always the first segment, so values from different scopes
// cannot collide even when the value itself contains ':'.
type Identifier struct {
	scope Scope
	value string
}

// NewEmailIdentifier normalises an email to trimmed lowercase.
func NewEmailIdentifier(email string) (Identifier, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return Identifier{}, dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(normalized) > maxEmailLength {
		return Identifier{}, dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	if !strings.Contains(normalized, "@") || strings.ContainsAny(normalized, " \t\r\n") {
		return Identifier{}, dErrors.New(dErrors.CodeValidation, "email is malformed")
	}
	return Identifier{scope: ScopeEmail, value: normalized}, nil
}

// NewIPIdentifier parses an address into its canonical text form.
// IPv4-mapped IPv6 addresses are unmapped and zones are dropped so that every
// spelling of one host shares a counter.
func NewIPIdentifier(ip string) (Identifier, error) {
	raw := strings.TrimSpace(ip)
	if raw == "" {
		return Identifier{}, dErrors.New(dErrors.CodeValidation, "ip address is required")
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return Identifier{}, dErrors.Wrap(err, dErrors.CodeValidation, "ip address is malformed")
	}
	return Identifier{scope: ScopeIP, value: addr.Unmap().WithZone("").String()}, nil
}

// unknownIPValue keys the shared bucket for requests with no usable client
// address. It cannot collide with a parsed address.
const unknownIPValue = "unknown"

// UnknownIPIdentifier is the ip-scope identifier used when neither an email
// nor a client address can be extracted. All such requests share one counter.
func UnknownIPIdentifier() Identifier {
	return Identifier{scope: ScopeIP, value: unknownIPValue}
}

func (i Identifier) Scope() Scope  { return i.scope }
func (i Identifier) Value() string { return i.value }

// IsZero reports whether the identifier was never constructed.
func (i Identifier) IsZero() bool { return i.scope == "" }

// String returns the storage key, e.g. "email:alice@example.com".
func (i Identifier) String() string {
	return string(i.scope) + ":" + i.value
}

// WindowPolicy is what the counter store needs to evaluate one failure.
type WindowPolicy struct {
	Window      time.Duration
	MaxAttempts int
	Lockout     time.Duration
}

// LoginAttemptCounter is the stored state for one identifier.
type LoginAttemptCounter struct {
	Identifier  string
	Attempts    int
	WindowStart time.Time
	LockedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WindowExpired reports whether the counter's window has lapsed at now.
// A lapsed window is treated as absent; the next write starts a new one.
func (c *LoginAttemptCounter) WindowExpired(window time.Duration, now time.Time) bool {
	return !c.WindowStart.After(now.Add(-window))
}

// LockedAt reports whether a lock is in force at now.
func (c *LoginAttemptCounter) LockedAt(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

// FailureResult is the row state returned by the atomic upsert.
type FailureResult struct {
	Attempts    int
	LockedUntil *time.Time
}

// RateLimitStatus is the per-scope view returned by the limiter.
type RateLimitStatus struct {
	Scope             Scope      `json:"scope"`
	Allowed           bool       `json:"allowed"`
	RemainingAttempts int        `json:"remainingAttempts"`
	RequiresCaptcha   bool       `json:"requiresCaptcha"`
	LockedUntil       *time.Time `json:"lockedUntil,omitempty"`
	RetryAfterSeconds *int       `json:"retryAfterSeconds,omitempty"`
}

// Eligibility is the combined decision across all present scopes.
type Eligibility struct {
	Allowed           bool `json:"allowed"`
	RequiresCaptcha   bool `json:"requiresCaptcha"`
	RetryAfterSeconds *int `json:"retryAfterSeconds,omitempty"`
	// Degraded is set when the store could not be consulted and the check
	// failed open.
	Degraded bool `json:"-"`
}

// OutcomeResult holds the per-scope statuses after recording an outcome.
// A nil field means the scope was absent or its write failed.
type OutcomeResult struct {
	Email *RateLimitStatus
	IP    *RateLimitStatus
}

// LockoutTriggered lists the scopes that are locked after this outcome.
func (o *OutcomeResult) LockoutTriggered() []Scope {
	if o == nil {
		return nil
	}
	var locked []Scope
	if o.Email != nil && o.Email.LockedUntil != nil && !o.Email.Allowed {
		locked = append(locked, ScopeEmail)
	}
	if o.IP != nil && o.IP.LockedUntil != nil && !o.IP.Allowed {
		locked = append(locked, ScopeIP)
	}
	return locked
}

// UnlockToken is a single-use credential that clears an email lockout.
// Stores only ever see TokenHash; Token is the plaintext handed to the
// operator once at issuance.
type UnlockToken struct {
	IdentifierHash string
	TokenHash      string
	Token          string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// RetryAfterSeconds rounds the remaining lock time up to whole seconds.
// Returns nil when there is no lock in force.
func RetryAfterSeconds(lockedUntil *time.Time, now time.Time) *int {
	if lockedUntil == nil {
		return nil
	}
	remaining := lockedUntil.Sub(now)
	if remaining <= 0 {
		return nil
	}
	secs := int((remaining + time.Second - 1) / time.Second)
	return &secs
}
