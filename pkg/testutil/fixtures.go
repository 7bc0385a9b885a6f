package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FixedNow is the reference instant used by deterministic tests.
var FixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// UniqueEmail returns an address no other test will use, so suites sharing a
// container never see each other's counters.
func UniqueEmail() string {
	return fmt.Sprintf("user-%s@example.com", uuid.NewString()[:8])
}

// TestIPs are documentation-range addresses (RFC 5737).
var TestIPs = struct {
	Client   string
	Attacker string
	Proxy    string
}{
	Client:   "203.0.113.10",
	Attacker: "198.51.100.66",
	Proxy:    "192.0.2.1",
}
