package eligibility

import (
	"errors"
	"sync"
)

// ErrStoreDegraded is reported by the readiness check while the counter store
// is failing and eligibility checks are failing open.
var ErrStoreDegraded = errors.New("login counter store degraded; eligibility checks failing open")

// StoreHealth tracks consecutive counter store errors:
// - After failureThreshold consecutive errors the store is marked degraded.
// - After successThreshold consecutive successes while degraded it recovers.
type StoreHealth struct {
	mu               sync.Mutex
	degraded         bool
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
}

// Transition reports a state change for logging.
type Transition struct {
	Degraded  bool // store just became degraded
	Recovered bool // store just recovered
}

func NewStoreHealth() *StoreHealth {
	return &StoreHealth{
		failureThreshold: 5,
		successThreshold: 3,
	}
}

func (h *StoreHealth) Degraded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.degraded
}

func (h *StoreHealth) RecordFailure() Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failureCount++
	h.successCount = 0
	if h.degraded {
		return Transition{}
	}
	if h.failureCount >= h.failureThreshold {
		h.degraded = true
		return Transition{Degraded: true}
	}
	return Transition{}
}

func (h *StoreHealth) RecordSuccess() Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.degraded {
		h.successCount++
		if h.successCount >= h.successThreshold {
			h.degraded = false
			h.failureCount = 0
			h.successCount = 0
			return Transition{Recovered: true}
		}
		return Transition{}
	}
	h.failureCount = 0
	return Transition{}
}

// Check backs the readiness endpoint: it fails while the store is degraded.
func (h *StoreHealth) Check() error {
	if h.Degraded() {
		return ErrStoreDegraded
	}
	return nil
}
