package risk

import (
	"context"
	"sync"
	"time"

	"polyTradeBot/internal/domain"
	"polyTradeBot/internal/metrics"
	"polyTradeBot/internal/ports"
)

// BreakerStatus is the externally visible breaker state.
type BreakerStatus struct {
	State             domain.BreakerState `json:"state"`
	Reason            string              `json:"reason,omitempty"`
	TrippedAt         time.Time           `json:"tripped_at,omitempty"`
	CooldownRemaining time.Duration       `json:"cooldown_remaining"`
}

// CircuitBreaker is the global kill-switch for new trade entries.
// half_open exists in the state set for a future manual testing flow and
// is never entered automatically.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     domain.BreakerState
	reason    string
	trippedAt time.Time

	cooldown time.Duration
	logger   ports.Logger
	now      func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cooldown time.Duration, logger ports.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		state:    domain.BreakerClosed,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Trip opens the breaker. Idempotent: a second trip neither re-logs nor
// moves the trip timestamp.
func (b *CircuitBreaker) Trip(ctx context.Context, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == domain.BreakerOpen {
		return
	}

	b.state = domain.BreakerOpen
	b.reason = reason
	b.trippedAt = b.now()
	metrics.BreakerTrips.Inc()
	b.logger.Warn(ctx, "CIRCUIT BREAKER TRIPPED", map[string]interface{}{
		"reason":     reason,
		"cooldown_s": b.cooldown.Seconds(),
	})
}

// Reset closes the breaker and clears the trip record.
func (b *CircuitBreaker) Reset(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == domain.BreakerClosed {
		return
	}

	b.state = domain.BreakerClosed
	b.reason = ""
	b.trippedAt = time.Time{}
	b.logger.Info(ctx, "Circuit breaker reset")
}

// AutoResetCheck self-resets the breaker once the cooldown has fully
// elapsed since the trip. Returns true if a reset happened.
func (b *CircuitBreaker) AutoResetCheck(ctx context.Context) bool {
	b.mu.Lock()

	if b.state != domain.BreakerOpen || b.trippedAt.IsZero() {
		b.mu.Unlock()
		return false
	}
	if b.now().Sub(b.trippedAt) < b.cooldown {
		b.mu.Unlock()
		return false
	}

	b.state = domain.BreakerClosed
	b.reason = ""
	b.trippedAt = time.Time{}
	b.mu.Unlock()

	b.logger.Info(ctx, "Circuit breaker auto-reset after cooldown")
	return true
}

// IsOpen reports whether new entries are blocked.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == domain.BreakerOpen
}

// Status returns the current breaker state with remaining cooldown.
func (b *CircuitBreaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := BreakerStatus{
		State:     b.state,
		Reason:    b.reason,
		TrippedAt: b.trippedAt,
	}
	if b.state == domain.BreakerOpen {
		remaining := b.cooldown - b.now().Sub(b.trippedAt)
		if remaining > 0 {
			st.CooldownRemaining = remaining
		}
	}
	return st
}

// restore loads persisted breaker state. Used at startup only.
func (b *CircuitBreaker) restore(state domain.BreakerState, reason string, trippedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state == "" {
		return
	}
	b.state = state
	b.reason = reason
	b.trippedAt = trippedAt
}
