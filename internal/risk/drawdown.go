package risk

import (
	"sync"
	"time"
)

// equityHistoryWindow bounds the retained equity history.
const equityHistoryWindow = 30 * 24 * time.Hour

type equityPoint struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// DrawdownStatus is the externally visible drawdown picture.
type DrawdownStatus struct {
	PeakEquity    float64   `json:"peak_equity"`
	CurrentUSD    float64   `json:"current_drawdown_usd"`
	CurrentPct    float64   `json:"current_drawdown_pct"`
	MaxUSD        float64   `json:"max_drawdown_usd"`
	MaxPct        float64   `json:"max_drawdown_pct"`
	MaxAt         time.Time `json:"max_drawdown_at,omitempty"`
	LimitPct      float64   `json:"limit_pct"`
	IsWithinLimit bool      `json:"is_within_limit"`
}

// DrawdownMonitor tracks the peak portfolio value ever observed and the
// decline from it.
type DrawdownMonitor struct {
	mu       sync.Mutex
	peak     float64
	current  float64
	max      float64
	maxAt    time.Time
	history  []equityPoint
	limitPct float64
	now      func() time.Time
}

// NewDrawdownMonitor creates a monitor with the configured limit.
func NewDrawdownMonitor(limitPct float64) *DrawdownMonitor {
	return &DrawdownMonitor{
		limitPct: limitPct,
		now:      time.Now,
	}
}

// UpdateEquity records a new portfolio value, advancing the peak and the
// running maximum drawdown as needed.
func (d *DrawdownMonitor) UpdateEquity(value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.history = append(d.history, equityPoint{At: now, Value: value})
	d.trimHistoryLocked(now)

	if value > d.peak {
		d.peak = value
	}

	d.current = d.peak - value
	if d.current < 0 {
		d.current = 0
	}
	if d.current > d.max {
		d.max = d.current
		d.maxAt = now
	}
}

// CurrentPct returns the current drawdown as a fraction of peak equity,
// 0 when no peak has been observed.
func (d *DrawdownMonitor) CurrentPct() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return pct(d.current, d.peak)
}

// Status returns the full drawdown picture.
func (d *DrawdownMonitor) Status() DrawdownStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	currentPct := pct(d.current, d.peak)
	return DrawdownStatus{
		PeakEquity:    d.peak,
		CurrentUSD:    d.current,
		CurrentPct:    currentPct,
		MaxUSD:        d.max,
		MaxPct:        pct(d.max, d.peak),
		MaxAt:         d.maxAt,
		LimitPct:      d.limitPct,
		IsWithinLimit: currentPct < d.limitPct,
	}
}

// restore loads persisted peak and max values. Used at startup only.
func (d *DrawdownMonitor) restore(peak, max float64, maxAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peak = peak
	d.max = max
	d.maxAt = maxAt
}

func (d *DrawdownMonitor) trimHistoryLocked(now time.Time) {
	cutoff := now.Add(-equityHistoryWindow)
	i := 0
	for i < len(d.history) && d.history[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		d.history = d.history[i:]
	}
}

func pct(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole
}
