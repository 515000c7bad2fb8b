package strategy

import (
	"time"

	"battery-dispatch/internal/model"
)

// ReservationPolicy reserves battery headroom for anticipated solar
// production by capping SoC during a daily window.
type ReservationPolicy struct {
	Enabled            bool
	ReserveCapFraction float64
	// ActiveMonths restricts the policy to specific months; empty = all.
	ActiveMonths []time.Month
	// Window of hours-of-day, end-exclusive. Wraps past midnight when
	// WindowStartHour > WindowEndHour.
	WindowStartHour    int
	WindowEndHour      int
	SkipExpensiveHours bool
}

func (p ReservationPolicy) monthActive(m time.Month) bool {
	if len(p.ActiveMonths) == 0 {
		return true
	}
	for _, am := range p.ActiveMonths {
		if am == m {
			return true
		}
	}
	return false
}

// inWindow checks whether the hour-of-day is in [start, end) on a 24h
// clock. start == end means an empty window; start > end wraps midnight.
func inWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// CapTable is the sparse per-hour SoC ceiling. It is rebuilt from empty
// every cycle and never shared across cycles.
type CapTable struct {
	caps    map[time.Time]float64
	hardMin float64
	hardMax float64
}

// NewCapTable returns an empty table; hours without an override resolve to
// the hard maximum.
func NewCapTable(batt model.BatteryParams) *CapTable {
	return &CapTable{
		caps:    map[time.Time]float64{},
		hardMin: batt.MinSoC,
		hardMax: batt.MaxSoC,
	}
}

// Register records a cap for an hour. When multiple rules apply to the same
// hour the most restrictive value wins. Values are clamped to the hard
// bounds.
func (t *CapTable) Register(hour time.Time, cap float64) {
	key := hour.Truncate(time.Hour)
	if cap < t.hardMin {
		cap = t.hardMin
	}
	if cap > t.hardMax {
		cap = t.hardMax
	}
	if prev, ok := t.caps[key]; !ok || cap < prev {
		t.caps[key] = cap
	}
}

// CapForHour returns the ceiling for the hour containing at, or the hard
// maximum when no override is registered.
func (t *CapTable) CapForHour(at time.Time) float64 {
	if cap, ok := t.caps[at.Truncate(time.Hour)]; ok {
		return cap
	}
	return t.hardMax
}

// Override returns the registered cap and whether a reservation is active
// for the hour containing at.
func (t *CapTable) Override(at time.Time) (float64, bool) {
	cap, ok := t.caps[at.Truncate(time.Hour)]
	if !ok {
		return t.hardMax, false
	}
	return cap, true
}

// Len is the number of hours carrying an override.
func (t *CapTable) Len() int { return len(t.caps) }

// Apply registers the reservation policy for every hour of the horizon. An
// hour is capped when the policy is enabled, its month matches, its
// hour-of-day falls in the window, and, with SkipExpensiveHours, it is not
// a top or next tier hour. May be called once per day horizon, each with
// its own classification.
func (t *CapTable) Apply(horizon []model.HourlyPrice, pol ReservationPolicy, cls Classification) {
	if !pol.Enabled {
		return
	}
	for _, r := range horizon {
		hour := r.HourKey()
		if !pol.monthActive(hour.Month()) {
			continue
		}
		if !inWindow(hour.Hour(), pol.WindowStartHour, pol.WindowEndHour) {
			continue
		}
		if pol.SkipExpensiveHours && cls.IsExpensive(hour) {
			continue
		}
		t.Register(hour, pol.ReserveCapFraction)
	}
}

// BuildCapTable builds a fresh table for a single horizon.
func BuildCapTable(horizon []model.HourlyPrice, pol ReservationPolicy, cls Classification, batt model.BatteryParams) *CapTable {
	t := NewCapTable(batt)
	t.Apply(horizon, pol, cls)
	return t
}
