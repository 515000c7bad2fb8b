package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"battery-dispatch/internal/model"
)

func capBattery() model.BatteryParams {
	return model.BatteryParams{
		CapacityKWh:         10,
		MaxChargeKW:         3,
		MaxDischargeKW:      3,
		RoundTripEfficiency: 0.92,
		MinSoC:              0.10,
		MaxSoC:              0.95,
	}
}

func solarPolicy() ReservationPolicy {
	return ReservationPolicy{
		Enabled:            true,
		ReserveCapFraction: 0.60,
		WindowStartHour:    9,
		WindowEndHour:      16,
		SkipExpensiveHours: true,
	}
}

func TestInWindow(t *testing.T) {
	assert.True(t, inWindow(9, 9, 16))
	assert.True(t, inWindow(15, 9, 16))
	assert.False(t, inWindow(16, 9, 16), "window end is exclusive")
	assert.False(t, inWindow(8, 9, 16))

	// Wrapping window 22..06.
	assert.True(t, inWindow(23, 22, 6))
	assert.True(t, inWindow(2, 22, 6))
	assert.False(t, inWindow(12, 22, 6))

	// start == end is empty, not full-day.
	assert.False(t, inWindow(10, 10, 10))
}

func TestCapTable_ApplyWindowAndTiers(t *testing.T) {
	horizon := hours(make([]float64, 24)...)
	cls := emptyClassification()
	cls.Top[day.Add(12*time.Hour)] = true
	cls.Next[day.Add(13*time.Hour)] = true

	table := NewCapTable(capBattery())
	table.Apply(horizon, solarPolicy(), cls)

	// 9..15 inclusive minus the two expensive hours.
	assert.Equal(t, 5, table.Len())
	assert.InDelta(t, 0.60, table.CapForHour(day.Add(9*time.Hour)), 1e-9)
	assert.InDelta(t, 0.60, table.CapForHour(day.Add(15*time.Hour)), 1e-9)

	// Expensive hours and hours outside the window fall back to the ceiling.
	assert.InDelta(t, 0.95, table.CapForHour(day.Add(12*time.Hour)), 1e-9)
	assert.InDelta(t, 0.95, table.CapForHour(day.Add(13*time.Hour)), 1e-9)
	assert.InDelta(t, 0.95, table.CapForHour(day.Add(16*time.Hour)), 1e-9)

	_, active := table.Override(day.Add(10 * time.Hour))
	assert.True(t, active)
	_, active = table.Override(day.Add(16 * time.Hour))
	assert.False(t, active)
}

func TestCapTable_ExpensiveHoursCappedWhenNotSkipped(t *testing.T) {
	horizon := hours(make([]float64, 24)...)
	cls := emptyClassification()
	cls.Top[day.Add(12*time.Hour)] = true

	pol := solarPolicy()
	pol.SkipExpensiveHours = false
	table := BuildCapTable(horizon, pol, cls, capBattery())

	assert.Equal(t, 7, table.Len())
	assert.InDelta(t, 0.60, table.CapForHour(day.Add(12*time.Hour)), 1e-9)
}

func TestCapTable_ActiveMonths(t *testing.T) {
	horizon := hours(make([]float64, 24)...) // March hours

	pol := solarPolicy()
	pol.ActiveMonths = []time.Month{time.June, time.July}
	table := BuildCapTable(horizon, pol, emptyClassification(), capBattery())
	assert.Zero(t, table.Len())

	pol.ActiveMonths = []time.Month{time.March}
	table = BuildCapTable(horizon, pol, emptyClassification(), capBattery())
	assert.Equal(t, 7, table.Len())
}

func TestCapTable_Disabled(t *testing.T) {
	pol := solarPolicy()
	pol.Enabled = false
	table := BuildCapTable(hours(make([]float64, 24)...), pol, emptyClassification(), capBattery())
	assert.Zero(t, table.Len())
	assert.InDelta(t, 0.95, table.CapForHour(day.Add(10*time.Hour)), 1e-9)
}

func TestCapTable_MostRestrictiveWins(t *testing.T) {
	table := NewCapTable(capBattery())
	hour := day.Add(10 * time.Hour)

	table.Register(hour, 0.70)
	table.Register(hour, 0.85) // looser, ignored
	assert.InDelta(t, 0.70, table.CapForHour(hour), 1e-9)

	table.Register(hour, 0.40)
	assert.InDelta(t, 0.40, table.CapForHour(hour), 1e-9)
}

func TestCapTable_RegisterClampsToHardBounds(t *testing.T) {
	table := NewCapTable(capBattery())
	table.Register(day, 0.02)
	assert.InDelta(t, 0.10, table.CapForHour(day), 1e-9)

	table.Register(day.Add(time.Hour), 1.3)
	assert.InDelta(t, 0.95, table.CapForHour(day.Add(time.Hour)), 1e-9)
}

func TestCapTable_TwoDayHorizons(t *testing.T) {
	today := hours(make([]float64, 24)...)
	tomorrow := make([]model.HourlyPrice, len(today))
	for i, r := range today {
		r.Start = r.Start.Add(24 * time.Hour)
		r.End = r.End.Add(24 * time.Hour)
		tomorrow[i] = r
	}

	table := NewCapTable(capBattery())
	pol := solarPolicy()
	pol.SkipExpensiveHours = false
	table.Apply(today, pol, emptyClassification())
	table.Apply(tomorrow, pol, emptyClassification())

	assert.Equal(t, 14, table.Len())
	assert.InDelta(t, 0.60, table.CapForHour(day.Add(10*time.Hour)), 1e-9)
	assert.InDelta(t, 0.60, table.CapForHour(day.Add(34*time.Hour)), 1e-9)
}
