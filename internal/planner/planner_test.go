package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battery-dispatch/internal/model"
	"battery-dispatch/internal/strategy"
)

var planDay = time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)

func planBattery() model.BatteryParams {
	return model.BatteryParams{
		CapacityKWh:         10,
		MaxChargeKW:         3,
		MaxDischargeKW:      3,
		RoundTripEfficiency: 0.92,
		MinSoC:              0.10,
		MaxSoC:              0.95,
	}
}

func planConfig() Config {
	return Config{
		MinMargin:     0.50,
		MidShaveBias:  1.10,
		FloorSoC:      0.25,
		HysteresisSoC: 0.05,
	}
}

func rec(i int, buy, sell float64) model.HourlyPrice {
	start := planDay.Add(time.Duration(i) * time.Hour)
	return model.HourlyPrice{Start: start, End: start.Add(time.Hour), Spot: buy, Buy: buy, Sell: sell}
}

func emptyCls() strategy.Classification {
	return strategy.Classify(nil, strategy.ClassifierConfig{})
}

func noCaps(t *testing.T) *strategy.CapTable {
	t.Helper()
	return strategy.NewCapTable(planBattery())
}

func TestBuild_EmptyHorizon(t *testing.T) {
	p := New(planBattery(), planConfig())
	plan := p.Build(planDay, nil, emptyCls(), noCaps(t), 0.5)
	assert.Empty(t, plan.Entries)
	assert.InDelta(t, 0.5, plan.EndSoC, 1e-9)

	// Out-of-range start SoC is clamped before simulation.
	plan = p.Build(planDay, nil, emptyCls(), noCaps(t), 1.3)
	assert.InDelta(t, 0.95, plan.EndSoC, 1e-9)
}

func TestBuild_CheapHoursChargeToCap(t *testing.T) {
	batt := planBattery()
	p := New(batt, planConfig())

	horizon := []model.HourlyPrice{rec(0, 0.3, 0.3), rec(1, 0.3, 0.3), rec(2, 0.3, 0.3)}
	cls := emptyCls()
	for _, r := range horizon {
		cls.Cheap[r.HourKey()] = true
	}

	plan := p.Build(planDay, horizon, cls, noCaps(t), 0.50)
	require.Len(t, plan.Entries, 3)

	// First hour charges at full power.
	assert.Equal(t, model.ModeCharge, plan.Entries[0].Mode)
	assert.InDelta(t, 3, plan.Entries[0].PowerKW, 1e-9)
	wantSoC := 0.50 + 3*batt.ChargeEfficiency()/batt.CapacityKWh
	assert.InDelta(t, wantSoC, plan.Entries[0].SoC, 1e-9)

	// Second hour tops up exactly to the ceiling, third hour idles.
	assert.Equal(t, model.ModeCharge, plan.Entries[1].Mode)
	assert.InDelta(t, batt.MaxSoC, plan.Entries[1].SoC, 1e-9)
	assert.Equal(t, model.ModeIdle, plan.Entries[2].Mode)
	assert.InDelta(t, batt.MaxSoC, plan.EndSoC, 1e-9)
}

func TestBuild_TopTierSellsWhenMarginOK(t *testing.T) {
	p := New(planBattery(), planConfig())

	// Cheap at 0.50, top sells at 2.00: margin 2.00 - 0.50/0.92 clears 0.50.
	horizon := []model.HourlyPrice{rec(0, 0.50, 0.50), rec(1, 2.00, 2.00)}
	cls := emptyCls()
	cls.Cheap[horizon[0].HourKey()] = true
	cls.Top[horizon[1].HourKey()] = true

	plan := p.Build(planDay, horizon, cls, noCaps(t), 0.50)
	require.Len(t, plan.Entries, 2)

	sell := plan.Entries[1]
	assert.Equal(t, model.ModeDischargeSell, sell.Mode)
	assert.InDelta(t, 3, sell.PowerKW, 1e-9)
}

func TestBuild_TopTierThinMarginShavesOnly(t *testing.T) {
	p := New(planBattery(), planConfig())

	// Margin 1.20 - 1.00/0.92 = 0.11, below the 0.50 minimum.
	horizon := []model.HourlyPrice{rec(0, 1.00, 1.00), rec(1, 1.20, 1.20)}
	cls := emptyCls()
	cls.Cheap[horizon[0].HourKey()] = true
	cls.Top[horizon[1].HourKey()] = true

	plan := p.Build(planDay, horizon, cls, noCaps(t), 0.50)
	assert.Equal(t, model.ModeDischargeShave, plan.Entries[1].Mode)
}

func TestBuild_NextTierStopsAtFloor(t *testing.T) {
	batt := planBattery()
	p := New(batt, planConfig())

	horizon := []model.HourlyPrice{rec(0, 1.00, 1.00)}
	cls := emptyCls()
	cls.Next[horizon[0].HourKey()] = true

	plan := p.Build(planDay, horizon, cls, noCaps(t), 0.30)
	require.Len(t, plan.Entries, 1)
	assert.Equal(t, model.ModeDischargeShave, plan.Entries[0].Mode)
	// Discharge stops at the configured floor, not the hard minimum.
	assert.InDelta(t, 0.25, plan.Entries[0].SoC, 1e-9)
}

func TestBuild_MidHoursShaveAboveBiasedAverage(t *testing.T) {
	p := New(planBattery(), planConfig())

	// Day average 1.25; threshold 1.375. Only the 2.00 hour qualifies.
	horizon := []model.HourlyPrice{rec(0, 1.0, 1.0), rec(1, 1.0, 1.0), rec(2, 1.0, 1.0), rec(3, 2.0, 2.0)}

	plan := p.Build(planDay, horizon, emptyCls(), noCaps(t), 0.50)
	require.Len(t, plan.Entries, 4)
	assert.Equal(t, model.ModeIdle, plan.Entries[0].Mode)
	assert.Equal(t, model.ModeIdle, plan.Entries[1].Mode)
	assert.Equal(t, model.ModeIdle, plan.Entries[2].Mode)
	assert.Equal(t, model.ModeDischargeMid, plan.Entries[3].Mode)
}

func TestBuild_MidHoursHoldNearFloor(t *testing.T) {
	p := New(planBattery(), planConfig())
	horizon := []model.HourlyPrice{rec(0, 1.0, 1.0), rec(1, 2.0, 2.0)}

	// 0.28 is inside the hysteresis band above the 0.25 floor.
	plan := p.Build(planDay, horizon, emptyCls(), noCaps(t), 0.28)
	assert.Equal(t, model.ModeIdle, plan.Entries[1].Mode)
}

func TestBuild_ForcedBleedAboveCap(t *testing.T) {
	batt := planBattery()
	p := New(batt, planConfig())

	horizon := []model.HourlyPrice{rec(10, 1.0, 1.0)}
	caps := noCaps(t)
	caps.Register(horizon[0].HourKey(), 0.60)

	plan := p.Build(planDay, horizon, emptyCls(), caps, 0.80)
	require.Len(t, plan.Entries, 1)

	e := plan.Entries[0]
	assert.Equal(t, model.ModeDischargeShave, e.Mode)
	assert.InDelta(t, 0.60, e.SoC, 1e-9)
}

func TestBuild_ForcedBleedNeverLowersASell(t *testing.T) {
	p := New(planBattery(), planConfig())

	horizon := []model.HourlyPrice{rec(0, 0.50, 0.50), rec(1, 2.00, 2.00)}
	cls := emptyCls()
	cls.Cheap[horizon[0].HourKey()] = true
	cls.Top[horizon[1].HourKey()] = true

	// A 0.40 cap on the sell hour is far below the sell discharge; the sell
	// already exceeds the bleed so it is kept untouched.
	caps := noCaps(t)
	caps.Register(horizon[1].HourKey(), 0.40)

	plan := p.Build(planDay, horizon, cls, caps, 0.50)
	sell := plan.Entries[1]
	assert.Equal(t, model.ModeDischargeSell, sell.Mode)
	assert.InDelta(t, 3, sell.PowerKW, 1e-9)
}

func TestBuild_SoCStaysWithinHardBounds(t *testing.T) {
	batt := planBattery()
	p := New(batt, planConfig())

	horizon := make([]model.HourlyPrice, 24)
	buys := []float64{0.2, 0.1, 0.3, 0.4, 0.9, 1.8, 2.1, 1.5, 0.8, 0.7, 0.6, 0.5,
		0.4, 0.3, 0.9, 1.1, 1.9, 2.4, 2.0, 1.2, 0.9, 0.6, 0.4, 0.2}
	for i, b := range buys {
		horizon[i] = rec(i, b, b)
	}
	cls := strategy.Classify(horizon, strategy.ClassifierConfig{CheapFraction: 0.30, TopFraction: 0.10, NextFraction: 0.30})
	caps := noCaps(t)
	caps.Register(horizon[11].HourKey(), 0.60)
	caps.Register(horizon[12].HourKey(), 0.60)

	for _, start := range []float64{0.10, 0.50, 0.95} {
		plan := p.Build(planDay, horizon, cls, caps, start)
		require.Len(t, plan.Entries, 24)
		prev := start
		for _, e := range plan.Entries {
			assert.GreaterOrEqual(t, e.SoC, batt.MinSoC-1e-9)
			assert.LessOrEqual(t, e.SoC, batt.MaxSoC+1e-9)
			if e.Mode == model.ModeCharge {
				assert.Greater(t, e.SoC, prev-1e-9)
			}
			prev = e.SoC
		}
		assert.InDelta(t, prev, plan.EndSoC, 1e-9)
	}
}
