package planner

import (
	"fmt"
	"math"
	"time"

	"battery-dispatch/internal/model"
	"battery-dispatch/internal/strategy"
)

// Config holds the dispatch policy knobs shared with the realtime engine.
type Config struct {
	// MinMargin is the minimum spread (per kWh) between achievable sell
	// price and efficiency-adjusted buy cost before selling is allowed.
	MinMargin float64
	// MidShaveBias scales the daily average buy price; mid hours at or
	// above the scaled price are shave candidates.
	MidShaveBias float64
	// FloorSoC is the configured discharge floor for load shaving. Never
	// below the hard minimum.
	FloorSoC float64
	// HysteresisSoC is the SoC band above FloorSoC required before mid-hour
	// shaving starts.
	HysteresisSoC float64
}

// Planner forward-simulates an hour horizon into a visible dispatch plan.
// It is a strict sequential fold: each hour starts from the previous hour's
// ending SoC.
type Planner struct {
	Batt model.BatteryParams
	Cfg  Config
}

func New(batt model.BatteryParams, cfg Config) *Planner {
	return &Planner{Batt: batt, Cfg: cfg}
}

// dayStats caches per-day price baselines for the horizon.
type dayStats struct {
	avgBuy      float64
	cheapAvgBuy float64 // NaN when the day has no cheap hours
}

func buildDayStats(horizon []model.HourlyPrice, cls strategy.Classification) map[string]dayStats {
	byDay := map[string][]model.HourlyPrice{}
	cheapByDay := map[string][]model.HourlyPrice{}
	for _, r := range horizon {
		day := r.HourKey().Format("2006-01-02")
		byDay[day] = append(byDay[day], r)
		if cls.TierOf(r.HourKey()) == strategy.TierCheap {
			cheapByDay[day] = append(cheapByDay[day], r)
		}
	}
	stats := make(map[string]dayStats, len(byDay))
	for day, records := range byDay {
		stats[day] = dayStats{
			avgBuy:      model.AverageBuy(records),
			cheapAvgBuy: model.AverageBuy(cheapByDay[day]),
		}
	}
	return stats
}

// marginBaseline is the buy price a top-tier sale competes against: the
// day's cheap average, falling back to the day's overall average, then to
// the horizon average.
func marginBaseline(s dayStats, overallAvg float64) float64 {
	if !math.IsNaN(s.cheapAvgBuy) {
		return s.cheapAvgBuy
	}
	if !math.IsNaN(s.avgBuy) {
		return s.avgBuy
	}
	return overallAvg
}

// Build simulates the horizon starting from startSoC and emits one plan
// entry per hour. The horizon must be chronologically ordered; hours are
// treated as 1 h slots.
func (p *Planner) Build(now time.Time, horizon []model.HourlyPrice, cls strategy.Classification, caps *strategy.CapTable, startSoC float64) model.Plan {
	plan := model.Plan{GeneratedAt: now, EndSoC: p.Batt.ClampSoC(startSoC)}
	if len(horizon) == 0 {
		return plan
	}

	stats := buildDayStats(horizon, cls)
	overallAvg := model.AverageBuy(horizon)
	soc := plan.EndSoC

	plan.Entries = make([]model.PlanEntry, 0, len(horizon))
	for _, r := range horizon {
		hour := r.HourKey()
		cap := caps.CapForHour(hour)
		day := stats[hour.Format("2006-01-02")]

		dec := p.decideHour(r, cls.TierOf(hour), cap, day, overallAvg, soc)
		dec = p.mergeForcedBleed(dec, soc, cap)

		switch {
		case dec.Mode == model.ModeCharge:
			soc = p.Batt.ChargeFor(soc, dec.PowerKW, 1)
		case dec.Mode.IsDischarge():
			soc = p.Batt.DischargeFor(soc, dec.PowerKW, 1)
		}

		plan.Entries = append(plan.Entries, model.PlanEntry{
			HourStart: hour,
			Mode:      dec.Mode,
			PowerKW:   model.RoundKW(dec.PowerKW),
			SoC:       soc,
			BuyPrice:  r.Buy,
		})
	}
	plan.EndSoC = soc
	return plan
}

// decideHour picks the tier branch for one simulated hour. No live load is
// known at planning time, so shave decisions are indicative: bounded by the
// headroom above the configured floor rather than an actual load gap.
func (p *Planner) decideHour(r model.HourlyPrice, tier strategy.Tier, cap float64, day dayStats, overallAvg, soc float64) model.Decision {
	switch tier {
	case strategy.TierCheap:
		kw := p.Batt.MaxChargePowerToCap(soc, cap, 1)
		if kw <= 0 {
			return model.Idle("cheap hour, battery at cap")
		}
		return model.Decision{Mode: model.ModeCharge, PowerKW: kw, Reason: fmt.Sprintf("cheap hour, charging toward cap %.0f%%", cap*100)}

	case strategy.TierTop:
		baseline := marginBaseline(day, overallAvg)
		margin := r.Sell - baseline/p.Batt.RoundTripEfficiency
		if margin >= p.Cfg.MinMargin {
			kw := p.Batt.MaxDischargePowerToFloor(soc, p.Batt.MinSoC, 1)
			if kw > 0 {
				return model.Decision{Mode: model.ModeDischargeSell, PowerKW: kw, Export: true, Reason: fmt.Sprintf("top tier, margin %.3f ok", margin)}
			}
			return model.Idle("top tier, battery empty")
		}
		kw := p.Batt.MaxDischargePowerToFloor(soc, p.Cfg.FloorSoC, 1)
		if kw <= 0 {
			return model.Idle("top tier, margin too thin and no shave headroom")
		}
		return model.Decision{Mode: model.ModeDischargeShave, PowerKW: kw, Reason: fmt.Sprintf("top tier, margin %.3f below %.3f, shave only", margin, p.Cfg.MinMargin)}

	case strategy.TierNext:
		kw := p.Batt.MaxDischargePowerToFloor(soc, p.Cfg.FloorSoC, 1)
		if kw <= 0 {
			return model.Idle("next tier, no headroom above floor")
		}
		return model.Decision{Mode: model.ModeDischargeShave, PowerKW: kw, Reason: "next tier, shave only"}

	default: // mid
		if !math.IsNaN(day.avgBuy) && r.Buy >= day.avgBuy*p.Cfg.MidShaveBias && soc > p.Cfg.FloorSoC+p.Cfg.HysteresisSoC {
			kw := p.Batt.MaxDischargePowerToFloor(soc, p.Cfg.FloorSoC, 1)
			if kw > 0 {
				return model.Decision{Mode: model.ModeDischargeMid, PowerKW: kw, Reason: fmt.Sprintf("mid hour above %.2fx daily average", p.Cfg.MidShaveBias)}
			}
		}
		return model.Idle("mid hour")
	}
}

// mergeForcedBleed takes priority when the simulated SoC exceeds the hour's
// cap: a bounded discharge toward the cap is merged into the chosen
// decision. It may upgrade idle/charge to a shave discharge and may raise,
// never lower, an existing discharge's magnitude. Export eligibility is
// never widened.
func (p *Planner) mergeForcedBleed(dec model.Decision, soc, cap float64) model.Decision {
	if soc <= cap {
		return dec
	}
	bleed := p.Batt.MaxDischargePowerToFloor(soc, cap, 1)
	if bleed <= 0 {
		return dec
	}
	if dec.Mode.IsDischarge() {
		if bleed > dec.PowerKW {
			dec.PowerKW = bleed
			dec.Reason += "; raised to bleed above cap"
		}
		return dec
	}
	return model.Decision{
		Mode:    model.ModeDischargeShave,
		PowerKW: bleed,
		Reason:  fmt.Sprintf("SoC above cap %.0f%%, forced bleed", cap*100),
	}
}
