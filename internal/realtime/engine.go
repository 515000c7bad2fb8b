package realtime

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"battery-dispatch/internal/model"
	"battery-dispatch/internal/planner"
	"battery-dispatch/internal/strategy"
)

// Baselines are the cheap-price buy averages the margin check can fall back
// through: today's, then tomorrow's, then the overall horizon average.
type Baselines struct {
	CheapToday    float64
	CheapTomorrow float64
	Overall       float64
	// BuyToday is today's plain average buy price, used by the mid-hour
	// shave bias rather than the margin check.
	BuyToday float64
}

// Pick returns the first finite baseline.
func (b Baselines) Pick() float64 {
	for _, v := range []float64{b.CheapToday, b.CheapTomorrow, b.Overall} {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return math.NaN()
}

// Config extends the shared dispatch policy with realtime-only knobs.
type Config struct {
	planner.Config
	// NoiseFloorKW is the minimum solar surplus treated as real.
	NoiseFloorKW float64
	// CapHysteresisSoC is how far above the reservation cap the SoC must
	// drift before the reserve bleed fires.
	CapHysteresisSoC  float64
	GridChargeAllowed bool
	GoalChargeAllowed bool
}

// Inputs is everything one instantaneous decision needs. The engine is
// stateless: two calls with equal inputs yield equal decisions.
type Inputs struct {
	Now    time.Time
	Flows  model.Flows
	Tier   strategy.Tier
	Hour   model.HourlyPrice
	// HaveHour is false when no price record covers the current hour
	// (feed failure); price-dependent rungs are skipped then.
	HaveHour  bool
	Baselines Baselines
	Target    *float64
	Caps      *strategy.CapTable
}

// Engine issues the single command actually applied to hardware.
type Engine struct {
	Batt model.BatteryParams
	Cfg  Config
	Log  *logrus.Logger
}

func New(batt model.BatteryParams, cfg Config, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{Batt: batt, Cfg: cfg, Log: log}
}

// Decide walks the decision ladder top to bottom; the first matching rung
// wins. Every branch has a defined fallback, ending at idle.
func (e *Engine) Decide(in Inputs) model.Decision {
	dec := e.decide(in)
	dec.PowerKW = model.RoundKW(dec.PowerKW)
	e.Log.WithFields(logrus.Fields{
		"mode":   dec.Mode,
		"power":  dec.PowerKW,
		"export": dec.Export,
		"soc":    in.Flows.SoC,
		"tier":   in.Tier,
	}).Debug(dec.Reason)
	return dec
}

func (e *Engine) decide(in Inputs) model.Decision {
	soc := in.Flows.SoC
	surplus := in.Flows.SurplusKW()
	solar := surplus > e.Cfg.NoiseFloorKW
	loadGap := in.Flows.LoadGapKW()

	baseCap, reserved := e.Batt.MaxSoC, false
	if in.Caps != nil {
		baseCap, reserved = in.Caps.Override(in.Now)
	}
	// A live solar surplus relaxes the reservation cap for this decision
	// only: the reserved headroom is being used for what it was held for.
	effectiveCap := baseCap
	if reserved && solar {
		effectiveCap = e.Batt.MaxSoC
	}

	// 1. Reserve bleed: SoC drifted above an active cap with no solar to
	// absorb. Work it back down, preferring to shave the current load.
	if reserved && !solar && soc > baseCap+e.Cfg.CapHysteresisSoC {
		bound := math.Min(
			e.Batt.MaxDischargePowerToFloor(soc, e.Batt.MinSoC, 1),
			e.Batt.MaxDischargePowerToFloor(soc, baseCap, 1),
		)
		if bound > 0 {
			if loadGap > 0 {
				return model.Decision{
					Mode:    model.ModeDischargeShave,
					PowerKW: math.Min(bound, loadGap),
					Reason:  fmt.Sprintf("SoC %.0f%% above reservation cap %.0f%%, bleeding into load", soc*100, baseCap*100),
				}
			}
			if in.HaveHour && in.Tier == strategy.TierTop && e.marginOK(in) {
				return model.Decision{
					Mode:    model.ModeDischargeSell,
					PowerKW: bound,
					Export:  true,
					Reason:  fmt.Sprintf("SoC above reservation cap %.0f%%, selling bleed in top-tier hour", baseCap*100),
				}
			}
		}
	}

	// 2. Solar-first: store the surplus while below the effective cap.
	if solar && soc < effectiveCap {
		kw := math.Min(surplus, e.Batt.MaxChargePowerToCap(soc, effectiveCap, 1))
		if kw > 0 {
			return model.Decision{
				Mode:    model.ModeCharge,
				PowerKW: kw,
				Reason:  fmt.Sprintf("solar surplus %.2f kW, charging", surplus),
			}
		}
	}

	if in.HaveHour {
		switch in.Tier {
		case strategy.TierTop:
			// 3. Sell window.
			if e.marginOK(in) {
				kw := e.Batt.MaxDischargePowerToFloor(soc, e.Batt.MinSoC, 1)
				if kw > 0 {
					return model.Decision{
						Mode:    model.ModeDischargeSell,
						PowerKW: kw,
						Export:  true,
						Reason:  fmt.Sprintf("top tier, sell %.3f vs cost %.3f", in.Hour.Sell, e.effectiveCost(in)),
					}
				}
				return model.Idle("top tier, nothing left above hard floor")
			}
			kw := math.Min(loadGap, e.Batt.MaxDischargePowerToFloor(soc, e.Cfg.FloorSoC, 1))
			if kw > 0 {
				return model.Decision{
					Mode:    model.ModeDischargeShave,
					PowerKW: kw,
					Reason:  "top tier, margin too thin, shaving load",
				}
			}
			return model.Idle("top tier, margin too thin and no load gap")

		case strategy.TierNext:
			// 4. Next tier: strictly load-shave; export forbidden
			// regardless of margin.
			kw := math.Min(loadGap, e.Batt.MaxDischargePowerToFloor(soc, e.Cfg.FloorSoC, 1))
			if kw > 0 {
				return model.Decision{
					Mode:    model.ModeDischargeShave,
					PowerKW: kw,
					Reason:  "next tier, shaving load",
				}
			}
			return model.Idle("next tier, no load gap")

		case strategy.TierCheap:
			// 5. Cheap window: grid-assisted charge.
			if e.Cfg.GridChargeAllowed && soc < effectiveCap {
				kw := e.Batt.MaxChargePowerToCap(soc, effectiveCap, 1)
				if kw > 0 {
					return model.Decision{
						Mode:    model.ModeCharge,
						PowerKW: kw,
						Reason:  fmt.Sprintf("cheap hour, grid charging at buy %.3f", in.Hour.Buy),
					}
				}
			}

		default:
			// 6. Mid hours: shave only while clearly above the floor and
			// the price justifies cycling.
			baseline := in.Baselines.BuyToday
			if math.IsNaN(baseline) {
				baseline = in.Baselines.Overall
			}
			if !math.IsNaN(baseline) && in.Hour.Buy >= baseline*e.Cfg.MidShaveBias && soc > e.Cfg.FloorSoC+e.Cfg.HysteresisSoC {
				kw := math.Min(loadGap, e.Batt.MaxDischargePowerToFloor(soc, e.Cfg.FloorSoC, 1))
				if kw > 0 {
					return model.Decision{
						Mode:    model.ModeDischargeMid,
						PowerKW: kw,
						Reason:  fmt.Sprintf("price %.3f above %.2fx average, shaving load", in.Hour.Buy, e.Cfg.MidShaveBias),
					}
				}
			}
		}
	}

	// 7. Pre-charge toward the midnight target.
	if in.Target != nil && soc < *in.Target && e.Cfg.GoalChargeAllowed {
		kw := e.Batt.MaxChargePowerToCap(soc, effectiveCap, 1)
		if kw > 0 {
			return model.Decision{
				Mode:    model.ModeCharge,
				PowerKW: kw,
				Reason:  fmt.Sprintf("charging toward midnight target %.0f%%", *in.Target*100),
			}
		}
	}

	// 8. Default.
	return model.Idle("no actionable condition")
}

// effectiveCost is the efficiency-adjusted cost of the energy being sold.
func (e *Engine) effectiveCost(in Inputs) float64 {
	return in.Baselines.Pick() / e.Batt.RoundTripEfficiency
}

// marginOK checks the sell margin for the current top-tier hour:
// sellPrice - baselineBuy/roundTripEfficiency >= minMargin.
func (e *Engine) marginOK(in Inputs) bool {
	cost := e.effectiveCost(in)
	if math.IsNaN(cost) {
		return false
	}
	return in.Hour.Sell-cost >= e.Cfg.MinMargin
}
