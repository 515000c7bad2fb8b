package strategy

import (
	"math"

	"battery-dispatch/internal/model"
)

// TargetDiagnostic records the profitability baseline behind a midnight
// target decision. It is always produced when tomorrow's horizon is usable,
// profitable or not, so the sink can expose why the planner did or did not
// aim for a full battery.
type TargetDiagnostic struct {
	AvgCheapBuyToday float64 `json:"avg_cheap_buy_today"`
	AvgSellTomorrow  float64 `json:"avg_sell_tomorrow"`
	MaxProfitableBuy float64 `json:"max_profitable_buy"`
	Profitable       bool    `json:"profitable"`
}

// MidnightTarget computes the optional end-of-day SoC target.
//
// remainingCheapToday are today's cheap hours after "now". tomorrow is the
// full horizon for the next day with its classification. Charging toward
// midnight is profitable when the average remaining cheap buy price does
// not exceed tomorrow's average expensive sell price, less the required
// margin, discounted by the round-trip efficiency.
//
// Returns (nil, nil) when tomorrow is absent or has no expensive hours.
// Otherwise the diagnostic is always returned; the target only when
// profitable.
func MidnightTarget(remainingCheapToday []model.HourlyPrice, tomorrow []model.HourlyPrice, tomorrowCls Classification, minMargin float64, batt model.BatteryParams) (*float64, *TargetDiagnostic) {
	if len(tomorrow) == 0 {
		return nil, nil
	}

	expensive := make([]model.HourlyPrice, 0, len(tomorrow))
	for _, r := range tomorrow {
		if tomorrowCls.IsExpensive(r.HourKey()) {
			expensive = append(expensive, r)
		}
	}
	if len(expensive) == 0 {
		return nil, nil
	}

	avgSell := model.AverageSell(expensive)
	if math.IsNaN(avgSell) {
		avgSell = model.AverageBuy(expensive)
	}
	avgCheapBuy := model.AverageBuy(remainingCheapToday)

	requiredSellAfterMargin := avgSell - minMargin
	maxProfitableBuy := requiredSellAfterMargin * batt.RoundTripEfficiency
	profitable := finite(avgCheapBuy) && finite(maxProfitableBuy) && avgCheapBuy <= maxProfitableBuy

	diag := &TargetDiagnostic{
		AvgCheapBuyToday: avgCheapBuy,
		AvgSellTomorrow:  avgSell,
		MaxProfitableBuy: maxProfitableBuy,
		Profitable:       profitable,
	}
	if !profitable {
		return nil, diag
	}

	// 1 h slots: each expensive hour can absorb one hour of full discharge.
	energyNeededKWh := float64(len(expensive)) * batt.MaxDischargeKW
	usableKWh := batt.UsableCapacityKWh()
	target := batt.ClampSoC(batt.MinSoC + math.Min(energyNeededKWh, usableKWh)/batt.CapacityKWh)
	return &target, diag
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
