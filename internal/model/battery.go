package model

import (
	"errors"
	"math"
)

// BatteryParams defines the physical parameters of the battery.
// Units:
// - CapacityKWh: kWh
// - MaxChargeKW / MaxDischargeKW: kW
// - RoundTripEfficiency: 0..1
// - SoC bounds: fraction 0..1
//
// Charge and discharge efficiency are each taken as the square root of the
// round-trip efficiency, so a full cycle loses exactly the round-trip share.
type BatteryParams struct {
	CapacityKWh         float64
	MaxChargeKW         float64
	MaxDischargeKW      float64
	RoundTripEfficiency float64
	MinSoC              float64
	MaxSoC              float64
}

func (p BatteryParams) ChargeEfficiency() float64 {
	return math.Sqrt(p.RoundTripEfficiency)
}

func (p BatteryParams) DischargeEfficiency() float64 {
	return math.Sqrt(p.RoundTripEfficiency)
}

// UsableCapacityKWh is the energy between the hard SoC bounds.
func (p BatteryParams) UsableCapacityKWh() float64 {
	return p.CapacityKWh * (p.MaxSoC - p.MinSoC)
}

func (p BatteryParams) Validate() error {
	if p.CapacityKWh <= 0 {
		return errors.New("CapacityKWh must be > 0")
	}
	if p.MaxChargeKW <= 0 {
		return errors.New("MaxChargeKW must be > 0")
	}
	if p.MaxDischargeKW <= 0 {
		return errors.New("MaxDischargeKW must be > 0")
	}
	if p.RoundTripEfficiency <= 0 || p.RoundTripEfficiency > 1 {
		return errors.New("RoundTripEfficiency must be in (0, 1]")
	}
	if p.MinSoC < 0 || p.MinSoC > 1 || p.MaxSoC < 0 || p.MaxSoC > 1 || p.MinSoC > p.MaxSoC {
		return errors.New("MinSoC/MaxSoC must satisfy 0<=MinSoC<=MaxSoC<=1")
	}
	return nil
}

// ClampSoC clamps a SoC fraction to the hard bounds.
func (p BatteryParams) ClampSoC(soc float64) float64 {
	if soc < p.MinSoC {
		return p.MinSoC
	}
	if soc > p.MaxSoC {
		return p.MaxSoC
	}
	return soc
}

// MaxChargePowerToCap is the grid-side charge power (kW) sustainable for
// durationHours before SoC reaches cap, bounded by MaxChargeKW.
// Grid energy required = stored / chargeEfficiency.
func (p BatteryParams) MaxChargePowerToCap(soc, cap, durationHours float64) float64 {
	if cap > p.MaxSoC {
		cap = p.MaxSoC
	}
	storableKWh := (cap - soc) * p.CapacityKWh
	if storableKWh <= 0 || durationHours <= 0 {
		return 0
	}
	limitBySoC := storableKWh / p.ChargeEfficiency() / durationHours
	return math.Max(0, math.Min(limitBySoC, p.MaxChargeKW))
}

// MaxDischargePowerToFloor is the delivered discharge power (kW) sustainable
// for durationHours before SoC reaches floor, bounded by MaxDischargeKW.
// Delivered energy = withdrawn * dischargeEfficiency.
func (p BatteryParams) MaxDischargePowerToFloor(soc, floor, durationHours float64) float64 {
	if floor < p.MinSoC {
		floor = p.MinSoC
	}
	withdrawableKWh := (soc - floor) * p.CapacityKWh
	if withdrawableKWh <= 0 || durationHours <= 0 {
		return 0
	}
	limitBySoC := withdrawableKWh * p.DischargeEfficiency() / durationHours
	return math.Max(0, math.Min(limitBySoC, p.MaxDischargeKW))
}

// ChargeFor integrates charging at powerKW for durationHours and returns the
// resulting SoC, clamped to the hard bounds. SoC increases by the stored
// energy, i.e. grid energy * chargeEfficiency.
func (p BatteryParams) ChargeFor(soc, powerKW, durationHours float64) float64 {
	storedKWh := powerKW * durationHours * p.ChargeEfficiency()
	return p.ClampSoC(soc + storedKWh/p.CapacityKWh)
}

// DischargeFor integrates discharging at powerKW for durationHours and
// returns the resulting SoC, clamped to the hard bounds. SoC decreases by
// the withdrawn energy, i.e. delivered energy / dischargeEfficiency.
func (p BatteryParams) DischargeFor(soc, powerKW, durationHours float64) float64 {
	withdrawnKWh := powerKW * durationHours / p.DischargeEfficiency()
	return p.ClampSoC(soc - withdrawnKWh/p.CapacityKWh)
}
