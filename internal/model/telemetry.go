package model

import "math"

// TelemetrySample is the raw instantaneous reading from the meter bridge.
// Power fields are in watts:
// - ProductionW: solar production, >= 0
// - GridW: signed, positive = import from grid
// - LoadW: local consumption, >= 0
// - BatteryW: signed, negative = charging
// SoC accepts 0-100 or 0-1; anything above 1.5 is read as percent.
type TelemetrySample struct {
	ProductionW float64 `json:"production_w"`
	GridW       float64 `json:"grid_w"`
	LoadW       float64 `json:"load_w"`
	BatteryW    float64 `json:"battery_w"`
	SoC         float64 `json:"soc"`
}

// Flows is the normalized form: non-negative directional kW components plus
// a SoC fraction.
type Flows struct {
	ProductionKW       float64
	LoadKW             float64
	GridImportKW       float64
	GridExportKW       float64
	BatteryChargeKW    float64
	BatteryDischargeKW float64
	SoC                float64
}

// SurplusKW is instantaneous solar production exceeding local load.
// Negative values mean the load is not covered by solar.
func (f Flows) SurplusKW() float64 {
	return f.ProductionKW - f.LoadKW
}

// LoadGapKW is the load not covered by solar production.
func (f Flows) LoadGapKW() float64 {
	return math.Max(0, f.LoadKW-f.ProductionKW)
}

// Normalize converts a raw sample to directional kW flows. Non-finite
// fields degrade to zero flows and 50% SoC rather than failing; a dispatch
// cycle must always have a defined input.
func (t TelemetrySample) Normalize() Flows {
	if !finite(t.ProductionW) || !finite(t.GridW) || !finite(t.LoadW) || !finite(t.BatteryW) || !finite(t.SoC) {
		return Flows{SoC: 0.5}
	}

	f := Flows{
		ProductionKW: math.Max(0, t.ProductionW) / 1000,
		LoadKW:       math.Max(0, t.LoadW) / 1000,
	}
	if t.GridW >= 0 {
		f.GridImportKW = t.GridW / 1000
	} else {
		f.GridExportKW = -t.GridW / 1000
	}
	if t.BatteryW >= 0 {
		f.BatteryDischargeKW = t.BatteryW / 1000
	} else {
		f.BatteryChargeKW = -t.BatteryW / 1000
	}

	soc := t.SoC
	if soc > 1.5 {
		soc /= 100
	}
	f.SoC = math.Min(1, math.Max(0, soc))
	return f
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
