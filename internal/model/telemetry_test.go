package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_DirectionalComponents(t *testing.T) {
	// Sunny noon: solar covers the load, battery discharging, small import.
	sample := TelemetrySample{
		ProductionW: 1300,
		LoadW:       261,
		BatteryW:    970,
		GridW:       60,
		SoC:         55,
	}
	f := sample.Normalize()

	assert.InDelta(t, 1.30, f.ProductionKW, 1e-9)
	assert.InDelta(t, 0.261, f.LoadKW, 1e-9)
	assert.InDelta(t, 0.06, f.GridImportKW, 1e-9)
	assert.InDelta(t, 0.97, f.BatteryDischargeKW, 1e-9)
	assert.Zero(t, f.GridExportKW)
	assert.Zero(t, f.BatteryChargeKW)
	assert.InDelta(t, 0.55, f.SoC, 1e-9)
}

func TestNormalize_NegativeFlowsSplit(t *testing.T) {
	f := TelemetrySample{GridW: -500, BatteryW: -1200, SoC: 0.8}.Normalize()
	assert.InDelta(t, 0.5, f.GridExportKW, 1e-9)
	assert.Zero(t, f.GridImportKW)
	assert.InDelta(t, 1.2, f.BatteryChargeKW, 1e-9)
	assert.Zero(t, f.BatteryDischargeKW)
	assert.InDelta(t, 0.8, f.SoC, 1e-9)
}

func TestNormalize_SoCScales(t *testing.T) {
	assert.InDelta(t, 0.55, TelemetrySample{SoC: 55}.Normalize().SoC, 1e-9)
	assert.InDelta(t, 0.55, TelemetrySample{SoC: 0.55}.Normalize().SoC, 1e-9)
	assert.InDelta(t, 1.0, TelemetrySample{SoC: 140}.Normalize().SoC, 1e-9)
	assert.InDelta(t, 1.0, TelemetrySample{SoC: 1.2}.Normalize().SoC, 1e-9)
}

func TestNormalize_InvalidTelemetryDefaults(t *testing.T) {
	f := TelemetrySample{ProductionW: math.NaN(), LoadW: 300, SoC: 70}.Normalize()
	assert.Equal(t, Flows{SoC: 0.5}, f)

	f = TelemetrySample{GridW: math.Inf(1), SoC: 70}.Normalize()
	assert.Equal(t, Flows{SoC: 0.5}, f)
}

func TestFlows_SurplusAndGap(t *testing.T) {
	f := Flows{ProductionKW: 2.0, LoadKW: 0.5}
	assert.InDelta(t, 1.5, f.SurplusKW(), 1e-9)
	assert.Zero(t, f.LoadGapKW())

	f = Flows{ProductionKW: 0.2, LoadKW: 1.0}
	assert.InDelta(t, -0.8, f.SurplusKW(), 1e-9)
	assert.InDelta(t, 0.8, f.LoadGapKW(), 1e-9)
}
