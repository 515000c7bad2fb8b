package model

import "math"

// Mode is the operating mode for an hour or an instant.
// Keep these values stable; they are published to the result sink and
// stored in the cycle history.
type Mode string

const (
	ModeCharge         Mode = "charge"
	ModeDischargeSell  Mode = "discharge_sell"
	ModeDischargeShave Mode = "discharge_shave"
	ModeDischargeMid   Mode = "discharge_mid"
	ModeIdle           Mode = "idle"
)

func (m Mode) IsDischarge() bool {
	return m == ModeDischargeSell || m == ModeDischargeShave || m == ModeDischargeMid
}

// Decision is the single command a cycle produces. PowerKW is a magnitude;
// Mode carries the direction. Export records whether feeding the grid is
// permitted for this decision; only discharge_sell ever sets it.
type Decision struct {
	Mode    Mode    `json:"mode"`
	PowerKW float64 `json:"power_kw"`
	Export  bool    `json:"export"`
	Reason  string  `json:"reason"`
}

// Idle is the universal safe fallback.
func Idle(reason string) Decision {
	return Decision{Mode: ModeIdle, Reason: reason}
}

// RoundKW rounds a power setpoint to 10 W, the resolution the inverter
// bridge accepts.
func RoundKW(kw float64) float64 {
	return math.Round(kw*100) / 100
}
