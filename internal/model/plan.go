package model

import "time"

// PlanEntry is one hour of the dispatch forecast.
type PlanEntry struct {
	HourStart time.Time `json:"hour_start"`
	Mode      Mode      `json:"decision"`
	PowerKW   float64   `json:"power_kw"`
	SoC       float64   `json:"soc"`
	BuyPrice  float64   `json:"buy_price"`
}

// Plan is the forecast document for one day: an ordered hour sequence plus
// the simulated end-of-horizon SoC.
type Plan struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Entries     []PlanEntry `json:"entries"`
	EndSoC      float64     `json:"end_soc"`
}
