package model

import (
	"math"
	"sort"
	"time"
)

// HourlyPrice is one hour of the day-ahead spot curve for a bidding zone.
// Buy and Sell are derived from Spot by fixed markups and are the only
// prices the decision logic looks at.
type HourlyPrice struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Prices per kWh.
	Spot float64 `json:"spot"`
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

// HourKey truncates the interval start to the hour. All per-hour tables are
// keyed by this value.
func (p HourlyPrice) HourKey() time.Time {
	return p.Start.Truncate(time.Hour)
}

// WithMarkups returns a copy of records with Buy/Sell derived from Spot.
// Records are also sorted chronologically; the rest of the pipeline assumes
// ordered horizons.
func WithMarkups(records []HourlyPrice, importMarkup, exportMarkup float64) []HourlyPrice {
	out := make([]HourlyPrice, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	for i := range out {
		out[i].Buy = out[i].Spot + importMarkup
		out[i].Sell = out[i].Spot + exportMarkup
	}
	return out
}

// AverageBuy returns the mean buy price, or NaN for an empty slice.
func AverageBuy(records []HourlyPrice) float64 {
	if len(records) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, r := range records {
		sum += r.Buy
	}
	return sum / float64(len(records))
}

// AverageSell returns the mean sell price, or NaN for an empty slice.
func AverageSell(records []HourlyPrice) float64 {
	if len(records) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, r := range records {
		sum += r.Sell
	}
	return sum / float64(len(records))
}

// RecordForHour finds the record covering the hour of t.
func RecordForHour(records []HourlyPrice, t time.Time) (HourlyPrice, bool) {
	key := t.Truncate(time.Hour)
	for _, r := range records {
		if r.HourKey().Equal(key) {
			return r, true
		}
	}
	return HourlyPrice{}, false
}

// FromHour returns the suffix of records whose interval starts at or after
// the hour of t.
func FromHour(records []HourlyPrice, t time.Time) []HourlyPrice {
	key := t.Truncate(time.Hour)
	for i, r := range records {
		if !r.HourKey().Before(key) {
			return records[i:]
		}
	}
	return nil
}
