package strategy

import (
	"math"
	"sort"
	"time"

	"battery-dispatch/internal/model"
)

// Tier is the price tier of a single hour.
type Tier string

const (
	TierCheap Tier = "cheap"
	TierTop   Tier = "top"
	TierNext  Tier = "next"
	TierMid   Tier = "mid"
)

// ClassifierConfig holds the horizon fractions assigned to each tier.
type ClassifierConfig struct {
	CheapFraction float64
	TopFraction   float64
	NextFraction  float64
}

// Classification partitions an hour horizon into price tiers. Hours in none
// of the three sets are implicitly "mid". The sets are disjoint.
type Classification struct {
	Cheap map[time.Time]bool
	Top   map[time.Time]bool
	Next  map[time.Time]bool
}

func emptyClassification() Classification {
	return Classification{
		Cheap: map[time.Time]bool{},
		Top:   map[time.Time]bool{},
		Next:  map[time.Time]bool{},
	}
}

// TierOf returns the tier of the hour containing t.
func (c Classification) TierOf(t time.Time) Tier {
	key := t.Truncate(time.Hour)
	switch {
	case c.Cheap[key]:
		return TierCheap
	case c.Top[key]:
		return TierTop
	case c.Next[key]:
		return TierNext
	default:
		return TierMid
	}
}

// IsExpensive reports whether the hour is in the top or next tier.
func (c Classification) IsExpensive(t time.Time) bool {
	key := t.Truncate(time.Hour)
	return c.Top[key] || c.Next[key]
}

// ExpensiveCount is the number of top+next hours in the horizon.
func (c Classification) ExpensiveCount() int {
	return len(c.Top) + len(c.Next)
}

// Classify partitions records into cheap / top / next tiers.
//
// cheapCount = max(1, round(N*cheapFraction)) hours with the lowest buy
// price. topCount = max(1, round(N*topFraction)) and
// nextCount = max(0, round(N*nextFraction)) hours with the highest sell
// price, top first. Ties keep chronological order (stable sorts). Hours
// already claimed as cheap are skipped when filling the sell tiers, which
// keeps the sets disjoint on flat curves.
func Classify(records []model.HourlyPrice, cfg ClassifierConfig) Classification {
	c := emptyClassification()
	n := len(records)
	if n == 0 {
		return c
	}

	cheapCount := max(1, int(math.Round(float64(n)*cfg.CheapFraction)))
	topCount := max(1, int(math.Round(float64(n)*cfg.TopFraction)))
	nextCount := max(0, int(math.Round(float64(n)*cfg.NextFraction)))

	byBuy := make([]model.HourlyPrice, n)
	copy(byBuy, records)
	sort.SliceStable(byBuy, func(i, j int) bool { return byBuy[i].Buy < byBuy[j].Buy })
	for i := 0; i < cheapCount && i < n; i++ {
		c.Cheap[byBuy[i].HourKey()] = true
	}

	bySell := make([]model.HourlyPrice, n)
	copy(bySell, records)
	sort.SliceStable(bySell, func(i, j int) bool { return bySell[i].Sell > bySell[j].Sell })
	taken := 0
	for _, r := range bySell {
		key := r.HourKey()
		if c.Cheap[key] {
			continue
		}
		if taken < topCount {
			c.Top[key] = true
		} else if taken < topCount+nextCount {
			c.Next[key] = true
		} else {
			break
		}
		taken++
	}

	return c
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
