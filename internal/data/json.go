package data

import (
	"encoding/json"
	"os"
	"sort"

	"battery-dispatch/internal/model"
)

// LoadPricesJSON reads an hourly price fixture from disk. Same shape as the
// feed response; used by the CLI to run a cycle without network access.
func LoadPricesJSON(path string) ([]model.HourlyPrice, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []spotEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	records := make([]model.HourlyPrice, 0, len(entries))
	for _, e := range entries {
		records = append(records, model.HourlyPrice{Start: e.Start, End: e.End, Spot: e.Price})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Start.Before(records[j].Start) })
	return records, nil
}
