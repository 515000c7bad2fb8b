package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"battery-dispatch/internal/model"
)

// SpotFeedClient fetches day-ahead hourly spot prices for a bidding zone.
type SpotFeedClient struct {
	BaseURL string
	Zone    string
	Client  *http.Client
	Log     *logrus.Logger

	cache *responseCache
}

// FeedError represents an error response from the price feed.
type FeedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *FeedError) Error() string {
	return e.Message
}

// spotResponse matches the JSON shape of the feed:
// [{"start": ..., "end": ..., "price": 0.234}, ...]
type spotEntry struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Price float64   `json:"price"`
}

// NewSpotFeedClient creates a feed client. If baseURL is empty it defaults
// to the public spot price API.
func NewSpotFeedClient(baseURL, zone string, timeout time.Duration, cacheTTL time.Duration, log *logrus.Logger) *SpotFeedClient {
	if baseURL == "" {
		baseURL = "https://www.elprisetjustnu.se/api"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	c := &SpotFeedClient{
		BaseURL: baseURL,
		Zone:    zone,
		Client:  &http.Client{Timeout: timeout},
		Log:     log,
	}
	if cacheTTL > 0 {
		c.cache = newResponseCache(cacheTTL)
	}
	return c
}

// FetchDay returns the ordered hourly records for a calendar day. Records
// carry the raw spot price; the caller derives buy/sell with the configured
// markups.
func (c *SpotFeedClient) FetchDay(ctx context.Context, day time.Time) ([]model.HourlyPrice, error) {
	if c.Zone == "" {
		return nil, &FeedError{Code: "MISSING_ZONE", Message: "price zone is required"}
	}

	key := cacheKey(c.Zone, day)
	if c.cache != nil {
		if cached, ok := c.cache.get(key); ok {
			c.Log.WithFields(logrus.Fields{"zone": c.Zone, "day": day.Format("2006-01-02")}).
				Debug("spot feed cache hit")
			return cached, nil
		}
	}

	path := fmt.Sprintf("/v1/prices/%s/%s", url.PathEscape(c.Zone), day.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build spot feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		c.Log.WithError(err).WithField("zone", c.Zone).Warn("spot feed request failed")
		return nil, fmt.Errorf("spot feed request: %w", err)
	}
	defer resp.Body.Close()

	c.Log.WithFields(logrus.Fields{
		"zone":     c.Zone,
		"day":      day.Format("2006-01-02"),
		"status":   resp.StatusCode,
		"duration": time.Since(started),
	}).Debug("spot feed response")

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Day-ahead prices publish around 13:00; tomorrow is simply not
		// there yet for most of the day.
		return nil, &FeedError{StatusCode: resp.StatusCode, Code: "DAY_NOT_PUBLISHED", Message: fmt.Sprintf("no prices published for %s", day.Format("2006-01-02"))}
	case http.StatusTooManyRequests:
		return nil, &FeedError{StatusCode: resp.StatusCode, Code: "RATE_LIMIT_EXCEEDED", Message: "spot feed rate limit exceeded"}
	default:
		return nil, &FeedError{StatusCode: resp.StatusCode, Code: "API_ERROR", Message: fmt.Sprintf("spot feed returned status %d", resp.StatusCode)}
	}

	var entries []spotEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode spot feed response: %w", err)
	}

	records := make([]model.HourlyPrice, 0, len(entries))
	for _, e := range entries {
		records = append(records, model.HourlyPrice{Start: e.Start, End: e.End, Spot: e.Price})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Start.Before(records[j].Start) })

	if c.cache != nil {
		c.cache.set(key, records)
	}
	return records, nil
}

func cacheKey(zone string, day time.Time) string {
	return zone + ":" + day.Format("2006-01-02")
}
