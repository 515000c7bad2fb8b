package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestFetchDay_ParsesAndSorts(t *testing.T) {
	var hits int32
	// Out-of-order entries on purpose.
	srv := feedServer(t, http.StatusOK, `[
		{"start":"2025-03-12T01:00:00Z","end":"2025-03-12T02:00:00Z","price":0.25},
		{"start":"2025-03-12T00:00:00Z","end":"2025-03-12T01:00:00Z","price":0.20}
	]`, &hits)
	defer srv.Close()

	c := NewSpotFeedClient(srv.URL, "SE3", time.Second, 0, nil)
	records, err := c.FetchDay(context.Background(), time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.InDelta(t, 0.20, records[0].Spot, 1e-9)
	assert.InDelta(t, 0.25, records[1].Spot, 1e-9)
	assert.True(t, records[0].Start.Before(records[1].Start))
	// Spot only; buy/sell markups are the caller's job.
	assert.Zero(t, records[0].Buy)
}

func TestFetchDay_DayNotPublished(t *testing.T) {
	var hits int32
	srv := feedServer(t, http.StatusNotFound, "", &hits)
	defer srv.Close()

	c := NewSpotFeedClient(srv.URL, "SE3", time.Second, 0, nil)
	_, err := c.FetchDay(context.Background(), time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC))

	var fe *FeedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "DAY_NOT_PUBLISHED", fe.Code)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchDay_RateLimited(t *testing.T) {
	var hits int32
	srv := feedServer(t, http.StatusTooManyRequests, "", &hits)
	defer srv.Close()

	c := NewSpotFeedClient(srv.URL, "SE3", time.Second, 0, nil)
	_, err := c.FetchDay(context.Background(), time.Now())

	var fe *FeedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", fe.Code)
}

func TestFetchDay_ServerError(t *testing.T) {
	var hits int32
	srv := feedServer(t, http.StatusBadGateway, "", &hits)
	defer srv.Close()

	c := NewSpotFeedClient(srv.URL, "SE3", time.Second, 0, nil)
	_, err := c.FetchDay(context.Background(), time.Now())

	var fe *FeedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "API_ERROR", fe.Code)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
}

func TestFetchDay_MissingZone(t *testing.T) {
	c := NewSpotFeedClient("http://unused", "", time.Second, 0, nil)
	_, err := c.FetchDay(context.Background(), time.Now())

	var fe *FeedError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "MISSING_ZONE", fe.Code)
}

func TestFetchDay_CachesPerZoneAndDay(t *testing.T) {
	var hits int32
	srv := feedServer(t, http.StatusOK, `[
		{"start":"2025-03-12T00:00:00Z","end":"2025-03-12T01:00:00Z","price":0.20}
	]`, &hits)
	defer srv.Close()

	c := NewSpotFeedClient(srv.URL, "SE3", time.Second, time.Minute, nil)
	day := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)

	_, err := c.FetchDay(context.Background(), day)
	require.NoError(t, err)
	_, err = c.FetchDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// A different day misses the cache.
	_, err = c.FetchDay(context.Background(), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchDay_ErrorsNotCached(t *testing.T) {
	var hits int32
	srv := feedServer(t, http.StatusNotFound, "", &hits)
	defer srv.Close()

	c := NewSpotFeedClient(srv.URL, "SE3", time.Second, time.Minute, nil)
	day := time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)

	_, err := c.FetchDay(context.Background(), day)
	require.Error(t, err)
	_, err = c.FetchDay(context.Background(), day)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
