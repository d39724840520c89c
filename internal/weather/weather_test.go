package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iwvelando/npk-advisor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f(v float64) *float64 { return &v }

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func testConfig(url string) config.WeatherConfig {
	return config.WeatherConfig{
		Enabled:  true,
		BaseURL:  url,
		Timezone: "Asia/Kolkata",
		BaseTemp: 10,
		Timeout:  5 * time.Second,
	}
}

func TestSummarize(t *testing.T) {
	days := []Day{
		{Date: "2024-06-01", TempMax: f(30), TempMin: f(20), Precipitation: f(12.5)},
		{Date: "2024-06-02", TempMax: f(12), TempMin: f(4), Precipitation: f(0)},
		{Date: "2024-06-03", TempMax: nil, TempMin: f(18), Precipitation: f(3)},
		{Date: "2024-06-04", TempMax: f(24), TempMin: f(16), Precipitation: nil},
	}

	summary, err := Summarize(days, 10)
	require.NoError(t, err)
	assert.InDelta(t, 15.5, summary.TotalRainfallMM, 1e-9)
	// 25-10 plus 0 for the cold day plus 20-10.
	assert.InDelta(t, 25.0, summary.GDD, 1e-9)
	assert.InDelta(t, (25.0+8.0+20.0)/3, summary.MeanTemp, 1e-9)
	assert.Equal(t, 4, summary.Days)
}

func TestSummarizeNoObservations(t *testing.T) {
	_, err := Summarize(nil, 10)
	assert.True(t, errors.Is(err, ErrNoObservations))

	_, err = Summarize([]Day{{Date: "2024-06-01"}}, 10)
	assert.True(t, errors.Is(err, ErrNoObservations))
}

func TestClientSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/archive", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "18.52", q.Get("latitude"))
		assert.Equal(t, "73.85", q.Get("longitude"))
		assert.Equal(t, "2024-06-01", q.Get("start_date"))
		assert.Equal(t, "2024-06-03", q.Get("end_date"))
		assert.Equal(t, dailyVariables, q.Get("daily"))
		assert.Equal(t, "Asia/Kolkata", q.Get("timezone"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"latitude": 18.5,
			"daily": {
				"time": ["2024-06-01", "2024-06-02", "2024-06-03"],
				"temperature_2m_max": [32.0, 30.0, null],
				"temperature_2m_min": [24.0, 22.0, 21.0],
				"precipitation_sum": [10.0, null, 5.5]
			}
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(zap.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)

	summary, err := c.Summary(context.Background(), 18.52, 73.85, date(t, "2024-06-01"), date(t, "2024-06-03"))
	require.NoError(t, err)
	assert.InDelta(t, 15.5, summary.TotalRainfallMM, 1e-9)
	assert.InDelta(t, 18+16, summary.GDD, 1e-9)
	assert.InDelta(t, 27.0, summary.MeanTemp, 1e-9)
	assert.Equal(t, 3, summary.Days)
}

func TestClientMissingDaily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"latitude": 18.5}`))
	}))
	defer srv.Close()

	c, err := NewClient(zap.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Daily(context.Background(), 18.52, 73.85, date(t, "2024-06-01"), date(t, "2024-06-03"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing daily")
}

func TestClientMismatchedSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"daily": {"time": ["2024-06-01"], "temperature_2m_max": [], "temperature_2m_min": [1], "precipitation_sum": [1]}}`))
	}))
	defer srv.Close()

	c, err := NewClient(zap.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Daily(context.Background(), 0, 0, date(t, "2024-06-01"), date(t, "2024-06-01"))
	assert.Error(t, err)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": true, "reason": "Parameter 'start_date' is out of allowed range"}`))
	}))
	defer srv.Close()

	c, err := NewClient(zap.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Daily(context.Background(), 0, 0, date(t, "1900-01-01"), date(t, "1900-01-02"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "out of allowed range")
}

func TestClientRejectsInvertedRange(t *testing.T) {
	c, err := NewClient(zap.NewNop(), testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = c.Daily(context.Background(), 0, 0, date(t, "2024-06-02"), date(t, "2024-06-01"))
	assert.Error(t, err)
}

func TestClientHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(zap.NewNop(), testConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Daily(ctx, 0, 0, date(t, "2024-06-01"), date(t, "2024-06-02"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(nil, config.WeatherConfig{BaseURL: "  "})
	assert.Error(t, err)
}

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c, err := NewClient(nil, testConfig("https://example.test/"), WithHTTPClient(hc))
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, "https://example.test", c.baseURL)
}
