// Package weather fetches daily historical weather for a location and
// reduces it to the seasonal aggregates the yield model reads.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/npk-advisor/internal/config"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoObservations is returned when the archive has no usable daily values
// for the requested window.
var ErrNoObservations = errors.New("no weather observations in range")

const dailyVariables = "temperature_2m_max,temperature_2m_min,precipitation_sum"

// Day is one day of observations. Nil values were missing upstream.
type Day struct {
	Date          string
	TempMax       *float64
	TempMin       *float64
	Precipitation *float64
}

// Summary aggregates a growing season.
type Summary struct {
	TotalRainfallMM float64 `json:"total_rainfall_mm"`
	GDD             float64 `json:"gdd"`
	MeanTemp        float64 `json:"mean_temp"`
	Days            int     `json:"days"`
}

// Summarize totals rainfall and growing degree days over days. A day
// contributes max(0, (tmax+tmin)/2 - baseTemp) degree days; days missing a
// temperature are skipped for GDD and the mean, days missing precipitation
// for rainfall.
func Summarize(days []Day, baseTemp float64) (Summary, error) {
	var summary Summary
	var tempSum float64
	var tempDays, rainDays int
	for _, d := range days {
		if d.Precipitation != nil {
			summary.TotalRainfallMM += *d.Precipitation
			rainDays++
		}
		if d.TempMax == nil || d.TempMin == nil {
			continue
		}
		mean := (*d.TempMax + *d.TempMin) / 2
		tempSum += mean
		tempDays++
		if mean > baseTemp {
			summary.GDD += mean - baseTemp
		}
	}
	if tempDays == 0 && rainDays == 0 {
		return Summary{}, ErrNoObservations
	}
	if tempDays > 0 {
		summary.MeanTemp = tempSum / float64(tempDays)
	}
	summary.Days = len(days)
	return summary, nil
}

// Client queries an Open-Meteo compatible archive API.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	timezone   string
	baseTemp   float64
	limiter    *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a client from the weather configuration.
func NewClient(logger *zap.Logger, conf config.WeatherConfig, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(strings.TrimSpace(conf.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("weather base URL cannot be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid weather base URL %q: %w", conf.BaseURL, err)
	}

	timezone := conf.Timezone
	if timezone == "" {
		timezone = constants.DefaultWeatherTimezone
	}
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if conf.RequestsPerSecond > 0 {
		limit = rate.Limit(conf.RequestsPerSecond)
	}

	c := &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		timezone:   timezone,
		baseTemp:   conf.BaseTemp,
		limiter:    rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type archiveResponse struct {
	Daily *struct {
		Time          []string   `json:"time"`
		TempMax       []*float64 `json:"temperature_2m_max"`
		TempMin       []*float64 `json:"temperature_2m_min"`
		Precipitation []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Daily fetches the daily observations between start and end inclusive.
func (c *Client) Daily(ctx context.Context, lat, lon float64, start, end time.Time) ([]Day, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s",
			end.Format(constants.DateLayout), start.Format(constants.DateLayout))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather request not sent: %w", err)
	}

	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("start_date", start.Format(constants.DateLayout))
	query.Set("end_date", end.Format(constants.DateLayout))
	query.Set("daily", dailyVariables)
	query.Set("timezone", c.timezone)
	endpoint := c.baseURL + "/v1/archive?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}

	var payload archiveResponse
	decodeErr := json.Unmarshal(body, &payload)
	if resp.StatusCode != http.StatusOK {
		reason := strings.TrimSpace(payload.Reason)
		if decodeErr != nil || reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("weather archive returned %d: %s", resp.StatusCode, reason)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", decodeErr)
	}
	if payload.Daily == nil {
		return nil, fmt.Errorf("unexpected weather response: missing daily block")
	}

	daily := payload.Daily
	n := len(daily.Time)
	if len(daily.TempMax) != n || len(daily.TempMin) != n || len(daily.Precipitation) != n {
		return nil, fmt.Errorf("unexpected weather response: daily series lengths differ")
	}
	days := make([]Day, n)
	for i := range days {
		days[i] = Day{
			Date:          daily.Time[i],
			TempMax:       daily.TempMax[i],
			TempMin:       daily.TempMin[i],
			Precipitation: daily.Precipitation[i],
		}
	}

	c.logger.Debug("weather archive fetched",
		zap.String("op", "weather.Daily"),
		zap.Float64("latitude", lat),
		zap.Float64("longitude", lon),
		zap.Int("days", n),
		zap.Duration("duration", time.Since(started)),
	)
	return days, nil
}

// Summary fetches and aggregates the season between start and end.
func (c *Client) Summary(ctx context.Context, lat, lon float64, start, end time.Time) (Summary, error) {
	days, err := c.Daily(ctx, lat, lon, start, end)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(days, c.baseTemp)
}
