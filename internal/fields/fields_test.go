package fields

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/internal/weather"
	"github.com/iwvelando/npk-advisor/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog(strings.NewReader(testutil.SampleCatalogYAML))
	require.NoError(t, err)
	return c
}

type stubSource struct {
	summary weather.Summary
	err     error
	calls   int
	start   time.Time
	end     time.Time
}

func (s *stubSource) Summary(ctx context.Context, lat, lon float64, start, end time.Time) (weather.Summary, error) {
	s.calls++
	s.start, s.end = start, end
	return s.summary, s.err
}

func TestLoadCatalog(t *testing.T) {
	path := testutil.WriteFile(t, "fields.yaml", testutil.SampleCatalogYAML)

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "pune-north", list[0].ID)
	assert.Equal(t, "nashik-east", list[1].ID)

	f, err := c.Get("pune-north")
	require.NoError(t, err)
	assert.Equal(t, 18.52, f.Lat)
	assert.Len(t, f.Seasons, 2)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestGetUnknownField(t *testing.T) {
	c := sampleCatalog(t)
	_, err := c.Get("nowhere")
	assert.True(t, errors.Is(err, ErrFieldNotFound))

	var nilCatalog *Catalog
	_, err = nilCatalog.Get("pune-north")
	assert.True(t, errors.Is(err, ErrFieldNotFound))
	assert.Equal(t, 0, nilCatalog.Len())
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"Missing id", "fields:\n  - name: x\n    lat: 1\n    lon: 1\n"},
		{"Latitude out of range", "fields:\n  - id: a\n    lat: 91\n    lon: 1\n"},
		{"Duplicate id", "fields:\n  - id: a\n  - id: a\n"},
		{"Unknown key", "fields:\n  - id: a\n    colour: green\n"},
		{"Bad date", "fields:\n  - id: a\n    seasons:\n      - year: 2024\n        crop: rice\n        plantingDate: 2024/06/01\n        harvestDate: \"2024-09-30\"\n"},
		{"Harvest before planting", "fields:\n  - id: a\n    seasons:\n      - year: 2024\n        crop: rice\n        plantingDate: \"2024-09-30\"\n        harvestDate: \"2024-06-01\"\n"},
		{"Negative soil", "fields:\n  - id: a\n    seasons:\n      - year: 2024\n        crop: rice\n        plantingDate: \"2024-06-01\"\n        harvestDate: \"2024-09-30\"\n        soil: {n: -1}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseCatalogEmpty(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestLatestSeason(t *testing.T) {
	f, err := sampleCatalog(t).Get("pune-north")
	require.NoError(t, err)

	s, ok := f.LatestSeason("")
	require.True(t, ok)
	assert.Equal(t, 2024, s.Year)

	s, ok = f.LatestSeason("WHEAT")
	require.True(t, ok)
	assert.Equal(t, 2023, s.Year)

	s, ok = f.LatestSeason("sugarcane")
	require.True(t, ok)
	assert.Equal(t, 2024, s.Year, "unmatched crop falls back to the latest season")

	_, ok = Field{ID: "bare"}.LatestSeason("rice")
	assert.False(t, ok)
}

func TestFeaturizeWithArchive(t *testing.T) {
	src := &stubSource{summary: weather.Summary{TotalRainfallMM: 610, GDD: 1720, MeanTemp: 26.4, Days: 122}}
	fz := NewFeaturizer(zap.NewNop(), sampleCatalog(t), src)

	set, err := fz.Featurize(context.Background(), "pune-north", "rice")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "2024-06-01", src.start.Format("2006-01-02"))
	assert.Equal(t, "2024-09-30", src.end.Format("2006-01-02"))

	assert.Equal(t, WeatherFromArchive, set.WeatherOrigin)
	assert.Equal(t, 25.0, set.Features[model.FeatureSoilN])
	assert.Equal(t, 12.0, set.Features[model.FeatureSoilP])
	assert.Equal(t, 180.0, set.Features[model.FeatureSoilK])
	assert.Equal(t, 7.1, set.Features[model.FeaturePH])
	assert.Equal(t, 610.0, set.Features[model.FeatureTotalRainfall])
	assert.Equal(t, 1720.0, set.Features[model.FeatureGDD])
	assert.Equal(t, 26.4, set.Features[model.FeatureMeanTemp])
	require.NotNil(t, set.Weather)
	assert.Equal(t, 122, set.Weather.Days)
}

func TestFeaturizeFallsBackToStoredWeather(t *testing.T) {
	src := &stubSource{err: errors.New("archive unavailable")}
	fz := NewFeaturizer(zap.NewNop(), sampleCatalog(t), src)

	set, err := fz.Featurize(context.Background(), "pune-north", "rice")
	require.NoError(t, err)
	assert.Equal(t, WeatherFromCatalog, set.WeatherOrigin)
	assert.Equal(t, 500.0, set.Features[model.FeatureTotalRainfall])
	assert.Equal(t, 1500.0, set.Features[model.FeatureGDD])
	_, hasMean := set.Features[model.FeatureMeanTemp]
	assert.False(t, hasMean)
}

func TestFeaturizeArchiveErrorWithoutStoredWeather(t *testing.T) {
	src := &stubSource{err: errors.New("archive unavailable")}
	fz := NewFeaturizer(zap.NewNop(), sampleCatalog(t), src)

	_, err := fz.Featurize(context.Background(), "nashik-east", "grape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive unavailable")
}

func TestFeaturizeWithoutSource(t *testing.T) {
	fz := NewFeaturizer(nil, sampleCatalog(t), nil)

	set, err := fz.Featurize(context.Background(), "pune-north", "wheat")
	require.NoError(t, err)
	assert.Equal(t, WeatherFromCatalog, set.WeatherOrigin)
	assert.Equal(t, 21.5, set.Features[model.FeatureMeanTemp])
	assert.Equal(t, 1300.0, set.Features[model.FeatureGDD])

	set, err = fz.Featurize(context.Background(), "nashik-east", "")
	require.NoError(t, err)
	assert.Equal(t, WeatherFromDefaults, set.WeatherOrigin)
	assert.Nil(t, set.Weather)
	_, hasRain := set.Features[model.FeatureTotalRainfall]
	assert.False(t, hasRain)
}

func TestFeaturizeUnknownField(t *testing.T) {
	fz := NewFeaturizer(nil, sampleCatalog(t), nil)
	_, err := fz.Featurize(context.Background(), "nowhere", "rice")
	assert.True(t, errors.Is(err, ErrFieldNotFound))
}

func TestFeaturizeNoSeasons(t *testing.T) {
	c, err := NewCatalog([]Field{{ID: "bare", Lat: 1, Lon: 1}})
	require.NoError(t, err)
	fz := NewFeaturizer(nil, c, nil)

	_, err = fz.Featurize(context.Background(), "bare", "")
	assert.True(t, errors.Is(err, ErrNoSeason))
}
