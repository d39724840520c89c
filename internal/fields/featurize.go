package fields

import (
	"context"
	"fmt"
	"time"

	"github.com/iwvelando/npk-advisor/internal/model"
	"github.com/iwvelando/npk-advisor/internal/weather"
	"go.uber.org/zap"
)

// WeatherSource provides seasonal weather aggregates for a location.
type WeatherSource interface {
	Summary(ctx context.Context, lat, lon float64, start, end time.Time) (weather.Summary, error)
}

// Where the weather features of a FeatureSet came from.
const (
	WeatherFromArchive  = "archive"
	WeatherFromCatalog  = "catalog"
	WeatherFromDefaults = "defaults"
)

// FeatureSet is the featurized view of a field for one season.
type FeatureSet struct {
	Field         Field
	Season        Season
	Features      model.Features
	Weather       *weather.Summary
	WeatherOrigin string
}

// Featurizer joins the catalog with live or stored weather.
type Featurizer struct {
	logger  *zap.Logger
	catalog *Catalog
	source  WeatherSource
}

// NewFeaturizer returns a Featurizer. A nil source makes it rely on the
// aggregates stored in the catalog.
func NewFeaturizer(logger *zap.Logger, catalog *Catalog, source WeatherSource) *Featurizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Featurizer{logger: logger, catalog: catalog, source: source}
}

// Featurize builds model features for the field's most recent season of
// crop. Live weather failures fall back to stored aggregates when the
// season has them.
func (f *Featurizer) Featurize(ctx context.Context, fieldID, crop string) (FeatureSet, error) {
	field, err := f.catalog.Get(fieldID)
	if err != nil {
		return FeatureSet{}, err
	}
	season, ok := field.LatestSeason(crop)
	if !ok {
		return FeatureSet{}, fmt.Errorf("%w: %q", ErrNoSeason, field.ID)
	}

	features := model.Features{
		model.FeatureSoilN: season.Soil.N,
		model.FeatureSoilP: season.Soil.P,
		model.FeatureSoilK: season.Soil.K,
		model.FeaturePH:    season.Soil.PH,
	}
	set := FeatureSet{Field: field, Season: season, Features: features, WeatherOrigin: WeatherFromDefaults}

	if f.source != nil {
		start, end, err := season.Window()
		if err != nil {
			return FeatureSet{}, err
		}
		summary, err := f.source.Summary(ctx, field.Lat, field.Lon, start, end)
		if err == nil {
			set.apply(summary, WeatherFromArchive)
			return set, nil
		}
		if ctx.Err() != nil || season.Weather == nil {
			return FeatureSet{}, fmt.Errorf("failed to fetch weather for field %q: %w", field.ID, err)
		}
		f.logger.Warn("weather fetch failed, using stored aggregates",
			zap.String("op", "fields.Featurize"),
			zap.String("field", field.ID),
			zap.Error(err),
		)
	}

	if stored := season.Weather; stored != nil {
		summary := weather.Summary{TotalRainfallMM: stored.TotalRainfallMM, GDD: stored.GDD}
		if stored.MeanTemp != nil {
			summary.MeanTemp = *stored.MeanTemp
		}
		set.apply(summary, WeatherFromCatalog)
		if stored.MeanTemp == nil {
			delete(set.Features, model.FeatureMeanTemp)
		}
	}

	f.logger.Debug("field featurized",
		zap.String("op", "fields.Featurize"),
		zap.String("field", field.ID),
		zap.Int("season", season.Year),
		zap.String("weather", set.WeatherOrigin),
	)
	return set, nil
}

func (s *FeatureSet) apply(summary weather.Summary, origin string) {
	s.Features[model.FeatureTotalRainfall] = summary.TotalRainfallMM
	s.Features[model.FeatureGDD] = summary.GDD
	s.Features[model.FeatureMeanTemp] = summary.MeanTemp
	s.Weather = &summary
	s.WeatherOrigin = origin
}
