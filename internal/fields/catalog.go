// Package fields holds the field catalog and turns a field's most relevant
// growing season into model features.
package fields

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"gopkg.in/yaml.v3"
)

var (
	// ErrFieldNotFound is returned for unknown field ids.
	ErrFieldNotFound = errors.New("field not found")
	// ErrNoSeason is returned when a field has no growing seasons recorded.
	ErrNoSeason = errors.New("field has no growing seasons")
)

var validate = validator.New()

// SoilSnapshot is a soil test taken for a season.
type SoilSnapshot struct {
	N  float64 `yaml:"n" json:"n_kg_ha" validate:"gte=0"`
	P  float64 `yaml:"p" json:"p_olsen_mg_kg" validate:"gte=0"`
	K  float64 `yaml:"k" json:"k_mg_kg" validate:"gte=0"`
	PH float64 `yaml:"ph" json:"ph" validate:"gte=0,lte=14"`
}

// StoredWeather holds season aggregates recorded with the catalog, used
// when live weather is unavailable.
type StoredWeather struct {
	TotalRainfallMM float64  `yaml:"totalRainfallMM" json:"total_rainfall_mm" validate:"gte=0"`
	GDD             float64  `yaml:"gdd" json:"gdd" validate:"gte=0"`
	MeanTemp        *float64 `yaml:"meanTemp,omitempty" json:"mean_temp,omitempty"`
}

// Season is one growing season on a field.
type Season struct {
	Year         int            `yaml:"year" json:"season_year" validate:"gte=1900,lte=2200"`
	Crop         string         `yaml:"crop" json:"crop" validate:"required"`
	PlantingDate string         `yaml:"plantingDate" json:"planting_date" validate:"required,datetime=2006-01-02"`
	HarvestDate  string         `yaml:"harvestDate" json:"harvest_date" validate:"required,datetime=2006-01-02"`
	PreviousCrop string         `yaml:"previousCrop,omitempty" json:"previous_crop,omitempty"`
	Soil         SoilSnapshot   `yaml:"soil" json:"soil_snapshot"`
	Weather      *StoredWeather `yaml:"weather,omitempty" json:"weather_aggregates,omitempty"`
	FinalYield   float64        `yaml:"finalYield,omitempty" json:"final_yield_kg_ha,omitempty" validate:"gte=0"`
}

// Window parses the planting and harvest dates.
func (s Season) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(constants.DateLayout, s.PlantingDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid planting date %q: %w", s.PlantingDate, err)
	}
	end, err := time.Parse(constants.DateLayout, s.HarvestDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid harvest date %q: %w", s.HarvestDate, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("harvest date %s precedes planting date %s", s.HarvestDate, s.PlantingDate)
	}
	return start, end, nil
}

// Field is a managed plot.
type Field struct {
	ID       string   `yaml:"id" json:"id" validate:"required"`
	Name     string   `yaml:"name" json:"name"`
	Lat      float64  `yaml:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Lon      float64  `yaml:"lon" json:"lon" validate:"gte=-180,lte=180"`
	AreaHa   float64  `yaml:"areaHa" json:"area_ha" validate:"gte=0"`
	SoilType string   `yaml:"soilType,omitempty" json:"soil_type,omitempty"`
	Seasons  []Season `yaml:"seasons" json:"seasons" validate:"dive"`
}

// LatestSeason returns the most recent season growing crop. When no season
// matches the crop, or crop is empty, the most recent season overall is
// used.
func (f Field) LatestSeason(crop string) (Season, bool) {
	if len(f.Seasons) == 0 {
		return Season{}, false
	}
	seasons := append([]Season(nil), f.Seasons...)
	sort.SliceStable(seasons, func(i, j int) bool {
		return seasons[i].Year > seasons[j].Year
	})
	crop = strings.TrimSpace(crop)
	if crop != "" {
		for _, s := range seasons {
			if strings.EqualFold(s.Crop, crop) {
				return s, true
			}
		}
	}
	return seasons[0], true
}

type catalogFile struct {
	Fields []Field `yaml:"fields"`
}

// Catalog is an immutable set of fields indexed by id.
type Catalog struct {
	byID  map[string]Field
	order []string
}

// NewCatalog validates fields and indexes them.
func NewCatalog(fields []Field) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Field, len(fields))}
	for i, f := range fields {
		f.ID = strings.TrimSpace(f.ID)
		if err := validate.Struct(f); err != nil {
			return nil, fmt.Errorf("field %d (%q) is invalid: %w", i, f.ID, err)
		}
		for _, s := range f.Seasons {
			if _, _, err := s.Window(); err != nil {
				return nil, fmt.Errorf("field %q season %d: %w", f.ID, s.Year, err)
			}
		}
		if _, dup := c.byID[f.ID]; dup {
			return nil, fmt.Errorf("duplicate field id %q", f.ID)
		}
		c.byID[f.ID] = f
		c.order = append(c.order, f.ID)
	}
	return c, nil
}

// ParseCatalog reads a YAML catalog.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse field catalog: %w", err)
	}
	return NewCatalog(file.Fields)
}

// LoadCatalog reads the YAML catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open field catalog: %w", err)
	}
	defer func() {
		_ = fh.Close()
	}()
	return ParseCatalog(fh)
}

// Get returns the field with the given id.
func (c *Catalog) Get(id string) (Field, error) {
	if c != nil {
		if f, ok := c.byID[strings.TrimSpace(id)]; ok {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("%w: %q", ErrFieldNotFound, id)
}

// List returns the fields in catalog order.
func (c *Catalog) List() []Field {
	if c == nil {
		return nil
	}
	out := make([]Field, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}
