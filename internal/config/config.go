// Package config defines the data structures related to configuration and
// includes functions for loading and validating it.
package config

import (
	"fmt"
	"io"
	"time"

	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for npk-advisor.
type Configuration struct {
	Economics EconomicsConfig `yaml:"economics,omitempty" mapstructure:"-"` // resolved separately, see resolveEconomics
	Model     ModelConfig     `yaml:"model,omitempty" mapstructure:"model"`
	Solver    SolverConfig    `yaml:"solver,omitempty" mapstructure:"solver"`
	Logging   LoggingConfig   `yaml:"logging,omitempty" mapstructure:"logging"`
	Output    OutputConfig    `yaml:"output,omitempty" mapstructure:"output"`
	Weather   WeatherConfig   `yaml:"weather,omitempty" mapstructure:"weather"`
	Fields    FieldsConfig    `yaml:"fields,omitempty" mapstructure:"fields"`
	Jobs      JobsConfig      `yaml:"jobs,omitempty" mapstructure:"jobs"`

	warnings []string
}

// EconomicsConfig holds the prices, in currency per kg, that the optimizer trades off.
type EconomicsConfig struct {
	CropPrice float64 `yaml:"cropPrice,omitempty" mapstructure:"cropPrice"`
	CostN     float64 `yaml:"costN,omitempty" mapstructure:"costN"`
	CostP     float64 `yaml:"costP,omitempty" mapstructure:"costP"`
	CostK     float64 `yaml:"costK,omitempty" mapstructure:"costK"`
}

// ModelConfig holds the tunable parts of the yield and risk models.
type ModelConfig struct {
	Risk RiskConfig `yaml:"risk,omitempty" mapstructure:"risk"`
}

// RiskConfig holds the uncalibrated risk constants.
type RiskConfig struct {
	Z                 float64 `yaml:"z,omitempty" mapstructure:"z"`                                 // lower-tail quantile
	BaseCV            float64 `yaml:"baseCV,omitempty" mapstructure:"baseCV"`                       // flat coefficient of variation
	NitrogenCV        float64 `yaml:"nitrogenCV,omitempty" mapstructure:"nitrogenCV"`               // extra variation at the reference rate
	NitrogenReference float64 `yaml:"nitrogenReference,omitempty" mapstructure:"nitrogenReference"` // kg/ha
}

// SolverConfig holds convergence settings.
type SolverConfig struct {
	Tolerance             float64       `yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	PrimaryMaxIterations  int           `yaml:"primaryMaxIterations,omitempty" mapstructure:"primaryMaxIterations"`
	FallbackMaxIterations int           `yaml:"fallbackMaxIterations,omitempty" mapstructure:"fallbackMaxIterations"`
	Timeout               time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

// WeatherConfig configures the historical weather client.
type WeatherConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	BaseURL           string        `yaml:"baseURL,omitempty" mapstructure:"baseURL"`
	Timezone          string        `yaml:"timezone,omitempty" mapstructure:"timezone"`
	BaseTemp          float64       `yaml:"baseTemp,omitempty" mapstructure:"baseTemp"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond,omitempty" mapstructure:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// FieldsConfig points at the field catalog.
type FieldsConfig struct {
	Catalog string `yaml:"catalog,omitempty" mapstructure:"catalog"`
}

// JobsConfig sizes the asynchronous recommendation pool.
type JobsConfig struct {
	Workers   int           `yaml:"workers,omitempty" mapstructure:"workers"`
	QueueSize int           `yaml:"queueSize,omitempty" mapstructure:"queueSize"`
	Retention int           `yaml:"retention,omitempty" mapstructure:"retention"`
	Timeout   time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.risk.z", constants.DefaultZScore)
	v.SetDefault("model.risk.baseCV", constants.DefaultBaseCV)
	v.SetDefault("model.risk.nitrogenCV", constants.DefaultNitrogenCV)
	v.SetDefault("model.risk.nitrogenReference", constants.DefaultNitrogenReference)

	v.SetDefault("solver.tolerance", constants.DefaultTolerance)
	v.SetDefault("solver.primaryMaxIterations", constants.DefaultPrimaryIterations)
	v.SetDefault("solver.fallbackMaxIterations", constants.DefaultFallbackIterations)
	v.SetDefault("solver.timeout", "30s")

	v.SetDefault("output.format", constants.OutputFormatPretty)

	v.SetDefault("weather.enabled", false)
	v.SetDefault("weather.baseURL", constants.DefaultWeatherBaseURL)
	v.SetDefault("weather.timezone", constants.DefaultWeatherTimezone)
	v.SetDefault("weather.baseTemp", constants.DefaultGDDBaseTemp)
	v.SetDefault("weather.requestsPerSecond", 5.0)
	v.SetDefault("weather.timeout", "15s")

	v.SetDefault("fields.catalog", constants.DefaultFieldCatalog)

	v.SetDefault("jobs.workers", constants.DefaultJobWorkers)
	v.SetDefault("jobs.queueSize", constants.DefaultJobQueueSize)
	v.SetDefault("jobs.retention", constants.DefaultJobRetention)
	v.SetDefault("jobs.timeout", "60s")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	setDefaults(v)
	v.AutomaticEnv()
	for key, env := range economicsEnv {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Defaults returns the configuration used when no file is supplied. Cost
// environment overrides still apply.
func Defaults() *Configuration {
	conf, err := decode(newViper())
	if err != nil {
		// Only reachable if the defaults themselves fail to decode.
		panic(fmt.Sprintf("invalid built-in configuration defaults: %v", err))
	}
	return conf
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. An empty path yields the defaults.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	if configPath == "" {
		return decode(v)
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	return decode(v)
}

// LoadConfigurationFromReader loads a YAML configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	economics, warnings := resolveEconomics(v)
	configuration.Economics = economics
	configuration.warnings = warnings

	return &configuration, nil
}

// Warnings returns the problems noticed while resolving values, such as
// unparsable cost overrides that fell back to defaults.
func (c *Configuration) Warnings() []string {
	return append([]string(nil), c.warnings...)
}
