// Package constants provides shared constants for the npk-advisor application.
package constants

// Agronomic caps in kg/ha. These bound every plan regardless of budget.
const (
	// MaxNitrogen is the upper bound for nitrogen application
	MaxNitrogen = 250.0

	// MaxPhosphorus is the upper bound for phosphorus application
	MaxPhosphorus = 150.0

	// MaxPotassium is the upper bound for potassium application
	MaxPotassium = 150.0
)

// Economic defaults used when configuration leaves a value unset or unparsable.
const (
	// DefaultCropPricePerKg is the sale price of one kg of crop output
	DefaultCropPricePerKg = 20.0

	// DefaultCostPerKgN is the price of one kg of nitrogen
	DefaultCostPerKgN = 40.0

	// DefaultCostPerKgP is the price of one kg of phosphorus
	DefaultCostPerKgP = 80.0

	// DefaultCostPerKgK is the price of one kg of potassium
	DefaultCostPerKgK = 30.0
)

// Environment variables that override the economic parameters.
const (
	EnvCropPrice = "CROP_PRICE_PER_KG_INR"
	EnvCostN     = "COST_PER_KG_N_INR"
	EnvCostP     = "COST_PER_KG_P_INR"
	EnvCostK     = "COST_PER_KG_K_INR"
)

// Risk model defaults
const (
	// DefaultZScore is the one-sided 95% Gaussian quantile used for the 5th percentile yield
	DefaultZScore = 1.645

	// DefaultBaseCV is the flat coefficient of variation of yield
	DefaultBaseCV = 0.10

	// DefaultNitrogenCV is the extra coefficient of variation at the nitrogen reference rate
	DefaultNitrogenCV = 0.10

	// DefaultNitrogenReference is the nitrogen rate at which the full extra variation applies
	DefaultNitrogenReference = 150.0

	// IntervalZScore is the two-sided 95% quantile used for reported yield intervals
	IntervalZScore = 1.96
)

// Solver defaults
const (
	// DefaultTolerance is the convergence tolerance on the objective
	DefaultTolerance = 1e-7

	// DefaultPrimaryIterations caps the primary solve
	DefaultPrimaryIterations = 100

	// DefaultFallbackIterations caps the fallback solve from the origin
	DefaultFallbackIterations = 50

	// BudgetTolerance is the allowed numerical overshoot of the budget
	BudgetTolerance = 1e-6
)

// Allocation shares used for the initial guess.
const (
	InitialShareN = 0.4
	InitialShareP = 0.3
	InitialShareK = 0.3

	// InitialFloor keeps each starting component off the lower bound
	InitialFloor = 0.1

	// InitialShrink scales an over-budget starting point strictly inside the feasible region
	InitialShrink = 0.95
)

// Numeric constants
const (
	// DecimalPrecision is the precision for reported values (2 decimal places)
	DecimalPrecision = 100
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// DefaultFieldCatalog is the default field catalog file name
	DefaultFieldCatalog = "fields.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxRequestSizeBytes is the default maximum request body size (64 KB)
	DefaultMaxRequestSizeBytes int64 = 64 * 1024
)

// Weather defaults
const (
	// DefaultWeatherBaseURL is the Open-Meteo archive endpoint host
	DefaultWeatherBaseURL = "https://archive-api.open-meteo.com"

	// DefaultWeatherTimezone is the timezone daily aggregates are computed in
	DefaultWeatherTimezone = "Asia/Kolkata"

	// DefaultGDDBaseTemp is the base temperature in Celsius for growing degree days
	DefaultGDDBaseTemp = 10.0

	// DateLayout is the date format used by the weather API and the field catalog
	DateLayout = "2006-01-02"
)

// Job defaults
const (
	DefaultJobWorkers   = 4
	DefaultJobQueueSize = 64
	DefaultJobRetention = 1024
)
