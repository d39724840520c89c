package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/iwvelando/npk-advisor/internal/config"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
)

var sizeUnits = map[string]int64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
}

// Config defines runtime parameters for the recommendation API.
type Config struct {
	Address           string               `yaml:"address"`
	MaxRequestSize    string               `yaml:"maxRequestSize"`
	ReadHeaderTimeout string               `yaml:"readHeaderTimeout"`
	ShutdownTimeout   string               `yaml:"shutdownTimeout"`
	DisableJobs       bool                 `yaml:"disableJobs"` // serve only /recommend/sync
	Logging           config.LoggingConfig `yaml:"logging"`

	requestSizeBytes  int64
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
}

func defaultConfig() *Config {
	return &Config{
		Address:           constants.DefaultServerAddress,
		requestSizeBytes:  constants.DefaultMaxRequestSizeBytes,
		readHeaderTimeout: defaultReadHeaderTimeout,
		shutdownTimeout:   defaultShutdownTimeout,
	}
}

// LoadConfig loads the server configuration from YAML. A missing file or an
// empty path yields the defaults. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides replaces the address and request size limit with non-empty
// command-line values.
func (c *Config) ApplyOverrides(address, maxRequestSize string) error {
	if address != "" {
		c.Address = address
	}
	if maxRequestSize != "" {
		c.MaxRequestSize = maxRequestSize
	}
	return c.normalize()
}

// RequestSizeBytes returns the request body limit in bytes.
func (c *Config) RequestSizeBytes() int64 {
	return c.requestSizeBytes
}

// ShutdownGrace returns how long in-flight requests get on shutdown.
func (c *Config) ShutdownGrace() time.Duration {
	return c.shutdownTimeout
}

// HTTPServer builds the listener configuration around handler.
func (c *Config) HTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              c.Address,
		Handler:           handler,
		ReadHeaderTimeout: c.readHeaderTimeout,
	}
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = constants.DefaultServerAddress
	}

	size, err := ParseSize(c.MaxRequestSize)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = constants.DefaultMaxRequestSizeBytes
	}
	c.requestSizeBytes = size

	if c.readHeaderTimeout, err = parseTimeout("readHeaderTimeout", c.ReadHeaderTimeout, defaultReadHeaderTimeout); err != nil {
		return err
	}
	if c.shutdownTimeout, err = parseTimeout("shutdownTimeout", c.ShutdownTimeout, defaultShutdownTimeout); err != nil {
		return err
	}
	return nil
}

// parseTimeout reads a duration setting; empty or non-positive values take def.
func parseTimeout(key, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseSize converts a byte size such as "64K" or "1M" into bytes. An empty
// value yields the default request limit.
func ParseSize(value string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return constants.DefaultMaxRequestSizeBytes, nil
	}

	digits := strings.TrimRightFunc(trimmed, func(r rune) bool { return !unicode.IsDigit(r) })
	if digits == "" {
		return 0, fmt.Errorf("invalid size: %s", value)
	}
	multiplier, ok := sizeUnits[strings.TrimSpace(trimmed[len(digits):])]
	if !ok {
		return 0, fmt.Errorf("unsupported size unit in %q", value)
	}

	n, err := strconv.ParseInt(strings.TrimSpace(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("size must not be negative: %s", value)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return n * multiplier, nil
}
