// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"

	apperrors "github.com/ntduc11/statgenSTA/internal/errors"
)

// Config holds the runtime settings of the analysis service
type Config struct {
	// Port is the HTTP listen port for the results API
	Port string
	// DatabaseURL enables fit summary persistence when set
	DatabaseURL string

	// Engine overrides the design default engine when set (lmm, spats, gls)
	Engine string
	// Criterion ranks covariance candidates (AIC or BIC)
	Criterion string
	// NSegRow/NSegCol are the spline segment counts; zero lets the spatial
	// engine pick per trial
	NSegRow int
	NSegCol int
	// RLimit overrides the derived outlier threshold; zero derives it from
	// the observation count
	RLimit float64
	// MaxParallel caps concurrent trial fits; zero means unbounded
	MaxParallel int

	// GLSLicense enables the explicit-covariance engine
	GLSLicense bool
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Engine:      os.Getenv("STA_ENGINE"),
		Criterion:   getEnvOrDefault("STA_CRITERION", "AIC"),
		NSegRow:     getEnvIntOrDefault("STA_NSEG_ROW", 0),
		NSegCol:     getEnvIntOrDefault("STA_NSEG_COL", 0),
		RLimit:      getEnvFloatOrDefault("STA_RLIMIT", 0),
		MaxParallel: getEnvIntOrDefault("STA_MAX_PARALLEL", 0),
		GLSLicense:  getEnvBoolOrDefault("STA_GLS_LICENSE", false),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Engine {
	case "", "lmm", "spats", "gls":
	default:
		return apperrors.ConfigInvalid("STA_ENGINE must be one of lmm, spats, gls")
	}
	switch c.Criterion {
	case "AIC", "BIC":
	default:
		return apperrors.ConfigInvalid("STA_CRITERION must be AIC or BIC")
	}
	if c.RLimit < 0 {
		return apperrors.ConfigInvalid("STA_RLIMIT must not be negative")
	}
	if c.MaxParallel < 0 {
		return apperrors.ConfigInvalid("STA_MAX_PARALLEL must not be negative")
	}
	if c.NSegRow < 0 || c.NSegCol < 0 {
		return apperrors.ConfigInvalid("spline segment counts must not be negative")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
