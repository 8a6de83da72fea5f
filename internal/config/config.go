package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// PollNumberPolicy selects how poll identifiers without a numeric prefix
// are handled by the vote loader. The upstream data is inconsistent on
// this point, so the behavior is configurable rather than hard-coded.
const (
	// PollNumberExclude drops rows whose poll identifier has no numeric
	// prefix after special-voting rows have been segregated.
	PollNumberExclude = "exclude"
	// PollNumberZero keeps such rows with a poll number of zero.
	PollNumberZero = "zero"
)

// Config holds all application configuration.
type Config struct {
	// Env is the runtime environment (controls log formatting/level).
	Env string `validate:"required,oneof=development production test"`
	// DataDir is where downloaded and partitioned archives, riding maps
	// and centroid caches live.
	DataDir string `validate:"required"`
	// OutputDir is where exported map data is written.
	OutputDir string `validate:"required"`
	// PollNumberPolicy is one of "exclude" or "zero".
	PollNumberPolicy string `validate:"required,oneof=exclude zero"`
	// SimplifyTolerance is the tolerance (in coordinate degrees) used by
	// the simplification levels of the robust dissolve cascade.
	SimplifyTolerance float64 `validate:"gte=0"`
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("ENV", "development")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("OUTPUT_DIR", "output")
	v.SetDefault("POLL_NUMBER_POLICY", PollNumberExclude)
	v.SetDefault("SIMPLIFY_TOLERANCE", 1e-5)

	// Bind environment variables (VOTEMAP_DATA_DIR, etc.)
	v.SetEnvPrefix("VOTEMAP")
	v.AutomaticEnv()

	cfg := &Config{
		Env:               v.GetString("ENV"),
		DataDir:           v.GetString("DATA_DIR"),
		OutputDir:         v.GetString("OUTPUT_DIR"),
		PollNumberPolicy:  v.GetString("POLL_NUMBER_POLICY"),
		SimplifyTolerance: v.GetFloat64("SIMPLIFY_TOLERANCE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("field %s failed on rule %q", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}

// EnsureDirs creates the data and output directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.OutputDir} {
		if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
