// Package config holds the run configuration: a YAML file merged over
// defaults, with CLI flags applied on top by the command layer. A
// Config is validated once, before any patient simulates; everything
// that fails here is run-fatal by definition.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Known output formats.
const (
	FormatFHIR   = "fhir"
	FormatCSV    = "csv"
	FormatNDJSON = "ndjson"
)

// Output configures where completed records go.
type Output struct {
	// Dir receives exported files. Empty disables file export.
	Dir string `yaml:"dir,omitempty"`

	// Formats lists the exports to write: fhir, csv, ndjson.
	Formats []string `yaml:"formats,omitempty"`

	// Database is a SQLite sink path. Empty disables the sink.
	Database string `yaml:"database,omitempty"`
}

// Config is one run's full configuration.
type Config struct {
	// ModulesDir is the directory of module JSON files.
	ModulesDir string `yaml:"modules_dir"`

	// Population is the number of patients to generate.
	Population int `yaml:"population"`

	// Seed is the run seed. Zero is a valid seed, not an unset marker;
	// runs that want entropy pass an explicit seed.
	Seed uint64 `yaml:"seed"`

	// End is the simulation end date, YYYY-MM-DD.
	End string `yaml:"end"`

	// StepHours is the clock step. Zero means the engine default.
	StepHours int `yaml:"step_hours,omitempty"`

	// StepBudget caps states per instance per tick. Zero means the
	// engine default.
	StepBudget int `yaml:"step_budget,omitempty"`

	// Workers sizes the pool. Zero means GOMAXPROCS.
	Workers int `yaml:"workers,omitempty"`

	// LenientWeights renormalizes any positive distributed weight sum.
	LenientWeights bool `yaml:"lenient_weights,omitempty"`

	// UnmatchedEndsModule completes a module on an unmatched conditional
	// instead of failing the patient.
	UnmatchedEndsModule bool `yaml:"unmatched_ends_module,omitempty"`

	// OnlyLiving regenerates patients who die before End.
	OnlyLiving bool `yaml:"only_living,omitempty"`

	// MaxAttempts bounds only-living regeneration. Zero means the
	// engine default.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// MinAge and MaxAge bound generated birth dates, in years at End.
	MinAge int `yaml:"min_age,omitempty"`
	MaxAge int `yaml:"max_age,omitempty"`

	// MaleRatio is the probability a generated patient is male. Zero
	// means an even split.
	MaleRatio float64 `yaml:"male_ratio,omitempty"`

	Output Output `yaml:"output,omitempty"`
}

// Default returns the baseline configuration a file and flags override.
func Default() Config {
	return Config{
		Population: 100,
		End:        time.Now().UTC().Format(time.DateOnly),
		MaxAge:     90,
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected so typos fail the run instead of silently using a default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// EndDate parses the configured end date.
func (c Config) EndDate() (time.Time, error) {
	return time.Parse(time.DateOnly, c.End)
}

// Step converts the configured step to a duration, zero when unset.
func (c Config) Step() time.Duration {
	return time.Duration(c.StepHours) * time.Hour
}

// Validate checks every run-fatal constraint.
func (c Config) Validate() error {
	if c.ModulesDir == "" {
		return fmt.Errorf("modules_dir is required")
	}
	if c.Population <= 0 {
		return fmt.Errorf("population must be positive, got %d", c.Population)
	}
	if _, err := c.EndDate(); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if c.StepHours < 0 {
		return fmt.Errorf("step_hours must be non-negative, got %d", c.StepHours)
	}
	if c.StepBudget < 0 {
		return fmt.Errorf("step_budget must be non-negative, got %d", c.StepBudget)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be non-negative, got %d", c.MaxAttempts)
	}
	if c.MinAge < 0 || c.MaxAge < c.MinAge {
		return fmt.Errorf("bad age window [%d, %d]", c.MinAge, c.MaxAge)
	}
	if c.MaleRatio < 0 || c.MaleRatio > 1 {
		return fmt.Errorf("male_ratio %v is not a probability", c.MaleRatio)
	}
	for _, f := range c.Output.Formats {
		switch f {
		case FormatFHIR, FormatCSV, FormatNDJSON:
		default:
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	if len(c.Output.Formats) > 0 && c.Output.Dir == "" {
		return fmt.Errorf("output formats configured without an output dir")
	}
	return nil
}
