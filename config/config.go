// Package config loads the analysis configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"workreq/regress"
	"workreq/survey"
)

// Variant configures one dataset variant of the analysis.
type Variant struct {
	Name string `yaml:"name"`
	// Path is the extract to read; empty skips the variant.
	Path       string               `yaml:"path"`
	PolicyYear int                  `yaml:"policy_year"`
	Columns    survey.Columns       `yaml:"columns"`
	Design     survey.DesignOptions `yaml:"design"`
	// Reshape, when set, turns a wide two-wave extract into person-period rows first.
	Reshape *survey.ReshapeOptions `yaml:"reshape"`
}

// Rules returns the shared recoding rules with this variant's policy year.
func (v Variant) Rules(base survey.Rules) survey.Rules {
	if v.PolicyYear != 0 {
		base.PolicyYear = v.PolicyYear
	}
	return base
}

type Log struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

type Config struct {
	Rules       survey.Rules       `yaml:"rules"`
	Eligibility survey.Eligibility `yaml:"eligibility"`
	Cross       Variant            `yaml:"cross"`
	Panel       Variant            `yaml:"panel"`
	Outcomes    []string           `yaml:"outcomes"`
	Workers     int                `yaml:"workers"`
	Log         Log                `yaml:"log"`
	OutputDir   string             `yaml:"output_dir"`
	Postgres    string             `yaml:"postgres"`
}

// Default returns the Georgia / South Dakota analysis over an ACS
// cross-section and a two-wave CPS ASEC panel.
func Default() *Config {
	panelCols := survey.IPUMSColumns()
	panelCols.Year = "year"

	reshape := survey.DefaultReshapeOptions()

	return &Config{
		Rules:       survey.DefaultRules(),
		Eligibility: survey.DefaultEligibility(),
		Cross: Variant{
			Name:       "cross",
			PolicyYear: 2023,
			Columns:    survey.IPUMSColumns(),
			Design: survey.DesignOptions{
				Weight:    "PERWT",
				Cluster:   "CLUSTER",
				Strata:    "STRATA",
				Nest:      true,
				Singleton: survey.SingletonAdjust,
			},
		},
		Panel: Variant{
			Name:       "panel",
			PolicyYear: 2,
			Columns:    panelCols,
			Design: survey.DesignOptions{
				Weight:    "ASECWT",
				Cluster:   "CPSIDP",
				Singleton: survey.SingletonAdjust,
			},
			Reshape: &reshape,
		},
		Outcomes:  append([]string(nil), regress.Outcomes...),
		Workers:   4,
		Log:       Log{Mode: "dev", Level: "info"},
		OutputDir: "results",
	}
}

// Load reads path over the defaults. Keys absent from the file keep
// their default value; code maps merge key by key.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	r := c.Rules
	if r.TreatedState <= 0 || r.ComparisonState <= 0 {
		errs = append(errs, errors.New("rules: state codes must be positive"))
	}
	if r.TreatedState == r.ComparisonState {
		errs = append(errs, fmt.Errorf("rules: treated and comparison state are both %d", r.TreatedState))
	}
	if len(r.AgeBands) == 0 {
		errs = append(errs, errors.New("rules: no age bands"))
	}
	for _, b := range r.AgeBands {
		if b.Label == "" || b.Min > b.Max {
			errs = append(errs, fmt.Errorf("rules: bad age band %+v", b))
		}
	}

	e := c.Eligibility
	if e.AgeMin > e.AgeMax {
		errs = append(errs, fmt.Errorf("eligibility: age_min %v > age_max %v", e.AgeMin, e.AgeMax))
	}

	names := make(map[string]bool)
	for _, v := range []Variant{c.Cross, c.Panel} {
		if v.Name == "" {
			errs = append(errs, errors.New("variant without a name"))
			continue
		}
		if names[v.Name] {
			errs = append(errs, fmt.Errorf("duplicate variant name %q", v.Name))
		}
		names[v.Name] = true
		if v.Design.Weight == "" {
			errs = append(errs, fmt.Errorf("%s: design.weight is required", v.Name))
		}
		if v.Design.Singleton != "" && !v.Design.Singleton.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown singleton policy %q", v.Name, v.Design.Singleton))
		}
		if v.Reshape != nil {
			if v.Reshape.IndexColumn == "" || len(v.Reshape.Suffixes) < 2 {
				errs = append(errs, fmt.Errorf("%s: reshape needs an index column and at least two suffixes", v.Name))
			}
		}
	}

	if len(c.Outcomes) == 0 {
		errs = append(errs, errors.New("no outcomes"))
	}
	var probe survey.Record
	for _, o := range c.Outcomes {
		if _, ok := probe.Flag(o); !ok {
			errs = append(errs, fmt.Errorf("unknown outcome %q", o))
		}
	}

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	switch c.Log.Mode {
	case "dev", "development", "prod", "production":
	default:
		errs = append(errs, fmt.Errorf("unknown log mode %q", c.Log.Mode))
	}

	return errors.Join(errs...)
}

// Variants returns the configured variants in run order.
func (c *Config) Variants() []Variant {
	return []Variant{c.Cross, c.Panel}
}

// Dump renders the configuration as YAML, for run provenance.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}
