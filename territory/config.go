package territory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of a partition run: input/output file
// locations, the working CRS, the engine parameters, and the result cache.
type Config struct {
	CRS     CRSConfig     `yaml:"crs"`
	Inputs  InputsConfig  `yaml:"inputs"`
	Outputs OutputsConfig `yaml:"outputs"`
	Params  ParamsConfig  `yaml:"params"`
	Cache   CacheConfig   `yaml:"cache"`
}

// CRSConfig names the projected working CRS as a UTM zone. All inputs must
// already be in this CRS; outputs are re-projected to lon/lat when
// ExportGeographic is set.
type CRSConfig struct {
	UTMZone          int  `yaml:"utmZone"`
	Southern         bool `yaml:"southern"`
	ExportGeographic bool `yaml:"exportGeographic"`
}

type InputsConfig struct {
	Boundary string `yaml:"boundary"`
	Assets   string `yaml:"assets"`
}

type OutputsConfig struct {
	Territories string `yaml:"territories"`
	Report      string `yaml:"report"`

	// Map is an optional rendered territory map (PNG, or SVG by
	// extension) for visual validation.
	Map string `yaml:"map"`
}

// ParamsConfig mirrors Params with YAML tags; unset fields inherit the
// defaults.
type ParamsConfig struct {
	MinAssetsPerOwner  *int     `yaml:"minAssetsPerOwner"`
	CanvasMargin       *float64 `yaml:"canvasMarginMeters"`
	DedupEpsilon       *float64 `yaml:"dedupEpsilonMeters"`
	ContainmentEpsilon *float64 `yaml:"containmentEpsilonMeters"`
	SampleFraction     *float64 `yaml:"sampleFraction"`
	FragmentPolicy     string   `yaml:"fragmentPolicy"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LoadConfig loads and validates the run configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required fields and parameter ranges.
func (c *Config) Validate() error {
	if c.Inputs.Boundary == "" {
		return fmt.Errorf("inputs.boundary is required")
	}
	if c.Inputs.Assets == "" {
		return fmt.Errorf("inputs.assets is required")
	}
	if c.CRS.ExportGeographic && (c.CRS.UTMZone < 1 || c.CRS.UTMZone > 60) {
		return fmt.Errorf("crs.utmZone must be 1-60 when crs.exportGeographic is set")
	}
	if _, err := c.EngineParams(); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required when cache.enabled is set")
	}
	return nil
}

// EngineParams resolves the configured parameters over the defaults.
func (c *Config) EngineParams() (Params, error) {
	p := DefaultParams()
	if v := c.Params.MinAssetsPerOwner; v != nil {
		p.MinAssetsPerOwner = *v
	}
	if v := c.Params.CanvasMargin; v != nil {
		p.CanvasMargin = *v
	}
	if v := c.Params.DedupEpsilon; v != nil {
		p.DedupEpsilon = *v
	}
	if v := c.Params.ContainmentEpsilon; v != nil {
		p.ContainmentEpsilon = *v
	}
	if v := c.Params.SampleFraction; v != nil {
		p.SampleFraction = *v
	}
	switch c.Params.FragmentPolicy {
	case "":
	case string(FragmentReport):
		p.FragmentPolicy = FragmentReport
	case string(FragmentDiscard):
		p.FragmentPolicy = FragmentDiscard
	default:
		return p, fmt.Errorf("params.fragmentPolicy must be %q or %q", FragmentReport, FragmentDiscard)
	}

	if p.MinAssetsPerOwner < 1 {
		return p, fmt.Errorf("params.minAssetsPerOwner must be at least 1")
	}
	// The margin must exceed the largest true Voronoi cell extent inside
	// the boundary or edge cells close too early; zero disables the frame
	// entirely, which is never valid.
	if p.CanvasMargin <= 0 {
		return p, fmt.Errorf("params.canvasMarginMeters must be positive")
	}
	if p.DedupEpsilon < 0 {
		return p, fmt.Errorf("params.dedupEpsilonMeters must not be negative")
	}
	if p.ContainmentEpsilon < 0 {
		return p, fmt.Errorf("params.containmentEpsilonMeters must not be negative")
	}
	if p.SampleFraction <= 0 || p.SampleFraction > 1 {
		return p, fmt.Errorf("params.sampleFraction must be in (0, 1]")
	}
	return p, nil
}
