package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// AllZones selects every configured zone.
const AllZones = "all"

// ErrUnknownZone is returned by Select for a name that is not configured.
var ErrUnknownZone = errors.New("zone not configured")

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Debug bool                  `yaml:"debug"`
	Loop  bool                  `yaml:"loop"`
	Delay int                   `yaml:"delay"` // seconds between cycles
	Zones map[string]ZoneConfig `yaml:"zones"`
}

// Load reads the configuration from the path specified by the
// SEED_DNS_CONFIG environment variable, defaulting to "configs/config.yaml".
func Load() (*Config, error) {
	path := os.Getenv("SEED_DNS_CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration file at path. A .env file next to it
// is loaded first so that ${VAR} references in zone settings can use it;
// variables already set in the environment win.
func LoadFromPath(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for name, z := range cfg.Zones {
		z.Name = name
		z.expandEnv()
		cfg.Zones[name] = z
	}
	return &cfg, nil
}

// Validate checks the whole configuration before any network activity.
func (c *Config) Validate() error {
	if len(c.Zones) == 0 {
		return fmt.Errorf("config: no zones configured")
	}
	if c.Loop && c.Delay <= 0 {
		return fmt.Errorf("config: delay must be positive when loop is enabled, got %d", c.Delay)
	}
	for _, name := range c.ZoneNames() {
		if name == AllZones {
			return fmt.Errorf("config: zone name %q is reserved", AllZones)
		}
		z := c.Zones[name]
		if err := z.Validate(); err != nil {
			return fmt.Errorf("config: zone %q: %w", name, err)
		}
	}
	return nil
}

// ZoneNames returns the configured zone names in sorted order.
func (c *Config) ZoneNames() []string {
	names := make([]string, 0, len(c.Zones))
	for n := range c.Zones {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select resolves a zone selection: AllZones yields every zone, any other
// value must name a configured zone.
func (c *Config) Select(name string) ([]string, error) {
	if name == AllZones {
		return c.ZoneNames(), nil
	}
	if _, ok := c.Zones[name]; !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownZone)
	}
	return []string{name}, nil
}

// Interval is the pause between two cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Delay) * time.Second
}
