package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Facility struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Slots        int    `mapstructure:"slots"`
	Prefix       string `mapstructure:"prefix"`
	Initial      string `mapstructure:"initial"`
	Address      string `mapstructure:"address"`
	PricePerHour int    `mapstructure:"price_per_hour"`
	OpeningHours string `mapstructure:"opening_hours"`
}

// SlotPrefix defaults to the upper-cased id followed by a dash (COEX-1, COEX-2, ...).
func (f Facility) SlotPrefix() string {
	if f.Prefix != "" {
		return f.Prefix
	}
	return strings.ToUpper(f.ID) + "-"
}

type Config struct {
	API struct {
		Listen                string        `mapstructure:"listen"`
		AllowedOrigins        []string      `mapstructure:"allowed_origins"`
		LegacyFacility        string        `mapstructure:"legacy_facility"`
		RequestTimeoutSeconds int           `mapstructure:"request_timeout_seconds"`
		RequestTimeout        time.Duration `mapstructure:"-"`
	} `mapstructure:"api"`

	Simulation struct {
		IntervalMS int           `mapstructure:"interval_ms"`
		Interval   time.Duration `mapstructure:"-"`
		MinToggles int           `mapstructure:"min_toggles"`
		MaxToggles int           `mapstructure:"max_toggles"`
		// Seed makes slot seeding and toggling reproducible; 0 means random.
		Seed uint64 `mapstructure:"seed"`
	} `mapstructure:"simulation"`

	Stream struct {
		Buffer              int           `mapstructure:"buffer"`
		MaxDrops            int           `mapstructure:"max_drops"`
		WriteTimeoutSeconds int           `mapstructure:"write_timeout_seconds"`
		WriteTimeout        time.Duration `mapstructure:"-"`
		PongWaitSeconds     int           `mapstructure:"pong_wait_seconds"`
		PongWait            time.Duration `mapstructure:"-"`
		SendInitial         bool          `mapstructure:"send_initial"`
	} `mapstructure:"stream"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	Facilities []Facility `mapstructure:"facilities"`
}

func DefaultFacilities() []Facility {
	return []Facility{
		{ID: "lotteworld", Name: "LOTTEWORLD MALL", Slots: 250, Address: "240 Olympic-ro, Songpa-gu, Seoul", PricePerHour: 3000, OpeningHours: "10:00 AM - 10:00 PM"},
		{ID: "jakarta", Name: "JAKARTA MALL", Slots: 180, Address: "Jl. MH Thamrin No.1, Jakarta", PricePerHour: 2500, OpeningHours: "9:00 AM - 9:00 PM"},
		{ID: "paskal", Name: "PASKAL", Slots: 150, Address: "Jl. Pasir Kaliki No.25-27, Bandung", PricePerHour: 2000, OpeningHours: "10:00 AM - 10:00 PM"},
		{ID: "coex", Name: "COEX MALL", Slots: 300, Address: "513 Yeongdong-daero, Gangnam-gu, Seoul", PricePerHour: 3500, OpeningHours: "10:00 AM - 10:00 PM"},
		{ID: "dashboard", Name: "Dashboard", Slots: 10, Prefix: "A", Initial: "available"},
	}
}

// Load reads defaults, an optional .env file, PARKNOW_* environment variables
// and, when path is set, a YAML config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("api.listen", "0.0.0.0:8000")
	v.SetDefault("api.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("api.legacy_facility", "dashboard")
	v.SetDefault("api.request_timeout_seconds", 30)
	v.SetDefault("simulation.interval_ms", 3000)
	v.SetDefault("simulation.min_toggles", 1)
	v.SetDefault("simulation.max_toggles", 3)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("stream.buffer", 4)
	v.SetDefault("stream.max_drops", 10)
	v.SetDefault("stream.write_timeout_seconds", 10)
	v.SetDefault("stream.pong_wait_seconds", 60)
	v.SetDefault("stream.send_initial", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)

	// Env overrides
	v.SetEnvPrefix("PARKNOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(c.Facilities) == 0 {
		c.Facilities = DefaultFacilities()
	}
	c.resolve()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) resolve() {
	c.API.RequestTimeout = time.Duration(c.API.RequestTimeoutSeconds) * time.Second
	c.Simulation.Interval = time.Duration(c.Simulation.IntervalMS) * time.Millisecond
	c.Stream.WriteTimeout = time.Duration(c.Stream.WriteTimeoutSeconds) * time.Second
	c.Stream.PongWait = time.Duration(c.Stream.PongWaitSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.Simulation.Interval <= 0 {
		return fmt.Errorf("simulation.interval_ms must be positive")
	}
	if c.Simulation.MinToggles < 1 || c.Simulation.MaxToggles < c.Simulation.MinToggles {
		return fmt.Errorf("simulation toggles must satisfy 1 <= min_toggles (%d) <= max_toggles (%d)",
			c.Simulation.MinToggles, c.Simulation.MaxToggles)
	}
	if c.Stream.Buffer < 1 {
		return fmt.Errorf("stream.buffer must be at least 1")
	}
	seen := make(map[string]bool, len(c.Facilities))
	for _, f := range c.Facilities {
		if f.ID == "" {
			return fmt.Errorf("facility id is required")
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate facility id %q", f.ID)
		}
		seen[f.ID] = true
		if f.Slots <= 0 {
			return fmt.Errorf("facility %q: slots must be positive", f.ID)
		}
	}
	if c.API.LegacyFacility != "" && !seen[c.API.LegacyFacility] {
		return fmt.Errorf("api.legacy_facility %q is not a configured facility", c.API.LegacyFacility)
	}
	return nil
}
