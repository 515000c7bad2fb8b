package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"battery-dispatch/internal/model"
	"battery-dispatch/internal/strategy"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: load battery parameters from a separate YAML. If both
	// BatteryFile and Battery are provided, Battery overrides BatteryFile.
	BatteryFile string            `yaml:"battery_file"`
	Battery     BatteryConfig     `yaml:"battery"`
	Prices      PricesConfig      `yaml:"prices"`
	Reservation ReservationConfig `yaml:"reservation"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Feed        FeedConfig        `yaml:"feed"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	History     HistoryConfig     `yaml:"history"`
	API         APIConfig         `yaml:"api"`
	Log         LogConfig         `yaml:"log"`
}

type BatteryConfig struct {
	Name                string  `yaml:"name"`
	CapacityKWh         float64 `yaml:"capacity_kwh"`
	MaxChargeKW         float64 `yaml:"max_charge_kw"`
	MaxDischargeKW      float64 `yaml:"max_discharge_kw"`
	RoundTripEfficiency float64 `yaml:"round_trip_efficiency"`
	MinSoC              float64 `yaml:"min_soc"`
	MaxSoC              float64 `yaml:"max_soc"`
}

type PricesConfig struct {
	ImportMarkup  float64 `yaml:"import_markup"`
	ExportMarkup  float64 `yaml:"export_markup"`
	CheapFraction float64 `yaml:"cheap_fraction"`
	TopFraction   float64 `yaml:"top_fraction"`
	NextFraction  float64 `yaml:"next_fraction"`
	MinMargin     float64 `yaml:"min_margin"`
	MidShaveBias  float64 `yaml:"mid_shave_bias"`
}

type ReservationConfig struct {
	Enabled            bool    `yaml:"enabled"`
	ReserveCapFraction float64 `yaml:"reserve_cap_fraction"`
	ActiveMonths       []int   `yaml:"active_months"`
	WindowStartHour    int     `yaml:"window_start_hour"`
	WindowEndHour      int     `yaml:"window_end_hour"`
	// Pointer so an absent key defaults to true.
	SkipExpensiveHours *bool `yaml:"skip_expensive_hours"`
}

type DispatchConfig struct {
	FloorSoC          float64 `yaml:"floor_soc"`
	HysteresisSoC     float64 `yaml:"hysteresis_soc"`
	CapHysteresisSoC  float64 `yaml:"cap_hysteresis_soc"`
	NoiseFloorKW      float64 `yaml:"noise_floor_kw"`
	GridChargeAllowed bool    `yaml:"grid_charge_allowed"`
	GoalChargeAllowed bool    `yaml:"goal_charge_allowed"`
	IntervalSeconds   int     `yaml:"interval_seconds"`
}

type FeedConfig struct {
	BaseURL         string `yaml:"base_url"`
	Zone            string `yaml:"zone"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicPrefix    string `yaml:"topic_prefix"`
	TelemetryTopic string `yaml:"telemetry_topic"`
}

type HistoryConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

type APIConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads, merges, defaults and validates the configuration. A .env file
// next to the process is loaded first; selected env vars override the YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(c)
	setDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config without validation. Useful for
// debugging partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.BatteryFile != "" {
		batteryPath := c.BatteryFile
		if !filepath.IsAbs(batteryPath) {
			cand := filepath.Join(filepath.Dir(path), batteryPath)
			if _, err := os.Stat(cand); err == nil {
				batteryPath = cand
			}
		}
		loaded, err := loadBatteryFile(batteryPath)
		if err != nil {
			return nil, err
		}
		c.Battery = MergeBattery(loaded, c.Battery)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Battery.ToModelParams().Validate(); err != nil {
		return fmt.Errorf("battery config invalid: %w", err)
	}
	p := c.Prices
	if p.CheapFraction < 0 || p.CheapFraction > 1 || p.TopFraction < 0 || p.TopFraction > 1 || p.NextFraction < 0 || p.NextFraction > 1 {
		return errors.New("price fractions must be in [0, 1]")
	}
	if c.Dispatch.FloorSoC < c.Battery.MinSoC || c.Dispatch.FloorSoC > c.Battery.MaxSoC {
		return errors.New("dispatch.floor_soc must be within the battery SoC bounds")
	}
	r := c.Reservation
	if r.Enabled {
		if r.WindowStartHour < 0 || r.WindowStartHour > 23 || r.WindowEndHour < 0 || r.WindowEndHour > 23 {
			return errors.New("reservation window hours must be in [0, 23]")
		}
		for _, m := range r.ActiveMonths {
			if m < 1 || m > 12 {
				return fmt.Errorf("reservation.active_months: invalid month %d", m)
			}
		}
	}
	if c.Feed.Zone == "" {
		return errors.New("feed.zone is required")
	}
	return nil
}

func (b BatteryConfig) ToModelParams() model.BatteryParams {
	return model.BatteryParams{
		CapacityKWh:         b.CapacityKWh,
		MaxChargeKW:         b.MaxChargeKW,
		MaxDischargeKW:      b.MaxDischargeKW,
		RoundTripEfficiency: b.RoundTripEfficiency,
		MinSoC:              b.MinSoC,
		MaxSoC:              b.MaxSoC,
	}
}

// ToPolicy converts the reservation section to the scheduler's policy.
func (r ReservationConfig) ToPolicy() strategy.ReservationPolicy {
	months := make([]time.Month, 0, len(r.ActiveMonths))
	for _, m := range r.ActiveMonths {
		months = append(months, time.Month(m))
	}
	skip := true
	if r.SkipExpensiveHours != nil {
		skip = *r.SkipExpensiveHours
	}
	return strategy.ReservationPolicy{
		Enabled:            r.Enabled,
		ReserveCapFraction: r.ReserveCapFraction,
		ActiveMonths:       months,
		WindowStartHour:    r.WindowStartHour,
		WindowEndHour:      r.WindowEndHour,
		SkipExpensiveHours: skip,
	}
}

func (f FeedConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f FeedConfig) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLMinutes) * time.Minute
}

func (d DispatchConfig) Interval() time.Duration {
	return time.Duration(d.IntervalSeconds) * time.Second
}

type batteryFileWrapper struct {
	Battery BatteryConfig `yaml:"battery"`
}

func loadBatteryFile(path string) (BatteryConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return BatteryConfig{}, err
	}
	var w batteryFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return BatteryConfig{}, err
	}
	return w.Battery, nil
}

// MergeBattery overlays non-zero fields from override onto base.
func MergeBattery(base, override BatteryConfig) BatteryConfig {
	out := base
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.CapacityKWh != 0 {
		out.CapacityKWh = override.CapacityKWh
	}
	if override.MaxChargeKW != 0 {
		out.MaxChargeKW = override.MaxChargeKW
	}
	if override.MaxDischargeKW != 0 {
		out.MaxDischargeKW = override.MaxDischargeKW
	}
	if override.RoundTripEfficiency != 0 {
		out.RoundTripEfficiency = override.RoundTripEfficiency
	}
	if override.MinSoC != 0 {
		out.MinSoC = override.MinSoC
	}
	if override.MaxSoC != 0 {
		out.MaxSoC = override.MaxSoC
	}
	return out
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func setDefaults(c *Config) {
	if c.Prices.CheapFraction == 0 {
		c.Prices.CheapFraction = 0.30
	}
	if c.Prices.TopFraction == 0 {
		c.Prices.TopFraction = 0.10
	}
	if c.Prices.NextFraction == 0 {
		c.Prices.NextFraction = 0.30
	}
	if c.Prices.MidShaveBias == 0 {
		c.Prices.MidShaveBias = 1.10
	}
	if c.Dispatch.FloorSoC == 0 {
		c.Dispatch.FloorSoC = c.Battery.MinSoC
	}
	if c.Dispatch.HysteresisSoC == 0 {
		c.Dispatch.HysteresisSoC = 0.05
	}
	if c.Dispatch.CapHysteresisSoC == 0 {
		c.Dispatch.CapHysteresisSoC = 0.02
	}
	if c.Dispatch.NoiseFloorKW == 0 {
		c.Dispatch.NoiseFloorKW = 0.05
	}
	if c.Dispatch.IntervalSeconds <= 0 {
		c.Dispatch.IntervalSeconds = 60
	}
	if c.Feed.TimeoutSeconds <= 0 {
		c.Feed.TimeoutSeconds = 30
	}
	if c.History.DSN == "" {
		c.History.DSN = "battery-dispatch.db"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
