package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration for the fraud detection engine
type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Redis     RedisConfig     `koanf:"redis"`
	Detection DetectionConfig `koanf:"detection"`
}

// ServerConfig configures the optional HTTP front-end
type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RedisConfig configures the optional distributed velocity store
type RedisConfig struct {
	Enabled      bool          `koanf:"enabled"`
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// OpTimeout bounds every store call so a Redis stall cannot block the
	// engine; failures fall back to local memory.
	OpTimeout time.Duration `koanf:"op_timeout"`
}

// DetectionConfig groups the per-analyzer policies
type DetectionConfig struct {
	Thresholds ThresholdConfig `koanf:"thresholds"`
	Velocity   VelocityConfig  `koanf:"velocity"`
	Device     DeviceConfig    `koanf:"device"`
	IP         IPConfig        `koanf:"ip"`
	Behavior   BehaviorConfig  `koanf:"behavior"`
	Scoring    ScoringConfig   `koanf:"scoring"`
	Alerting   AlertConfig     `koanf:"alerting"`
}

// ThresholdConfig carries the global risk thresholds
type ThresholdConfig struct {
	HighRisk                   float64       `koanf:"high_risk" validate:"gt=0,lte=1"`
	MediumRisk                 float64       `koanf:"medium_risk" validate:"gt=0,lte=1"`
	MaxVelocityPerMinute       int           `koanf:"max_velocity_per_minute" validate:"gt=0"`
	MinTimeBetweenTrades       time.Duration `koanf:"min_time_between_trades"`
	MaxDailyVolume             float64       `koanf:"max_daily_volume" validate:"gt=0"`
	SuspiciousVolumeMultiplier float64       `koanf:"suspicious_volume_multiplier" validate:"gt=0"`
}

// ActionLimits bounds one action type across the four velocity windows
type ActionLimits struct {
	HourlyCount  int64   `koanf:"hourly_count" validate:"gt=0"`
	DailyCount   int64   `koanf:"daily_count" validate:"gt=0"`
	WeeklyCount  int64   `koanf:"weekly_count" validate:"gt=0"`
	MonthlyCount int64   `koanf:"monthly_count" validate:"gt=0"`
	MaxAmount    float64 `koanf:"max_amount" validate:"gte=0"`
	DailyAmount  float64 `koanf:"daily_amount" validate:"gte=0"`
}

// VelocityConfig maps action types to their window limits
type VelocityConfig struct {
	Limits map[string]ActionLimits `koanf:"limits"`
}

// DeviceConfig is the device-fingerprint policy
type DeviceConfig struct {
	MaxDevicesPerUser   int      `koanf:"max_devices_per_user" validate:"gt=0"`
	BlockKnownEmulators bool     `koanf:"block_known_emulators"`
	BlockKnownVMs       bool     `koanf:"block_known_vms"`
	RequiredSignals     []string `koanf:"required_signals"`
}

// IPConfig is the IP reputation policy
type IPConfig struct {
	BlockTor          bool     `koanf:"block_tor"`
	BlockVPN          bool     `koanf:"block_vpn"`
	BlockedCountries  []string `koanf:"blocked_countries"`
	MaxTravelSpeedKmh float64  `koanf:"max_travel_speed_kmh" validate:"gt=0"`
}

// BehaviorConfig is the behavioral-anomaly policy
type BehaviorConfig struct {
	AnomalyThreshold       float64 `koanf:"anomaly_threshold" validate:"gt=0"`
	MinSessionsForBaseline int64   `koanf:"min_sessions_for_baseline" validate:"gt=0"`
	// UpdateOnAnomaly controls whether flagged actions still update the
	// baseline. True matches the historical behavior of the system.
	UpdateOnAnomaly bool `koanf:"update_on_anomaly"`
}

// ScoringConfig tunes the risk scoring engine
type ScoringConfig struct {
	AssessmentTTL time.Duration `koanf:"assessment_ttl"`
	MLEnabled     bool          `koanf:"ml_enabled"`
}

// AlertConfig tunes alert generation
type AlertConfig struct {
	Cooldown      time.Duration `koanf:"cooldown"`
	MinAlertScore float64       `koanf:"min_alert_score" validate:"gte=0,lte=1"`
}

// Default returns the documented default configuration
func Default() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:      false,
			URL:          "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			OpTimeout:    50 * time.Millisecond,
		},
		Detection: DetectionConfig{
			Thresholds: ThresholdConfig{
				HighRisk:                   0.7,
				MediumRisk:                 0.4,
				MaxVelocityPerMinute:       10,
				MinTimeBetweenTrades:       5 * time.Second,
				MaxDailyVolume:             1_000_000,
				SuspiciousVolumeMultiplier: 5,
			},
			Velocity: VelocityConfig{
				Limits: map[string]ActionLimits{
					"deposit":    {HourlyCount: 5, DailyCount: 20, WeeklyCount: 50, MonthlyCount: 120, MaxAmount: 100_000, DailyAmount: 250_000},
					"withdrawal": {HourlyCount: 3, DailyCount: 10, WeeklyCount: 30, MonthlyCount: 60, MaxAmount: 50_000, DailyAmount: 100_000},
					"bet":        {HourlyCount: 200, DailyCount: 1000, WeeklyCount: 5000, MonthlyCount: 15000, MaxAmount: 10_000, DailyAmount: 500_000},
					"trade":      {HourlyCount: 300, DailyCount: 2000, WeeklyCount: 10000, MonthlyCount: 30000, MaxAmount: 250_000, DailyAmount: 1_000_000},
					"login":      {HourlyCount: 20, DailyCount: 50, WeeklyCount: 200, MonthlyCount: 500},
					"transfer":   {HourlyCount: 5, DailyCount: 15, WeeklyCount: 40, MonthlyCount: 100, MaxAmount: 50_000, DailyAmount: 100_000},
				},
			},
			Device: DeviceConfig{
				MaxDevicesPerUser:   5,
				BlockKnownEmulators: true,
				BlockKnownVMs:       false,
				RequiredSignals:     []string{"user_agent", "platform", "timezone", "language"},
			},
			IP: IPConfig{
				BlockTor:          true,
				BlockVPN:          false,
				BlockedCountries:  []string{"KP", "IR", "SY", "CU"},
				MaxTravelSpeedKmh: 900,
			},
			Behavior: BehaviorConfig{
				AnomalyThreshold:       2.5,
				MinSessionsForBaseline: 5,
				UpdateOnAnomaly:        true,
			},
			Scoring: ScoringConfig{
				AssessmentTTL: 24 * time.Hour,
				MLEnabled:     false,
			},
			Alerting: AlertConfig{
				Cooldown:      300 * time.Second,
				MinAlertScore: 0.7,
			},
		},
	}
}

// Load builds configuration from defaults, an optional YAML file, and
// FRAUD_-prefixed environment variables, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("FRAUD_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "FRAUD_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural constraints and cross-field invariants
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if c.Detection.Thresholds.MediumRisk >= c.Detection.Thresholds.HighRisk {
		return fmt.Errorf("validating config: medium_risk must be below high_risk")
	}
	for action, limits := range c.Detection.Velocity.Limits {
		if limits.HourlyCount > limits.DailyCount {
			return fmt.Errorf("validating config: %s hourly_count exceeds daily_count", action)
		}
	}
	return nil
}
