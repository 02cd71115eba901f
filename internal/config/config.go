// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/drfirst/go-flowsheet/internal/app"
	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
	"github.com/drfirst/go-flowsheet/internal/domain/dosing"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	SQLitePath  string `mapstructure:"SQLITE_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`

	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`

	MaxWeight            float64 `mapstructure:"MAX_WEIGHT"`
	DoseMgPerKg          float64 `mapstructure:"DOSE_MG_PER_KG"`
	ConcentrationMgPerML float64 `mapstructure:"CONCENTRATION_MG_PER_ML"`
	InfusionIntervalDays int     `mapstructure:"INFUSION_INTERVAL_DAYS"`
	WorkflowStepsFile    string  `mapstructure:"WORKFLOW_STEPS_FILE"`
	ApoE4Status          string  `mapstructure:"APOE4_STATUS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_FILE",
	"STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL",
	"KAFKA_BROKERS",
	"OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
	"MAX_WEIGHT", "DOSE_MG_PER_KG", "CONCENTRATION_MG_PER_ML",
	"INFUSION_INTERVAL_DAYS", "WORKFLOW_STEPS_FILE", "APOE4_STATUS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	regimen := dosing.DefaultRegimen()
	defaults := app.DefaultConfig()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "flowsheet.db")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)
	v.SetDefault("MAX_WEIGHT", regimen.MaxWeight)
	v.SetDefault("DOSE_MG_PER_KG", regimen.MgPerKg)
	v.SetDefault("CONCENTRATION_MG_PER_ML", regimen.ConcentrationMgPerML)
	v.SetDefault("INFUSION_INTERVAL_DAYS", defaults.InfusionIntervalDays)
	v.SetDefault("APOE4_STATUS", string(defaults.ApoE4Status))

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if err := c.Regimen().Validate(); err != nil {
		return fmt.Errorf("dosing regimen: %w", err)
	}
	if c.InfusionIntervalDays <= 0 {
		return fmt.Errorf("INFUSION_INTERVAL_DAYS must be positive, got %d", c.InfusionIntervalDays)
	}
	if _, err := clinical.ParseApoE4Status(c.ApoE4Status); err != nil {
		return fmt.Errorf("APOE4_STATUS: %w", err)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be within [0, 1], got %v", c.TraceSampleRate)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Regimen returns the configured dosing regimen.
func (c *Config) Regimen() dosing.Regimen {
	return dosing.Regimen{
		MgPerKg:              c.DoseMgPerKg,
		ConcentrationMgPerML: c.ConcentrationMgPerML,
		MaxWeight:            c.MaxWeight,
	}
}

// Session returns the session parameters. Call Validate first.
func (c *Config) Session() app.Config {
	sc := app.DefaultConfig()
	sc.Regimen = c.Regimen()
	sc.InfusionIntervalDays = c.InfusionIntervalDays
	sc.ApoE4Status, _ = clinical.ParseApoE4Status(c.ApoE4Status)
	return sc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
