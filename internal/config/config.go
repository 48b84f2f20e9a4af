package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // school.timezone must resolve on hosts without a zone database

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Holiday and attendance source kinds
const (
	SourceAPI      = "api"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// EnvPrefix prefixes environment overrides: school.id -> SCHOOL_CALENDAR_SCHOOL_ID
const EnvPrefix = "SCHOOL_CALENDAR"

// Config represents the application configuration
type Config struct {
	School     SchoolConfig     `mapstructure:"school"`
	API        APIConfig        `mapstructure:"api"`
	Holidays   HolidaysConfig   `mapstructure:"holidays"`
	Attendance AttendanceConfig `mapstructure:"attendance"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
}

// SchoolConfig identifies the school and its local time zone
type SchoolConfig struct {
	ID       string `mapstructure:"id" validate:"required"`
	Timezone string `mapstructure:"timezone"` // IANA name, e.g. Asia/Kolkata; empty means local
}

// APIConfig represents the school operations API configuration
type APIConfig struct {
	BaseURL         string `mapstructure:"base_url" validate:"omitempty,url"`
	Token           string `mapstructure:"token"`         // may reference env vars: ${SCHOOL_API_TOKEN}
	TokenCommand    string `mapstructure:"token_command"` // prints a token on stdout; wins over token
	RefreshInterval string `mapstructure:"refresh_interval"`
	Timeout         string `mapstructure:"timeout"`
	Retries         int    `mapstructure:"retries" validate:"gte=0,lte=10"`
}

// HolidaysConfig selects where holidays come from
type HolidaysConfig struct {
	Source       string `mapstructure:"source" validate:"omitempty,oneof=api file postgres"`
	File         string `mapstructure:"file"`
	FallbackFile string `mapstructure:"fallback_file"` // used when the primary source fails
}

// AttendanceConfig selects where attendance logs come from
type AttendanceConfig struct {
	Source string `mapstructure:"source" validate:"omitempty,oneof=api file postgres"`
	File   string `mapstructure:"file"`
}

// PostgresConfig represents the direct database connection
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// CacheConfig represents the Redis holiday cache; empty redis_addr disables it
type CacheConfig struct {
	RedisAddr string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0,lte=15"`
	TTL       string `mapstructure:"ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

var validate = validator.New()

// Load loads configuration from file, .env and environment.
// A missing config file is tolerated when no explicit path was given.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.school-calendar")
		v.AddConfigPath("/etc/school-calendar")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ExpandEnvVars()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper) {
	v.SetDefault("school.id", "")
	v.SetDefault("school.timezone", "")
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.token_command", "")
	v.SetDefault("api.refresh_interval", "1h")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.retries", 3)
	v.SetDefault("holidays.source", SourceAPI)
	v.SetDefault("holidays.file", "")
	v.SetDefault("holidays.fallback_file", "")
	v.SetDefault("attendance.source", SourceAPI)
	v.SetDefault("attendance.file", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "6h")
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	for _, src := range []struct {
		section, kind, file string
	}{
		{"holidays", c.Holidays.Source, c.Holidays.File},
		{"attendance", c.Attendance.Source, c.Attendance.File},
	} {
		switch src.kind {
		case SourceAPI, "":
			if c.API.BaseURL == "" {
				return fmt.Errorf("api.base_url is required when %s.source is 'api'", src.section)
			}
		case SourceFile:
			if src.file == "" {
				return fmt.Errorf("%s.file is required when %s.source is 'file'", src.section, src.section)
			}
		case SourcePostgres:
			if c.Postgres.DSN == "" {
				return fmt.Errorf("postgres.dsn is required when %s.source is 'postgres'", src.section)
			}
		}
	}

	durations := map[string]string{
		"api.refresh_interval": c.API.RefreshInterval,
		"api.timeout":          c.API.Timeout,
		"cache.ttl":            c.Cache.TTL,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", key, value)
		}
	}

	if _, err := c.School.Location(); err != nil {
		return err
	}

	return nil
}

// Location returns the school's time zone
func (c *SchoolConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("school.timezone: %w", err)
	}
	return loc, nil
}

// GetTimeout returns the HTTP timeout
func (c *APIConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// GetRefreshInterval returns token refresh interval
func (c *APIConfig) GetRefreshInterval() time.Duration {
	return parseDurationOr(c.RefreshInterval, time.Hour)
}

// GetTTL returns the holiday cache TTL
func (c *CacheConfig) GetTTL() time.Duration {
	return parseDurationOr(c.TTL, 6*time.Hour)
}

// Enabled reports whether a Redis cache is configured
func (c *CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ExpandEnvVars expands environment variables in secret-bearing fields
func (c *Config) ExpandEnvVars() {
	c.API.Token = os.ExpandEnv(c.API.Token)
	c.API.TokenCommand = os.ExpandEnv(c.API.TokenCommand)
	c.Postgres.DSN = os.ExpandEnv(c.Postgres.DSN)
	c.Cache.Password = os.ExpandEnv(c.Cache.Password)
}
