package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eslsoft/factdrill/pkg/srs"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds all configuration for our application
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN overrides every other connection setting when set.
	DSN string `mapstructure:"dsn"`
	// Path is the SQLite database file.
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	LogSQL   bool   `mapstructure:"log_sql"`
	// UpsertRetries bounds the compare-and-swap loop on mastery writes.
	UpsertRetries int `mapstructure:"upsert_retries"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig holds the practice engine tuning constants
type EngineConfig struct {
	Timezone       string  `mapstructure:"timezone"`
	Ladder         []int   `mapstructure:"ladder"`
	LearningBuffer int     `mapstructure:"learning_buffer"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	AdaptiveRatio  float64 `mapstructure:"adaptive_ratio"`
	MinSeen        int     `mapstructure:"min_seen"`
	EnoughData     int     `mapstructure:"enough_data"`
	MultiplierMin  int     `mapstructure:"multiplier_min"`
	MultiplierMax  int     `mapstructure:"multiplier_max"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	setDefaults()

	// Enable reading from environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read configuration file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Database defaults
	viper.SetDefault("database.driver", DriverSQLite)
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.path", "factdrill.db")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "factdrill")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.log_sql", false)
	viper.SetDefault("database.upsert_retries", 16)

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Engine defaults
	ladder := srs.DefaultLadder()
	viper.SetDefault("engine.timezone", "Local")
	viper.SetDefault("engine.ladder", ladder.Intervals)
	viper.SetDefault("engine.learning_buffer", ladder.LearningBuffer)
	viper.SetDefault("engine.max_attempts", 1000)
	viper.SetDefault("engine.adaptive_ratio", 0.7)
	viper.SetDefault("engine.min_seen", 2)
	viper.SetDefault("engine.enough_data", 5)
	viper.SetDefault("engine.multiplier_min", 1)
	viper.SetDefault("engine.multiplier_max", 10)
}

// DatabaseDriver returns the normalised database/sql driver name.
func (c *Config) DatabaseDriver() (string, error) {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
}

// DatabaseURL returns the connection string for the configured driver
func (c *Config) DatabaseURL() (string, error) {
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn, nil
	}
	driver, err := c.DatabaseDriver()
	if err != nil {
		return "", err
	}
	if driver == DriverSQLite {
		path := c.Database.Path
		if path == "" {
			return "", fmt.Errorf("database.path is required for %s", driver)
		}
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path), nil
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     c.Database.Name,
		RawQuery: url.Values{"sslmode": []string{c.Database.SSLMode}}.Encode(),
	}
	return u.String(), nil
}

// Location resolves engine.timezone; "Local" and empty use the machine zone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Engine.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load engine.timezone %q: %w", name, err)
	}
	return loc, nil
}

// Ladder returns the configured review ladder, falling back to the default
// intervals when none are set. Validation is left to the scheduler.
func (c *Config) Ladder() srs.Ladder {
	ladder := srs.DefaultLadder()
	if len(c.Engine.Ladder) > 0 {
		ladder.Intervals = append([]int(nil), c.Engine.Ladder...)
	}
	if c.Engine.LearningBuffer != 0 {
		ladder.LearningBuffer = c.Engine.LearningBuffer
	}
	return ladder
}
