// Package config resolves runtime options from flags, the environment and
// .env.local, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/police"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Option keys. Each maps to a flag of the same name and to the environment
// variable obtained by upper-casing it and replacing dashes with underscores.
const (
	KeyDatabaseURL          = "database-url"
	KeyBaseURL              = "police-client-base-url"
	KeyMaxRequestsPerSecond = "police-client-max-requests-per-second"
	KeyMaxRequestRetries    = "police-client-max-request-retries"
	KeyTimeout              = "police-client-timeout"
	KeyLogLevel             = "log-level"
	KeyLogConfigPath        = "logging-conf-file-path"
	KeyPort                 = "port"
)

const (
	DefaultPort           = 5050
	defaultTimeoutSeconds = 10
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrInvalidRate        = errors.New("max requests per second must be positive")
	ErrInvalidRetries     = errors.New("max request retries must not be negative")
	ErrInvalidTimeout     = errors.New("timeout must be positive")
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
)

type Config struct {
	DatabaseURL string
	Police      police.Config
	Log         LogConfig
	Server      ServerConfig
}

type LogConfig struct {
	// Level is empty unless set explicitly, so a logging config file can
	// supply it instead.
	Level      string
	ConfigPath string
}

type ServerConfig struct {
	Port int
}

// RegisterFlags defines every option on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(KeyDatabaseURL, "", "Postgres connection string (env DATABASE_URL)")
	flags.String(KeyBaseURL, police.BaseURL, "Police API base URL")
	flags.Int(KeyMaxRequestsPerSecond, police.DefaultMaxRequestsPerSecond, "Police API requests per second")
	flags.Int(KeyMaxRequestRetries, police.DefaultMaxRequestRetries, "retries on throttled or timed out requests")
	flags.Float64(KeyTimeout, defaultTimeoutSeconds, "Police API request timeout in seconds")
	flags.String(KeyLogLevel, "", "log level (trace, debug, info, warn, error)")
	flags.String(KeyLogConfigPath, "", "path to a YAML logging config file")
	flags.Int(KeyPort, DefaultPort, "HTTP port for the serve command")
}

// Load resolves the configuration. flags may be nil, in which case only the
// environment and defaults are used. The result is not validated.
func Load(flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetDefault(KeyBaseURL, police.BaseURL)
	v.SetDefault(KeyMaxRequestsPerSecond, police.DefaultMaxRequestsPerSecond)
	v.SetDefault(KeyMaxRequestRetries, police.DefaultMaxRequestRetries)
	v.SetDefault(KeyTimeout, defaultTimeoutSeconds)
	v.SetDefault(KeyPort, DefaultPort)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	timeout := time.Duration(v.GetFloat64(KeyTimeout) * float64(time.Second))
	return &Config{
		DatabaseURL: v.GetString(KeyDatabaseURL),
		Police: police.Config{
			BaseURL:              v.GetString(KeyBaseURL),
			MaxRequestsPerSecond: v.GetInt(KeyMaxRequestsPerSecond),
			MaxRequestRetries:    v.GetInt(KeyMaxRequestRetries),
			Timeout:              timeout,
		},
		Log: LogConfig{
			Level:      v.GetString(KeyLogLevel),
			ConfigPath: v.GetString(KeyLogConfigPath),
		},
		Server: ServerConfig{Port: v.GetInt(KeyPort)},
	}, nil
}

// Validate reports the first invalid option.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return ErrMissingDatabaseURL
	case c.Police.MaxRequestsPerSecond <= 0:
		return ErrInvalidRate
	case c.Police.MaxRequestRetries < 0:
		return ErrInvalidRetries
	case c.Police.Timeout <= 0:
		return ErrInvalidTimeout
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return ErrInvalidPort
	}
	return nil
}
