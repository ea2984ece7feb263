package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	MedplumBaseURL      string        `mapstructure:"MEDPLUM_BASE_URL"`
	MedplumTokenURL     string        `mapstructure:"MEDPLUM_TOKEN_URL"`
	MedplumClientID     string        `mapstructure:"MEDPLUM_CLIENT_ID"`
	MedplumClientSecret string        `mapstructure:"MEDPLUM_CLIENT_SECRET"`
	MedplumCallTimeout  time.Duration `mapstructure:"MEDPLUM_CALL_TIMEOUT"`
	MedplumMaxPages     int           `mapstructure:"MEDPLUM_MAX_SEARCH_PAGES"`

	InfluxURL    string `mapstructure:"INFLUX_URL"`
	InfluxToken  string `mapstructure:"INFLUX_TOKEN"`
	InfluxOrg    string `mapstructure:"INFLUX_ORG"`
	InfluxBucket string `mapstructure:"INFLUX_BUCKET"`

	AWSRegion          string `mapstructure:"AWS_REGION"`
	AWSAccessKeyID     string `mapstructure:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `mapstructure:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint         string `mapstructure:"S3_ENDPOINT"`
	AlarmBucket        string `mapstructure:"ALARM_BUCKET"`
	AlarmLookbackDays  int    `mapstructure:"ALARM_LOOKBACK_DAYS"`

	PredictionURL   string `mapstructure:"PREDICTION_URL"`
	InsightProvider string `mapstructure:"INSIGHT_PROVIDER"`
	InsightURL      string `mapstructure:"INSIGHT_URL"`
	AnthropicAPIKey string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `mapstructure:"ANTHROPIC_MODEL"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY", "CORS_ORIGINS", "REQUEST_TIMEOUT",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MEDPLUM_BASE_URL", "MEDPLUM_TOKEN_URL", "MEDPLUM_CLIENT_ID",
	"MEDPLUM_CLIENT_SECRET", "MEDPLUM_CALL_TIMEOUT", "MEDPLUM_MAX_SEARCH_PAGES",
	"INFLUX_URL", "INFLUX_TOKEN", "INFLUX_ORG", "INFLUX_BUCKET",
	"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "S3_ENDPOINT",
	"ALARM_BUCKET", "ALARM_LOOKBACK_DAYS",
	"PREDICTION_URL", "INSIGHT_PROVIDER", "INSIGHT_URL",
	"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MEDPLUM_BASE_URL", "https://api.medplum.com/fhir/R4")
	v.SetDefault("MEDPLUM_TOKEN_URL", "https://api.medplum.com/oauth2/token")
	v.SetDefault("MEDPLUM_CALL_TIMEOUT", "15s")
	v.SetDefault("MEDPLUM_MAX_SEARCH_PAGES", 50)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("ALARM_LOOKBACK_DAYS", 2)
	v.SetDefault("INSIGHT_PROVIDER", "http")
	v.SetDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5")

	// Bind explicitly so Unmarshal sees env-only values.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is set it
// wins. Otherwise ENV=development selects "development" and everything else
// "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// TelemetryEnabled reports whether the realtime datastore is configured.
func (c *Config) TelemetryEnabled() bool {
	return c.InfluxURL != "" && c.InfluxBucket != ""
}

// AlarmsEnabled reports whether the alarm bucket is configured.
func (c *Config) AlarmsEnabled() bool {
	return c.AlarmBucket != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.ResolvedAuthMode() {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed when ENV=production")
		}
	case "jwt":
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when AUTH_MODE is \"jwt\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", c.AuthMode)
	}

	if c.MedplumBaseURL == "" {
		return fmt.Errorf("MEDPLUM_BASE_URL is required")
	}
	if c.MedplumClientID == "" || c.MedplumClientSecret == "" {
		return fmt.Errorf("MEDPLUM_CLIENT_ID and MEDPLUM_CLIENT_SECRET are required")
	}
	if c.MedplumCallTimeout <= 0 {
		return fmt.Errorf("MEDPLUM_CALL_TIMEOUT must be positive, got %s", c.MedplumCallTimeout)
	}
	if c.MedplumMaxPages < 1 {
		return fmt.Errorf("MEDPLUM_MAX_SEARCH_PAGES must be at least 1, got %d", c.MedplumMaxPages)
	}

	if c.InfluxURL != "" && (c.InfluxOrg == "" || c.InfluxBucket == "") {
		return fmt.Errorf("INFLUX_ORG and INFLUX_BUCKET are required when INFLUX_URL is set")
	}
	if c.AlarmBucket != "" && c.AlarmLookbackDays < 1 {
		return fmt.Errorf("ALARM_LOOKBACK_DAYS must be at least 1, got %d", c.AlarmLookbackDays)
	}

	switch c.InsightProvider {
	case "", "http":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when INSIGHT_PROVIDER is \"anthropic\"")
		}
	default:
		return fmt.Errorf("INSIGHT_PROVIDER must be \"http\" or \"anthropic\", got %q", c.InsightProvider)
	}

	return nil
}
