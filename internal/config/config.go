package config

import (
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DBStatementTimeout time.Duration `mapstructure:"DB_STATEMENT_TIMEOUT"`
	DefaultTenant      string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`

	JWTSecret    string `mapstructure:"JWT_SECRET"`
	JWTExpiresIn string `mapstructure:"JWT_EXPIRES_IN"`

	RateLimitRPS      float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int     `mapstructure:"RATE_LIMIT_BURST"`
	LoginRateLimitRPM int     `mapstructure:"LOGIN_RATE_LIMIT_RPM"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`

	ReportRecipients []string `mapstructure:"REPORT_RECIPIENTS"`
	ReportCron       string   `mapstructure:"REPORT_CRON"`
	ReportTimezone   string   `mapstructure:"REPORT_TIMEZONE"`
	ReportTenants    []string `mapstructure:"REPORT_TENANTS"`

	BlobS3Bucket    string `mapstructure:"BLOB_S3_BUCKET"`
	BlobS3Region    string `mapstructure:"BLOB_S3_REGION"`
	BlobS3Endpoint  string `mapstructure:"BLOB_S3_ENDPOINT"`
	BlobS3PathStyle bool   `mapstructure:"BLOB_S3_PATH_STYLE"`

	EventsKafkaBrokers  []string `mapstructure:"EVENTS_KAFKA_BROKERS"`
	EventsKafkaTopic    string   `mapstructure:"EVENTS_KAFKA_TOPIC"`
	EventsSQSQueueURL   string   `mapstructure:"EVENTS_SQS_QUEUE_URL"`
	EventsWebhookURL    string   `mapstructure:"EVENTS_WEBHOOK_URL"`
	EventsWebhookSecret string   `mapstructure:"EVENTS_WEBHOOK_SECRET"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	SeedAdminEmail    string `mapstructure:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`
	SeedAdminName     string `mapstructure:"SEED_ADMIN_NAME"`
}

// devJWTSecret is only ever used when ENV=development and JWT_SECRET is unset.
const devJWTSecret = "development-only-secret-change-me"

var listKeys = []string{
	"CORS_ORIGINS",
	"REPORT_RECIPIENTS",
	"REPORT_TENANTS",
	"EVENTS_KAFKA_BROKERS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "3000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "30s")
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("LOGIN_RATE_LIMIT_RPM", 10)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "noreply@diagnosticcenter.com")
	v.SetDefault("REPORT_CRON", "30 23 * * *")
	v.SetDefault("REPORT_TIMEZONE", "Local")
	v.SetDefault("BLOB_S3_REGION", "us-east-1")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "appointment-events")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("SEED_ADMIN_EMAIL", "admin@diagnosticcenter.com")
	v.SetDefault("SEED_ADMIN_PASSWORD", "Admin@123")
	v.SetDefault("SEED_ADMIN_NAME", "System Admin")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_STATEMENT_TIMEOUT", "DEFAULT_TENANT", "CORS_ORIGINS",
		"JWT_SECRET", "JWT_EXPIRES_IN",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOGIN_RATE_LIMIT_RPM",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_FROM",
		"REPORT_RECIPIENTS", "REPORT_CRON", "REPORT_TIMEZONE", "REPORT_TENANTS",
		"BLOB_S3_BUCKET", "BLOB_S3_REGION", "BLOB_S3_ENDPOINT", "BLOB_S3_PATH_STYLE",
		"EVENTS_KAFKA_BROKERS", "EVENTS_KAFKA_TOPIC", "EVENTS_SQS_QUEUE_URL",
		"EVENTS_WEBHOOK_URL", "EVENTS_WEBHOOK_SECRET",
		"METRICS_ENABLED",
		"SEED_ADMIN_EMAIL", "SEED_ADMIN_PASSWORD", "SEED_ADMIN_NAME",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated lists arrive as a single element from the environment.
	for _, key := range listKeys {
		list := splitList(v.GetString(key))
		switch key {
		case "CORS_ORIGINS":
			cfg.CORSOrigins = list
		case "REPORT_RECIPIENTS":
			cfg.ReportRecipients = list
		case "REPORT_TENANTS":
			cfg.ReportTenants = list
		case "EVENTS_KAFKA_BROKERS":
			cfg.EventsKafkaBrokers = list
		}
	}
	if len(cfg.ReportTenants) == 0 {
		cfg.ReportTenants = []string{cfg.DefaultTenant}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" && cfg.IsDev() {
		log.Println("WARNING: JWT_SECRET is not set; using an insecure development secret.")
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TokenTTL returns the parsed JWT_EXPIRES_IN value. Validate must have
// accepted the config first.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTExpiresIn)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// MailEnabled reports whether an SMTP host is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// Location resolves REPORT_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	if c.ReportTimezone == "" || c.ReportTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.ReportTimezone)
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must not use the development default in production")
	}
	if d, err := time.ParseDuration(c.JWTExpiresIn); err != nil || d <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be a positive duration such as \"24h\", got %q", c.JWTExpiresIn)
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.SMTPPort)
	}
	for _, r := range c.ReportRecipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return fmt.Errorf("REPORT_RECIPIENTS contains an invalid address %q: %w", r, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}
	if len(c.EventsKafkaBrokers) > 0 && c.EventsKafkaTopic == "" {
		return fmt.Errorf("EVENTS_KAFKA_TOPIC is required when EVENTS_KAFKA_BROKERS is set")
	}
	if c.EventsWebhookURL != "" && c.EventsWebhookSecret == "" {
		return fmt.Errorf("EVENTS_WEBHOOK_SECRET is required when EVENTS_WEBHOOK_URL is set")
	}
	return nil
}
