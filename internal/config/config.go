package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL              string        `mapstructure:"REDIS_URL"`
	AvailabilityCacheTTL  time.Duration `mapstructure:"AVAILABILITY_CACHE_TTL"`
	AuthSigningKey        string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer            string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL           string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience          string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	ClinicTimezone        string        `mapstructure:"CLINIC_TIMEZONE"`
	BusinessSlots         []string      `mapstructure:"BUSINESS_SLOTS"`
	ReleaseCancelledSlots bool          `mapstructure:"RELEASE_CANCELLED_SLOTS"`
	TwilioAccountSID      string        `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken       string        `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFrom            string        `mapstructure:"TWILIO_FROM"`
	BlobDir               string        `mapstructure:"BLOB_DIR"`
	MaxUploadBytes        int64         `mapstructure:"MAX_UPLOAD_BYTES"`
}

// DefaultBusinessSlots is the clinic's bookable day.
var DefaultBusinessSlots = []string{
	"09:00 AM", "10:00 AM", "11:00 AM", "12:00 PM",
	"01:00 PM", "02:00 PM", "03:00 PM", "04:00 PM",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AVAILABILITY_CACHE_TTL", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("CLINIC_TIMEZONE", "Local")
	v.SetDefault("RELEASE_CANCELLED_SLOTS", false)
	v.SetDefault("BLOB_DIR", "assets/patient_files")
	v.SetDefault("MAX_UPLOAD_BYTES", 10*1024*1024)

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "AVAILABILITY_CACHE_TTL",
		"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"CLINIC_TIMEZONE", "BUSINESS_SLOTS", "RELEASE_CANCELLED_SLOTS",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM",
		"BLOB_DIR", "MAX_UPLOAD_BYTES",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.BusinessSlots = splitList(cfg.BusinessSlots, v.GetString("BUSINESS_SLOTS"))
	if len(cfg.BusinessSlots) == 0 {
		cfg.BusinessSlots = append([]string(nil), DefaultBusinessSlots...)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development, requests without a token are treated as admin.")
	}

	return cfg, nil
}

// splitList normalises a comma separated value into trimmed, non-empty
// entries whether or not viper already split it.
func splitList(parsed []string, raw string) []string {
	if len(parsed) == 0 {
		parsed = []string{raw}
	}
	var out []string
	for _, item := range parsed {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
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

// SMSConfigured reports whether all Twilio settings are present. Missing
// settings are a valid state: SMS is then logged instead of sent.
func (c *Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

// Location resolves CLINIC_TIMEZONE. "Local" and "" map to the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" || c.ClinicTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier (shared signing key or issuer) must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_ISSUER must be set when ENV=%q", c.Env)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if len(c.BusinessSlots) == 0 {
		return fmt.Errorf("BUSINESS_SLOTS must name at least one slot")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	partial := c.TwilioAccountSID != "" || c.TwilioAuthToken != "" || c.TwilioFrom != ""
	if partial && !c.SMSConfigured() && c.IsProduction() {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM must be set together")
	}
	return nil
}
