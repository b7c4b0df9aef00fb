package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// DBSource is a PostgreSQL URL. Empty selects the in-memory store.
	DBSource string `env:"DB_SOURCE"`
	Port     string `env:"SERVER_PORT,default=8080"`
	Env      string `env:"ENVIRONMENT,default=development"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=720h"`

	Timezone string `env:"LEDGER_TIMEZONE,default=Asia/Kolkata"`

	RelayNumber  string `env:"RELAY_NUMBER"`
	NotifyNumber string `env:"NOTIFY_NUMBER"`
	NotifyRetry  uint64 `env:"NOTIFY_RETRIES,default=2"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `env:"TWILIO_FROM_NUMBER"`

	OTelEnabled     bool   `env:"OTEL_ENABLED,default=false"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME,default=offpay"`

	loc *time.Location
}

const devSecret = "offpay-dev-secret"

func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, l); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.Env != "development" {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s", cfg.Env)
		}
		cfg.JWTSecret = devSecret
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_TIMEZONE: %w", err)
	}
	cfg.loc = loc
	return &cfg, nil
}

// Location is the zone record dates are rendered in, resolved by Load.
func (c *Config) Location() *time.Location {
	return c.loc
}

// TwilioEnabled reports whether SMS should go through Twilio rather than the log.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}
