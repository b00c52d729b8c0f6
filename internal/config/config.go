// Package config loads and validates server configuration from environment
// variables.
//
// WHY A STRUCT + ENV TAGS (caarlos0/env) INSTEAD OF os.Getenv CALLS?
// With os.Getenv scattered through main.go, the full set of knobs the server
// reads is invisible — you discover variables by grepping. A single tagged
// struct is self-documenting: every variable, its default, and whether it is
// required lives in one place, and env.Parse does the type conversion.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets are placeholder values that must never survive into
// production. They show up in tutorials and .env.example files.
var knownWeakSecrets = []string{
	"secret", "change-me", "password",
	"your-jwt-secret-change-this", "your-refresh-secret-change-this",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DBPath    string `env:"DB_PATH" envDefault:"data/cardlink.db"`
	UploadDir string `env:"UPLOAD_DIR" envDefault:"uploads"`

	// Access and refresh tokens are signed with DIFFERENT secrets, so a
	// leaked access-signing key cannot forge refresh tokens and vice versa.
	JWTSecret        string `env:"JWT_SECRET,required,notEmpty"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET,required,notEmpty"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	// FrontendURL is where public profile pages live; it is the base of
	// every generated profile URL (and therefore of every QR code).
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// Rate limits for the credential endpoints, per client IP.
	LoginRateLimit     int           `env:"LOGIN_RATE_LIMIT" envDefault:"20"`
	LoginRateWindow    time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"15m"`
	RegisterRateLimit  int           `env:"REGISTER_RATE_LIMIT" envDefault:"10"`
	RegisterRateWindow time.Duration `env:"REGISTER_RATE_WINDOW" envDefault:"1h"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate applies the checks that env tags cannot express. Secret strength
// is only enforced in production so local development stays frictionless.
func (c *Config) Validate() error {
	if c.JWTSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if c.IsProduction() {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if err := validateSecret("JWT_REFRESH_SECRET", c.JWTRefreshSecret); err != nil {
			return err
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -hex 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
