package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Env         string `env:"ENV" envDefault:"dev"` // dev|prod
	SentryDSN   string `env:"SENTRY_DSN"`
	Release     string `env:"RELEASE" envDefault:"dev"`
	TZ          string `env:"TZ" envDefault:"Europe/Moscow"`

	location *time.Location

	Session struct {
		Secret       string        `env:"SESSION_SECRET,required,notEmpty"`
		TTL          time.Duration `env:"SESSION_TTL" envDefault:"12h"`
		CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`
	}

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	Admin struct {
		RegistrationKey string `env:"ADMIN_REGISTRATION_KEY"`
		Phone           string `env:"ADMIN_PHONE"`
		Password        string `env:"ADMIN_PASSWORD"`
		Name            string `env:"ADMIN_NAME" envDefault:"Администратор"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Login struct {
		MaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
		Window      time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	}

	PDFFontPath string `env:"PDF_FONT_PATH"`

	Assistant struct {
		Enabled bool          `env:"ASSISTANT_ENABLED" envDefault:"false"`
		BaseURL string        `env:"ASSISTANT_BASE_URL" envDefault:"http://127.0.0.1:11434/v1"`
		Model   string        `env:"ASSISTANT_MODEL" envDefault:"llama3.1:8b"`
		APIKey  string        `env:"ASSISTANT_API_KEY" envDefault:"ollama"`
		Timeout time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"60s"`
	}

	StatsRefreshInterval time.Duration `env:"STATS_REFRESH_INTERVAL" envDefault:"1m"`
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse собирает конфиг только из окружения процесса.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		loc = time.Local
	}
	cfg.location = loc

	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)
	if cfg.Login.MaxAttempts < 1 {
		return nil, fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive, got %d", cfg.Login.MaxAttempts)
	}
	if len(cfg.Session.Secret) < 16 {
		return nil, fmt.Errorf("SESSION_SECRET is too short")
	}
	return cfg, nil
}

// Location — часовой пояс из TZ, по умолчанию Europe/Moscow.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c *Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
