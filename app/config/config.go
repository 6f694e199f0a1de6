package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logs     LogConfig      `mapstructure:"logs"`
	DB       PostgresConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Generate GenerateConfig `mapstructure:"generate"`
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	Port        string `mapstructure:"port"`
	FrontendURL string `mapstructure:"frontend_url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PostgresConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	URL      string `mapstructure:"url"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the lib/pq connection string, or "" when no host is configured.
func (p PostgresConfig) DSN() string {
	if p.URL == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.Username,
		p.Password,
		p.URL,
		p.Port,
		p.Database,
		p.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// Plans is "price_id=Plan:points" entries separated by commas.
	Plans          string        `mapstructure:"plans"`
	DedupEvents    bool          `mapstructure:"dedup_events"`
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
	EventInflight  time.Duration `mapstructure:"event_inflight_ttl"`
	EventDoneTTL   time.Duration `mapstructure:"event_done_ttl"`
	ReplayQueueURL string        `mapstructure:"replay_queue_url"`
}

type AuthConfig struct {
	Issuer            string   `mapstructure:"issuer"`
	JWKSURL           string   `mapstructure:"jwks_url"`
	AuthorizedParties []string `mapstructure:"authorized_parties"`
	Disabled          bool     `mapstructure:"disabled"`
}

type GenerateConfig struct {
	GeminiAPIKey        string        `mapstructure:"gemini_api_key"`
	Model               string        `mapstructure:"model"`
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	PointsPerGeneration int64         `mapstructure:"points_per_generation"`
	SignupPoints        int64         `mapstructure:"signup_points"`
	MaxImageBytes       int           `mapstructure:"max_image_bytes"`
}

// DefaultPlans mirrors the live Stripe catalog.
const DefaultPlans = "price_1R3RvKDniTjXmmW21ofwtiyE=Basic:100,price_1R3RujDniTjXmmW2HRhGdnPH=Pro:500"

var envBindings = map[string]string{
	"app.env":                        "APP_ENV",
	"app.port":                       "PORT",
	"app.frontend_url":               "FRONTEND_URL",
	"logs.level":                     "LOG_LEVEL",
	"logs.format":                    "LOG_FORMAT",
	"db.username":                    "POSTGRES_USER",
	"db.password":                    "POSTGRES_PWD",
	"db.url":                         "POSTGRES_URL",
	"db.port":                        "POSTGRES_PORT",
	"db.database":                    "POSTGRES_DB",
	"db.sslmode":                     "POSTGRES_SSLMODE",
	"redis.addr":                     "REDIS_ADDR",
	"redis.password":                 "REDIS_PASSWORD",
	"redis.db":                       "REDIS_DB",
	"stripe.secret_key":              "STRIPE_SECRET_KEY",
	"stripe.webhook_secret":          "STRIPE_WEBHOOK_SECRET",
	"stripe.plans":                   "STRIPE_PLANS",
	"stripe.dedup_events":            "STRIPE_DEDUP_EVENTS",
	"stripe.lookup_timeout":          "STRIPE_LOOKUP_TIMEOUT",
	"stripe.event_inflight_ttl":      "STRIPE_EVENT_INFLIGHT_TTL",
	"stripe.event_done_ttl":          "STRIPE_EVENT_DONE_TTL",
	"stripe.replay_queue_url":        "STRIPE_REPLAY_QUEUE_URL",
	"auth.issuer":                    "CLERK_ISSUER",
	"auth.jwks_url":                  "CLERK_JWKS_URL",
	"auth.authorized_parties":        "CLERK_AUTHORIZED_PARTIES",
	"auth.disabled":                  "AUTH_DISABLED",
	"generate.gemini_api_key":        "GEMINI_API_KEY",
	"generate.model":                 "GEMINI_MODEL",
	"generate.base_url":              "GEMINI_BASE_URL",
	"generate.timeout":               "GEMINI_TIMEOUT",
	"generate.points_per_generation": "POINTS_PER_GENERATION",
	"generate.signup_points":         "POINTS_SIGNUP_GRANT",
	"generate.max_image_bytes":       "GENERATE_MAX_IMAGE_BYTES",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "json")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.database", "postgres")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("stripe.plans", DefaultPlans)
	v.SetDefault("stripe.dedup_events", true)
	v.SetDefault("stripe.lookup_timeout", 10*time.Second)
	v.SetDefault("stripe.event_inflight_ttl", 2*time.Minute)
	v.SetDefault("stripe.event_done_ttl", 30*24*time.Hour)
	v.SetDefault("generate.model", "gemini-2.5-flash-lite")
	v.SetDefault("generate.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("generate.timeout", 60*time.Second)
	v.SetDefault("generate.points_per_generation", 5)
	v.SetDefault("generate.signup_points", 50)
	v.SetDefault("generate.max_image_bytes", 4<<20)
}

// LoadConfig reads config.yaml (optional), the .env file (optional) and the
// process environment, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Env values arrive as one comma-separated string.
	if raw := os.Getenv("CLERK_AUTHORIZED_PARTIES"); raw != "" {
		cfg.Auth.AuthorizedParties = splitList(raw)
	}
	cfg.App.FrontendURL = strings.TrimRight(cfg.App.FrontendURL, "/")

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Stripe.WebhookSecret) == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(cfg.Stripe.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if strings.TrimSpace(cfg.Stripe.Plans) == "" {
		return errors.New("STRIPE_PLANS must not be empty")
	}
	if cfg.Stripe.LookupTimeout <= 0 {
		return errors.New("STRIPE_LOOKUP_TIMEOUT must be positive")
	}
	if cfg.Generate.PointsPerGeneration <= 0 {
		return errors.New("POINTS_PER_GENERATION must be positive")
	}
	if cfg.Generate.SignupPoints < 0 {
		return errors.New("POINTS_SIGNUP_GRANT must not be negative")
	}
	return nil
}

// IsLocal reports whether the service runs in a developer environment.
func (c *Config) IsLocal() bool {
	return strings.EqualFold(c.App.Env, "local")
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
