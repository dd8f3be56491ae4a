package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

const (
	RunModePolling = "polling"
	RunModeWebhook = "webhook"
)

var webhookSecretRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN,required"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	RunMode       string `env:"RUN_MODE" envDefault:"polling"`
	WebhookURL    string `env:"WEBHOOK_URL"`
	WebhookListen string `env:"WEBHOOK_LISTEN" envDefault:":8080"`
	WebhookPath   string `env:"WEBHOOK_PATH" envDefault:"/telegram/webhook"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	Redis    Redis
	Database Database

	MediaDir              string   `env:"MEDIA_DIR" envDefault:"media"`
	MediaProcessingNotice bool     `env:"MEDIA_PROCESSING_NOTICE" envDefault:"true"`
	WelcomeMedia          string   `env:"WELCOME_MEDIA"`
	Games                 []string `env:"GAMES" envSeparator:"," envDefault:"Mobile Legends,PUBG Mobile,Dota 2,CS2,Minecraft"`
	AdminChannelID        int64    `env:"ADMIN_CHANNEL_ID"`

	HTTPRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
}

type Redis struct {
	Addr       string        `env:"REDIS_ADDR,required"`
	Password   string        `env:"REDIS_PASSWORD"`
	DB         int           `env:"REDIS_DB" envDefault:"0"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

type Database struct {
	Host            string        `env:"DB_HOST,required"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER,required"`
	Password        string        `env:"DB_PASSWORD,required"`
	Name            string        `env:"DB_NAME,required"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"2m"`
	Migrate         bool          `env:"DB_MIGRATE" envDefault:"true"`
}

// Load reads an optional .env file and parses the environment into Config.
func Load() (*Config, error) {
	// .env is optional; real deployments pass plain environment variables
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.RunMode {
	case RunModePolling:
	case RunModeWebhook:
		if c.WebhookURL == "" {
			return errors.New("WEBHOOK_URL is required in webhook mode")
		}
		if !webhookSecretRe.MatchString(c.WebhookSecret) {
			return errors.New("WEBHOOK_SECRET is required in webhook mode: 1-256 characters of A-Z, a-z, 0-9, _ and -")
		}
	default:
		return fmt.Errorf("unknown RUN_MODE %q", c.RunMode)
	}

	if c.Redis.SessionTTL < 0 {
		return errors.New("SESSION_TTL must not be negative")
	}

	return nil
}

func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}
