// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken          string   `env:"DISCORD_TOKEN,required,notEmpty"`
	DiscordGuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`
	DeveloperID           string   `env:"DEVELOPER_ID"`
	InitSlashCommands     bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`

	StoragePath   string `env:"STORAGE_PATH" envDefault:"data/bot.db"`
	LogFile       string `env:"LOG_FILE" envDefault:"logs/bot.log"`
	DashboardAddr string `env:"DASHBOARD_ADDR" envDefault:":8080"`

	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`

	PlayerIdleTimeout   time.Duration `env:"PLAYER_IDLE_TIMEOUT" envDefault:"5m"`
	PlayerDefaultVolume int           `env:"PLAYER_DEFAULT_VOLUME" envDefault:"100"`
	YouTubeProxy        string        `env:"YOUTUBE_PROXY"`

	XPPerMessage int           `env:"XP_PER_MESSAGE" envDefault:"10"`
	XPCooldown   time.Duration `env:"XP_COOLDOWN" envDefault:"60s"`

	WarningLimit        int           `env:"WARNING_LIMIT" envDefault:"3"`
	WarningMuteDuration time.Duration `env:"WARNING_MUTE_DURATION" envDefault:"10m"`
	SpamThreshold       int           `env:"SPAM_THRESHOLD" envDefault:"5"`
	SpamWindow          time.Duration `env:"SPAM_WINDOW" envDefault:"10s"`
	MutedRoleName       string        `env:"MUTED_ROLE_NAME" envDefault:"Muted"`
	LogChannelName      string        `env:"LOG_CHANNEL_NAME" envDefault:"moderation-log"`
	WelcomeChannelName  string        `env:"WELCOME_CHANNEL_NAME" envDefault:"welcome"`
	DefaultRoleName     string        `env:"DEFAULT_ROLE_NAME" envDefault:"Member"`
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, falling back to system environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New is Load for entrypoints that cannot continue without a config.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	var errs []error
	if c.PlayerDefaultVolume < 0 || c.PlayerDefaultVolume > 100 {
		errs = append(errs, fmt.Errorf("PLAYER_DEFAULT_VOLUME must be within 0..100, got %d", c.PlayerDefaultVolume))
	}
	if c.XPPerMessage < 0 {
		errs = append(errs, fmt.Errorf("XP_PER_MESSAGE must not be negative, got %d", c.XPPerMessage))
	}
	if c.WarningLimit < 1 {
		errs = append(errs, fmt.Errorf("WARNING_LIMIT must be at least 1, got %d", c.WarningLimit))
	}
	if c.SpamThreshold < 1 {
		errs = append(errs, fmt.Errorf("SPAM_THRESHOLD must be at least 1, got %d", c.SpamThreshold))
	}
	if c.SpamWindow <= 0 {
		errs = append(errs, errors.New("SPAM_WINDOW must be positive"))
	}
	if c.HistoryRetention <= 0 {
		errs = append(errs, errors.New("HISTORY_RETENTION must be positive"))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("STORAGE_PATH must not be empty"))
	}
	return errors.Join(errs...)
}
