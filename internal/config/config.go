// Package config loads the process-wide configuration from environment
// variables via a cleanenv + sync.Once singleton, reading env directly
// rather than a YAML file: this service's entire boot-time surface is
// the environment variable list below.
package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full set of environment-derived settings needed to
// boot the service. TelegramBotToken, TelegramChatId, WebhookURL,
// APIToken and PollIntervalSeconds seed the settings row on a fresh
// database (store.SeedDefaults); after that those values are controlled
// through the settings table (PATCH /settings). The remaining fields are
// read at boot only.
type Config struct {
	Env                 string `env:"ENV" env-default:"local"`
	ListenAddr          string `env:"LISTEN_ADDR" env-default:":8080"`
	DatabaseURL         string `env:"DATABASE_URL" env-default:"./mailaggregator.db"`
	EncryptionKey       string `env:"ENCRYPTION_KEY" env-required:"true"`
	AdminUsername       string `env:"ADMIN_USERNAME" env-default:"admin"`
	AdminPassword       string `env:"ADMIN_PASSWORD"`
	AdminResetToken     string `env:"ADMIN_RESET_TOKEN"`
	JWTSecret           string `env:"JWT_SECRET"`
	APIToken            string `env:"API_TOKEN"`
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatId      string `env:"TELEGRAM_CHAT_ID"`
	WebhookURL          string `env:"WEBHOOK_URL"`
	PollIntervalSeconds int    `env:"POLL_INTERVAL_SECONDS" env-default:"300"`
}

var instance *Config
var once sync.Once

// MustLoad reads Config from the environment exactly once per process;
// subsequent calls return the cached instance. Fatal on a missing
// required field (ENCRYPTION_KEY), matching C2's "absence is fatal at
// boot" contract.
func MustLoad() *Config {
	once.Do(func() {
		instance = &Config{}
		if err := cleanenv.ReadEnv(instance); err != nil {
			log.Fatal(fmt.Errorf("config: %w", err))
		}
		if instance.PollIntervalSeconds < 5 {
			instance.PollIntervalSeconds = 5
		}
	})
	return instance
}
