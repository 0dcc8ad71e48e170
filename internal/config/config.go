package config

import (
	"github.com/caarlos0/env/v11"
)

// Config is read by the paygate CLI.
type Config struct {
	ServerURL     string `env:"PAYGATE_URL" envDefault:"http://localhost:8080"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

func Read() (Config, error) {
	return env.ParseAs[Config]()
}

func ReadFrom(environ map[string]string) (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Environment: environ})
}
