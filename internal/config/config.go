package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is loaded from the environment at startup. API_KEY is the
// credential for the quote provider; without it the process refuses to serve.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"paperfolio"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"paperfolio"`
	DBName     string `env:"DB_NAME" envDefault:"paperfolio"`

	QuoteAPIURL  string        `env:"QUOTE_API_URL" envDefault:"https://cloud.iexapis.com/stable"`
	QuoteAPIKey  string        `env:"API_KEY,required"`
	QuoteTimeout time.Duration `env:"QUOTE_TIMEOUT" envDefault:"5s"`

	SessionSecret string `env:"SESSION_SECRET" envDefault:"dev-secret-change-me"`
	NumWorkers    int    `env:"NUM_WORKERS" envDefault:"5"`
}

func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}
