// Package web exposes the tax computation over HTTP for the hosted
// setup: one stateless endpoint running the engine on an uploaded
// bundle, plus health and metrics endpoints.
package web

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the server configuration, read from the environment.
type Config struct {
	Addr            string        `env:"ESPP_HTTP_ADDR"        envDefault:":8080"`
	ReadTimeout     time.Duration `env:"ESPP_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"ESPP_WRITE_TIMEOUT"    envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"ESPP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	CachePath string `env:"ESPP_CACHE_PATH" envDefault:"espp-rates.db"`
	EODHDKey  string `env:"ESPP_EODHD_API_KEY"`

	LogLevel string `env:"ESPP_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
