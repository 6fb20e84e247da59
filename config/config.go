package config

import (
	"errors"

	"github.com/caarlos0/env"
)

var ErrParse = errors.New("unable to parse environment")

// Config carries the environment-backed defaults; command line flags
// override individual fields in the mains.
type Config struct {
	HostID     string `env:"JUKEBOX_HOST_ID" envDefault:"jukebox"`
	ListenAddr string `env:"JUKEBOX_LISTEN_ADDR" envDefault:":8844"`
	StorePath  string `env:"JUKEBOX_STORE" envDefault:"jukebox.db"`
	NoembedURL string `env:"JUKEBOX_NOEMBED_URL" envDefault:"https://noembed.com"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParse, err)
	}
	return cfg, nil
}
