package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the signaling server settings, read from the environment.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// AllowedOrigins lists the websocket origins accepted, separated by "|".
	// A single "*" accepts any origin.
	AllowedOrigins []string `env:"ALLOWED_ORIGIN,default=*" validate:"min=1,dive,required"`

	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256" validate:"min=1"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=65536" validate:"min=1024"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"min=0"`
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AllowsAnyOrigin reports whether origin checks are disabled.
func (c Config) AllowsAnyOrigin() bool {
	return len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*"
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return LoadFrom(es)
}

// LoadFrom reads the configuration from an explicit set of variables.
func LoadFrom(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
