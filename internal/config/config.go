package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

type Config struct {
	AppName   string `env:"APP_NAME" envDefault:"split-market"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50051"`

	Store StoreConfig `envPrefix:"STORE_"`

	// Empty RedisAddr keeps the callback guard in process.
	RedisAddr string `env:"REDIS_ADDR"`

	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`

	MarketplaceOwner string `env:"MARKETPLACE_OWNER,required"`

	JWT JWTConfig `envPrefix:"JWT_"`

	SagaTimeout       time.Duration `env:"SAGA_TIMEOUT" envDefault:"2m"`
	MaxAttempts       int           `env:"SAGA_MAX_ATTEMPTS" envDefault:"3"`
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 30s"`
}

type StoreConfig struct {
	Driver    string `env:"DRIVER" envDefault:"sqlite"`
	SQLiteDSN string `env:"SQLITE_DSN" envDefault:"file:splitmarket.db?_pragma=busy_timeout(5000)"`
	MySQLDSN  string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/splitmarket?parseTime=true"`
}

// RabbitMQConfig names the token service bus. An empty URL disables the
// bus and every token call fails.
type RabbitMQConfig struct {
	URL              string `env:"URL"`
	CommandsExchange string `env:"COMMANDS_EXCHANGE" envDefault:"token.commands"`
	ResultsExchange  string `env:"RESULTS_EXCHANGE" envDefault:"token.results"`
	ResultsQueue     string `env:"RESULTS_QUEUE" envDefault:"marketplace.token.results"`
	CommandsQueue    string `env:"COMMANDS_QUEUE" envDefault:"tokenservice.commands"`
}

type JWTConfig struct {
	Secret string        `env:"SECRET,required"`
	Issuer string        `env:"ISSUER" envDefault:"split-market"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
}

// Load reads optional .env files, then the environment. Variables already
// set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StoreMySQL:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.SagaTimeout <= 0 {
		return fmt.Errorf("SAGA_TIMEOUT must be positive, got %s", c.SagaTimeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("SAGA_MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}
