package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Cheertaboi/storefront-coupon-service/pkg/db"
)

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	Log          LogConfig          `yaml:"log"`
	Service      ServiceConfig      `yaml:"service"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type DatabaseConfig struct {
	// DSN defaults to the one built from the DB_* variables.
	DSN           string `yaml:"dsn"`
	MaxConns      int32  `yaml:"maxConns"`
	RunMigrations bool   `yaml:"runMigrations"`
}

// RedisConfig enables the Redis code store when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// AMQPConfig enables apply events when URL is set.
type AMQPConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServiceConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	FanOut         int           `yaml:"fanOut"`
}

type OrchestratorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	CallTimeout    time.Duration `yaml:"callTimeout"`
	SessionIdleTTL time.Duration `yaml:"sessionIdleTTL"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{MaxConns: 10, RunMigrations: true},
		Redis:    RedisConfig{TTL: 30 * 24 * time.Hour},
		Log:      LogConfig{Level: "info", Format: "json"},
		Service:  ServiceConfig{RequestTimeout: 8 * time.Second, FanOut: 4},
		Orchestrator: OrchestratorConfig{
			Enabled:        true,
			CallTimeout:    5 * time.Second,
			SessionIdleTTL: 30 * time.Minute,
		},
	}
}

// Load applies, in order: defaults, the YAML file named by CONFIG_FILE (if any), and
// environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = db.LoadPostgresConfig().DSN()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.HTTP.Addr) == "":
		return errors.New("config: http.addr is required")
	case c.Service.RequestTimeout <= 0:
		return errors.New("config: service.requestTimeout must be positive")
	case c.Service.FanOut < 1:
		return errors.New("config: service.fanOut must be at least 1")
	case c.Orchestrator.CallTimeout <= 0:
		return errors.New("config: orchestrator.callTimeout must be positive")
	case c.Orchestrator.SessionIdleTTL <= 0:
		return errors.New("config: orchestrator.sessionIdleTTL must be positive")
	case c.Database.MaxConns < 1:
		return errors.New("config: database.maxConns must be at least 1")
	case c.Log.Format != "json" && c.Log.Format != "console":
		return errors.Errorf("config: log.format %q must be json or console", c.Log.Format)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "config: log.level")
	}
	return nil
}

func applyEnv(c *Config) error {
	str := map[string]*string{
		"HTTP_ADDR":      &c.HTTP.Addr,
		"DATABASE_DSN":   &c.Database.DSN,
		"REDIS_ADDR":     &c.Redis.Addr,
		"REDIS_PASSWORD": &c.Redis.Password,
		"AMQP_URL":       &c.AMQP.URL,
		"LOG_LEVEL":      &c.Log.Level,
		"LOG_FORMAT":     &c.Log.Format,
	}
	for k, dst := range str {
		if v, ok := lookup(k); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT":  &c.Service.RequestTimeout,
		"CALL_TIMEOUT":     &c.Orchestrator.CallTimeout,
		"CART_TTL":         &c.Redis.TTL,
		"SESSION_IDLE_TTL": &c.Orchestrator.SessionIdleTTL,
	}
	for k, dst := range durations {
		if v, ok := lookup(k); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(err, "config: %s", k)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"RUN_MIGRATIONS": &c.Database.RunMigrations,
		"CARTS_ENABLED":  &c.Orchestrator.Enabled,
	}
	for k, dst := range bools {
		if v, ok := lookup(k); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "config: %s", k)
			}
			*dst = b
		}
	}

	if v, ok := lookup("REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: REDIS_DB")
		}
		c.Redis.DB = n
	}
	if v, ok := lookup("DB_MAX_CONNS"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errors.Wrap(err, "config: DB_MAX_CONNS")
		}
		c.Database.MaxConns = int32(n)
	}
	if v, ok := lookup("FAN_OUT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "config: FAN_OUT")
		}
		c.Service.FanOut = n
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}
