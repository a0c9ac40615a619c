package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Sweep    SweepConfig
	Delivery DeliveryConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type EngineConfig struct {
	MaxConcurrent int
}

type SweepConfig struct {
	Interval   time.Duration
	Horizon    time.Duration
	StaleAfter time.Duration
}

type DeliveryConfig struct {
	Timeout time.Duration
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}

	maxConcurrent, err := getEnvInt("ENGINE_MAX_CONCURRENT", 16)
	if err != nil {
		errs = append(errs, err)
	}

	sweepInterval, err := getEnvInt("SWEEP_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err)
	}
	sweepHorizon, err := getEnvInt("SWEEP_HORIZON_SECONDS", 3600)
	if err != nil {
		errs = append(errs, err)
	}
	sweepStale, err := getEnvInt("SWEEP_STALE_SECONDS", 600)
	if err != nil {
		errs = append(errs, err)
	}

	deliveryTimeout, err := getEnvInt("DELIVERY_TIMEOUT_SECONDS", 10)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, redisErrs := loadRedisConfig()
	errs = append(errs, redisErrs...)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Redis: redisCfg,
		Engine: EngineConfig{
			MaxConcurrent: maxConcurrent,
		},
		Sweep: SweepConfig{
			Interval:   time.Duration(sweepInterval) * time.Second,
			Horizon:    time.Duration(sweepHorizon) * time.Second,
			StaleAfter: time.Duration(sweepStale) * time.Second,
		},
		Delivery: DeliveryConfig{
			Timeout: time.Duration(deliveryTimeout) * time.Second,
		},
	}

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errs
}

func validate(cfg *Config) []error {
	var errs []error

	if cfg.Engine.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("ENGINE_MAX_CONCURRENT must be > 0"))
	}
	if cfg.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Sweep.Horizon <= 0 {
		errs = append(errs, errors.New("SWEEP_HORIZON_SECONDS must be > 0"))
	}
	if cfg.Sweep.StaleAfter <= 0 {
		errs = append(errs, errors.New("SWEEP_STALE_SECONDS must be > 0"))
	}
	if cfg.Delivery.Timeout <= 0 {
		errs = append(errs, errors.New("DELIVERY_TIMEOUT_SECONDS must be > 0"))
	}

	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
