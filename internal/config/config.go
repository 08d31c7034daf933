package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Bot      BotConfig      `yaml:"bot"`
	Quota    QuotaConfig    `yaml:"quota"`
	Rate     RateConfig     `yaml:"rate"`
}

type HTTPConfig struct {
	HealthAddr string `yaml:"health_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BotConfig struct {
	Token       string `yaml:"token"`
	Username    string `yaml:"username"`
	AdminID     int64  `yaml:"admin_id"`
	ChannelLink string `yaml:"channel_link"`
	PaymentLink string `yaml:"payment_link"`
}

type QuotaConfig struct {
	FreeRequests int `yaml:"free_requests"`
}

type RateConfig struct {
	GenPerMinute int `yaml:"gen_per_minute"`
	GenPer10Sec  int `yaml:"gen_per_10sec"`
}

func Default() Config {
	return Config{
		Env: "dev",
		HTTP: HTTPConfig{
			HealthAddr: ":8081",
		},
		Log:      LogConfig{Level: "debug"},
		Postgres: PostgresConfig{DSN: ""},
		Redis: RedisConfig{
			Addr: "",
			DB:   0,
		},
		Bot: BotConfig{
			Token:       "",
			Username:    "",
			AdminID:     0,
			ChannelLink: "",
			PaymentLink: "",
		},
		Quota: QuotaConfig{
			FreeRequests: 1,
		},
		Rate: RateConfig{
			GenPerMinute: 20,
			GenPer10Sec:  5,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// PaymentURL falls back to the bot deep link when no payment link is configured.
func (c BotConfig) PaymentURL() string {
	if c.PaymentLink != "" {
		return c.PaymentLink
	}
	if c.Username != "" {
		return "https://t.me/" + c.Username
	}
	return ""
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}

	if v := os.Getenv("HEALTH_ADDR"); v != "" {
		cfg.HTTP.HealthAddr = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if err := overrideInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}

	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("BOT_USERNAME"); v != "" {
		cfg.Bot.Username = v
	}
	if err := overrideInt64("ADMIN_ID", &cfg.Bot.AdminID); err != nil {
		return err
	}
	if v := os.Getenv("CHANNEL_LINK"); v != "" {
		cfg.Bot.ChannelLink = v
	}
	if v := os.Getenv("PAYMENT_LINK"); v != "" {
		cfg.Bot.PaymentLink = v
	}

	if err := overrideInt("QUOTA_FREE_REQUESTS", &cfg.Quota.FreeRequests); err != nil {
		return err
	}

	if err := overrideInt("RATE_GEN_PER_MINUTE", &cfg.Rate.GenPerMinute); err != nil {
		return err
	}
	if err := overrideInt("RATE_GEN_PER_10SEC", &cfg.Rate.GenPer10Sec); err != nil {
		return err
	}

	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func overrideInt64(key string, target *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s int64: %w", key, err)
	}
	*target = n
	return nil
}
