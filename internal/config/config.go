package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL           string `yaml:"ttl"`
		DeadlineGrace string `yaml:"deadline_grace"`
	} `yaml:"quiz"`
	Ranking struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"ranking"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Auth struct {
		UserHeader string `yaml:"user_header"`
	} `yaml:"auth"`
}

// Load reads YAML config from path and applies environment overrides.
// A missing file is not an error; the service then runs on defaults and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("config %s not found, using environment", path)
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	overrideFromEnv(&cfg.Server.Port, "PORT")
	overrideFromEnv(&cfg.Postgres.URL, "POSTGRES_URL")
	overrideFromEnv(&cfg.Redis.Addr, "REDIS_ADDR")
	overrideFromEnv(&cfg.Redis.Password, "REDIS_PASSWORD")
	overrideFromEnv(&cfg.AMQP.URL, "AMQP_URL")
	overrideFromEnv(&cfg.AMQP.Exchange, "AMQP_EXCHANGE")
	overrideFromEnv(&cfg.Auth.UserHeader, "AUTH_USER_HEADER")

	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "quiz.events"
	}
	return cfg, nil
}

func overrideFromEnv(field *string, key string) {
	if value := os.Getenv(key); value != "" {
		*field = value
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// QuizCacheTTL is quiz.ttl, else redis.ttl, else ten minutes.
func (c Config) QuizCacheTTL() time.Duration {
	return TTLDuration(c.Quiz.TTL, TTLDuration(c.Redis.TTL, 10*time.Minute))
}

// RankingCacheTTL is ranking.cache_ttl, else redis.ttl, else one minute.
func (c Config) RankingCacheTTL() time.Duration {
	return TTLDuration(c.Ranking.CacheTTL, TTLDuration(c.Redis.TTL, time.Minute))
}
