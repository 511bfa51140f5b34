package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Quiz struct {
		TTL      string `yaml:"ttl"`
		SeedFile string `yaml:"seed_file"`
	} `yaml:"quiz"`
	Engine struct {
		QuestionTime   string `yaml:"question_time"`
		BasePoints     int    `yaml:"base_points"`
		Scoring        string `yaml:"scoring"`
		MaxTimeBonus   int    `yaml:"max_time_bonus"`
		EarlyClose     bool   `yaml:"early_close"`
		GradingRetries uint64 `yaml:"grading_retries"`
		GradingBackoff string `yaml:"grading_backoff"`
		GradingTimeout string `yaml:"grading_timeout"`
	} `yaml:"engine"`
	Leaderboard struct {
		Size int    `yaml:"size"`
		TTL  string `yaml:"ttl"`
	} `yaml:"leaderboard"`
	Admins []string `yaml:"admins"`
}

// Load reads YAML config from path, after loading a .env file from the working
// directory if one exists. Environment variables override the file. A missing config
// file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
	if v := os.Getenv("ADMIN_IDS"); v != "" {
		c.Admins = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.Admins = append(c.Admins, id)
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Engine.BasePoints <= 0 {
		c.Engine.BasePoints = 10
	}
	if c.Engine.Scoring == "" {
		c.Engine.Scoring = "flat"
	}
	if c.Engine.GradingRetries == 0 {
		c.Engine.GradingRetries = 3
	}
	if c.Leaderboard.Size <= 0 {
		c.Leaderboard.Size = 10
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
