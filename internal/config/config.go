package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Redis    RedisConfig    `json:"redis"`
	Alerting AlertingConfig `json:"alerting"`
}

type ServerConfig struct {
	BindAddr string `json:"bindAddr"`
	Bearer   string `json:"bearer"` // API bearer token; empty disables auth
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type AlertingConfig struct {
	Engine      EngineConfig      `json:"engine"`
	Dispatch    DispatchConfig    `json:"dispatch"`
	Suppression SuppressionConfig `json:"suppression"`
	Bootstrap   BootstrapConfig   `json:"bootstrap"`
	Retention   RetentionConfig   `json:"retention"`
}

type EngineConfig struct {
	Interval string `json:"interval"` // e.g. "30s"
	Batch    int    `json:"batch"`
	Workers  int    `json:"workers"`
}

type DispatchConfig struct {
	DefaultTimeout string `json:"defaultTimeout"` // e.g. "10s"
}

type SuppressionConfig struct {
	FailMode string `json:"failMode"` // "fail-closed" or "fail-open"
}

type BootstrapConfig struct {
	ConfigFile string `json:"configFile"` // YAML seed of channels and policies
}

type RetentionConfig struct {
	MaxAge        string `json:"maxAge"`        // e.g. "720h"
	SweepInterval string `json:"sweepInterval"` // e.g. "1h"
}

func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()

	cfg := &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
			Bearer:   getEnv("API_BEARER_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "pgconsole"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "debug"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Alerting: AlertingConfig{
			Engine: EngineConfig{
				Interval: getEnv("ESCALATION_INTERVAL", "30s"),
				Batch:    getEnvInt("ESCALATION_BATCH", 200),
				Workers:  getEnvInt("ESCALATION_WORKERS", 4),
			},
			Dispatch: DispatchConfig{
				DefaultTimeout: getEnv("DISPATCH_DEFAULT_TIMEOUT", "10s"),
			},
			Suppression: SuppressionConfig{
				FailMode: getEnv("SUPPRESSION_FAIL_MODE", "fail-closed"),
			},
			Bootstrap: BootstrapConfig{
				ConfigFile: getEnv("ALERTING_SEED_FILE", ""),
			},
			Retention: RetentionConfig{
				MaxAge:        getEnv("ALERT_RETENTION_MAX_AGE", "720h"),
				SweepInterval: getEnv("ALERT_RETENTION_SWEEP_INTERVAL", "1h"),
			},
		},
	}

	if *configFile != "" {
		if err := loadFromFile(cfg, *configFile); err != nil {
			log.Err(err)
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Alerting.Engine.Interval == "" {
		cfg.Alerting.Engine.Interval = "30s"
	}
	if cfg.Alerting.Engine.Batch == 0 {
		cfg.Alerting.Engine.Batch = 200
	}
	if cfg.Alerting.Engine.Workers == 0 {
		cfg.Alerting.Engine.Workers = 4
	}
	if cfg.Alerting.Dispatch.DefaultTimeout == "" {
		cfg.Alerting.Dispatch.DefaultTimeout = "10s"
	}
	if cfg.Alerting.Suppression.FailMode == "" {
		cfg.Alerting.Suppression.FailMode = "fail-closed"
	}
	if cfg.Alerting.Retention.MaxAge == "" {
		cfg.Alerting.Retention.MaxAge = "720h"
	}
	if cfg.Alerting.Retention.SweepInterval == "" {
		cfg.Alerting.Retention.SweepInterval = "1h"
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
