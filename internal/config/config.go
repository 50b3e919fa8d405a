package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	Metrics struct {
		Addr string
	}

	Matching struct {
		Threshold int
		Workers   int
		Interval  time.Duration
		LockTTL   time.Duration
		CacheTTL  time.Duration
	}

	Feed struct {
		Buffer int
		// PublishTimeout bounds fan-out of a committed message event,
		// Kafka delivery included.
		PublishTimeout time.Duration
	}

	RabbitMQ struct {
		URL      string
		Exchange string
	}

	Kafka struct {
		Brokers  []string
		Topic    string
		GroupID  string
		ClientID string
	}
}

// New loads configuration from the environment.
// A .env file in the working directory is read first when present;
// real environment variables always win over it.
func New() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{}

	cfg.App.Env = getString(v, "APP_ENV")

	// Logger
	cfg.Log.Level = getString(v, "LOG_LEVEL")
	cfg.Log.Format = getString(v, "LOG_FORMAT")
	cfg.Log.Component = getString(v, "LOG_COMPONENT")
	cfg.Log.Source = isTruthy(v.GetString("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getString(v, "DB_DRIVER"))
	cfg.DB.DSN = getString(v, "DB_DSN")
	if cfg.DB.DSN == "" && cfg.DB.Driver == "mysql" {
		cfg.DB.DSN = getString(v, "MYSQL_DSN")
	}
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getString(v, "DB_HOST")
		cfg.DB.User = getString(v, "DB_USER")
		cfg.DB.Password = getString(v, "DB_PASSWORD")
		cfg.DB.Name = getString(v, "DB_NAME")
		cfg.DB.Port = getString(v, "DB_PORT")
		cfg.DB.DSN = buildDSN(cfg)
	}

	// Redis
	cfg.Redis.Addr = getString(v, "REDIS_ADDR")
	cfg.Redis.Password = getString(v, "REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	// gRPC
	cfg.GRPC.Host = getString(v, "GRPC_HOST")
	cfg.GRPC.Port = getString(v, "GRPC_PORT")

	cfg.Metrics.Addr = getString(v, "METRICS_ADDR")

	// Matching
	cfg.Matching.Threshold = v.GetInt("MATCH_THRESHOLD")
	cfg.Matching.Workers = v.GetInt("MATCH_WORKERS")
	cfg.Matching.Interval = v.GetDuration("MATCH_RECOMPUTE_INTERVAL")
	cfg.Matching.LockTTL = v.GetDuration("MATCH_LOCK_TTL")
	cfg.Matching.CacheTTL = v.GetDuration("MATCH_CACHE_TTL")

	cfg.Feed.Buffer = v.GetInt("FEED_BUFFER")
	cfg.Feed.PublishTimeout = v.GetDuration("FEED_PUBLISH_TIMEOUT")

	// Brokers (both optional)
	cfg.RabbitMQ.URL = getString(v, "RABBITMQ_URL")
	cfg.RabbitMQ.Exchange = getString(v, "RABBITMQ_EXCHANGE")

	cfg.Kafka.Brokers = splitList(getString(v, "KAFKA_BROKERS"))
	cfg.Kafka.Topic = getString(v, "KAFKA_TOPIC")
	cfg.Kafka.GroupID = getString(v, "KAFKA_GROUP_ID")
	cfg.Kafka.ClientID = getString(v, "KAFKA_CLIENT_ID")

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "production")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_COMPONENT", "grpc_server")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASSWORD", "root")
	v.SetDefault("DB_NAME", "networking")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("GRPC_HOST", "127.0.0.1")
	v.SetDefault("GRPC_PORT", "50051")

	v.SetDefault("METRICS_ADDR", ":9090")

	v.SetDefault("MATCH_THRESHOLD", 40)
	v.SetDefault("MATCH_WORKERS", 4)
	v.SetDefault("MATCH_RECOMPUTE_INTERVAL", "0s")
	v.SetDefault("MATCH_LOCK_TTL", "5m")
	v.SetDefault("MATCH_CACHE_TTL", "10m")

	v.SetDefault("FEED_BUFFER", 64)
	v.SetDefault("FEED_PUBLISH_TIMEOUT", "5s")

	v.SetDefault("RABBITMQ_EXCHANGE", "networking.events")

	v.SetDefault("KAFKA_TOPIC", "networking.messages")
	v.SetDefault("KAFKA_GROUP_ID", "networking-feed")
	v.SetDefault("KAFKA_CLIENT_ID", "networking-server")
}

// buildDSN assembles a driver specific DSN from the DB_* parts.
func buildDSN(cfg *Config) string {
	switch cfg.DB.Driver {
	case "postgres":
		port := cfg.DB.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.DB.Host, port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name,
		)
	case "sqlite":
		return "file:" + cfg.DB.Name + ".db?_foreign_keys=on"
	default:
		port := cfg.DB.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, port, cfg.DB.Name,
		)
	}
}

func getString(v *viper.Viper, k string) string {
	return strings.TrimSpace(v.GetString(k))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
