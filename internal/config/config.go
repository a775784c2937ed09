package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	JWT      JWT
	Chat     Chat
}

type Server struct {
	Port        string
	Environment string
}

type Database struct {
	DSN string
}

type Redis struct {
	URL string
}

type JWT struct {
	Secret string
}

// Chat carries the transport's cadences and policy switches.
type Chat struct {
	EchoToSender      bool
	QueueOffline      bool
	DeliveryInterval  time.Duration
	DeliveryBatch     int
	MaxAttempts       int
	ScheduledInterval time.Duration
	HeartbeatInterval time.Duration
	AsynqConcurrency  int
}

// Load reads config.yaml (when present) with environment-variable
// overrides, e.g. DATABASE_DSN or CHAT_ECHOTOSENDER.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	// Declared empty so AutomaticEnv feeds Unmarshal even without a file;
	// viper only resolves env values for keys it knows about.
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("chat.echotosender", false)
	v.SetDefault("chat.queueoffline", false)
	v.SetDefault("chat.deliveryinterval", 5*time.Second)
	v.SetDefault("chat.deliverybatch", 50)
	v.SetDefault("chat.maxattempts", 3)
	v.SetDefault("chat.scheduledinterval", 60*time.Second)
	v.SetDefault("chat.heartbeatinterval", 30*time.Second)
	v.SetDefault("chat.asynqconcurrency", 10)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// Environment-only configuration is fine.
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.Database.DSN == "" {
		return nil, errors.New("config: database.dsn is required")
	}
	if c.JWT.Secret == "" {
		return nil, errors.New("config: jwt.secret is required")
	}
	return &c, nil
}
