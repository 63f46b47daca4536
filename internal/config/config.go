package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort       string        `mapstructure:"SERVER_PORT"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	PostgresURL      string        `mapstructure:"POSTGRES_URL"`
	AuthorityURL     string        `mapstructure:"AUTHORITY_URL"`
	AuthorityTimeout time.Duration `mapstructure:"AUTHORITY_TIMEOUT"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	DeviceID         string        `mapstructure:"DEVICE_ID"`
	HistoryCacheSize int           `mapstructure:"HISTORY_CACHE_SIZE"`
}

func Load() Config {
	viper.AutomaticEnv()
	viper.SetDefault("SERVER_PORT", ":8090")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("POSTGRES_URL", "")
	viper.SetDefault("AUTHORITY_URL", "https://api.readlock.app")
	viper.SetDefault("AUTHORITY_TIMEOUT", "10s")
	viper.SetDefault("JWT_SECRET", "dev-secret-change-me")
	viper.SetDefault("DEVICE_ID", "dev-device")
	viper.SetDefault("HISTORY_CACHE_SIZE", 50)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
