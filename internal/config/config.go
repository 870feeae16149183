package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the API server.
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	JWT struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"jwt"`
	Settlement struct {
		Interval     time.Duration `mapstructure:"interval"`
		InitialDelay time.Duration `mapstructure:"initial_delay"`
	} `mapstructure:"settlement"`
	Market struct {
		TickInterval time.Duration `mapstructure:"tick_interval"`
	} `mapstructure:"market"`
}

// Load reads configuration from ./configs/config.yaml, falling back to
// defaults when the file is absent. Environment variables override file values.
func Load() (*Config, error) {
	viper.AddConfigPath("./configs")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.path", "brokerage.db")
	viper.SetDefault("jwt.secret", "brokerage-secret-key")
	viper.SetDefault("settlement.interval", time.Hour)
	viper.SetDefault("settlement.initial_delay", 10*time.Second)
	viper.SetDefault("market.tick_interval", 30*time.Second)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No config file is fine, defaults apply
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
