/**
 * @description
 * This package handles configuration management for the slot service. It uses
 * the Viper library to read configuration from environment variables (plus an
 * optional .env file), providing a centralized way to manage settings for
 * both the HTTP server and the replenishment scheduler binaries.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the slot service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	EventExchange        string `mapstructure:"EVENT_EXCHANGE"`
	JWKSURL              string `mapstructure:"JWKS_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`

	SlotRequestRateLimitPerMinute int    `mapstructure:"SLOT_REQUEST_RATE_LIMIT_PER_MINUTE"`
	ReplenishJobSchedule          string `mapstructure:"REPLENISH_JOB_SCHEDULE"`
	ReplenishBatchSize            int    `mapstructure:"REPLENISH_BATCH_SIZE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENT_EXCHANGE", "buddypass.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "buddypass:rate_limit")
	viper.SetDefault("SLOT_REQUEST_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("REPLENISH_JOB_SCHEDULE", "* * * * *") // Every minute.
	viper.SetDefault("REPLENISH_BATCH_SIZE", 100)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("SLOT_REQUEST_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REPLENISH_JOB_SCHEDULE")
	_ = viper.BindEnv("REPLENISH_BATCH_SIZE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return config, fmt.Errorf("DATABASE_URL must be configured")
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "buddypass:rate_limit"
	}

	if config.SlotRequestRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative rate limit configured; disabling\" limit=%d", config.SlotRequestRateLimitPerMinute)
		config.SlotRequestRateLimitPerMinute = 0
	}
	if config.ReplenishBatchSize <= 0 {
		config.ReplenishBatchSize = 100
	}
	if strings.TrimSpace(config.ReplenishJobSchedule) == "" {
		config.ReplenishJobSchedule = "* * * * *"
	}

	return
}
