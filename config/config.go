// Package config loads settings for the fleet binaries from the
// environment, with an optional .env file.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Group    net.IP
	Port     int
	SenderID uint32
	TTL      int
	Logging  LoggingConfig
	Kafka    KafkaConfig
}

type LoggingConfig struct {
	Level string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads the configuration. Missing variables fall back to defaults;
// a missing .env file is not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file, using environment only")
	}
	return &Config{
		Group:    getEnvIP("FLEET_GROUP", net.IPv4(239, 1, 1, 1)),
		Port:     getEnvInt("FLEET_PORT", 12345),
		SenderID: uint32(getEnvInt("FLEET_SENDER_ID", 1)),
		TTL:      getEnvInt("FLEET_TTL", 1),
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Kafka: KafkaConfig{
			Brokers: parseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnv("KAFKA_TOPIC", "fleet-messages"),
		},
	}
}

// InitLogger applies the configured level to the standard logger.
func (c *Config) InitLogger() {
	lvl, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
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

func getEnvIP(key string, defaultValue net.IP) net.IP {
	if value := os.Getenv(key); value != "" {
		if ip := net.ParseIP(value); ip != nil && ip.To4() != nil {
			return ip
		}
	}
	return defaultValue
}

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, broker := range parts {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
