package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Tracking TrackingConfig
	MQTT     MQTTConfig
	Geocoder GeocoderConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type EngineConfig struct {
	AlertRadiusKm  float64
	ClearRadiusKm  float64
	VibratePattern []int
}

type TrackingConfig struct {
	MinInterval  time.Duration
	MinDistanceM float64
}

type MQTTConfig struct {
	Enabled   bool
	BrokerURL string
	ClientID  string
	Topic     string
}

type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Engine: EngineConfig{
			AlertRadiusKm:  getEnvFloat("ALERT_RADIUS_KM", 2.0),
			ClearRadiusKm:  getEnvFloat("CLEAR_RADIUS_KM", 2.5),
			VibratePattern: getEnvIntList("VIBRATE_PATTERN", []int{0, 500, 200, 500}),
		},
		Tracking: TrackingConfig{
			MinInterval:  getEnvDuration("TRACKING_MIN_INTERVAL", 10*time.Second),
			MinDistanceM: getEnvFloat("TRACKING_MIN_DISTANCE_M", 50),
		},
		MQTT: MQTTConfig{
			Enabled:   getEnvBool("MQTT_ENABLED", false),
			BrokerURL: getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			ClientID:  getEnv("MQTT_CLIENT_ID", "arrival-alert"),
			Topic:     getEnv("MQTT_TOPIC", "device/location"),
		},
		Geocoder: GeocoderConfig{
			BaseURL:   getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org/search"),
			UserAgent: getEnv("GEOCODER_USER_AGENT", "go-arrival-alert"),
			Timeout:   getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Engine.AlertRadiusKm <= 0 {
		return fmt.Errorf("alert radius must be positive: %v", c.Engine.AlertRadiusKm)
	}
	if c.Engine.ClearRadiusKm < c.Engine.AlertRadiusKm {
		return fmt.Errorf("clear radius %v must not be smaller than alert radius %v",
			c.Engine.ClearRadiusKm, c.Engine.AlertRadiusKm)
	}
	for _, v := range c.Engine.VibratePattern {
		if v < 0 {
			return fmt.Errorf("vibrate pattern values must be non-negative: %v", c.Engine.VibratePattern)
		}
	}

	if c.Tracking.MinInterval < time.Second {
		return fmt.Errorf("tracking min interval must be at least 1 second")
	}
	if c.Tracking.MinDistanceM <= 0 {
		return fmt.Errorf("tracking min distance must be positive: %v", c.Tracking.MinDistanceM)
	}

	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT enabled but no broker URL set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvIntList parses comma-separated integers, e.g. "0,500,200,500".
func getEnvIntList(key string, fallback []int) []int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parts := strings.Split(val, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fallback
		}
		out = append(out, i)
	}
	return out
}
