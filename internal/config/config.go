package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Database struct {
	Driver   string
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	Schema   string
	MaxOpen  int
}

type Gateway struct {
	MerchantAccount string
	SkinCode        string
	SessionValidity time.Duration
	ShipWithin      time.Duration
	// NotificationUser and NotificationPassword enable basic auth on the
	// notification endpoint when both are set.
	NotificationUser     string
	NotificationPassword string
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type Config struct {
	Env            string
	Port           string
	AllowedOrigins []string
	Database       Database
	Gateway        Gateway
	Kafka          Kafka
	StaleAfter     time.Duration
	StaleInterval  time.Duration
}

// Load reads the environment, after loading a .env file from the working
// directory if there is one.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		Database: Database{
			Driver:   getEnv("BLUEPRINT_DB_DRIVER", "pgx"),
			Host:     getEnv("BLUEPRINT_DB_HOST", "localhost"),
			Port:     os.Getenv("BLUEPRINT_DB_PORT"),
			Name:     os.Getenv("BLUEPRINT_DB_DATABASE"),
			Username: os.Getenv("BLUEPRINT_DB_USERNAME"),
			Password: os.Getenv("BLUEPRINT_DB_PASSWORD"),
			Schema:   getEnv("BLUEPRINT_DB_SCHEMA", "public"),
		},
		Gateway: Gateway{
			MerchantAccount:      os.Getenv("GATEWAY_MERCHANT_ACCOUNT"),
			SkinCode:             os.Getenv("GATEWAY_SKIN_CODE"),
			NotificationUser:     os.Getenv("GATEWAY_NOTIFICATION_USER"),
			NotificationPassword: os.Getenv("GATEWAY_NOTIFICATION_PASSWORD"),
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "payment-events"),
		},
	}

	var err error
	if cfg.Database.MaxOpen, err = getInt("BLUEPRINT_DB_MAX_OPEN", 25); err != nil {
		return nil, err
	}
	if cfg.Gateway.SessionValidity, err = getDuration("GATEWAY_SESSION_VALIDITY", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Gateway.ShipWithin, err = getDuration("GATEWAY_SHIP_WITHIN", 72*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = getDuration("STALE_AFTER", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StaleInterval, err = getDuration("STALE_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.Database.Port == "" {
		switch cfg.Database.Driver {
		case "mysql":
			cfg.Database.Port = "3306"
		default:
			cfg.Database.Port = "5432"
		}
	}
	return cfg, nil
}

// Validate checks the settings needed to talk to the database and gateway.
// The simulator runs without them.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Name == "" {
		missing = append(missing, "BLUEPRINT_DB_DATABASE")
	}
	if c.Database.Username == "" {
		missing = append(missing, "BLUEPRINT_DB_USERNAME")
	}
	if c.Gateway.MerchantAccount == "" {
		missing = append(missing, "GATEWAY_MERCHANT_ACCOUNT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	switch c.Database.Driver {
	case "pgx", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// DSN builds the connection string for the configured driver.
func (d Database) DSN() string {
	if d.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
			d.Username, d.Password, d.Host, d.Port, d.Name)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Name, d.Schema)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
