package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	Port         string
	IsProduction bool
	JWTSecret    string

	// Escrow engine
	TransactionExpiry    time.Duration // default lifetime of a new transaction
	SweepInterval        time.Duration // timeout sweeper cadence
	IdempotencyRetention time.Duration // how long stored responses are replayable

	// Kafka bridge; empty KafkaBrokers disables the bridge
	KafkaBrokers     []string
	KafkaTopicPrefix string

	// Rate limiting, e.g. "100-M" for 100 requests per minute
	RateLimit string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("TRANSACTION_EXPIRY", "72h")
	viper.SetDefault("SWEEP_INTERVAL", "5m")
	viper.SetDefault("IDEMPOTENCY_RETENTION", "168h")
	viper.SetDefault("KAFKA_BROKERS", "")
	viper.SetDefault("KAFKA_TOPIC_PREFIX", "escrow")
	viper.SetDefault("RATE_LIMIT", "100-M")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "a-very-secret-key-should-be-longer-and-random" {
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	var err error
	cfg.TransactionExpiry, err = time.ParseDuration(viper.GetString("TRANSACTION_EXPIRY"))
	if err != nil {
		log.Printf("Warning: Invalid TRANSACTION_EXPIRY ('%s'). Defaulting to 72h.\n", viper.GetString("TRANSACTION_EXPIRY"))
		cfg.TransactionExpiry = 72 * time.Hour
	}

	cfg.SweepInterval, err = time.ParseDuration(viper.GetString("SWEEP_INTERVAL"))
	if err != nil {
		log.Printf("Warning: Invalid SWEEP_INTERVAL ('%s'). Defaulting to 5m.\n", viper.GetString("SWEEP_INTERVAL"))
		cfg.SweepInterval = 5 * time.Minute
	}

	cfg.IdempotencyRetention, err = time.ParseDuration(viper.GetString("IDEMPOTENCY_RETENTION"))
	if err != nil {
		log.Printf("Warning: Invalid IDEMPOTENCY_RETENTION ('%s'). Defaulting to 168h.\n", viper.GetString("IDEMPOTENCY_RETENTION"))
		cfg.IdempotencyRetention = 7 * 24 * time.Hour
	}

	if brokers := viper.GetString("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.KafkaTopicPrefix = viper.GetString("KAFKA_TOPIC_PREFIX")

	cfg.RateLimit = viper.GetString("RATE_LIMIT")

	return cfg, nil
}
