package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Firebase FirebaseConfig
	Stripe   StripeConfig
	JWT      JWTConfig
	Kafka    KafkaConfig
	Mail     MailConfig
}

type ServerConfig struct {
	Port string
	Env  string
	// ProjectURL is the public front-end base URL used to build the
	// checkout success/cancel redirect targets.
	ProjectURL string
}

type StoreConfig struct {
	// Driver selects the ledger implementation: "firestore" or "memory".
	Driver string
}

type FirebaseConfig struct {
	ProjectID         string
	CredentialsPath   string
	FirestoreDatabase string
	// Emulator support for integration testing
	UseEmulator           bool
	EmulatorAuthHost      string
	EmulatorFirestoreHost string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type JWTConfig struct {
	SigningKey string // Secret key for JWT signing
	Issuer     string // JWT issuer claim
}

type KafkaConfig struct {
	Brokers []string
}

type MailConfig struct {
	APIKey string // email provider API key
	From   string // sender address
	// RelayIntervalSeconds is how often the outbox relay polls for
	// pending mail.
	RelayIntervalSeconds int
}

// Load returns application configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       getEnv("PORT", "8080"),
			Env:        getEnv("ENV", "development"),
			ProjectURL: getEnv("PROJECT_URL", "http://localhost:4200"),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "firestore"),
		},
		Firebase: FirebaseConfig{
			ProjectID:             getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath:       getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			FirestoreDatabase:     getEnv("FIRESTORE_DATABASE", "(default)"),
			UseEmulator:           getEnvBool("USE_FIREBASE_EMULATOR", false),
			EmulatorAuthHost:      getEnv("FIREBASE_AUTH_EMULATOR_HOST", "localhost:9099"),
			EmulatorFirestoreHost: getEnv("FIRESTORE_EMULATOR_HOST", "localhost:8080"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		JWT: JWTConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", ""),
			Issuer:     getEnv("JWT_ISSUER", "sorteo.mx"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		},
		Mail: MailConfig{
			APIKey:               getEnv("MAIL_API_KEY", ""),
			From:                 getEnv("MAIL_FROM", "rifas@sorteo.mx"),
			RelayIntervalSeconds: getEnvInt("MAIL_RELAY_INTERVAL_SECONDS", 15),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
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
