package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at boot. Empty connection settings select the
// in-process adapters.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	JWTIssuer string

	// PaymentGateway is "stripe" or "fake"; fake settles sessions in process.
	PaymentGateway         string
	StripeSecretKey        string
	StripeAllowedCountries []string
	StripeWebhookSecret    string
	StripeAPIURL           string
	GatewayTimeout         time.Duration

	CatalogSeedFile string
	Currency        string
	ShutdownTimeout time.Duration
}

// Load reads the optional dotenv files, then the environment. Variables
// already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	gatewayTimeout, err := getenvDuration("GATEWAY_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ServiceName: getenvDefault("SERVICE_NAME", "kodinar-bazaar"),
		Env:         getenvDefault("ENV", "dev"),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:    getenvDefault("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),

		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenvDefault("KAFKA_TOPIC", "bazaar.orders"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTIssuer: getenvDefault("JWT_ISSUER", "kodinar-bazaar"),

		PaymentGateway:         strings.ToLower(getenvDefault("PAYMENT_GATEWAY", "stripe")),
		StripeSecretKey:        os.Getenv("STRIPE_SECRET_KEY"),
		StripeAllowedCountries: splitCSV(getenvDefault("STRIPE_ALLOWED_COUNTRIES", "IN")),
		StripeWebhookSecret:    os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeAPIURL:           os.Getenv("STRIPE_API_URL"),
		GatewayTimeout:         gatewayTimeout,

		CatalogSeedFile: os.Getenv("CATALOG_SEED_FILE"),
		Currency:        strings.ToUpper(getenvDefault("CURRENCY", "INR")),
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
