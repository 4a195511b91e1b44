package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr  string
	GinMode  string
	LogLevel string

	// StoreDriver selects the persistence backend: "mysql" (default) or "memory".
	StoreDriver string
	MySQLDSN    string

	JWTSecret string

	HoldTTL       time.Duration
	SweepInterval time.Duration
	Timezone      string

	PaymentBaseURL   string
	PaymentKeyID     string
	PaymentKeySecret string
	PaymentTimeout   time.Duration
	Currency         string

	CORSAllowedOrigins []string
}

// LoadEnv reads configuration from the environment, preloading a local .env file when present.
func LoadEnv() Env {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: gagal membaca .env: %v", err)
	}

	return Env{
		AppAddr:            getEnv("APP_ADDR", ":8080"),
		GinMode:            getEnv("GIN_MODE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", "mysql")),
		MySQLDSN:           getEnv("MYSQL_DSN", defaultDSN),
		JWTSecret:          getEnv("JWT_SECRET", "super-secret-key-change-me"),
		HoldTTL:            getDuration("HOLD_TTL", 10*time.Minute),
		SweepInterval:      getDuration("SWEEP_INTERVAL", 30*time.Second),
		Timezone:           getEnv("TIMEZONE", "Local"),
		PaymentBaseURL:     getEnv("PAYMENT_BASE_URL", "https://api.razorpay.com/v1"),
		PaymentKeyID:       getEnv("PAYMENT_KEY_ID", ""),
		PaymentKeySecret:   getEnv("PAYMENT_KEY_SECRET", ""),
		PaymentTimeout:     getDuration("PAYMENT_TIMEOUT", 10*time.Second),
		Currency:           strings.ToUpper(getEnv("CURRENCY", "IDR")),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", defaultOrigins),
	}
}

// Location resolves the configured timezone, falling back to time.Local.
func (e Env) Location() *time.Location {
	if e.Timezone == "" || strings.EqualFold(e.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		log.Printf("warning: timezone %q tidak dikenal, pakai Local", e.Timezone)
		return time.Local
	}
	return loc
}

const defaultDSN = "root:@tcp(127.0.0.1:3306)/bus_booking?parseTime=true&loc=Local&charset=utf8mb4&timeout=5s&readTimeout=30s&writeTimeout=30s"

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("warning: %s=%q tidak valid, pakai default %s", key, raw, def)
		return def
	}
	return d
}

func getList(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
