package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	JWTSecret  string
	JWTExpiry  string

	RedisURL      string
	RedisAddr     string
	RedisPassword string

	CartAPIBaseURL string
	ThrottleDelay  time.Duration
	CacheTTL       time.Duration
	EggPolicy      string

	ProxyPort       string
	ProxyUpstream   string
	OfflinePage     string
	PrecacheAssets  []string
	ComponentAssets []string
	ComponentPaths  []string
	ExternalAssets  []string
	ExcludePaths    []string
}

var AppConfig *Config

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	throttleMS, _ := strconv.Atoi(os.Getenv("CART_THROTTLE_MS"))
	if throttleMS == 0 {
		throttleMS = 50
	}
	cacheSec, _ := strconv.Atoi(os.Getenv("CART_CACHE_TTL_SECONDS"))
	if cacheSec == 0 {
		cacheSec = 30
	}

	AppConfig = &Config{
		AppEnv:     getEnv("APP_ENV", "development"),
		Port:       getEnv("APP_PORT", getEnv("PORT", "8082")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "cartsync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		JWTSecret:  getEnv("JWT_SECRET", "secret"),
		JWTExpiry:  getEnv("JWT_EXPIRY", "24h"),

		RedisURL:      os.Getenv("REDIS_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CartAPIBaseURL: getEnv("CART_API_URL", "http://localhost:8082"),
		ThrottleDelay:  time.Duration(throttleMS) * time.Millisecond,
		CacheTTL:       time.Duration(cacheSec) * time.Second,
		EggPolicy:      getEnv("EGG_OVERRIDE_POLICY", "prefer-resolver"),

		ProxyPort:       getEnv("PROXY_PORT", "8090"),
		ProxyUpstream:   getEnv("PROXY_UPSTREAM", "http://localhost:5173"),
		OfflinePage:     getEnv("OFFLINE_PAGE", "/offline.html"),
		PrecacheAssets:  splitEnv("PRECACHE_ASSETS"),
		ComponentAssets: splitEnv("COMPONENT_ASSETS"),
		ComponentPaths:  splitEnv("COMPONENT_PATHS"),
		ExternalAssets:  splitEnv("EXTERNAL_ASSETS"),
		ExcludePaths:    splitEnv("EXCLUDE_PATHS"),
	}

	log.Println("Configuration loaded successfully")
	log.Printf("Environment: %s", AppConfig.AppEnv)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
