package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration, grouped by concern.
type Config struct {
	Server       Server
	Log          Log
	Database     Database
	Redis        RedisConfig
	Kafka        Kafka
	OTP          OTP
	RateLimit    RateLimit
	Session      Session
	Registration Registration
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	FrontendURL string
}

// IsProduction reports whether the server runs with production safeguards.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

type Log struct {
	Level  string
	Format string
}

// Database is optional; an empty URL selects the in-memory stores.
type Database struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig is optional; an empty URL selects the in-memory stores.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka is optional; without brokers audit events stay in the audit store.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

type OTP struct {
	TTL         time.Duration
	MaxAttempts int
	Mock        bool
	MockCode    string
}

type RateLimit struct {
	OTPLimit  int
	OTPWindow time.Duration
	// APILimit bounds every /api request per client IP.
	APILimit  int
	APIWindow time.Duration
	// Disabled skips limiting entirely. Set outside production and in mock mode.
	Disabled bool
}

type Session struct {
	JWTSecret    string
	TokenTTL     time.Duration
	Issuer       string
	FormIdleTTL  time.Duration
	SweepEvery   time.Duration
	MaxFormCount int
}

type Registration struct {
	StateCode    string
	DistrictCode string
	// DevMobile is the number OTPs are "sent" to until a UIDAI lookup is wired.
	DevMobile    string
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() Config {
	env := getEnv("ENVIRONMENT", "development")
	mock := getBool("OTP_MOCK", false)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		// Use a default for development - should be overridden in production
		jwtSecret = "udyam-dev-secret-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:        getEnv("UDYAM_ADDR", ":3001"),
			Environment: env,
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: Database{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    getList("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "udyam.audit"),
		},
		OTP: OTP{
			TTL:         getDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts: getInt("OTP_MAX_ATTEMPTS", 5),
			Mock:        mock,
			MockCode:    getEnv("OTP_MOCK_CODE", "123456"),
		},
		RateLimit: RateLimit{
			OTPLimit:  getInt("OTP_RATE_LIMIT", 3),
			OTPWindow: getDuration("OTP_RATE_WINDOW", 5*time.Minute),
			APILimit:  getInt("API_RATE_LIMIT", 100),
			APIWindow: getDuration("API_RATE_WINDOW", 15*time.Minute),
			Disabled:  mock || env != "production",
		},
		Session: Session{
			JWTSecret:    jwtSecret,
			TokenTTL:     getDuration("SESSION_TOKEN_TTL", time.Hour),
			Issuer:       getEnv("SESSION_TOKEN_ISSUER", "udyam-registration"),
			FormIdleTTL:  getDuration("FORM_SESSION_TTL", 30*time.Minute),
			SweepEvery:   getDuration("FORM_SESSION_SWEEP", time.Minute),
			MaxFormCount: getInt("FORM_SESSION_MAX", 10000),
		},
		Registration: Registration{
			StateCode:    getEnv("UDYAM_STATE_CODE", "27"),
			DistrictCode: getEnv("UDYAM_DISTRICT_CODE", "01"),
			DevMobile:    getEnv("UDYAM_DEV_MOBILE", "9876543210"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getList(key string) []string {
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
