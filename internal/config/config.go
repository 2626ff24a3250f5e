package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	CORSAllowedOrigins []string
	AdminJWTSecret     string

	// Custom question writes per client per second, and burst.
	QuestionWriteRate  float64
	QuestionWriteBurst int

	// Crisis engine tuning
	EmergencyCountdown    time.Duration
	EmergencyTickInterval time.Duration
	EscalationThreshold   int
	MaxUtteranceRunes     int
	EmergencyNumber       string
	SuicideHotlineNumber  string
	DefaultLanguage       string
	LexiconDir            string
	LexiconWatch          bool
	AuditWriteTimeout     time.Duration
	StateTTL              time.Duration
	CompanionName         string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		QuestionWriteRate:  getEnvAsFloat("QUESTION_WRITE_RATE", 1),
		QuestionWriteBurst: getEnvAsInt("QUESTION_WRITE_BURST", 10),

		EmergencyCountdown:    getEnvAsDuration("EMERGENCY_COUNTDOWN", emergency.DefaultCountdown),
		EmergencyTickInterval: getEnvAsDuration("EMERGENCY_TICK_INTERVAL", emergency.DefaultTickInterval),
		EscalationThreshold:   getEnvAsInt("ESCALATION_THRESHOLD", crisis.DefaultEscalationThreshold),
		MaxUtteranceRunes:     getEnvAsInt("MAX_UTTERANCE_RUNES", crisis.DefaultMaxUtteranceRunes),
		EmergencyNumber:       strings.TrimSpace(getEnv("EMERGENCY_NUMBER", emergency.DefaultEmergencyNumber)),
		SuicideHotlineNumber:  strings.TrimSpace(getEnv("SUICIDE_HOTLINE_NUMBER", emergency.DefaultSuicideHotline)),
		DefaultLanguage:       strings.ToLower(strings.TrimSpace(getEnv("DEFAULT_LANGUAGE", "es"))),
		LexiconDir:            getEnv("LEXICON_DIR", ""),
		LexiconWatch:          getEnvAsBool("LEXICON_WATCH", false),
		AuditWriteTimeout:     getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
		StateTTL:              getEnvAsDuration("STATE_TTL", 24*time.Hour),
		CompanionName:         getEnv("COMPANION_NAME", "MentalCare AI"),
	}
}

// Policy projects the escalation tuning knobs.
func (c *Config) Policy() crisis.Policy {
	return crisis.Policy{EscalationThreshold: c.EscalationThreshold}
}

// EmergencySettings projects the countdown and dialing knobs.
func (c *Config) EmergencySettings() emergency.Settings {
	return emergency.Settings{
		Countdown:       c.EmergencyCountdown,
		TickInterval:    c.EmergencyTickInterval,
		EmergencyNumber: c.EmergencyNumber,
		SuicideHotline:  c.SuicideHotlineNumber,
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
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
